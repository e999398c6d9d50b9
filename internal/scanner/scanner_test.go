package scanner

import (
	"context"
	"testing"
	"time"
)

type fakeProvider struct {
	tickers []Ticker
}

func (f *fakeProvider) Tickers24h(context.Context) ([]Ticker, error) {
	return f.tickers, nil
}

func testConfig() Config {
	return Config{
		UniverseSize:    3,
		ShortlistSize:   2,
		ChangeMin:       2,
		ChangeMax:       200,
		MinVolume24hUSD: 50_000_000,
	}
}

func baseTickers() []Ticker {
	return []Ticker{
		{Symbol: "BTCUSDT", QuoteVolume: 900_000_000, ChangePercent: 1.0},
		{Symbol: "ETHUSDT", QuoteVolume: 700_000_000, ChangePercent: 5.5},
		{Symbol: "SOLUSDT", QuoteVolume: 300_000_000, ChangePercent: 12.0},
		{Symbol: "DOGEUSDT", QuoteVolume: 100_000_000, ChangePercent: 80.0},
		{Symbol: "BTCBUSD", QuoteVolume: 800_000_000, ChangePercent: 9.0}, // wrong quote asset
	}
}

func TestRefreshBuildsRankingAndShortlist(t *testing.T) {
	p := &fakeProvider{tickers: baseTickers()}
	s := New(p, testConfig())
	now := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)

	if err := s.Refresh(context.Background(), now); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if got := s.Rank("BTCUSDT"); got != 1 {
		t.Fatalf("BTCUSDT rank=%d, expected 1", got)
	}
	if got := s.Rank("SOLUSDT"); got != 3 {
		t.Fatalf("SOLUSDT rank=%d, expected 3", got)
	}
	// DOGEUSDT falls outside the 3-deep universe, BTCBUSD is not a USDT perp.
	if got := s.Rank("DOGEUSDT"); got != 0 {
		t.Fatalf("DOGEUSDT rank=%d, expected unranked", got)
	}
	if got := s.Rank("BTCBUSD"); got != 0 {
		t.Fatalf("BTCBUSD rank=%d, expected unranked", got)
	}

	// Shortlist: BTC excluded (1% < 2% band), SOL and ETH by change desc.
	want := []string{"SOLUSDT", "ETHUSDT"}
	got := s.Shortlist()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("shortlist=%v, expected %v", got, want)
	}

	if v := s.Volume24h("ETHUSDT"); v != 700_000_000 {
		t.Fatalf("Volume24h=%v, expected 700M", v)
	}
}

// Intraday refreshes must not move the daily ranking even when volumes
// shift; the rollover to a new UTC day rebuilds it.
func TestRankingFixedUntilUTCDayRollover(t *testing.T) {
	p := &fakeProvider{tickers: baseTickers()}
	s := New(p, testConfig())
	day1 := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)

	if err := s.Refresh(context.Background(), day1); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// SOL volume explodes intraday.
	p.tickers[2].QuoteVolume = 2_000_000_000
	if err := s.Refresh(context.Background(), day1.Add(6*time.Hour)); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := s.Rank("SOLUSDT"); got != 3 {
		t.Fatalf("intraday SOLUSDT rank=%d, expected still 3", got)
	}

	// Next UTC day the ranking catches up.
	day2 := day1.Add(24 * time.Hour)
	if err := s.Refresh(context.Background(), day2); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := s.Rank("SOLUSDT"); got != 1 {
		t.Fatalf("next-day SOLUSDT rank=%d, expected 1", got)
	}
}

func TestShortlistFiltersThinAndOverextended(t *testing.T) {
	p := &fakeProvider{tickers: []Ticker{
		{Symbol: "AUSDT", QuoteVolume: 900_000_000, ChangePercent: 10},
		{Symbol: "BUSDT", QuoteVolume: 40_000_000, ChangePercent: 15},  // below volume floor
		{Symbol: "CUSDT", QuoteVolume: 600_000_000, ChangePercent: 250}, // beyond change band
		{Symbol: "DUSDT", QuoteVolume: 500_000_000, ChangePercent: -8}, // shorts count via magnitude
	}}
	cfg := testConfig()
	cfg.UniverseSize = 10
	cfg.ShortlistSize = 10
	s := New(p, cfg)

	if err := s.Refresh(context.Background(), time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got := s.Shortlist()
	if len(got) != 2 {
		t.Fatalf("shortlist=%v, expected AUSDT and DUSDT", got)
	}
	if got[0] != "AUSDT" || got[1] != "DUSDT" {
		t.Fatalf("shortlist=%v, expected [AUSDT DUSDT]", got)
	}
}
