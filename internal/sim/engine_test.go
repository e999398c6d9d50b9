package sim

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"momentum-core/internal/exit"
	"momentum-core/internal/series"
	"momentum-core/internal/signal"
	"momentum-core/pkg/config"
)

// trendSeries builds 210 rising bars whose last bar breaks out on 4x
// volume, then appends the caller's post-breakout bars.
func trendSeries(after ...series.Candle) series.Series {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	n := 210
	s := make(series.Series, 0, n+len(after))
	for i := 0; i < n; i++ {
		base := 100 + float64(i)*0.1
		s = append(s, series.Candle{
			Symbol:   "TESTUSDT",
			OpenTime: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:     base - 0.05,
			High:     base + 0.02,
			Low:      base - 0.08,
			Close:    base,
			Volume:   10,
			Closed:   true,
		})
	}
	last := &s[n-1]
	prev := s[n-2]
	last.Open = prev.Close
	last.Close = prev.High + 0.5
	last.High = last.Close + 0.01
	last.Low = last.Open
	last.Volume = 40

	for i, c := range after {
		c.Symbol = "TESTUSDT"
		c.OpenTime = start.Add(time.Duration(n+i) * 15 * time.Minute)
		c.Closed = true
		if c.Volume == 0 {
			c.Volume = 10
		}
		s = append(s, c)
	}
	return s
}

func testConfig() Config {
	th := config.DefaultThresholds()
	th.ADXMax = 101 // synthetic trend saturates ADX
	return Config{
		InitialBalance: 1000,
		Thresholds:     th,
	}
}

func runReplay(t *testing.T, data map[string]series.Series) *Result {
	t.Helper()
	s := data["TESTUSDT"]
	e := New(testConfig(), data)
	res, err := e.Run(s[0].OpenTime, s[len(s)-1].OpenTime)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestReplayEntersOnNextOpen(t *testing.T) {
	data := map[string]series.Series{"TESTUSDT": trendSeries(
		series.Candle{Open: 121.4, High: 121.5, Low: 121.3, Close: 121.35},
		series.Candle{Open: 121.35, High: 121.4, Low: 118, Close: 118.5},
	)}
	res := runReplay(t, data)

	if len(res.Trades) != 1 {
		t.Fatalf("trades=%d, expected 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Side != signal.Long {
		t.Fatalf("side=%s, expected LONG", tr.Side)
	}
	// Entry is the bar AFTER the breakout, at its open plus slippage.
	entryBar := data["TESTUSDT"][210]
	if !tr.OpenedAt.Equal(entryBar.OpenTime) {
		t.Fatalf("opened at %v, expected next bar %v", tr.OpenedAt, entryBar.OpenTime)
	}
	wantEntry := entryBar.Open * (1 + 5.0/10000)
	if math.Abs(tr.Entry-wantEntry) > 1e-9 {
		t.Fatalf("entry=%v, expected open+slippage %v", tr.Entry, wantEntry)
	}
}

func TestReplayHardStopLoss(t *testing.T) {
	data := map[string]series.Series{"TESTUSDT": trendSeries(
		series.Candle{Open: 121.4, High: 121.5, Low: 121.3, Close: 121.35},
		series.Candle{Open: 121.35, High: 121.4, Low: 118, Close: 118.5},
	)}
	res := runReplay(t, data)

	tr := res.Trades[0]
	if tr.Reason != string(exit.ReasonHardStop) {
		t.Fatalf("reason=%s, expected hard_stop", tr.Reason)
	}
	if tr.PnL >= 0 {
		t.Fatalf("pnl=%v, expected a loss", tr.PnL)
	}
	if tr.Exit >= tr.Entry {
		t.Fatalf("exit %v not below entry %v for a stopped long", tr.Exit, tr.Entry)
	}
	if res.Summary.FinalBalance >= res.Summary.InitialBalance {
		t.Fatalf("balance did not shrink: %+v", res.Summary)
	}
}

func TestReplayTrailingRatchetLocksProfit(t *testing.T) {
	data := map[string]series.Series{"TESTUSDT": trendSeries(
		series.Candle{Open: 121.4, High: 121.5, Low: 121.3, Close: 121.45},
		// Run-up arms the trail and ratchets the stop above entry.
		series.Candle{Open: 121.5, High: 122.5, Low: 121.45, Close: 122.4},
		// Pullback through the ratcheted stop realizes the profit.
		series.Candle{Open: 122.3, High: 122.35, Low: 122.0, Close: 122.1},
	)}
	res := runReplay(t, data)

	if len(res.Trades) != 1 {
		t.Fatalf("trades=%d, expected 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.PnL <= 0 {
		t.Fatalf("pnl=%v, expected ratcheted stop to lock a profit", tr.PnL)
	}
	if tr.Exit <= tr.Entry {
		t.Fatalf("exit %v not above entry %v", tr.Exit, tr.Entry)
	}
	if tr.MaxROE < 0.30 {
		t.Fatalf("max roe=%v, trail should have been armed", tr.MaxROE)
	}
}

// The replay queues exactly the signals the live evaluator emits on the
// same closed window.
func TestReplayMatchesLiveEvaluator(t *testing.T) {
	data := map[string]series.Series{"TESTUSDT": trendSeries(
		series.Candle{Open: 121.4, High: 121.5, Low: 121.3, Close: 121.35},
		series.Candle{Open: 121.35, High: 121.4, Low: 118, Close: 118.5},
	)}
	s := data["TESTUSDT"]

	cfg := testConfig()
	ev := signal.NewEvaluator(cfg.Thresholds)
	window := s[:210] // through the breakout bar
	now := s[209].OpenTime.Add(15 * time.Minute)
	sig, rej, err := ev.Evaluate("TESTUSDT", window, now)
	if err != nil || rej != nil || sig == nil {
		t.Fatalf("live evaluation: sig=%v rej=%v err=%v", sig, rej, err)
	}

	res := runReplay(t, data)
	if len(res.Trades) != 1 || res.Trades[0].Side != sig.Side {
		t.Fatalf("replay diverged from live evaluation: %+v vs %+v", res.Trades, sig)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	build := func() map[string]series.Series {
		return map[string]series.Series{"TESTUSDT": trendSeries(
			series.Candle{Open: 121.4, High: 121.5, Low: 121.3, Close: 121.45},
			series.Candle{Open: 121.5, High: 122.5, Low: 121.45, Close: 122.4},
			series.Candle{Open: 122.3, High: 122.35, Low: 122.0, Close: 122.1},
		)}
	}
	a := runReplay(t, build())
	b := runReplay(t, build())

	if a.Summary != b.Summary {
		t.Fatalf("summaries diverged: %+v vs %+v", a.Summary, b.Summary)
	}
	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("trade counts diverged: %d vs %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		if a.Trades[i] != b.Trades[i] {
			t.Fatalf("trade %d diverged: %+v vs %+v", i, a.Trades[i], b.Trades[i])
		}
	}
}

// longTrendSeries is trendSeries with a configurable length: n rising
// bars ending in a 4x-volume breakout, then an entry bar and a flush
// through the stop.
func longTrendSeries(n int) series.Series {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := make(series.Series, 0, n+2)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)*0.1
		s = append(s, series.Candle{
			Symbol:   "TESTUSDT",
			OpenTime: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:     base - 0.05,
			High:     base + 0.02,
			Low:      base - 0.08,
			Close:    base,
			Volume:   10,
			Closed:   true,
		})
	}
	last := &s[n-1]
	prev := s[n-2]
	last.Open = prev.Close
	last.Close = prev.High + 0.5
	last.High = last.Close + 0.01
	last.Low = last.Open
	last.Volume = 40

	top := s[n-1].Close
	after := []series.Candle{
		{Open: top + 0.05, High: top + 0.15, Low: top - 0.05, Close: top},
		{Open: top, High: top + 0.05, Low: top - 4, Close: top - 3.5},
	}
	for i, c := range after {
		c.Symbol = "TESTUSDT"
		c.OpenTime = start.Add(time.Duration(n+i) * 15 * time.Minute)
		c.Volume = 10
		c.Closed = true
		s = append(s, c)
	}
	return s
}

// Indicators in a replay see the same fixed lookback the live engine
// fetches per evaluation, so history beyond that lookback cannot shift
// Wilder smoothing, the stop distance or the sizing.
func TestReplayLookbackIgnoresAncientHistory(t *testing.T) {
	full := longTrendSeries(400)

	// The tail starts exactly one lookback before the entry bar, so the
	// breakout evaluation and the stop both see identical windows.
	cut := len(full) - 2 - 250
	tail := append(series.Series(nil), full[cut:]...)

	a := runReplay(t, map[string]series.Series{"TESTUSDT": full})
	b := runReplay(t, map[string]series.Series{"TESTUSDT": tail})

	if len(a.Trades) == 0 {
		t.Fatal("expected the breakout to trade")
	}
	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("trade counts diverged: %d vs %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		if a.Trades[i] != b.Trades[i] {
			t.Fatalf("trade %d shifted with extra history: %+v vs %+v", i, a.Trades[i], b.Trades[i])
		}
	}
	if a.Summary.FinalBalance != b.Summary.FinalBalance {
		t.Fatalf("final balance diverged: %v vs %v", a.Summary.FinalBalance, b.Summary.FinalBalance)
	}
}

func TestLiquidationDisambiguation(t *testing.T) {
	long := exit.State{Side: signal.Long, Entry: 100, Leverage: 10}
	liq, ok := liquidationPrice(long)
	if !ok || liq != 90 {
		t.Fatalf("liq=%v ok=%v, expected 90", liq, ok)
	}
	// Stop below liquidation gets reclassified.
	if !beyond(long, 89, liq) {
		t.Fatal("stop at 89 sits beyond the 90 liquidation level")
	}
	if beyond(long, 95, liq) {
		t.Fatal("stop at 95 is a normal stop-out")
	}

	short := exit.State{Side: signal.Short, Entry: 100, Leverage: 10}
	liq, _ = liquidationPrice(short)
	if liq != 110 {
		t.Fatalf("short liq=%v, expected 110", liq)
	}
	if !beyond(short, 111, liq) {
		t.Fatal("short stop above liquidation must reclassify")
	}
}

func TestWriteTradesCSV(t *testing.T) {
	trades := []Trade{{
		Symbol: "BTCUSDT", Side: signal.Long, Qty: 0.5, Leverage: 20,
		Entry: 100, Exit: 103, PnL: 1.45, MaxROE: 0.8, Reason: "hard_stop",
		OpenedAt: time.Date(2026, 3, 12, 4, 30, 0, 0, time.UTC),
		ClosedAt: time.Date(2026, 3, 12, 6, 0, 0, 0, time.UTC),
	}}
	var buf bytes.Buffer
	if err := WriteTradesCSV(&buf, trades); err != nil {
		t.Fatalf("WriteTradesCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%d, expected header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[1], "BTCUSDT,LONG,0.5,20,100,103,") {
		t.Fatalf("row=%q", lines[1])
	}
}
