// Package scanner maintains the tradeable universe: a daily volume
// ranking that fixes leverage tiers for the day, and a minutely
// top-gainer shortlist that the engine actually evaluates.
package scanner

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Ticker is the 24h rolling view of one symbol.
type Ticker struct {
	Symbol        string
	LastPrice     float64
	QuoteVolume   float64 // USD
	ChangePercent float64
}

// TickerProvider supplies the 24h tickers; the futures REST client
// implements it.
type TickerProvider interface {
	Tickers24h(ctx context.Context) ([]Ticker, error)
}

// Config bounds universe selection.
type Config struct {
	UniverseSize    int
	ShortlistSize   int
	ChangeMin       float64 // 24h change lower bound (%)
	ChangeMax       float64 // 24h change upper bound (%)
	MinVolume24hUSD float64
	Blacklist       []string // symbols never traded
}

// Scanner holds the current universe. Ranking and shortlist are struct
// fields replaced wholesale on refresh; nothing accumulates implicitly.
type Scanner struct {
	mu        sync.RWMutex
	provider  TickerProvider
	cfg       Config
	ranks     map[string]int // 1-based daily volume rank
	rankDate  string         // UTC calendar day the ranking belongs to
	shortlist []string
	volumes   map[string]float64
	banned    map[string]struct{}
}

// New builds a scanner over the provider.
func New(provider TickerProvider, cfg Config) *Scanner {
	banned := make(map[string]struct{}, len(cfg.Blacklist))
	for _, s := range cfg.Blacklist {
		banned[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	return &Scanner{
		provider: provider,
		cfg:      cfg,
		ranks:    make(map[string]int),
		volumes:  make(map[string]float64),
		banned:   banned,
	}
}

// Refresh pulls tickers and rebuilds the shortlist. The volume ranking
// is recomputed only when the UTC calendar day rolls over, so leverage
// tiers stay fixed intraday and never see the day's forming volume.
func (s *Scanner) Refresh(ctx context.Context, now time.Time) error {
	tickers, err := s.provider.Tickers24h(ctx)
	if err != nil {
		return fmt.Errorf("fetch 24h tickers: %w", err)
	}

	perps := tickers[:0:0]
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		if _, bad := s.banned[t.Symbol]; bad {
			continue
		}
		perps = append(perps, t)
	}

	day := now.UTC().Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rankDate != day {
		s.rebuildRankingLocked(perps)
		s.rankDate = day
		log.Printf("scanner: volume ranking rebuilt for %s (%d symbols)", day, len(s.ranks))
	}

	s.volumes = make(map[string]float64, len(perps))
	for _, t := range perps {
		s.volumes[t.Symbol] = t.QuoteVolume
	}

	s.rebuildShortlistLocked(perps)
	return nil
}

// rebuildRankingLocked ranks by 24h quote volume, deepest first.
func (s *Scanner) rebuildRankingLocked(tickers []Ticker) {
	sorted := make([]Ticker, len(tickers))
	copy(sorted, tickers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].QuoteVolume > sorted[j].QuoteVolume
	})

	limit := s.cfg.UniverseSize
	if limit <= 0 || limit > len(sorted) {
		limit = len(sorted)
	}
	s.ranks = make(map[string]int, limit)
	for i := 0; i < limit; i++ {
		s.ranks[sorted[i].Symbol] = i + 1
	}
}

// rebuildShortlistLocked keeps ranked symbols whose 24h change sits in
// the momentum band, strongest gainers first.
func (s *Scanner) rebuildShortlistLocked(tickers []Ticker) {
	candidates := make([]Ticker, 0, len(tickers))
	for _, t := range tickers {
		if _, ranked := s.ranks[t.Symbol]; !ranked {
			continue
		}
		change := t.ChangePercent
		if change < 0 {
			change = -change
		}
		if change < s.cfg.ChangeMin || change > s.cfg.ChangeMax {
			continue
		}
		if t.QuoteVolume < s.cfg.MinVolume24hUSD {
			continue
		}
		candidates = append(candidates, t)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ChangePercent > candidates[j].ChangePercent
	})

	limit := s.cfg.ShortlistSize
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	s.shortlist = make([]string, 0, limit)
	for _, t := range candidates[:limit] {
		s.shortlist = append(s.shortlist, t.Symbol)
	}
}

// Shortlist returns the current evaluation set.
func (s *Scanner) Shortlist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.shortlist))
	copy(out, s.shortlist)
	return out
}

// Rank returns the symbol's daily volume rank; 0 when unranked.
func (s *Scanner) Rank(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ranks[symbol]
}

// Volume24h returns the last observed 24h quote volume for the symbol.
func (s *Scanner) Volume24h(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volumes[symbol]
}

// UniverseSize reports how many symbols carry a rank today.
func (s *Scanner) UniverseSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ranks)
}
