package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"momentum-core/pkg/exchanges/binance/futures"
)

// ErrUnknownPrecision means the symbol has no cached trading filter.
// Orders are never sent with guessed precision; the symbol is skipped.
var ErrUnknownPrecision = errors.New("no trading filter cached for symbol")

// FilterSource supplies exchange trading filters.
type FilterSource interface {
	GetExchangeInfo(ctx context.Context) (map[string]futures.SymbolFilter, error)
}

// precisionCache holds per-symbol filters, refreshed from exchange info.
type precisionCache struct {
	mu      sync.RWMutex
	filters map[string]futures.SymbolFilter
	source  FilterSource
}

func newPrecisionCache(source FilterSource) *precisionCache {
	return &precisionCache{source: source}
}

// Refresh loads filters with retries; trading cannot start without them.
func (p *precisionCache) Refresh(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		filters, err := p.source.GetExchangeInfo(ctx)
		if err == nil && len(filters) > 0 {
			p.mu.Lock()
			p.filters = filters
			p.mu.Unlock()
			log.Printf("executor: trading filters loaded for %d symbols", len(filters))
			return nil
		}
		if err == nil {
			err = errors.New("empty exchange info")
		}
		lastErr = err
		log.Printf("executor: exchange info attempt %d/3 failed: %v", attempt, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return fmt.Errorf("load trading filters: %w", lastErr)
}

// Lookup returns the filter for a symbol, fail closed when absent.
func (p *precisionCache) Lookup(symbol string) (futures.SymbolFilter, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.filters[symbol]
	if !ok {
		return futures.SymbolFilter{}, fmt.Errorf("%s: %w", symbol, ErrUnknownPrecision)
	}
	return f, nil
}

// roundDown truncates v to the given number of decimal places.
func roundDown(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	pow := math.Pow10(decimals)
	return math.Floor(v*pow) / pow
}
