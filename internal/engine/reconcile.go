package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"momentum-core/internal/risk"
	"momentum-core/internal/signal"
	"momentum-core/pkg/exchanges/binance/futures"
)

// PositionSource reads open positions and resting orders at boot.
type PositionSource interface {
	GetPositions(ctx context.Context, symbol string) ([]futures.PositionRisk, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]futures.OpenOrder, error)
}

// Reconcile rebuilds the position table from the exchange. The venue is
// authoritative: every nonzero position is adopted, resting STOP_MARKET
// orders become the managed stop, and positions without one get a
// synthetic stop at the fallback ROE distance.
func (e *Engine) Reconcile(ctx context.Context, src PositionSource) error {
	rows, err := src.GetPositions(ctx, "")
	if err != nil {
		return fmt.Errorf("reconcile positions: %w", err)
	}

	var adopted []*risk.Position
	for _, row := range rows {
		amt := row.Amt()
		if amt == 0 {
			continue
		}
		side := signal.Long
		if amt < 0 {
			side = signal.Short
			amt = -amt
		}
		leverage := row.LeverageI()
		if leverage <= 0 {
			leverage = 1
		}
		entry := row.EntryPriceF()

		stop := e.restingStop(ctx, src, row.Symbol)
		if stop == 0 {
			dist := entry * e.cfg.FallbackStopROE / float64(leverage)
			if side == signal.Long {
				stop = entry - dist
			} else {
				stop = entry + dist
			}
			log.Printf("engine: %s adopted without stop, synthetic at %.8g", row.Symbol, stop)
		}

		openedAt := time.UnixMilli(row.UpdateTime).UTC()
		if row.UpdateTime == 0 {
			openedAt = time.Now().UTC()
		}
		adopted = append(adopted, &risk.Position{
			Symbol:   row.Symbol,
			Side:     side,
			Qty:      amt,
			Entry:    entry,
			Leverage: leverage,
			Stop:     stop,
			OpenedAt: openedAt,
		})
		log.Printf("engine: adopted %s %s qty=%.8g entry=%.8g stop=%.8g lev=%dx",
			row.Symbol, side, amt, entry, stop, leverage)
	}

	e.risk.Restore(adopted)
	if len(adopted) > 0 {
		e.syncStreams(ctx)
	}
	return nil
}

// restingStop returns the stop price of a close-position STOP_MARKET
// order, or 0 when none rests.
func (e *Engine) restingStop(ctx context.Context, src PositionSource, symbol string) float64 {
	orders, err := src.GetOpenOrders(ctx, symbol)
	if err != nil {
		log.Printf("engine: %s open orders: %v", symbol, err)
		return 0
	}
	for _, o := range orders {
		if o.Type == "STOP_MARKET" && (o.ClosePosition || o.ReduceOnly) {
			return o.StopPriceF()
		}
	}
	return 0
}
