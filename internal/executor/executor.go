// Package executor owns every order that reaches the venue. It clears
// stale orders before acting, verifies cancellations, and handles the
// conflict ladder around protective stops so a position is never left
// unprotected without a deliberate decision.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"momentum-core/internal/signal"
	"momentum-core/pkg/exchanges/binance/futures"
	"momentum-core/pkg/exchanges/common"

	"github.com/google/uuid"
)

// ErrPositionGone means the venue reports no position left to act on.
var ErrPositionGone = errors.New("position no longer exists at the venue")

// ErrStopBreached means price crossed the stop while placing it; the
// position was flattened at market instead.
var ErrStopBreached = errors.New("stop level already breached, position closed at market")

// Venue is the slice of the exchange client the executor uses.
type Venue interface {
	SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error)
	CancelAllOpenOrders(ctx context.Context, symbol string) error
	GetOpenOrders(ctx context.Context, symbol string) ([]futures.OpenOrder, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginType(ctx context.Context, symbol, marginType string) error
}

// Fill reports what actually happened at the venue.
type Fill struct {
	Price float64
	Qty   float64
	Stop  float64 // protective stop finally in place
}

// Executor submits orders with precision rounding and safety retries.
type Executor struct {
	venue      Venue
	precision  *precisionCache
	marginType string
	liveOrders bool // false logs intents without sending them
}

// New builds an executor. filters usually is the same client as venue.
func New(venue Venue, filters FilterSource, marginType string, liveOrders bool) *Executor {
	return &Executor{
		venue:      venue,
		precision:  newPrecisionCache(filters),
		marginType: marginType,
		liveOrders: liveOrders,
	}
}

// Warmup loads trading filters; call before the first order.
func (e *Executor) Warmup(ctx context.Context) error {
	return e.precision.Refresh(ctx)
}

// RefreshFilters re-pulls exchange info, e.g. on the daily rollover.
func (e *Executor) RefreshFilters(ctx context.Context) error {
	return e.precision.Refresh(ctx)
}

// Open enters a position at market and installs the protective stop.
// The returned fill carries the actual entry price, rounded quantity and
// the stop that ended up resting.
func (e *Executor) Open(ctx context.Context, symbol string, side signal.Side, qty float64, leverage int, stop float64) (Fill, error) {
	filter, err := e.precision.Lookup(symbol)
	if err != nil {
		return Fill{}, err
	}
	qty = roundDown(qty, filter.QuantityPrecision)
	stop = roundDown(stop, filter.PricePrecision)
	if qty <= 0 {
		return Fill{}, fmt.Errorf("%s: quantity rounds to zero", symbol)
	}

	if !e.liveOrders {
		price, err := e.venue.GetPrice(ctx, symbol)
		if err != nil {
			return Fill{}, err
		}
		log.Printf("executor: [dry] open %s %s qty=%.8g lev=%dx stop=%.8g at ~%.8g", symbol, side, qty, leverage, stop, price)
		return Fill{Price: price, Qty: qty, Stop: stop}, nil
	}

	if err := e.clearOrders(ctx, symbol); err != nil {
		return Fill{}, err
	}
	if err := e.venue.SetMarginType(ctx, symbol, e.marginType); err != nil {
		// The venue rejects a no-op change; anything else is fatal here.
		var apiErr *futures.APIError
		if !errors.As(err, &apiErr) {
			return Fill{}, fmt.Errorf("set margin type: %w", err)
		}
	}
	if err := e.venue.SetLeverage(ctx, symbol, leverage); err != nil {
		return Fill{}, fmt.Errorf("set leverage: %w", err)
	}

	res, err := e.venue.SubmitOrder(ctx, common.OrderRequest{
		Symbol:   symbol,
		Side:     entrySide(side),
		Type:     common.OrderTypeMarket,
		Qty:      qty,
		ClientID: "mc-" + uuid.NewString(),
	})
	if err != nil {
		return Fill{}, fmt.Errorf("entry order: %w", err)
	}
	entryPrice := res.AvgPrice
	if entryPrice == 0 {
		if entryPrice, err = e.venue.GetPrice(ctx, symbol); err != nil {
			return Fill{}, fmt.Errorf("entry fill price: %w", err)
		}
	}

	finalStop, err := e.placeStop(ctx, symbol, side, qty, stop)
	if err != nil {
		return Fill{Price: entryPrice, Qty: qty}, err
	}
	log.Printf("executor: opened %s %s qty=%.8g lev=%dx entry=%.8g stop=%.8g", symbol, side, qty, leverage, entryPrice, finalStop)
	return Fill{Price: entryPrice, Qty: qty, Stop: finalStop}, nil
}

// Close flattens a position at market. A zero fill with nil error means
// the venue had already flattened it; the caller books an approximation.
func (e *Executor) Close(ctx context.Context, symbol string, side signal.Side, qty float64, reason string) (float64, error) {
	filter, err := e.precision.Lookup(symbol)
	if err != nil {
		return 0, err
	}
	qty = roundDown(qty, filter.QuantityPrecision)

	if !e.liveOrders {
		price, err := e.venue.GetPrice(ctx, symbol)
		if err != nil {
			return 0, err
		}
		log.Printf("executor: [dry] close %s %s qty=%.8g (%s) at ~%.8g", symbol, side, qty, reason, price)
		return price, nil
	}

	// Drop the resting stop first so it cannot double-fill.
	if err := e.clearOrders(ctx, symbol); err != nil {
		log.Printf("executor: %s clear before close: %v", symbol, err)
	}

	res, err := e.venue.SubmitOrder(ctx, common.OrderRequest{
		Symbol:     symbol,
		Side:       closeSide(side),
		Type:       common.OrderTypeMarket,
		Qty:        qty,
		ReduceOnly: true,
		ClientID:   "mc-" + uuid.NewString(),
	})
	if err != nil {
		if futures.IsCode(err, futures.CodeReduceOnlyRejected) || futures.IsCode(err, futures.CodePositionGone) {
			// Already flat at the venue; the fill price is unknowable.
			log.Printf("executor: %s close (%s): position already gone", symbol, reason)
			return 0, nil
		}
		return 0, fmt.Errorf("close order: %w", err)
	}
	return res.AvgPrice, nil
}

// UpdateStopLoss replaces the protective stop with a new level.
func (e *Executor) UpdateStopLoss(ctx context.Context, symbol string, side signal.Side, qty, stop float64) error {
	filter, err := e.precision.Lookup(symbol)
	if err != nil {
		return err
	}
	stop = roundDown(stop, filter.PricePrecision)
	qty = roundDown(qty, filter.QuantityPrecision)

	if !e.liveOrders {
		log.Printf("executor: [dry] update stop %s %s -> %.8g", symbol, side, stop)
		return nil
	}

	if err := e.clearOrders(ctx, symbol); err != nil {
		return err
	}
	_, err = e.placeStop(ctx, symbol, side, qty, stop)
	return err
}

// placeStop installs a STOP_MARKET and walks the conflict ladder when
// the venue refuses: re-check price, flatten if breached, otherwise
// clear and retry once before giving up with a safety close.
func (e *Executor) placeStop(ctx context.Context, symbol string, side signal.Side, qty, stop float64) (float64, error) {
	submit := func() error {
		_, err := e.venue.SubmitOrder(ctx, common.OrderRequest{
			Symbol:        symbol,
			Side:          closeSide(side),
			Type:          common.OrderTypeStopMarket,
			StopPrice:     stop,
			WorkingType:   "MARK_PRICE",
			ClosePosition: true,
			ClientID:      "mc-" + uuid.NewString(),
		})
		return err
	}

	err := submit()
	if err == nil {
		return stop, nil
	}
	if futures.IsCode(err, futures.CodePositionGone) {
		return 0, ErrPositionGone
	}
	if !futures.IsCode(err, futures.CodeWouldTrigger) && !futures.IsCode(err, futures.CodeOrderTypeConflict) {
		return 0, fmt.Errorf("stop order: %w", err)
	}

	// Conflict path: decide against the live price, not assumptions.
	price, perr := e.venue.GetPrice(ctx, symbol)
	if perr != nil {
		return 0, fmt.Errorf("stop conflict, price check failed: %w", perr)
	}
	if stopBreached(side, price, stop) {
		log.Printf("executor: %s stop %.8g already breached at %.8g, closing at market", symbol, stop, price)
		if _, cerr := e.Close(ctx, symbol, side, qty, "stop_breached"); cerr != nil {
			return 0, fmt.Errorf("safety close after breach: %w", cerr)
		}
		return 0, ErrStopBreached
	}

	// Not breached: a stale order is in the way. Clear and try once more.
	if cerr := e.clearOrders(ctx, symbol); cerr != nil {
		return 0, cerr
	}
	if err = submit(); err == nil {
		return stop, nil
	}

	log.Printf("executor: %s stop replacement failed twice, safety close: %v", symbol, err)
	if _, cerr := e.Close(ctx, symbol, side, qty, "unprotected"); cerr != nil {
		return 0, fmt.Errorf("safety close: %w", cerr)
	}
	return 0, fmt.Errorf("stop could not be placed, position closed: %w", err)
}

// clearOrders cancels all open orders and verifies the book is empty,
// retrying up to three times.
func (e *Executor) clearOrders(ctx context.Context, symbol string) error {
	for attempt := 1; attempt <= 3; attempt++ {
		if err := e.venue.CancelAllOpenOrders(ctx, symbol); err != nil {
			log.Printf("executor: %s cancel-all attempt %d: %v", symbol, attempt, err)
		}
		open, err := e.venue.GetOpenOrders(ctx, symbol)
		if err == nil && len(open) == 0 {
			return nil
		}
		if err != nil {
			log.Printf("executor: %s verify open orders attempt %d: %v", symbol, attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(300 * time.Millisecond):
		}
	}
	return fmt.Errorf("%s: open orders still present after cancel attempts", symbol)
}

func entrySide(side signal.Side) common.Side {
	if side == signal.Long {
		return common.SideBuy
	}
	return common.SideSell
}

func closeSide(side signal.Side) common.Side {
	if side == signal.Long {
		return common.SideSell
	}
	return common.SideBuy
}

// stopBreached reports whether the live price already crossed the stop.
func stopBreached(side signal.Side, price, stop float64) bool {
	if side == signal.Long {
		return price <= stop
	}
	return price >= stop
}
