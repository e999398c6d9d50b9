package executor

import (
	"context"
	"errors"
	"testing"

	"momentum-core/internal/signal"
	"momentum-core/pkg/exchanges/binance/futures"
	"momentum-core/pkg/exchanges/common"
)

// fakeVenue scripts venue behavior per order type.
type fakeVenue struct {
	price        float64
	openOrders   []futures.OpenOrder
	cancelCalls  int
	orders       []common.OrderRequest
	stopErrs     []error // popped per STOP_MARKET submit
	marketErr    error
	filters      map[string]futures.SymbolFilter
	leverageSet  int
	marginSetErr error
}

func (f *fakeVenue) SubmitOrder(_ context.Context, req common.OrderRequest) (common.OrderResult, error) {
	f.orders = append(f.orders, req)
	if req.Type == common.OrderTypeStopMarket && len(f.stopErrs) > 0 {
		err := f.stopErrs[0]
		f.stopErrs = f.stopErrs[1:]
		if err != nil {
			return common.OrderResult{}, err
		}
	}
	if req.Type == common.OrderTypeMarket && f.marketErr != nil {
		return common.OrderResult{}, f.marketErr
	}
	return common.OrderResult{Status: common.StatusFilled, AvgPrice: f.price, ExecutedQty: req.Qty}, nil
}

func (f *fakeVenue) CancelAllOpenOrders(context.Context, string) error {
	f.cancelCalls++
	f.openOrders = nil
	return nil
}

func (f *fakeVenue) GetOpenOrders(context.Context, string) ([]futures.OpenOrder, error) {
	return f.openOrders, nil
}

func (f *fakeVenue) GetPrice(context.Context, string) (float64, error) { return f.price, nil }

func (f *fakeVenue) SetLeverage(_ context.Context, _ string, lev int) error {
	f.leverageSet = lev
	return nil
}

func (f *fakeVenue) SetMarginType(context.Context, string, string) error { return f.marginSetErr }

func (f *fakeVenue) GetExchangeInfo(context.Context) (map[string]futures.SymbolFilter, error) {
	return f.filters, nil
}

func newTestExecutor(t *testing.T, v *fakeVenue) *Executor {
	t.Helper()
	if v.filters == nil {
		v.filters = map[string]futures.SymbolFilter{
			"BTCUSDT": {Symbol: "BTCUSDT", PricePrecision: 1, QuantityPrecision: 3},
		}
	}
	e := New(v, v, "ISOLATED", true)
	if err := e.Warmup(context.Background()); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	return e
}

func countType(orders []common.OrderRequest, typ common.OrderType) int {
	n := 0
	for _, o := range orders {
		if o.Type == typ {
			n++
		}
	}
	return n
}

func TestOpenPlacesEntryAndStop(t *testing.T) {
	v := &fakeVenue{price: 100.05}
	e := newTestExecutor(t, v)

	fill, err := e.Open(context.Background(), "BTCUSDT", signal.Long, 1.4285, 20, 98.64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if fill.Qty != 1.428 {
		t.Fatalf("qty=%v, expected rounded 1.428", fill.Qty)
	}
	if fill.Stop != 98.6 {
		t.Fatalf("stop=%v, expected price-rounded 98.6", fill.Stop)
	}
	if fill.Price != 100.05 {
		t.Fatalf("fill price=%v, expected venue avg 100.05", fill.Price)
	}
	if v.leverageSet != 20 {
		t.Fatalf("leverage=%d, expected 20", v.leverageSet)
	}
	if countType(v.orders, common.OrderTypeMarket) != 1 || countType(v.orders, common.OrderTypeStopMarket) != 1 {
		t.Fatalf("orders=%v, expected one market and one stop", v.orders)
	}
	// Entry BUY for a long, stop on the SELL side.
	if v.orders[0].Side != common.SideBuy || v.orders[1].Side != common.SideSell {
		t.Fatalf("sides=%s/%s, expected BUY then SELL", v.orders[0].Side, v.orders[1].Side)
	}
}

func TestOpenFailsClosedWithoutFilter(t *testing.T) {
	v := &fakeVenue{price: 100}
	e := newTestExecutor(t, v)

	_, err := e.Open(context.Background(), "UNKNOWNUSDT", signal.Long, 1, 20, 98)
	if !errors.Is(err, ErrUnknownPrecision) {
		t.Fatalf("err=%v, expected ErrUnknownPrecision", err)
	}
	if len(v.orders) != 0 {
		t.Fatal("orders were sent despite missing filter")
	}
}

func TestStopConflictRetriesAfterClear(t *testing.T) {
	v := &fakeVenue{
		price:    100.5, // above the stop, not breached
		stopErrs: []error{&futures.APIError{Code: futures.CodeOrderTypeConflict, Message: "conflict"}, nil},
	}
	e := newTestExecutor(t, v)

	fill, err := e.Open(context.Background(), "BTCUSDT", signal.Long, 1.0, 20, 98.6)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if fill.Stop != 98.6 {
		t.Fatalf("stop=%v, expected 98.6 after retry", fill.Stop)
	}
	if got := countType(v.orders, common.OrderTypeStopMarket); got != 2 {
		t.Fatalf("stop submits=%d, expected 2", got)
	}
}

func TestStopBreachedForcesMarketClose(t *testing.T) {
	v := &fakeVenue{
		price:    98.4, // below the stop: already breached
		stopErrs: []error{&futures.APIError{Code: futures.CodeWouldTrigger, Message: "would trigger"}},
	}
	e := newTestExecutor(t, v)

	_, err := e.Open(context.Background(), "BTCUSDT", signal.Long, 1.0, 20, 98.6)
	if !errors.Is(err, ErrStopBreached) {
		t.Fatalf("err=%v, expected ErrStopBreached", err)
	}
	// Entry market order plus the safety close.
	if got := countType(v.orders, common.OrderTypeMarket); got != 2 {
		t.Fatalf("market orders=%d, expected entry + safety close", got)
	}
	last := v.orders[len(v.orders)-1]
	if !last.ReduceOnly || last.Side != common.SideSell {
		t.Fatalf("safety close=%+v, expected reduce-only SELL", last)
	}
}

func TestCloseTreatsGonePositionAsFlat(t *testing.T) {
	v := &fakeVenue{
		price:     100,
		marketErr: &futures.APIError{Code: futures.CodeReduceOnlyRejected, Message: "reduceonly rejected"},
	}
	e := newTestExecutor(t, v)

	fill, err := e.Close(context.Background(), "BTCUSDT", signal.Long, 1.0, "hard_stop")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fill != 0 {
		t.Fatalf("fill=%v, expected 0 for an already-flat position", fill)
	}
}

func TestUpdateStopLossClearsThenPlaces(t *testing.T) {
	v := &fakeVenue{price: 105}
	e := newTestExecutor(t, v)

	if err := e.UpdateStopLoss(context.Background(), "BTCUSDT", signal.Long, 1.0, 102.77); err != nil {
		t.Fatalf("UpdateStopLoss: %v", err)
	}
	if v.cancelCalls == 0 {
		t.Fatal("expected cancel-all before replacing the stop")
	}
	stops := countType(v.orders, common.OrderTypeStopMarket)
	if stops != 1 {
		t.Fatalf("stop submits=%d, expected 1", stops)
	}
	if got := v.orders[len(v.orders)-1].StopPrice; got != 102.7 {
		t.Fatalf("stop price=%v, expected rounded 102.7", got)
	}
}
