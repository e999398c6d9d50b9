package risk

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"momentum-core/internal/exit"
	"momentum-core/internal/signal"

	"github.com/google/uuid"
)

// Position is one open futures position under management.
type Position struct {
	ID            string
	Symbol        string
	Side          signal.Side
	Qty           float64
	Entry         float64
	Leverage      int
	Stop          float64
	HighWaterMark float64
	OpenedAt      time.Time
	Metrics       signal.Metrics

	lastExitCheck time.Time
	closing       bool
	stopInFlight  bool
}

// ExitState projects the position into the exit rule state.
func (p *Position) ExitState() exit.State {
	return exit.State{
		Side:          p.Side,
		Entry:         p.Entry,
		Leverage:      float64(p.Leverage),
		Stop:          p.Stop,
		HighWaterMark: p.HighWaterMark,
		OpenedAt:      p.OpenedAt,
	}
}

// TradeRecord is the immutable audit row written when a position closes.
type TradeRecord struct {
	ID       string
	Symbol   string
	Side     signal.Side
	Qty      float64
	Entry    float64
	Exit     float64
	Leverage int
	PnL      float64
	Reason   string
	OpenedAt time.Time
	ClosedAt time.Time
	Metrics  signal.Metrics
}

// Trader executes closes and stop updates at the venue.
type Trader interface {
	Close(ctx context.Context, symbol string, side signal.Side, qty float64, reason string) (fill float64, err error)
	UpdateStopLoss(ctx context.Context, symbol string, side signal.Side, qty, stop float64) error
}

// Store persists trade records and position snapshots.
type Store interface {
	RecordTrade(t TradeRecord) error
	SavePosition(p Position) error
	DeletePosition(symbol string) error
}

// Gate consumes trade outcomes; the circuit breaker implements it.
type Gate interface {
	RecordOutcome(pnl, balance float64)
}

// Manager owns the position table. All mutation goes through it, so the
// table has a single writer and per-symbol updates stay ordered.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]*Position
	balance   float64

	exitCfg      exit.Config
	maxPositions int
	stopDelta    float64 // minimum relative improvement before touching the exchange stop

	trader  Trader
	store   Store
	gate    Gate
	onClose func(TradeRecord)
}

// NewManager builds a manager. trader, store and gate may be nil in
// replay or test contexts; the corresponding side effects are skipped.
func NewManager(exitCfg exit.Config, maxPositions int, trader Trader, store Store, gate Gate) *Manager {
	return &Manager{
		positions:    make(map[string]*Position),
		exitCfg:      exitCfg,
		maxPositions: maxPositions,
		stopDelta:    0.001,
		trader:       trader,
		store:        store,
		gate:         gate,
	}
}

// OnClose registers a callback fired with every booked close. Set it
// before trading starts; it runs outside the manager lock.
func (m *Manager) OnClose(fn func(TradeRecord)) {
	m.onClose = fn
}

// SetBalance updates the cached account balance.
func (m *Manager) SetBalance(b float64) {
	m.mu.Lock()
	m.balance = b
	m.mu.Unlock()
}

// Balance returns the cached account balance.
func (m *Manager) Balance() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance
}

// Register admits a freshly opened position. The stop must sit on the
// losing side of entry or the position is refused outright.
func (m *Manager) Register(p *Position) error {
	if p.Side == signal.Long && p.Stop >= p.Entry {
		return fmt.Errorf("%s: long stop %v not below entry %v", p.Symbol, p.Stop, p.Entry)
	}
	if p.Side == signal.Short && p.Stop <= p.Entry {
		return fmt.Errorf("%s: short stop %v not above entry %v", p.Symbol, p.Stop, p.Entry)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.HighWaterMark == 0 {
		p.HighWaterMark = p.Entry
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.positions[p.Symbol]; dup {
		return fmt.Errorf("%s: position already open", p.Symbol)
	}
	m.positions[p.Symbol] = p

	if m.store != nil {
		if err := m.store.SavePosition(*p); err != nil {
			log.Printf("risk: snapshot %s: %v", p.Symbol, err)
		}
	}
	return nil
}

// Restore reloads positions recovered from the exchange at boot without
// the side-of-entry check; the venue is authoritative for them.
func (m *Manager) Restore(positions []*Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range positions {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.HighWaterMark == 0 {
			p.HighWaterMark = p.Entry
		}
		m.positions[p.Symbol] = p
	}
}

// Has reports whether a position is open for the symbol.
func (m *Manager) Has(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.positions[symbol]
	return ok
}

// Count returns the number of open positions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// SlotsFree reports whether another position may be opened.
func (m *Manager) SlotsFree() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions) < m.maxPositions
}

// Symbols lists symbols with open positions; the stream manager uses it
// to keep mark-price subscriptions alive.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.positions))
	for s := range m.positions {
		out = append(out, s)
	}
	return out
}

// Snapshot copies the open positions for read-only consumers.
func (m *Manager) Snapshot() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// UpdateTick routes one price observation through the exit rules. The
// hard stop is checked on every tick; the softer exits and the trailing
// ratchet run at most once per minute per symbol.
func (m *Manager) UpdateTick(ctx context.Context, symbol string, price float64, now time.Time) {
	m.mu.Lock()
	p, ok := m.positions[symbol]
	if !ok || p.closing {
		m.mu.Unlock()
		return
	}

	st := exit.Advance(p.ExitState(), price)
	p.HighWaterMark = st.HighWaterMark

	full := now.Sub(p.lastExitCheck) >= time.Minute
	if full {
		p.lastExitCheck = now
	}

	decision := exit.Check(st, price, now, m.exitCfg)
	if decision.Exit && !full && decision.Reason != exit.ReasonHardStop {
		// Soft exits wait for the next scheduled pass.
		decision = exit.Decision{}
	}

	if decision.Exit {
		p.closing = true
		m.mu.Unlock()
		go m.closePosition(ctx, symbol, price, string(decision.Reason))
		return
	}

	if full {
		if level, armed := exit.TrailingStop(st, m.exitCfg); armed && m.stopImproves(p, level) && !p.stopInFlight {
			p.stopInFlight = true
			m.mu.Unlock()
			go m.raiseStop(ctx, symbol, level)
			return
		}
	}
	m.mu.Unlock()
}

// stopImproves reports whether the candidate level moves the protective
// stop meaningfully in the favorable direction. Callers hold the lock.
func (m *Manager) stopImproves(p *Position, level float64) bool {
	if p.Side == signal.Long {
		return level > p.Stop*(1+m.stopDelta)
	}
	return level < p.Stop*(1-m.stopDelta)
}

func (m *Manager) raiseStop(ctx context.Context, symbol string, level float64) {
	m.mu.RLock()
	p, ok := m.positions[symbol]
	m.mu.RUnlock()
	if !ok {
		return
	}

	var err error
	if m.trader != nil {
		err = m.trader.UpdateStopLoss(ctx, symbol, p.Side, p.Qty, level)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok = m.positions[symbol]
	if !ok {
		return
	}
	p.stopInFlight = false
	if err != nil {
		log.Printf("risk: %s stop update to %.8g failed: %v", symbol, level, err)
		return
	}
	p.Stop = level
	log.Printf("risk: %s stop ratcheted to %.8g (mark %.8g)", symbol, level, p.HighWaterMark)
	if m.store != nil {
		if err := m.store.SavePosition(*p); err != nil {
			log.Printf("risk: snapshot %s: %v", symbol, err)
		}
	}
}

func (m *Manager) closePosition(ctx context.Context, symbol string, lastPrice float64, reason string) {
	m.mu.RLock()
	p, ok := m.positions[symbol]
	m.mu.RUnlock()
	if !ok {
		return
	}

	fill := lastPrice
	if m.trader != nil {
		got, err := m.trader.Close(ctx, symbol, p.Side, p.Qty, reason)
		if err != nil {
			log.Printf("risk: %s close (%s) failed, will retry on next tick: %v", symbol, reason, err)
			m.mu.Lock()
			p.closing = false
			m.mu.Unlock()
			return
		}
		if got > 0 {
			fill = got
		} else if reason == string(exit.ReasonHardStop) {
			// Position was already flattened at the venue, most likely
			// by the resting stop order; book it at the stop price.
			fill = p.Stop
		}
	}

	m.finalize(symbol, fill, reason, time.Now().UTC())
}

// finalize books the close exactly once: trade record, breaker outcome,
// balance update, table removal.
func (m *Manager) finalize(symbol string, fill float64, reason string, closedAt time.Time) {
	m.mu.Lock()
	p, ok := m.positions[symbol]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.positions, symbol)

	pnl := (fill - p.Entry) * p.Qty
	if p.Side == signal.Short {
		pnl = -pnl
	}
	m.balance += pnl
	balance := m.balance
	rec := TradeRecord{
		ID:       p.ID,
		Symbol:   p.Symbol,
		Side:     p.Side,
		Qty:      p.Qty,
		Entry:    p.Entry,
		Exit:     fill,
		Leverage: p.Leverage,
		PnL:      pnl,
		Reason:   reason,
		OpenedAt: p.OpenedAt,
		ClosedAt: closedAt,
		Metrics:  p.Metrics,
	}
	m.mu.Unlock()

	log.Printf("risk: %s %s closed (%s) entry=%.8g exit=%.8g qty=%.8g pnl=%+.4f balance=%.2f",
		rec.Symbol, rec.Side, reason, rec.Entry, rec.Exit, rec.Qty, rec.PnL, balance)

	if m.store != nil {
		if err := m.store.RecordTrade(rec); err != nil {
			log.Printf("risk: record trade %s: %v", symbol, err)
		}
		if err := m.store.DeletePosition(symbol); err != nil {
			log.Printf("risk: drop snapshot %s: %v", symbol, err)
		}
	}
	if m.gate != nil {
		m.gate.RecordOutcome(rec.PnL, balance)
	}
	if m.onClose != nil {
		m.onClose(rec)
	}
}

// ForceClose flattens one position outside the normal exit flow, e.g.
// when reconciliation finds it should not exist.
func (m *Manager) ForceClose(ctx context.Context, symbol, reason string) {
	m.mu.Lock()
	p, ok := m.positions[symbol]
	if !ok || p.closing {
		m.mu.Unlock()
		return
	}
	p.closing = true
	price := p.Entry
	m.mu.Unlock()
	m.closePosition(ctx, symbol, price, reason)
}
