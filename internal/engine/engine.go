// Package engine is the live orchestrator: it consumes the market-data
// stream, ticks open positions, fires signal evaluation on timeframe
// boundaries and turns accepted signals into sized, stop-protected
// positions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"momentum-core/internal/breaker"
	"momentum-core/internal/events"
	"momentum-core/internal/executor"
	"momentum-core/internal/history"
	"momentum-core/internal/risk"
	"momentum-core/internal/scanner"
	"momentum-core/internal/series"
	"momentum-core/internal/signal"
	"momentum-core/internal/stream"
)

// Opener is the slice of the executor the engine drives.
type Opener interface {
	Open(ctx context.Context, symbol string, side signal.Side, qty float64, leverage int, stop float64) (executor.Fill, error)
}

// Account reads balance and position state from the venue.
type Account interface {
	GetBalance(ctx context.Context) (float64, error)
	GetLeverageBrackets(ctx context.Context) (map[string]int, error)
}

// Streamer is the market-data feed surface the engine consumes.
type Streamer interface {
	Messages() <-chan stream.Message
	SetStreams(ctx context.Context, streams []string)
}

// Config carries engine tunables; zero values get sane defaults.
type Config struct {
	TimeframeMinutes int
	EvalConcurrency  int
	HistoryBars      int

	RiskPerTrade  float64
	ATRPeriod     int
	ATRMultiplier float64
	StopCapPct    float64

	// Boot fallback stop distance in ROE terms when the exchange has a
	// position but no resting stop.
	FallbackStopROE float64

	UniverseSyncEvery time.Duration
	BalanceSyncEvery  time.Duration
}

func (c *Config) setDefaults() {
	if c.TimeframeMinutes <= 0 {
		c.TimeframeMinutes = 15
	}
	if c.EvalConcurrency <= 0 {
		c.EvalConcurrency = 8
	}
	if c.HistoryBars <= 0 {
		c.HistoryBars = 250
	}
	if c.FallbackStopROE <= 0 {
		c.FallbackStopROE = 0.15
	}
	if c.UniverseSyncEvery <= 0 {
		c.UniverseSyncEvery = 10 * time.Second
	}
	if c.BalanceSyncEvery <= 0 {
		c.BalanceSyncEvery = 30 * time.Second
	}
}

// Engine wires the scanning, evaluation and execution pipeline.
type Engine struct {
	cfg     Config
	account Account
	opener  Opener
	risk    *risk.Manager
	brk     *breaker.Breaker
	scan    *scanner.Scanner
	eval    *signal.Evaluator
	quality *signal.QualityFilter
	hist    history.Provider
	streams Streamer
	bus     *events.Bus
	metrics MetricsSink

	sem         chan struct{}
	counters    scanCounters
	maxLeverage map[string]int
	lastReport  time.Time
	metricsDay  string
}

// MetricsSink receives the end-of-day balance stamp; pkg/db implements it.
type MetricsSink interface {
	SetDailyBalance(date string, balance float64) error
}

// Deps groups the engine's collaborators.
type Deps struct {
	Account Account
	Opener  Opener
	Risk    *risk.Manager
	Breaker *breaker.Breaker
	Scanner *scanner.Scanner
	Eval    *signal.Evaluator
	Quality *signal.QualityFilter
	History history.Provider
	Streams Streamer
	Bus     *events.Bus
	Metrics MetricsSink
}

// New builds the engine.
func New(cfg Config, d Deps) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:         cfg,
		account:     d.Account,
		opener:      d.Opener,
		risk:        d.Risk,
		brk:         d.Breaker,
		scan:        d.Scanner,
		eval:        d.Eval,
		quality:     d.Quality,
		hist:        d.History,
		streams:     d.Streams,
		bus:         d.Bus,
		metrics:     d.Metrics,
		sem:         make(chan struct{}, cfg.EvalConcurrency),
		maxLeverage: make(map[string]int),
	}
}

// Run blocks until ctx is cancelled, driving all background loops and
// the stream consumer.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.warmup(ctx); err != nil {
		return err
	}

	go e.universeLoop(ctx)
	go e.balanceLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-e.streams.Messages():
			if !ok {
				return errors.New("stream channel closed")
			}
			e.handleMessage(ctx, msg)
		}
	}
}

func (e *Engine) warmup(ctx context.Context) error {
	if e.account != nil {
		balance, err := e.account.GetBalance(ctx)
		if err != nil {
			return fmt.Errorf("initial balance: %w", err)
		}
		e.risk.SetBalance(balance)
		log.Printf("engine: balance %.2f USDT", balance)

		brackets, err := e.account.GetLeverageBrackets(ctx)
		if err != nil {
			return fmt.Errorf("leverage brackets: %w", err)
		}
		e.maxLeverage = brackets
	}
	if err := e.scan.Refresh(ctx, time.Now().UTC()); err != nil {
		return fmt.Errorf("initial universe: %w", err)
	}
	e.syncStreams(ctx)
	e.metricsDay = time.Now().UTC().Format("2006-01-02")
	return nil
}

// universeLoop refreshes the scanner and reconciles subscriptions.
func (e *Engine) universeLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.UniverseSyncEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := e.scan.Refresh(ctx, now.UTC()); err != nil {
				log.Printf("engine: universe refresh: %v", err)
				continue
			}
			e.syncStreams(ctx)
		}
	}
}

func (e *Engine) balanceLoop(ctx context.Context) {
	if e.account == nil {
		return
	}
	ticker := time.NewTicker(e.cfg.BalanceSyncEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			balance, err := e.account.GetBalance(ctx)
			if err != nil {
				log.Printf("engine: balance sync: %v", err)
				continue
			}
			e.risk.SetBalance(balance)
		}
	}
}

// syncStreams subscribes klines for the shortlist and mark prices for
// open positions. Position symbols keep their kline stream too so exit
// ticks survive a shortlist rotation.
func (e *Engine) syncStreams(ctx context.Context) {
	seen := make(map[string]struct{})
	var desired []string
	add := func(name string) {
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			desired = append(desired, name)
		}
	}
	for _, s := range e.scan.Shortlist() {
		add(stream.KlineStream(s))
	}
	for _, s := range e.risk.Symbols() {
		add(stream.KlineStream(s))
		add(stream.MarkPriceStream(s))
	}
	e.streams.SetStreams(ctx, desired)
}

func (e *Engine) handleMessage(ctx context.Context, msg stream.Message) {
	switch msg.Type {
	case stream.MessageMarkPrice:
		e.risk.UpdateTick(ctx, msg.Symbol, msg.Price, msg.Time)
	case stream.MessageKline:
		e.risk.UpdateTick(ctx, msg.Symbol, msg.Candle.Close, msg.Time)
		if msg.Candle.Closed && e.onBoundary(msg.Candle.OpenTime) {
			e.counters.Scanned()
			go e.evaluate(ctx, msg.Symbol, msg.Candle.OpenTime.Add(time.Minute))
			e.maybeReport(msg.Candle.OpenTime.Add(time.Minute))
		}
	}
}

// onBoundary reports whether the minute bar closing at openTime+1m ends
// a full timeframe period.
func (e *Engine) onBoundary(openTime time.Time) bool {
	closeAt := openTime.Add(time.Minute)
	period := int64(e.cfg.TimeframeMinutes) * 60
	return closeAt.Unix()%period == 0
}

// evaluate runs the full entry pipeline for one symbol. Bounded by the
// semaphore so a wide shortlist cannot stampede the REST API.
func (e *Engine) evaluate(ctx context.Context, symbol string, now time.Time) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return
	}

	if e.brk.Paused() {
		e.counters.SkippedPaused()
		return
	}
	if e.risk.Has(symbol) || !e.risk.SlotsFree() {
		return
	}

	interval := strconv.Itoa(e.cfg.TimeframeMinutes) + "m"
	window, err := e.hist.Klines(ctx, symbol, interval, e.cfg.HistoryBars)
	if err != nil {
		log.Printf("engine: %s history: %v", symbol, err)
		return
	}
	window = window.DropForming()

	if ok, reason := e.quality.Check(symbol, window, e.scan.Volume24h(symbol)); !ok {
		e.counters.Quality(string(reason))
		return
	}

	sig, rej, err := e.eval.Evaluate(symbol, window, now)
	if errors.Is(err, signal.ErrInsufficientData) {
		e.counters.Insufficient()
		return
	}
	if err != nil {
		log.Printf("engine: %s evaluate: %v", symbol, err)
		return
	}
	if rej != nil {
		e.counters.Rejected(string(rej.Reason))
		e.publish(events.EventRejection, rej)
		return
	}
	if sig != nil {
		e.publish(events.EventSignal, sig)
		e.openPosition(ctx, sig, window, now)
	}
}

func (e *Engine) openPosition(ctx context.Context, sig *signal.Signal, window series.Series, now time.Time) {
	symbol := sig.Symbol
	leverage := risk.LeverageFor(e.scan.Rank(symbol), e.maxLeverage[symbol])
	stop := risk.StopPrice(window, sig.Price, sig.Side, e.cfg.ATRPeriod, e.cfg.ATRMultiplier, e.cfg.StopCapPct)

	qty, err := risk.Size(e.risk.Balance(), sig.Price, stop, float64(leverage), e.cfg.RiskPerTrade)
	if err != nil {
		if errors.Is(err, risk.ErrPositionTooSmall) {
			log.Printf("engine: %s signal skipped, %v", symbol, err)
			return
		}
		log.Printf("engine: %s sizing: %v", symbol, err)
		return
	}

	fill, err := e.opener.Open(ctx, symbol, sig.Side, qty, leverage, stop)
	if err != nil {
		log.Printf("engine: %s open failed: %v", symbol, err)
		return
	}

	pos := &risk.Position{
		Symbol:   symbol,
		Side:     sig.Side,
		Qty:      fill.Qty,
		Entry:    fill.Price,
		Leverage: leverage,
		Stop:     fill.Stop,
		OpenedAt: now,
		Metrics:  sig.Metrics,
	}
	if err := e.risk.Register(pos); err != nil {
		log.Printf("engine: %s register: %v", symbol, err)
		return
	}
	e.counters.Signal()
	e.publish(events.EventPositionOpen, pos)
	e.syncStreams(ctx)
	log.Printf("engine: %s %s opened qty=%.8g lev=%dx entry=%.8g stop=%.8g (rsi=%.1f adx=%.1f vr=%.2f)",
		symbol, sig.Side, fill.Qty, leverage, fill.Price, fill.Stop,
		sig.Metrics.RSI, sig.Metrics.ADX, sig.Metrics.VolumeRatio)
}

func (e *Engine) publish(topic events.Event, payload any) {
	if e.bus != nil {
		e.bus.Publish(topic, payload)
	}
}

// maybeReport logs the periodic scan report once per timeframe boundary
// and resets the counters when the UTC day rolls over.
func (e *Engine) maybeReport(boundary time.Time) {
	if !e.lastReport.Before(boundary) {
		return
	}
	e.lastReport = boundary

	snap := e.counters.SnapshotAndMaybeReset(false)
	log.Printf("engine: report %s | scanned=%d signals=%d rejected=%d insufficient=%d quality=%d paused_skips=%d positions=%d balance=%.2f",
		boundary.UTC().Format("15:04"), snap.Scanned, snap.Signals, snap.Rejected,
		snap.Insufficient, snap.Quality, snap.SkippedPaused, e.risk.Count(), e.risk.Balance())
	e.publish(events.EventScanReport, snap)

	day := boundary.UTC().Format("2006-01-02")
	if day != e.metricsDay {
		e.counters.SnapshotAndMaybeReset(true)
		if e.metrics != nil {
			if err := e.metrics.SetDailyBalance(e.metricsDay, e.risk.Balance()); err != nil {
				log.Printf("engine: daily balance stamp: %v", err)
			}
		}
		e.metricsDay = day
	}
}
