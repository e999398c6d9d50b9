// Package sim replays historical candles through the exact same signal
// and exit logic the live engine uses, with a slippage and taker-fee
// model on every fill. One symbol, one 15m series, no look-ahead:
// signals fire on a closed bar and enter at the next bar's open.
package sim

import (
	"fmt"
	"sort"
	"time"

	"momentum-core/internal/exit"
	"momentum-core/internal/risk"
	"momentum-core/internal/series"
	"momentum-core/internal/signal"
	"momentum-core/pkg/config"
)

// Config carries the replay parameters. Zero values get the live
// defaults so a backtest and the live engine agree unless told not to.
type Config struct {
	InitialBalance float64
	RiskPerTrade   float64
	MaxPositions   int

	ATRPeriod     int
	ATRMultiplier float64
	StopCapPct    float64

	Thresholds config.Thresholds
	Exit       exit.Config

	SlippageBps float64 // applied against the fill on both legs
	TakerFeeBps float64 // charged on both legs' notional

	MinVolume24hUSD float64
	MaxLeverage     int
	Interval        time.Duration

	// HistoryBars caps the lookback fed to the indicators, matching the
	// candle fetch the live engine works from. Without the cap, Wilder
	// smoothing over an ever-growing replay window drifts away from the
	// values the live engine would compute on the same bar.
	HistoryBars int
}

func (c *Config) setDefaults() {
	if c.InitialBalance <= 0 {
		c.InitialBalance = 1000
	}
	if c.RiskPerTrade <= 0 {
		c.RiskPerTrade = 0.02
	}
	if c.MaxPositions <= 0 {
		c.MaxPositions = 3
	}
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = 14
	}
	if c.ATRMultiplier <= 0 {
		c.ATRMultiplier = 2.5
	}
	if c.StopCapPct <= 0 {
		c.StopCapPct = 0.014
	}
	if c.Thresholds.VolumeRatio == 0 {
		c.Thresholds = config.DefaultThresholds()
	}
	if c.Exit == (exit.Config{}) {
		c.Exit = exit.DefaultConfig()
	}
	if c.SlippageBps == 0 {
		c.SlippageBps = 5
	}
	if c.TakerFeeBps == 0 {
		c.TakerFeeBps = 5
	}
	if c.MaxLeverage <= 0 {
		c.MaxLeverage = 125
	}
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.HistoryBars <= 0 {
		c.HistoryBars = 250
	}
}

// Trade is one completed round trip in the replay.
type Trade struct {
	Symbol   string
	Side     signal.Side
	Qty      float64
	Leverage int
	Entry    float64
	Exit     float64
	PnL      float64
	MaxROE   float64
	Reason   string
	OpenedAt time.Time
	ClosedAt time.Time
}

// Result bundles the replay outcome.
type Result struct {
	Summary Summary
	Trades  []Trade
}

type position struct {
	symbol   string
	qty      float64
	leverage int
	state    exit.State
	metrics  signal.Metrics
}

// Engine replays one candle dataset.
type Engine struct {
	cfg     Config
	data    map[string]series.Series
	index   map[string]map[int64]int // open time (unix) -> bar index
	ranks   map[string]int
	eval    *signal.Evaluator
	quality *signal.QualityFilter

	balance   float64
	peak      float64
	maxDD     float64
	positions map[string]*position
	pending   map[string]signal.Signal
	trades    []Trade
}

// New builds a replay engine over the dataset. The volume ranking used
// for leverage tiers is precomputed from the whole dataset once, the
// way the live scanner fixes ranks for a day.
func New(cfg Config, data map[string]series.Series) *Engine {
	cfg.setDefaults()

	index := make(map[string]map[int64]int, len(data))
	type volRank struct {
		symbol string
		quote  float64
	}
	var vols []volRank
	for symbol, s := range data {
		byTime := make(map[int64]int, len(s))
		quote := 0.0
		for i, c := range s {
			byTime[c.OpenTime.Unix()] = i
			quote += c.Volume * c.Close
		}
		index[symbol] = byTime
		vols = append(vols, volRank{symbol: symbol, quote: quote})
	}
	sort.Slice(vols, func(i, j int) bool {
		if vols[i].quote != vols[j].quote {
			return vols[i].quote > vols[j].quote
		}
		return vols[i].symbol < vols[j].symbol
	})
	ranks := make(map[string]int, len(vols))
	for i, v := range vols {
		ranks[v.symbol] = i + 1
	}

	return &Engine{
		cfg:       cfg,
		data:      data,
		index:     index,
		ranks:     ranks,
		eval:      signal.NewEvaluator(cfg.Thresholds),
		quality:   signal.NewQualityFilter(nil, cfg.MinVolume24hUSD, cfg.Thresholds.VolatilityCap, cfg.ATRPeriod),
		balance:   cfg.InitialBalance,
		peak:      cfg.InitialBalance,
		positions: make(map[string]*position),
		pending:   make(map[string]signal.Signal),
	}
}

// Run replays [from, to] and returns the result. Order within every
// step is fixed: manage open positions, enter pending signals at the
// open, then scan the closed bar, so replays are deterministic and a
// signal can never act on its own bar.
func (e *Engine) Run(from, to time.Time) (*Result, error) {
	timeline := e.timeline(from, to)
	if len(timeline) == 0 {
		return nil, fmt.Errorf("no candles between %s and %s", from, to)
	}

	for _, ts := range timeline {
		e.manage(ts)
		e.enterPending(ts)
		e.scan(ts)
	}
	e.closeAll(timeline[len(timeline)-1])

	return &Result{Summary: e.summary(), Trades: e.trades}, nil
}

func (e *Engine) timeline(from, to time.Time) []time.Time {
	seen := make(map[int64]struct{})
	var out []time.Time
	for _, s := range e.data {
		for _, c := range s {
			if c.OpenTime.Before(from) || c.OpenTime.After(to) {
				continue
			}
			if _, dup := seen[c.OpenTime.Unix()]; !dup {
				seen[c.OpenTime.Unix()] = struct{}{}
				out = append(out, c.OpenTime)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (e *Engine) candleAt(symbol string, ts time.Time) (series.Candle, int, bool) {
	idx, ok := e.index[symbol][ts.Unix()]
	if !ok {
		return series.Candle{}, 0, false
	}
	return e.data[symbol][idx], idx, true
}

// manage runs the exit ladder for every open position on its bar:
// hard stop against the adverse extreme first, then water-mark advance
// from the favorable extreme, soft exits on the close, stop ratchet.
func (e *Engine) manage(ts time.Time) {
	for _, symbol := range sortedKeys(e.positions) {
		p := e.positions[symbol]
		c, _, ok := e.candleAt(symbol, ts)
		if !ok {
			continue
		}
		barClose := ts.Add(e.cfg.Interval)

		adverse := c.Low
		favorable := c.High
		if p.state.Side == signal.Short {
			adverse, favorable = c.High, c.Low
		}

		if stopHit(p.state, adverse) {
			price, reason := e.stopFill(p)
			e.close(p, price, reason, barClose)
			continue
		}

		p.state = exit.Advance(p.state, favorable)

		if d := exit.Check(p.state, c.Close, barClose, e.cfg.Exit); d.Exit {
			e.close(p, e.slip(c.Close, closeSide(p.state.Side)), string(d.Reason), barClose)
			continue
		}

		if level, armed := exit.TrailingStop(p.state, e.cfg.Exit); armed && improves(p.state, level) {
			p.state.Stop = level
		}
	}
}

// stopFill prices a protective-stop fill, substituting the liquidation
// price when the stop sits beyond it (a gap the exchange would turn
// into a liquidation, not a stop-out).
func (e *Engine) stopFill(p *position) (float64, string) {
	raw := p.state.Stop
	reason := string(exit.ReasonHardStop)
	if liq, ok := liquidationPrice(p.state); ok && beyond(p.state, raw, liq) {
		raw = liq
		reason = "liquidation"
	}
	return e.slip(raw, closeSide(p.state.Side)), reason
}

// enterPending fills last bar's signals at this bar's open.
func (e *Engine) enterPending(ts time.Time) {
	for _, symbol := range sortedKeys(e.pending) {
		sig := e.pending[symbol]
		delete(e.pending, symbol)

		c, idx, ok := e.candleAt(symbol, ts)
		if !ok {
			continue // gap after the signal bar; signal goes stale
		}
		if _, open := e.positions[symbol]; open || len(e.positions) >= e.cfg.MaxPositions {
			continue
		}

		entry := e.slip(c.Open, sig.Side)
		window := e.window(symbol, idx) // bars before the entry bar
		stop := risk.StopPrice(window, entry, sig.Side, e.cfg.ATRPeriod, e.cfg.ATRMultiplier, e.cfg.StopCapPct)
		leverage := risk.LeverageFor(e.ranks[symbol], e.cfg.MaxLeverage)

		qty, err := risk.Size(e.balance, entry, stop, float64(leverage), e.cfg.RiskPerTrade)
		if err != nil {
			continue
		}

		e.positions[symbol] = &position{
			symbol:   symbol,
			qty:      qty,
			leverage: leverage,
			metrics:  sig.Metrics,
			state: exit.State{
				Side:          sig.Side,
				Entry:         entry,
				Leverage:      float64(leverage),
				Stop:          stop,
				HighWaterMark: entry,
				OpenedAt:      ts,
			},
		}
	}
}

// scan evaluates every symbol's closed bar and queues signals for the
// next open.
func (e *Engine) scan(ts time.Time) {
	if len(e.positions) >= e.cfg.MaxPositions {
		return
	}
	for _, symbol := range sortedKeys(e.index) {
		if _, open := e.positions[symbol]; open {
			continue
		}
		if _, queued := e.pending[symbol]; queued {
			continue
		}
		_, idx, ok := e.candleAt(symbol, ts)
		if !ok {
			continue
		}
		window := e.window(symbol, idx+1)
		if len(window) < signal.MinHistoryBars {
			continue
		}
		if ok, _ := e.quality.Check(symbol, window, e.quoteVolume24h(symbol, idx)); !ok {
			continue
		}
		sig, _, err := e.eval.Evaluate(symbol, window, ts.Add(e.cfg.Interval))
		if err != nil || sig == nil {
			continue
		}
		e.pending[symbol] = *sig
	}
}

// window returns the bars before end, capped to the same fixed
// lookback the live engine fetches per evaluation.
func (e *Engine) window(symbol string, end int) series.Series {
	s := e.data[symbol][:end]
	if len(s) > e.cfg.HistoryBars {
		s = s[len(s)-e.cfg.HistoryBars:]
	}
	return s
}

// quoteVolume24h approximates the 24h quote volume from the trailing
// bars of the series itself.
func (e *Engine) quoteVolume24h(symbol string, idx int) float64 {
	bars := int(24 * time.Hour / e.cfg.Interval)
	start := idx - bars + 1
	if start < 0 {
		start = 0
	}
	total := 0.0
	for _, c := range e.data[symbol][start : idx+1] {
		total += c.Volume * c.Close
	}
	return total
}

func (e *Engine) close(p *position, fill float64, reason string, at time.Time) {
	direction := 1.0
	if p.state.Side == signal.Short {
		direction = -1
	}
	fees := (p.state.Entry + fill) * p.qty * e.cfg.TakerFeeBps / 10000
	pnl := direction*(fill-p.state.Entry)*p.qty - fees

	e.balance += pnl
	if e.balance > e.peak {
		e.peak = e.balance
	} else if e.peak > 0 {
		if dd := (e.peak - e.balance) / e.peak; dd > e.maxDD {
			e.maxDD = dd
		}
	}

	e.trades = append(e.trades, Trade{
		Symbol:   p.symbol,
		Side:     p.state.Side,
		Qty:      p.qty,
		Leverage: p.leverage,
		Entry:    p.state.Entry,
		Exit:     fill,
		PnL:      pnl,
		MaxROE:   p.state.MaxROE(),
		Reason:   reason,
		OpenedAt: p.state.OpenedAt,
		ClosedAt: at,
	})
	delete(e.positions, p.symbol)
}

// closeAll flattens whatever survived to the end of the window at its
// last known close.
func (e *Engine) closeAll(last time.Time) {
	for _, symbol := range sortedKeys(e.positions) {
		p := e.positions[symbol]
		s := e.data[symbol]
		// Walk back to the last bar at or before the final timestamp.
		fill := s[len(s)-1].Close
		for i := len(s) - 1; i >= 0; i-- {
			if !s[i].OpenTime.After(last) {
				fill = s[i].Close
				break
			}
		}
		e.close(p, e.slip(fill, closeSide(p.state.Side)), "session_end", last.Add(e.cfg.Interval))
	}
}

// slip moves the fill against the taker by the configured slippage.
func (e *Engine) slip(price float64, side signal.Side) float64 {
	adj := price * e.cfg.SlippageBps / 10000
	if side == signal.Long { // buying
		return price + adj
	}
	return price - adj
}

func closeSide(side signal.Side) signal.Side {
	if side == signal.Long {
		return signal.Short
	}
	return signal.Long
}

func stopHit(s exit.State, adverse float64) bool {
	if s.Side == signal.Long {
		return adverse <= s.Stop
	}
	return adverse >= s.Stop
}

// improves reports whether the candidate stop is tighter than the
// current one in the protective direction.
func improves(s exit.State, level float64) bool {
	if s.Side == signal.Long {
		return level > s.Stop
	}
	return level < s.Stop
}

// beyond reports whether the stop sits past the liquidation level.
func beyond(s exit.State, stop, liq float64) bool {
	if s.Side == signal.Long {
		return stop <= liq
	}
	return stop >= liq
}

// liquidationPrice approximates the price where margin is exhausted.
func liquidationPrice(s exit.State) (float64, bool) {
	if s.Leverage <= 0 {
		return 0, false
	}
	if s.Side == signal.Long {
		return s.Entry * (1 - 1/s.Leverage), true
	}
	return s.Entry * (1 + 1/s.Leverage), true
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
