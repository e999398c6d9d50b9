package signal

import (
	"errors"
	"time"

	"momentum-core/internal/series"
	"momentum-core/pkg/config"
)

// ErrInsufficientData means the lookback window is too short to judge the
// symbol at all. It is not a rejection; callers skip without logging one.
var ErrInsufficientData = errors.New("insufficient candle history")

// MinHistoryBars is the shortest window the slow trend filter accepts.
const MinHistoryBars = 200

// Side of a prospective position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Signal is an entry candidate that passed every gate.
type Signal struct {
	Symbol  string
	Side    Side
	Price   float64 // close of the triggering bar
	Time    time.Time
	Metrics Metrics
}

// Metrics snapshots the indicator values behind a decision; persisted
// with the trade for later filter tuning.
type Metrics struct {
	RSI         float64
	ADX         float64
	VolumeRatio float64
	WickRatio   float64
}

// Reason identifies which gate rejected a candidate.
type Reason string

const (
	ReasonDeadHours    Reason = "dead_hours"
	ReasonNoTrend      Reason = "no_trend"
	ReasonOverextended Reason = "overextended"
	ReasonNoBreakout   Reason = "no_breakout"
	ReasonVolume       Reason = "volume"
	ReasonBody         Reason = "body"
	ReasonWick         Reason = "wick"
	ReasonRSI          Reason = "rsi"
	ReasonADX          Reason = "adx"
)

// Rejection is an explicit no with the metrics that produced it.
type Rejection struct {
	Symbol  string
	Side    Side // side implied by the trend before the gate fired; empty for no_trend
	Reason  Reason
	Metrics Metrics
}

// Evaluator applies the breakout gates to a closed candle window.
// It is pure: same window and clock, same answer.
type Evaluator struct {
	th config.Thresholds
}

// NewEvaluator builds an evaluator with the given thresholds.
func NewEvaluator(th config.Thresholds) *Evaluator {
	return &Evaluator{th: th}
}

// Evaluate inspects the window and returns at most one of signal or
// rejection. The window must contain only closed bars, oldest first.
func (e *Evaluator) Evaluate(symbol string, window series.Series, now time.Time) (*Signal, *Rejection, error) {
	if len(window) < MinHistoryBars {
		return nil, nil, ErrInsufficientData
	}

	if e.isDeadHour(now.UTC().Hour()) {
		return nil, &Rejection{Symbol: symbol, Reason: ReasonDeadHours}, nil
	}

	closes := window.Closes()
	last := window[len(window)-1]
	prev := window[len(window)-2]

	ema20 := series.EMA(closes, 20)
	ema50 := series.EMA(closes, 50)
	ema200 := series.EMA(closes, 200)

	var side Side
	switch {
	case ema20 > ema50 && ema50 > ema200:
		side = Long
	case ema20 < ema50 && ema50 < ema200:
		side = Short
	default:
		return nil, &Rejection{Symbol: symbol, Reason: ReasonNoTrend}, nil
	}

	m := Metrics{
		RSI:         series.RSI(closes, 14),
		ADX:         series.ADX(window, 14),
		VolumeRatio: volumeRatio(window, e.th.VolumeLookback),
		WickRatio:   wickRatio(last, side),
	}
	reject := func(r Reason) (*Signal, *Rejection, error) {
		return nil, &Rejection{Symbol: symbol, Side: side, Reason: r, Metrics: m}, nil
	}

	// Stale momentum: price already stretched too far from the fast trend.
	if ema20 > 0 && abs(last.Close-ema20)/ema20 > e.th.Overextension {
		return reject(ReasonOverextended)
	}

	switch side {
	case Long:
		if last.Close <= prev.High {
			return reject(ReasonNoBreakout)
		}
	case Short:
		if last.Close >= prev.Low {
			return reject(ReasonNoBreakout)
		}
	}

	if m.VolumeRatio <= e.th.VolumeRatio {
		return reject(ReasonVolume)
	}

	body := last.Close - last.Open
	if (side == Long && body <= 0) || (side == Short && body >= 0) {
		return reject(ReasonBody)
	}
	if m.WickRatio > e.th.WickRatio {
		return reject(ReasonWick)
	}

	if side == Long && m.RSI <= e.th.RSILong {
		return reject(ReasonRSI)
	}
	if side == Short && m.RSI >= e.th.RSIShort {
		return reject(ReasonRSI)
	}

	if m.ADX < e.th.ADXMin || m.ADX > e.th.ADXMax {
		return reject(ReasonADX)
	}

	return &Signal{
		Symbol:  symbol,
		Side:    side,
		Price:   last.Close,
		Time:    last.OpenTime,
		Metrics: m,
	}, nil, nil
}

func (e *Evaluator) isDeadHour(hour int) bool {
	for _, h := range e.th.DeadHours {
		if h == hour {
			return true
		}
	}
	return false
}

// volumeRatio compares the triggering bar's volume to the mean of the
// preceding lookback bars, excluding the bar itself.
func volumeRatio(window series.Series, lookback int) float64 {
	if lookback <= 0 || len(window) < lookback+1 {
		return 0
	}
	vols := window.Volumes()
	mean := 0.0
	for _, v := range vols[len(vols)-lookback-1 : len(vols)-1] {
		mean += v
	}
	mean /= float64(lookback)
	if mean == 0 {
		return 0
	}
	return vols[len(vols)-1] / mean
}

// wickRatio measures the rejection wick on the breakout side of the bar
// as a share of the full range.
func wickRatio(c series.Candle, side Side) float64 {
	rng := c.High - c.Low
	if rng <= 0 {
		return 0
	}
	if side == Long {
		top := c.Close
		if c.Open > top {
			top = c.Open
		}
		return (c.High - top) / rng
	}
	bottom := c.Close
	if c.Open < bottom {
		bottom = c.Open
	}
	return (bottom - c.Low) / rng
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
