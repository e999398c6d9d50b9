// Package exit decides when an open position should be closed. All
// functions are pure over the passed state and clock so the live engine
// and the replay engine share one implementation.
package exit

import (
	"time"

	"momentum-core/internal/signal"
)

// Reason explains a close decision.
type Reason string

const (
	ReasonHardStop  Reason = "hard_stop"
	ReasonBreakeven Reason = "breakeven"
	ReasonTrailing  Reason = "trailing"
	ReasonTimeStop  Reason = "time_stop"
)

// State is the per-position view the exit rules operate on.
type State struct {
	Side          signal.Side
	Entry         float64
	Leverage      float64
	Stop          float64 // current protective stop price
	HighWaterMark float64 // best price reached since entry (lowest for shorts)
	OpenedAt      time.Time
}

// Config carries the exit thresholds.
type Config struct {
	BreakevenROE  float64       // max ROE that arms the breakeven exit
	TrailingROE   float64       // max ROE that arms the trailing exit
	BaseCallback  float64       // callback before tightening
	MinCallback   float64       // callback floor
	TightenFactor float64       // callback shrink per unit of max ROE
	FeeBuffer     float64       // entry-zone buffer for breakeven
	TimeStopAfter time.Duration // stale-position deadline
}

// DefaultConfig returns the production exit thresholds.
func DefaultConfig() Config {
	return Config{
		BreakevenROE:  0.15,
		TrailingROE:   0.30,
		BaseCallback:  0.10,
		MinCallback:   0.05,
		TightenFactor: 0.05,
		FeeBuffer:     0.002,
		TimeStopAfter: 24 * time.Hour,
	}
}

// Decision is the outcome of one exit check.
type Decision struct {
	Exit   bool
	Reason Reason
}

// ROE returns leveraged return on equity at the given price.
func (s State) ROE(price float64) float64 {
	if s.Entry <= 0 {
		return 0
	}
	move := (price - s.Entry) / s.Entry
	if s.Side == signal.Short {
		move = -move
	}
	return move * s.Leverage
}

// MaxROE returns the best leveraged return seen so far.
func (s State) MaxROE() float64 {
	return s.ROE(s.HighWaterMark)
}

// Advance moves the high-water mark toward the favorable extreme and
// never back. It returns the updated state.
func Advance(s State, price float64) State {
	if s.HighWaterMark == 0 {
		s.HighWaterMark = s.Entry
	}
	if s.Side == signal.Long {
		if price > s.HighWaterMark {
			s.HighWaterMark = price
		}
	} else {
		if price < s.HighWaterMark {
			s.HighWaterMark = price
		}
	}
	return s
}

// Callback returns the trailing pullback tolerance for the current max
// ROE. It tightens as the position runs and never drops below the floor.
func Callback(s State, cfg Config) float64 {
	cb := cfg.BaseCallback - s.MaxROE()*cfg.TightenFactor
	if cb < cfg.MinCallback {
		cb = cfg.MinCallback
	}
	return cb
}

// TrailingStop returns the ratcheted protective stop implied by the high
// water mark; armed is false until the trailing threshold is reached.
// The level follows the mark monotonically because the mark itself only
// moves favorably and the callback only tightens.
func TrailingStop(s State, cfg Config) (level float64, armed bool) {
	if s.MaxROE() < cfg.TrailingROE {
		return 0, false
	}
	cb := Callback(s, cfg)
	if s.Leverage <= 0 {
		return 0, false
	}
	if s.Side == signal.Long {
		return s.HighWaterMark * (1 - cb/s.Leverage), true
	}
	return s.HighWaterMark * (1 + cb/s.Leverage), true
}

// Check evaluates the exit rules at one price and instant. The caller
// is expected to have advanced the water mark first. Pure: the same
// state, price and clock always yield the same decision.
func Check(s State, price float64, now time.Time, cfg Config) Decision {
	if breached(s, price, s.Stop) {
		return Decision{Exit: true, Reason: ReasonHardStop}
	}

	maxROE := s.MaxROE()

	if maxROE >= cfg.TrailingROE {
		if level, armed := TrailingStop(s, cfg); armed && breached(s, price, level) {
			return Decision{Exit: true, Reason: ReasonTrailing}
		}
	} else if maxROE >= cfg.BreakevenROE {
		// Profit evaporated back into the entry zone; get out flat
		// rather than ride it into a loss.
		if s.Side == signal.Long && price <= s.Entry*(1+cfg.FeeBuffer) {
			return Decision{Exit: true, Reason: ReasonBreakeven}
		}
		if s.Side == signal.Short && price >= s.Entry*(1-cfg.FeeBuffer) {
			return Decision{Exit: true, Reason: ReasonBreakeven}
		}
	}

	if cfg.TimeStopAfter > 0 && now.Sub(s.OpenedAt) >= cfg.TimeStopAfter && s.ROE(price) < 0 {
		return Decision{Exit: true, Reason: ReasonTimeStop}
	}

	return Decision{}
}

// breached reports whether price has crossed the protective level for
// the position's side.
func breached(s State, price, level float64) bool {
	if level <= 0 {
		return false
	}
	if s.Side == signal.Long {
		return price <= level
	}
	return price >= level
}
