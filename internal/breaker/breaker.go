// Package breaker pauses new entries when recent performance says the
// strategy is out of sync with the market. State survives restarts via
// an atomic JSON snapshot.
package breaker

import (
	"log"
	"sync"
	"time"
)

const (
	windowSize = 20 // outcomes kept for evaluation

	pauseLossStreak  = 4    // losses within the last 5
	pauseStreakSpan  = 5
	pauseWinRate     = 0.25 // floor over the last 10
	pauseWinRateSpan = 10
	pauseDrawdown    = 0.30 // from peak balance

	resumeWins = 2 // wins within the last 3
	resumeSpan = 3
)

// Outcome is one closed trade as the breaker sees it.
type Outcome struct {
	Win  bool      `json:"win"`
	PnL  float64   `json:"pnl"`
	Time time.Time `json:"time"`
}

// Breaker evaluates the rolling trade window after every close. Within
// one evaluation the state moves at most one way: an open breaker can
// trip, a tripped one can reset, never both.
type Breaker struct {
	mu          sync.RWMutex
	outcomes    []Outcome
	paused      bool
	pausedAt    time.Time
	pauseReason string
	peakBalance float64
	lastBalance float64

	statePath string
	onChange  func(paused bool, reason string)
}

// New builds a breaker persisting to statePath; empty disables persistence.
func New(statePath string) *Breaker {
	return &Breaker{statePath: statePath}
}

// OnChange registers a callback fired after each pause or resume. Set it
// before trading starts; the callback runs outside the breaker lock.
func (b *Breaker) OnChange(fn func(paused bool, reason string)) {
	b.onChange = fn
}

// RecordOutcome feeds one closed trade and re-evaluates. Implements the
// risk manager's Gate.
func (b *Breaker) RecordOutcome(pnl, balance float64) {
	b.mu.Lock()

	b.outcomes = append(b.outcomes, Outcome{Win: pnl > 0, PnL: pnl, Time: time.Now().UTC()})
	if len(b.outcomes) > windowSize {
		b.outcomes = b.outcomes[len(b.outcomes)-windowSize:]
	}
	b.lastBalance = balance
	if balance > b.peakBalance {
		b.peakBalance = balance
	}

	changed := false
	reason := ""
	if b.paused {
		if b.shouldResume() {
			b.paused = false
			b.pauseReason = ""
			changed = true
			log.Printf("breaker: resumed after %d of last %d trades won", resumeWins, resumeSpan)
		}
	} else if reason = b.shouldPause(); reason != "" {
		b.paused = true
		b.pausedAt = time.Now().UTC()
		b.pauseReason = reason
		changed = true
		log.Printf("breaker: paused (%s)", reason)
	}

	b.persistLocked()
	paused := b.paused
	fn := b.onChange
	b.mu.Unlock()

	if changed && fn != nil {
		fn(paused, reason)
	}
}

// Paused reports whether new entries are blocked.
func (b *Breaker) Paused() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.paused
}

// Status is a read-only view for the operator API.
type Status struct {
	Paused      bool      `json:"paused"`
	PausedAt    time.Time `json:"paused_at,omitzero"`
	Reason      string    `json:"reason,omitempty"`
	WindowSize  int       `json:"window_size"`
	PeakBalance float64   `json:"peak_balance"`
	LastBalance float64   `json:"last_balance"`
}

// State returns the current status snapshot.
func (b *Breaker) State() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Status{
		Paused:      b.paused,
		PausedAt:    b.pausedAt,
		Reason:      b.pauseReason,
		WindowSize:  len(b.outcomes),
		PeakBalance: b.peakBalance,
		LastBalance: b.lastBalance,
	}
}

// shouldPause returns the tripped rule name, or "". Callers hold the lock.
func (b *Breaker) shouldPause() string {
	if n := len(b.outcomes); n >= pauseStreakSpan {
		losses := 0
		for _, o := range b.outcomes[n-pauseStreakSpan:] {
			if !o.Win {
				losses++
			}
		}
		if losses >= pauseLossStreak {
			return "loss_streak"
		}
	}

	if n := len(b.outcomes); n >= pauseWinRateSpan {
		wins := 0
		for _, o := range b.outcomes[n-pauseWinRateSpan:] {
			if o.Win {
				wins++
			}
		}
		if float64(wins)/float64(pauseWinRateSpan) < pauseWinRate {
			return "low_win_rate"
		}
	}

	if b.peakBalance > 0 && b.lastBalance < b.peakBalance*(1-pauseDrawdown) {
		return "drawdown"
	}
	return ""
}

func (b *Breaker) shouldResume() bool {
	n := len(b.outcomes)
	if n < resumeSpan {
		return false
	}
	wins := 0
	for _, o := range b.outcomes[n-resumeSpan:] {
		if o.Win {
			wins++
		}
	}
	return wins >= resumeWins
}
