package common

import (
	"log"
	"strconv"
	"sync"
	"time"
)

// RateLimiter mirrors the request-weight counter the venue reports in
// response headers, so callers can throttle before an IP ban instead of
// after.
type RateLimiter struct {
	mu         sync.RWMutex
	usedWeight int
	limit      int
	windowFrom time.Time
	window     time.Duration
	warnedAt   int // last usage bucket logged, to avoid warn spam
}

// NewRateLimiter tracks a weight budget per window; USDT-M futures
// allows 2400 weight per minute.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:      limit,
		window:     window,
		windowFrom: time.Now(),
	}
}

// UpdateFromHeader records the venue's used-weight header. Empty or
// malformed values are ignored; the venue is the source of truth here,
// not our own bookkeeping.
func (rl *RateLimiter) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if time.Since(rl.windowFrom) >= rl.window {
		rl.usedWeight = 0
		rl.windowFrom = time.Now()
		rl.warnedAt = 0
	}
	rl.usedWeight = weight

	pct := int(float64(weight) / float64(rl.limit) * 100)
	switch {
	case pct >= 95 && rl.warnedAt < 95:
		rl.warnedAt = 95
		log.Printf("ratelimit: %d/%d weight used, ban territory", weight, rl.limit)
	case pct >= 80 && rl.warnedAt < 80:
		rl.warnedAt = 80
		log.Printf("ratelimit: %d/%d weight used", weight, rl.limit)
	}
}

// GetUsage returns the current used weight, the budget and the usage
// percentage; usage reads as zero once the window has rolled over.
func (rl *RateLimiter) GetUsage() (used, limit int, percentage float64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if time.Since(rl.windowFrom) >= rl.window {
		return 0, rl.limit, 0
	}
	return rl.usedWeight, rl.limit, float64(rl.usedWeight) / float64(rl.limit) * 100
}

// ShouldDelay reports whether the next non-critical request should wait
// for the window to roll over.
func (rl *RateLimiter) ShouldDelay() bool {
	_, _, pct := rl.GetUsage()
	return pct >= 90
}
