package engine

import "sync"

// ScanReport is a snapshot of the scan counters since the last daily
// reset.
type ScanReport struct {
	Scanned       int            `json:"scanned"`
	Signals       int            `json:"signals"`
	Rejected      int            `json:"rejected"`
	Insufficient  int            `json:"insufficient"`
	Quality       int            `json:"quality"`
	SkippedPaused int            `json:"skipped_paused"`
	Reasons       map[string]int `json:"reasons"`
}

// scanCounters accumulates scan statistics. State lives in explicit
// fields and is only cleared through SnapshotAndMaybeReset.
type scanCounters struct {
	mu            sync.Mutex
	scanned       int
	signals       int
	rejected      int
	insufficient  int
	quality       int
	skippedPaused int
	reasons       map[string]int
}

func (c *scanCounters) Scanned() {
	c.mu.Lock()
	c.scanned++
	c.mu.Unlock()
}

func (c *scanCounters) Signal() {
	c.mu.Lock()
	c.signals++
	c.mu.Unlock()
}

func (c *scanCounters) Rejected(reason string) {
	c.mu.Lock()
	c.rejected++
	c.bumpLocked(reason)
	c.mu.Unlock()
}

func (c *scanCounters) Quality(reason string) {
	c.mu.Lock()
	c.quality++
	c.bumpLocked(reason)
	c.mu.Unlock()
}

func (c *scanCounters) Insufficient() {
	c.mu.Lock()
	c.insufficient++
	c.mu.Unlock()
}

func (c *scanCounters) SkippedPaused() {
	c.mu.Lock()
	c.skippedPaused++
	c.mu.Unlock()
}

func (c *scanCounters) bumpLocked(reason string) {
	if c.reasons == nil {
		c.reasons = make(map[string]int)
	}
	c.reasons[reason]++
}

// SnapshotAndMaybeReset copies the counters; reset clears them for the
// next day.
func (c *scanCounters) SnapshotAndMaybeReset(reset bool) ScanReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	reasons := make(map[string]int, len(c.reasons))
	for k, v := range c.reasons {
		reasons[k] = v
	}
	snap := ScanReport{
		Scanned:       c.scanned,
		Signals:       c.signals,
		Rejected:      c.rejected,
		Insufficient:  c.insufficient,
		Quality:       c.quality,
		SkippedPaused: c.skippedPaused,
		Reasons:       reasons,
	}
	if reset {
		c.scanned, c.signals, c.rejected = 0, 0, 0
		c.insufficient, c.quality, c.skippedPaused = 0, 0, 0
		c.reasons = nil
	}
	return snap
}
