package breaker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// snapshot is the persisted breaker state.
type snapshot struct {
	Outcomes    []Outcome `json:"outcomes"`
	Paused      bool      `json:"paused"`
	PausedAt    time.Time `json:"paused_at,omitzero"`
	PauseReason string    `json:"pause_reason,omitempty"`
	PeakBalance float64   `json:"peak_balance"`
	LastBalance float64   `json:"last_balance"`
	SavedAt     time.Time `json:"saved_at"`
}

// Load restores state from the snapshot file. A missing file is a clean
// first start, not an error.
func (b *Breaker) Load() error {
	if b.statePath == "" {
		return nil
	}
	data, err := os.ReadFile(b.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read breaker state: %w", err)
	}

	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse breaker state: %w", err)
	}

	b.mu.Lock()
	b.outcomes = s.Outcomes
	b.paused = s.Paused
	b.pausedAt = s.PausedAt
	b.pauseReason = s.PauseReason
	b.peakBalance = s.PeakBalance
	b.lastBalance = s.LastBalance
	b.mu.Unlock()

	if s.Paused {
		log.Printf("breaker: restored in paused state (%s) from %s", s.PauseReason, b.statePath)
	}
	return nil
}

// persistLocked writes the snapshot; callers hold the lock. Persistence
// failures are logged, never fatal to the trade flow.
func (b *Breaker) persistLocked() {
	if b.statePath == "" {
		return
	}
	s := snapshot{
		Outcomes:    b.outcomes,
		Paused:      b.paused,
		PausedAt:    b.pausedAt,
		PauseReason: b.pauseReason,
		PeakBalance: b.peakBalance,
		LastBalance: b.lastBalance,
		SavedAt:     time.Now().UTC(),
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		log.Printf("breaker: marshal state: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(b.statePath), 0o755); err != nil {
		log.Printf("breaker: state dir: %v", err)
		return
	}
	if err := writeFileAtomic(b.statePath, data, 0o644); err != nil {
		log.Printf("breaker: persist state: %v", err)
	}
}

// writeFileAtomic writes data to path atomically (tmp file + fsync +
// rename), then fsyncs the parent directory to harden the rename.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
