package engine

import (
	"encoding/json"
	"fmt"
	"math"

	"momentum-core/internal/risk"
	"momentum-core/internal/signal"
	"momentum-core/pkg/db"
)

// Recorder persists trade records and position snapshots to sqlite on
// behalf of the risk manager.
type Recorder struct {
	db *db.Database
}

func NewRecorder(database *db.Database) *Recorder {
	return &Recorder{db: database}
}

var _ risk.Store = (*Recorder)(nil)

// RecordTrade writes the closed-trade audit row and folds the outcome
// into the daily metrics.
func (r *Recorder) RecordTrade(t risk.TradeRecord) error {
	roe := 0.0
	if margin := t.Entry * t.Qty / float64(max(t.Leverage, 1)); margin > 0 {
		roe = t.PnL / margin
	}
	metrics, err := json.Marshal(t.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	return r.db.InsertTrade(db.Trade{
		ID:       t.ID,
		Symbol:   t.Symbol,
		Side:     string(t.Side),
		Qty:      t.Qty,
		Entry:    t.Entry,
		Exit:     t.Exit,
		PnL:      t.PnL,
		ROE:      roe,
		Leverage: t.Leverage,
		Reason:   t.Reason,
		Metrics:  string(metrics),
		OpenedAt: t.OpenedAt,
		ClosedAt: t.ClosedAt,
	})
}

// SavePosition snapshots an open position for crash recovery.
func (r *Recorder) SavePosition(p risk.Position) error {
	return r.db.UpsertPosition(db.PositionRow{
		Symbol:        p.Symbol,
		ID:            p.ID,
		Side:          string(p.Side),
		Qty:           p.Qty,
		Entry:         p.Entry,
		Leverage:      p.Leverage,
		Stop:          p.Stop,
		HighWaterMark: p.HighWaterMark,
		OpenedAt:      p.OpenedAt,
	})
}

func (r *Recorder) DeletePosition(symbol string) error {
	return r.db.DeletePosition(symbol)
}

// LoadPositions rehydrates position snapshots written by a previous
// run. Reconciliation against the venue still decides which survive.
func (r *Recorder) LoadPositions() ([]*risk.Position, error) {
	rows, err := r.db.ListPositions()
	if err != nil {
		return nil, err
	}
	out := make([]*risk.Position, 0, len(rows))
	for _, row := range rows {
		side := signal.Long
		if row.Side == string(signal.Short) {
			side = signal.Short
		}
		out = append(out, &risk.Position{
			ID:            row.ID,
			Symbol:        row.Symbol,
			Side:          side,
			Qty:           math.Abs(row.Qty),
			Entry:         row.Entry,
			Leverage:      row.Leverage,
			Stop:          row.Stop,
			HighWaterMark: row.HighWaterMark,
			OpenedAt:      row.OpenedAt,
		})
	}
	return out, nil
}
