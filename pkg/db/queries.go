package db

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertTrade appends a closed-trade row and folds it into the daily
// aggregate for its close date.
func (d *Database) InsertTrade(t Trade) error {
	tx, err := d.DB.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO trades (id, symbol, side, qty, entry_price, exit_price, pnl, roe, leverage, reason, metrics, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.Side, t.Qty, t.Entry, t.Exit, t.PnL, t.ROE, t.Leverage, t.Reason, t.Metrics,
		t.OpenedAt.UTC(), t.ClosedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	win, loss := 0, 0
	if t.PnL > 0 {
		win = 1
	} else {
		loss = 1
	}
	date := t.ClosedAt.UTC().Format("2006-01-02")
	_, err = tx.Exec(`
		INSERT INTO daily_metrics (date, pnl, trades, wins, losses)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			pnl = pnl + excluded.pnl,
			trades = trades + 1,
			wins = wins + excluded.wins,
			losses = losses + excluded.losses`,
		date, t.PnL, win, loss)
	if err != nil {
		return fmt.Errorf("update daily metrics: %w", err)
	}
	return tx.Commit()
}

// ListTrades returns the most recent trades, newest first.
func (d *Database) ListTrades(limit int) ([]Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := d.DB.Query(`
		SELECT id, symbol, side, qty, entry_price, exit_price, pnl, roe, leverage, reason, COALESCE(metrics, ''), opened_at, closed_at
		FROM trades ORDER BY closed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.Qty, &t.Entry, &t.Exit, &t.PnL, &t.ROE,
			&t.Leverage, &t.Reason, &t.Metrics, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertPosition writes the recovery snapshot for a symbol.
func (d *Database) UpsertPosition(p PositionRow) error {
	_, err := d.DB.Exec(`
		INSERT INTO positions (symbol, id, side, qty, entry_price, leverage, stop_price, high_water_mark, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			id = excluded.id,
			side = excluded.side,
			qty = excluded.qty,
			entry_price = excluded.entry_price,
			leverage = excluded.leverage,
			stop_price = excluded.stop_price,
			high_water_mark = excluded.high_water_mark,
			opened_at = excluded.opened_at,
			updated_at = excluded.updated_at`,
		p.Symbol, p.ID, p.Side, p.Qty, p.Entry, p.Leverage, p.Stop, p.HighWaterMark,
		p.OpenedAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", p.Symbol, err)
	}
	return nil
}

// DeletePosition drops the snapshot once the position is closed.
func (d *Database) DeletePosition(symbol string) error {
	if _, err := d.DB.Exec(`DELETE FROM positions WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("delete position %s: %w", symbol, err)
	}
	return nil
}

// ListPositions returns every stored snapshot, used at boot.
func (d *Database) ListPositions() ([]PositionRow, error) {
	rows, err := d.DB.Query(`
		SELECT symbol, id, side, qty, entry_price, leverage, stop_price, high_water_mark, opened_at
		FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRow
	for rows.Next() {
		var p PositionRow
		if err := rows.Scan(&p.Symbol, &p.ID, &p.Side, &p.Qty, &p.Entry, &p.Leverage, &p.Stop, &p.HighWaterMark, &p.OpenedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetDailyBalance stamps the end-of-day balance on today's row.
func (d *Database) SetDailyBalance(date string, balance float64) error {
	_, err := d.DB.Exec(`
		INSERT INTO daily_metrics (date, balance_end) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET balance_end = excluded.balance_end`,
		date, balance)
	if err != nil {
		return fmt.Errorf("set daily balance: %w", err)
	}
	return nil
}

// GetDailyMetric returns the aggregate for one UTC date.
func (d *Database) GetDailyMetric(date string) (DailyMetric, error) {
	m := DailyMetric{Date: date}
	err := d.DB.QueryRow(`
		SELECT pnl, trades, wins, losses, balance_end FROM daily_metrics WHERE date = ?`, date).
		Scan(&m.PnL, &m.Trades, &m.Wins, &m.Losses, &m.BalanceEnd)
	if err == sql.ErrNoRows {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("daily metric %s: %w", date, err)
	}
	return m, nil
}
