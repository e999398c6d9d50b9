package db

import "time"

// Trade is one closed-trade audit row.
type Trade struct {
	ID       string    `json:"id"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	Qty      float64   `json:"qty"`
	Entry    float64   `json:"entry_price"`
	Exit     float64   `json:"exit_price"`
	PnL      float64   `json:"pnl"`
	ROE      float64   `json:"roe"`
	Leverage int       `json:"leverage"`
	Reason   string    `json:"reason"`
	Metrics  string    `json:"metrics,omitempty"` // entry-time indicator values, JSON
	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at"`
}

// PositionRow is a crash-recovery snapshot of one open position.
type PositionRow struct {
	Symbol        string    `json:"symbol"`
	ID            string    `json:"id"`
	Side          string    `json:"side"`
	Qty           float64   `json:"qty"`
	Entry         float64   `json:"entry_price"`
	Leverage      int       `json:"leverage"`
	Stop          float64   `json:"stop_price"`
	HighWaterMark float64   `json:"high_water_mark"`
	OpenedAt      time.Time `json:"opened_at"`
}

// DailyMetric aggregates one UTC day of trading.
type DailyMetric struct {
	Date       string  `json:"date"` // YYYY-MM-DD
	PnL        float64 `json:"pnl"`
	Trades     int     `json:"trades"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	BalanceEnd float64 `json:"balance_end"`
}
