package sim

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Summary aggregates a finished replay.
type Summary struct {
	InitialBalance float64
	FinalBalance   float64
	ReturnPct      float64
	Trades         int
	Wins           int
	Losses         int
	WinRate        float64
	ProfitFactor   float64
	MaxDrawdownPct float64
}

func (e *Engine) summary() Summary {
	s := Summary{
		InitialBalance: e.cfg.InitialBalance,
		FinalBalance:   e.balance,
		Trades:         len(e.trades),
		MaxDrawdownPct: e.maxDD * 100,
	}
	if s.InitialBalance > 0 {
		s.ReturnPct = (s.FinalBalance - s.InitialBalance) / s.InitialBalance * 100
	}

	grossWin, grossLoss := 0.0, 0.0
	for _, t := range e.trades {
		if t.PnL > 0 {
			s.Wins++
			grossWin += t.PnL
		} else {
			s.Losses++
			grossLoss += -t.PnL
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		s.ProfitFactor = grossWin // no losing trades; report gross profit
	}
	return s
}

// String renders the summary the way the operator reads it.
func (s Summary) String() string {
	return fmt.Sprintf(
		"balance %.2f -> %.2f (%+.2f%%) | trades %d | win rate %.1f%% | profit factor %.2f | max drawdown %.2f%%",
		s.InitialBalance, s.FinalBalance, s.ReturnPct, s.Trades, s.WinRate*100, s.ProfitFactor, s.MaxDrawdownPct)
}

// WriteTradesCSV streams the trade log as CSV.
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	header := []string{"symbol", "side", "qty", "leverage", "entry", "exit", "pnl", "max_roe", "reason", "opened_at", "closed_at"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.Symbol,
			string(t.Side),
			strconv.FormatFloat(t.Qty, 'f', -1, 64),
			strconv.Itoa(t.Leverage),
			strconv.FormatFloat(t.Entry, 'f', -1, 64),
			strconv.FormatFloat(t.Exit, 'f', -1, 64),
			strconv.FormatFloat(t.PnL, 'f', 4, 64),
			strconv.FormatFloat(t.MaxROE, 'f', 4, 64),
			t.Reason,
			t.OpenedAt.UTC().Format(time.RFC3339),
			t.ClosedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
