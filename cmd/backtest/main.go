// Command backtest replays historical candles through the momentum
// engine's signal and exit logic.
package main

import (
	"fmt"
	"os"
	"time"

	"momentum-core/internal/history"
	"momentum-core/internal/series"
	"momentum-core/internal/sim"
	"momentum-core/pkg/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay the momentum strategy over historical candles",
}

var runFlags struct {
	dataDir    string
	from       string
	to         string
	balance    float64
	interval   string
	thresholds string
	out        string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a replay over a CSV candle directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := history.LoadDir(runFlags.dataDir)
		if err != nil {
			return fmt.Errorf("load data: %w", err)
		}

		// 1m dumps are resampled to the trading timeframe; 15m files
		// pass through untouched.
		if runFlags.interval == "1m" {
			for symbol, s := range data {
				data[symbol] = series.Resample(s, time.Minute, 15)
			}
		}

		from, to, err := parseRange(data)
		if err != nil {
			return err
		}

		cfg := sim.Config{InitialBalance: runFlags.balance}
		if runFlags.thresholds != "" {
			th, err := config.LoadThresholds(runFlags.thresholds)
			if err != nil {
				return fmt.Errorf("load thresholds: %w", err)
			}
			cfg.Thresholds = *th
		}

		engine := sim.New(cfg, data)
		res, err := engine.Run(from, to)
		if err != nil {
			return err
		}

		fmt.Printf("%d symbols, %s -> %s\n", len(data), from.Format("2006-01-02 15:04"), to.Format("2006-01-02 15:04"))
		fmt.Println(res.Summary)
		for _, t := range res.Trades {
			fmt.Printf("  %-12s %-5s lev=%2dx entry=%.6g exit=%.6g pnl=%+.4f (%s)\n",
				t.Symbol, t.Side, t.Leverage, t.Entry, t.Exit, t.PnL, t.Reason)
		}

		if runFlags.out != "" {
			f, err := os.Create(runFlags.out)
			if err != nil {
				return fmt.Errorf("create %s: %w", runFlags.out, err)
			}
			defer f.Close()
			if err := sim.WriteTradesCSV(f, res.Trades); err != nil {
				return fmt.Errorf("write trades: %w", err)
			}
			fmt.Printf("trade log written to %s\n", runFlags.out)
		}
		return nil
	},
}

// parseRange resolves --from/--to, defaulting to the dataset bounds.
func parseRange(data map[string]series.Series) (time.Time, time.Time, error) {
	var from, to time.Time
	for _, s := range data {
		if len(s) == 0 {
			continue
		}
		if from.IsZero() || s[0].OpenTime.Before(from) {
			from = s[0].OpenTime
		}
		if last := s[len(s)-1].OpenTime; last.After(to) {
			to = last
		}
	}
	var err error
	if runFlags.from != "" {
		if from, err = parseTime(runFlags.from); err != nil {
			return from, to, fmt.Errorf("--from: %w", err)
		}
	}
	if runFlags.to != "" {
		if to, err = parseTime(runFlags.to); err != nil {
			return from, to, fmt.Errorf("--to: %w", err)
		}
	}
	return from, to, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

func init() {
	runCmd.Flags().StringVar(&runFlags.dataDir, "data", "", "directory of per-symbol candle CSVs (required)")
	runCmd.Flags().StringVar(&runFlags.from, "from", "", "start (YYYY-MM-DD or RFC 3339); defaults to dataset start")
	runCmd.Flags().StringVar(&runFlags.to, "to", "", "end (YYYY-MM-DD or RFC 3339); defaults to dataset end")
	runCmd.Flags().Float64Var(&runFlags.balance, "balance", 1000, "starting balance in USDT")
	runCmd.Flags().StringVar(&runFlags.interval, "interval", "15m", "candle interval of the CSV files (1m or 15m)")
	runCmd.Flags().StringVar(&runFlags.thresholds, "thresholds", "", "optional YAML thresholds override")
	runCmd.Flags().StringVar(&runFlags.out, "out", "", "write the trade log CSV here")
	_ = runCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
