package history

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"momentum-core/internal/series"
)

// LoadDir reads every *.csv file in dir as one symbol's candle history,
// keyed by the file name without extension (BTCUSDT.csv -> BTCUSDT).
func LoadDir(dir string) (map[string]series.Series, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no csv files in %s", dir)
	}
	out := make(map[string]series.Series, len(paths))
	for _, p := range paths {
		symbol := strings.ToUpper(strings.TrimSuffix(filepath.Base(p), ".csv"))
		s, err := LoadFile(p, symbol)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out[symbol] = s
	}
	return out, nil
}

// LoadFile parses one candle CSV. Expected columns:
// open_time,open,high,low,close,volume with open_time either epoch
// milliseconds or RFC 3339. A header row is skipped automatically and
// rows are returned sorted by open time.
func LoadFile(path, symbol string) (series.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	out := make(series.Series, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("row %d: want 6 columns, got %d", i+1, len(row))
		}
		ts, err := parseTime(strings.TrimSpace(row[0]))
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("row %d: open time: %w", i+1, err)
		}
		c := series.Candle{Symbol: symbol, OpenTime: ts, Closed: true}
		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
		for j, dst := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[j+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", i+1, j+2, err)
			}
			*dst = v
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no candle rows", path)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].OpenTime.Before(out[b].OpenTime) })
	return out, nil
}

func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
