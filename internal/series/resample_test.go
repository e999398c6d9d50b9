package series

import (
	"testing"
	"time"
)

func minuteBars(start time.Time, n int, closedAll bool) Series {
	s := make(Series, 0, n)
	for i := 0; i < n; i++ {
		closed := closedAll || i < n-1
		s = append(s, Candle{
			Symbol:   "BTCUSDT",
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     100 + float64(i),
			High:     101 + float64(i),
			Low:      99 + float64(i),
			Close:    100.5 + float64(i),
			Volume:   10,
			Closed:   closed,
		})
	}
	return s
}

func TestResampleAggregatesAlignedBuckets(t *testing.T) {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	base := minuteBars(start, 30, true)

	out := Resample(base, time.Minute, 15)
	if len(out) != 2 {
		t.Fatalf("resampled bars=%d, expected 2", len(out))
	}

	first := out[0]
	if !first.OpenTime.Equal(start) {
		t.Fatalf("first bucket open=%v, expected %v", first.OpenTime, start)
	}
	if first.Open != 100 {
		t.Fatalf("bucket open=%v, expected first bar open 100", first.Open)
	}
	if first.Close != 114.5 {
		t.Fatalf("bucket close=%v, expected last bar close 114.5", first.Close)
	}
	if first.High != 115 {
		t.Fatalf("bucket high=%v, expected 115", first.High)
	}
	if first.Low != 99 {
		t.Fatalf("bucket low=%v, expected 99", first.Low)
	}
	if first.Volume != 150 {
		t.Fatalf("bucket volume=%v, expected 150", first.Volume)
	}
}

// A bucket whose last base bar is still forming must not be emitted.
func TestResampleExcludesFormingBucket(t *testing.T) {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		base Series
		want int
	}{
		{"trailing forming bar", minuteBars(start, 30, false), 1},
		{"partial trailing bucket", minuteBars(start, 22, true), 1},
		{"misaligned leading bars", minuteBars(start.Add(5*time.Minute), 25, true), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Resample(tt.base, time.Minute, 15)
			if len(out) != tt.want {
				t.Fatalf("resampled bars=%d, expected %d", len(out), tt.want)
			}
			for _, c := range out {
				if !c.Closed {
					t.Fatalf("bucket at %v emitted while forming", c.OpenTime)
				}
			}
		})
	}
}

func TestDropForming(t *testing.T) {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	s := minuteBars(start, 5, false)
	if got := len(s.DropForming()); got != 4 {
		t.Fatalf("DropForming len=%d, expected 4", got)
	}
	closed := minuteBars(start, 5, true)
	if got := len(closed.DropForming()); got != 5 {
		t.Fatalf("DropForming on closed series len=%d, expected 5", got)
	}
}
