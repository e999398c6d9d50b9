package series

import (
	"testing"
	"time"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	if got := SMA(values, 3); got != 4 {
		t.Fatalf("SMA=%v, expected 4", got)
	}
	if got := SMA(values, 10); got != 0 {
		t.Fatalf("SMA with short input=%v, expected 0", got)
	}
}

func TestEMAConvergesTowardConstant(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 42
	}
	if got := EMA(values, 20); got != 42 {
		t.Fatalf("EMA of constant series=%v, expected 42", got)
	}
}

func TestRSIExtremes(t *testing.T) {
	up := make([]float64, 30)
	for i := range up {
		up[i] = float64(i)
	}
	if got := RSI(up, 14); got != 100 {
		t.Fatalf("RSI of monotonic rise=%v, expected 100", got)
	}

	down := make([]float64, 30)
	for i := range down {
		down[i] = float64(30 - i)
	}
	if got := RSI(down, 14); got != 0 {
		t.Fatalf("RSI of monotonic fall=%v, expected 0", got)
	}
}

func TestATRConstantRange(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s := make(Series, 0, 20)
	for i := 0; i < 20; i++ {
		s = append(s, Candle{
			OpenTime: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:     100, High: 101, Low: 99, Close: 100,
			Closed: true,
		})
	}
	got := ATR(s, 14)
	if got < 1.999 || got > 2.001 {
		t.Fatalf("ATR=%v, expected 2 for constant 2-point range", got)
	}
}

func TestADXInsufficientData(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s := make(Series, 0, 10)
	for i := 0; i < 10; i++ {
		s = append(s, Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     100, High: 101, Low: 99, Close: 100,
			Closed: true,
		})
	}
	if got := ADX(s, 14); got != 0 {
		t.Fatalf("ADX with short input=%v, expected 0", got)
	}
}

func TestADXTrendingMarketIsElevated(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s := make(Series, 0, 60)
	for i := 0; i < 60; i++ {
		base := 100 + float64(i)*2
		s = append(s, Candle{
			OpenTime: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:     base, High: base + 1.5, Low: base - 0.5, Close: base + 1,
			Closed: true,
		})
	}
	got := ADX(s, 14)
	if got < 50 {
		t.Fatalf("ADX of strong uptrend=%v, expected well above 50", got)
	}
}
