package series

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// EMA calculates the exponential moving average over the full slice,
// seeded with an SMA of the first period values.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	k := 2.0 / (float64(period) + 1)
	ema := 0.0
	for i := 0; i < period; i++ {
		ema += values[i]
	}
	ema /= float64(period)
	for i := period; i < len(values); i++ {
		ema = values[i]*k + ema*(1-k)
	}
	return ema
}

// RSI computes the Wilder-smoothed Relative Strength Index.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// TrueRanges returns the true-range sequence for the series (one shorter
// than the input because the first bar has no prior close).
func TrueRanges(s Series) []float64 {
	if len(s) < 2 {
		return nil
	}
	out := make([]float64, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		tr := s[i].High - s[i].Low
		if d := abs(s[i].High - s[i-1].Close); d > tr {
			tr = d
		}
		if d := abs(s[i].Low - s[i-1].Close); d > tr {
			tr = d
		}
		out = append(out, tr)
	}
	return out
}

// ATR computes the Wilder-smoothed Average True Range.
func ATR(s Series, period int) float64 {
	trs := TrueRanges(s)
	if period <= 0 || len(trs) < period {
		return 0
	}
	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trs[i]
	}
	atr /= float64(period)
	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}
	return atr
}

// ADX computes the Average Directional Index with Wilder smoothing.
func ADX(s Series, period int) float64 {
	if period <= 0 || len(s) < 2*period+1 {
		return 0
	}

	var trSum, plusSum, minusSum float64
	smoothedDX := 0.0
	dxCount := 0

	// Wilder running sums seeded over the first period moves.
	var tr14, plus14, minus14 float64
	for i := 1; i < len(s); i++ {
		upMove := s[i].High - s[i-1].High
		downMove := s[i-1].Low - s[i].Low

		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

		tr := s[i].High - s[i].Low
		if d := abs(s[i].High - s[i-1].Close); d > tr {
			tr = d
		}
		if d := abs(s[i].Low - s[i-1].Close); d > tr {
			tr = d
		}

		if i <= period {
			trSum += tr
			plusSum += plusDM
			minusSum += minusDM
			if i == period {
				tr14, plus14, minus14 = trSum, plusSum, minusSum
			}
			continue
		}

		tr14 = tr14 - tr14/float64(period) + tr
		plus14 = plus14 - plus14/float64(period) + plusDM
		minus14 = minus14 - minus14/float64(period) + minusDM

		if tr14 == 0 {
			continue
		}
		plusDI := 100 * plus14 / tr14
		minusDI := 100 * minus14 / tr14
		sum := plusDI + minusDI
		if sum == 0 {
			continue
		}
		dx := 100 * abs(plusDI-minusDI) / sum

		dxCount++
		if dxCount <= period {
			smoothedDX += dx
			if dxCount == period {
				smoothedDX /= float64(period)
			}
			continue
		}
		smoothedDX = (smoothedDX*float64(period-1) + dx) / float64(period)
	}

	if dxCount < period {
		return 0
	}
	return smoothedDX
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
