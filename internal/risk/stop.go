package risk

import (
	"momentum-core/internal/series"
	"momentum-core/internal/signal"
)

// StopPrice places the initial protective stop an ATR multiple away from
// entry, capped so a single stop-out never risks more than capPct of the
// price regardless of volatility.
func StopPrice(window series.Series, entry float64, side signal.Side, atrPeriod int, atrMult, capPct float64) float64 {
	dist := series.ATR(window, atrPeriod) * atrMult
	if cap := entry * capPct; dist == 0 || dist > cap {
		dist = cap
	}
	if side == signal.Long {
		return entry - dist
	}
	return entry + dist
}

// LeverageFor maps a symbol's daily volume rank to its leverage tier,
// bounded by what the exchange allows for the symbol.
func LeverageFor(rank, exchangeMax int) int {
	lev := 10
	switch {
	case rank > 0 && rank <= 50:
		lev = 50
	case rank > 0 && rank <= 200:
		lev = 20
	}
	if exchangeMax > 0 && lev > exchangeMax {
		lev = exchangeMax
	}
	return lev
}
