package risk

import (
	"errors"
	"fmt"
)

const (
	// Exchange minimum notional plus a safety buffer so rounding at the
	// venue cannot reject the order.
	exchangeMinNotional = 5.0
	minNotionalBuffer   = 1.0

	// Margin kept back for fees when clamping to leveraged notional.
	feeHeadroom = 0.01
)

// ErrPositionTooSmall means the account cannot afford even the minimum
// notional for this setup.
var ErrPositionTooSmall = errors.New("position below exchange minimum notional")

// Size computes the order quantity so that a stop-out loses riskPerTrade
// of the balance. The quantity is clamped to the leveraged notional the
// balance can carry and bumped up to the exchange minimum when affordable.
func Size(balance, entry, stop, leverage, riskPerTrade float64) (float64, error) {
	if balance <= 0 || entry <= 0 || leverage <= 0 {
		return 0, fmt.Errorf("invalid sizing inputs: balance=%v entry=%v leverage=%v", balance, entry, leverage)
	}
	perUnit := entry - stop
	if perUnit < 0 {
		perUnit = -perUnit
	}
	if perUnit == 0 {
		return 0, errors.New("stop equals entry")
	}

	riskAmount := balance * riskPerTrade
	qty := riskAmount / perUnit

	maxNotional := balance * leverage * (1 - feeHeadroom)
	if qty*entry > maxNotional {
		qty = maxNotional / entry
	}

	minNotional := exchangeMinNotional + minNotionalBuffer
	if qty*entry < minNotional {
		bumped := minNotional / entry
		if bumped*entry > maxNotional {
			return 0, ErrPositionTooSmall
		}
		qty = bumped
	}
	return qty, nil
}
