package signal

import (
	"momentum-core/internal/series"
)

// QualityReason identifies why a symbol was excluded before evaluation.
type QualityReason string

const (
	QualityBlacklisted   QualityReason = "blacklisted"
	QualityThinVolume    QualityReason = "thin_volume"
	QualityErraticPrice  QualityReason = "erratic_price"
	QualityMissingWindow QualityReason = "missing_window"
)

// QualityFilter excludes symbols that are too thin or too erratic to
// trade regardless of what the breakout gates say.
type QualityFilter struct {
	blacklist     map[string]struct{}
	minVolumeUSD  float64
	volatilityCap float64 // ATR/price ceiling
	atrPeriod     int
}

// NewQualityFilter builds the filter. minVolumeUSD is the 24h quote
// volume floor; volatilityCap bounds ATR relative to price.
func NewQualityFilter(blacklist []string, minVolumeUSD, volatilityCap float64, atrPeriod int) *QualityFilter {
	bl := make(map[string]struct{}, len(blacklist))
	for _, s := range blacklist {
		bl[s] = struct{}{}
	}
	return &QualityFilter{
		blacklist:     bl,
		minVolumeUSD:  minVolumeUSD,
		volatilityCap: volatilityCap,
		atrPeriod:     atrPeriod,
	}
}

// Check returns ok when the symbol is tradeable; otherwise the reason.
func (f *QualityFilter) Check(symbol string, window series.Series, volume24hUSD float64) (bool, QualityReason) {
	if _, banned := f.blacklist[symbol]; banned {
		return false, QualityBlacklisted
	}
	if volume24hUSD < f.minVolumeUSD {
		return false, QualityThinVolume
	}

	last, ok := window.Last()
	if !ok || last.Close <= 0 {
		return false, QualityMissingWindow
	}
	atr := series.ATR(window, f.atrPeriod)
	if atr == 0 {
		return false, QualityMissingWindow
	}
	if atr/last.Close > f.volatilityCap {
		return false, QualityErraticPrice
	}
	return true, ""
}
