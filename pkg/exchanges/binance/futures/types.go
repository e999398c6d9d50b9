package futures

import "strconv"

// orderResp is the venue ack for order placement.
type orderResp struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
}

// OpenOrder is a resting order.
type OpenOrder struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	StopPrice     string `json:"stopPrice"`
	OrigQty       string `json:"origQty"`
	ReduceOnly    bool   `json:"reduceOnly"`
	ClosePosition bool   `json:"closePosition"`
}

// StopPriceF returns the stop price as a float.
func (o OpenOrder) StopPriceF() float64 { return parseF(o.StopPrice) }

// PositionRisk is the venue's view of one position.
type PositionRisk struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
	UpdateTime       int64  `json:"updateTime"`
}

// Amt returns the signed position quantity (negative for shorts).
func (p PositionRisk) Amt() float64 { return parseF(p.PositionAmt) }

// EntryPriceF returns the entry price as a float.
func (p PositionRisk) EntryPriceF() float64 { return parseF(p.EntryPrice) }

// LeverageI returns the configured leverage.
func (p PositionRisk) LeverageI() int {
	v, _ := strconv.Atoi(p.Leverage)
	return v
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// toFloat handles the venue's mixed string/number array encoding.
func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		return parseF(t)
	case float64:
		return t
	}
	return 0
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		i, _ := strconv.ParseInt(t, 10, 64)
		return i
	}
	return 0
}
