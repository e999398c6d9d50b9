// Package stream multiplexes Binance futures market-data websockets.
// It owns connection lifecycle only: subscriptions, idle detection and
// reconnection. Parsed events flow to one channel; no trading logic.
package stream

import (
	"strings"
	"time"

	"momentum-core/internal/series"
)

// MessageType discriminates stream payloads.
type MessageType int

const (
	MessageKline MessageType = iota
	MessageMarkPrice
)

// Message is one parsed stream event.
type Message struct {
	Type   MessageType
	Symbol string
	Time   time.Time

	Candle series.Candle // MessageKline
	Price  float64       // MessageMarkPrice
}

// KlineStream names the 1m candle stream for a symbol. Stream names are
// lowercase at the venue.
func KlineStream(symbol string) string {
	return strings.ToLower(symbol) + "@kline_1m"
}

// MarkPriceStream names the 1s mark-price stream for a symbol.
func MarkPriceStream(symbol string) string {
	return strings.ToLower(symbol) + "@markPrice@1s"
}
