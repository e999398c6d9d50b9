package futures

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Ticker24h is the rolling 24h view of one symbol.
type Ticker24h struct {
	Symbol        string
	LastPrice     float64
	QuoteVolume   float64
	ChangePercent float64
}

// Kline is one raw OHLCV row from the venue.
type Kline struct {
	Symbol    string
	OpenTime  int64 // ms
	CloseTime int64 // ms
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Tickers24h returns the 24h rolling stats for every symbol.
func (c *Client) Tickers24h(ctx context.Context) ([]Ticker24h, error) {
	body, err := c.doPublic(ctx, c.baseURL+"/fapi/v1/ticker/24hr", nil)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		QuoteVolume        string `json:"quoteVolume"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode 24h tickers: %w", err)
	}
	out := make([]Ticker24h, 0, len(raw))
	for _, t := range raw {
		out = append(out, Ticker24h{
			Symbol:        t.Symbol,
			LastPrice:     parseF(t.LastPrice),
			QuoteVolume:   parseF(t.QuoteVolume),
			ChangePercent: parseF(t.PriceChangePercent),
		})
	}
	return out, nil
}

// GetPrice returns the latest traded price for a symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doPublic(ctx, c.baseURL+"/fapi/v1/ticker/price", params)
	if err != nil {
		return 0, err
	}
	var raw struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, fmt.Errorf("decode price: %w", err)
	}
	return parseF(raw.Price), nil
}

// GetKlines fetches candles, oldest first. The venue returns the still
// forming bar last; callers decide whether to keep it via CloseTime.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.doPublic(ctx, c.baseURL+"/fapi/v1/klines", params)
	if err != nil {
		return nil, err
	}
	var rows [][]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	out := make([]Kline, 0, len(rows))
	for _, r := range rows {
		if len(r) < 7 {
			continue
		}
		out = append(out, Kline{
			Symbol:    symbol,
			OpenTime:  toInt64(r[0]),
			CloseTime: toInt64(r[6]),
			Open:      toFloat(r[1]),
			High:      toFloat(r[2]),
			Low:       toFloat(r[3]),
			Close:     toFloat(r[4]),
			Volume:    toFloat(r[5]),
		})
	}
	return out, nil
}

// SymbolFilter carries the per-symbol precision and minimum notional.
type SymbolFilter struct {
	Symbol            string
	PricePrecision    int
	QuantityPrecision int
	MinNotional       float64
	StepSize          float64
	TickSize          float64
}

// GetExchangeInfo returns trading filters for all active symbols.
func (c *Client) GetExchangeInfo(ctx context.Context) (map[string]SymbolFilter, error) {
	body, err := c.doPublic(ctx, c.baseURL+"/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Symbols []struct {
			Symbol            string `json:"symbol"`
			Status            string `json:"status"`
			PricePrecision    int    `json:"pricePrecision"`
			QuantityPrecision int    `json:"quantityPrecision"`
			Filters           []struct {
				FilterType string `json:"filterType"`
				Notional   string `json:"notional"`
				StepSize   string `json:"stepSize"`
				TickSize   string `json:"tickSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}

	out := make(map[string]SymbolFilter, len(raw.Symbols))
	for _, s := range raw.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		f := SymbolFilter{
			Symbol:            s.Symbol,
			PricePrecision:    s.PricePrecision,
			QuantityPrecision: s.QuantityPrecision,
		}
		for _, fl := range s.Filters {
			switch fl.FilterType {
			case "MIN_NOTIONAL":
				f.MinNotional = parseF(fl.Notional)
			case "LOT_SIZE":
				f.StepSize = parseF(fl.StepSize)
			case "PRICE_FILTER":
				f.TickSize = parseF(fl.TickSize)
			}
		}
		out[s.Symbol] = f
	}
	return out, nil
}
