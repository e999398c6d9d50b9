// Package history supplies candle lookbacks: REST-backed for the live
// engine's warmup and evaluation windows, CSV-backed for replays.
package history

import (
	"context"
	"fmt"
	"time"

	"momentum-core/internal/series"
	"momentum-core/pkg/exchanges/binance/futures"
)

// Provider returns candles for a symbol, oldest first, forming bar
// included when the venue reports one.
type Provider interface {
	Klines(ctx context.Context, symbol, interval string, limit int) (series.Series, error)
}

// RESTProvider pulls candles from the futures REST API.
type RESTProvider struct {
	client *futures.Client
}

// NewRESTProvider wraps a futures client as a candle source.
func NewRESTProvider(client *futures.Client) *RESTProvider {
	return &RESTProvider{client: client}
}

// Klines fetches up to limit candles. A bar whose close time is still in
// the future is flagged as forming so callers can drop it.
func (p *RESTProvider) Klines(ctx context.Context, symbol, interval string, limit int) (series.Series, error) {
	rows, err := p.client.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}
	nowMS := time.Now().UnixMilli()
	out := make(series.Series, 0, len(rows))
	for _, k := range rows {
		out = append(out, series.Candle{
			Symbol:   k.Symbol,
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:     k.Open,
			High:     k.High,
			Low:      k.Low,
			Close:    k.Close,
			Volume:   k.Volume,
			Closed:   k.CloseTime <= nowMS,
		})
	}
	return out, nil
}
