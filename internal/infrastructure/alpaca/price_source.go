package alpaca

import (
	"context"
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tracker-backend/internal/domain"
)

var _ domain.BatchPriceSource = (*PriceSource)(nil)

// PriceSource prices US equities from the latest trade reported by the
// Alpaca market-data API.
type PriceSource struct {
	client *marketdata.Client
	feed   marketdata.Feed
}

// NewPriceSource builds a market-data client. dataURL and feed may be empty
// to use the Alpaca defaults.
func NewPriceSource(apiKey, apiSecret, dataURL, feed string) *PriceSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &PriceSource{
		client: marketdata.NewClient(opts),
		feed:   marketdata.Feed(feed),
	}
}

// The market-data client has no context support, so calls run in a
// goroutine and the caller stops waiting when ctx is done.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

func (s *PriceSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	sym := strings.ToUpper(symbol)
	trade, err := await(ctx, func() (*marketdata.Trade, error) {
		return s.client.GetLatestTrade(sym, marketdata.GetLatestTradeRequest{Feed: s.feed})
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return 0, fmt.Errorf("%w: %s: no trade", domain.ErrPriceUnavailable, symbol)
	}
	return trade.Price, nil
}

func (s *PriceSource) GetPrices(ctx context.Context, symbols []string) (map[string]float64, map[string]error) {
	prices := make(map[string]float64, len(symbols))
	errs := make(map[string]error)

	upper := make([]string, len(symbols))
	for i, sym := range symbols {
		upper[i] = strings.ToUpper(sym)
	}
	trades, err := await(ctx, func() (map[string]marketdata.Trade, error) {
		return s.client.GetLatestTrades(upper, marketdata.GetLatestTradeRequest{Feed: s.feed})
	})
	if err != nil {
		for _, sym := range symbols {
			errs[sym] = fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, sym, err)
		}
		return prices, errs
	}

	for i, sym := range symbols {
		t, ok := trades[upper[i]]
		if !ok || t.Price <= 0 {
			errs[sym] = fmt.Errorf("%w: %s: no trade", domain.ErrPriceUnavailable, sym)
			continue
		}
		prices[sym] = t.Price
	}
	return prices, errs
}
