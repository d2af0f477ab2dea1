package domain

import "context"

// PriceSource returns the latest market price for a symbol.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// BatchPriceSource fetches many symbols at once. Failures are per symbol:
// a symbol is either in prices or in errs.
type BatchPriceSource interface {
	PriceSource
	GetPrices(ctx context.Context, symbols []string) (prices map[string]float64, errs map[string]error)
}
