// Package gateway defines the dealing contracts the engine consumes: an
// order router and an account reader. Implementations never touch engine
// state; they take a request and return a result.
package gateway

import "context"

type OrderRequest struct {
	Instrument   string
	Direction    string // "BUY" | "SELL"
	Size         float64
	StopDistance float64
}

type OrderResult struct {
	DealID    string
	FillPrice float64
}

// Dealer places and closes orders. Both calls must be safely retryable.
type Dealer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CloseOrder(ctx context.Context, dealID string, direction string, size float64) error
}

// Account exposes equity for position sizing.
type Account interface {
	Equity(ctx context.Context) (float64, error)
}
