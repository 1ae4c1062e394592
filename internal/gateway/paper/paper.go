// Package paper is an in-process dealer used for dry runs and backtests.
// Fills happen instantly at the current mid price and equity tracks the
// realized point P/L.
package paper

import (
	"context"
	"fmt"
	"sync"

	"zonebreak/internal/gateway"
	"zonebreak/internal/logger"

	"github.com/google/uuid"
)

// PriceFunc supplies the current mid price for fills.
type PriceFunc func() float64

type position struct {
	direction string
	size      float64
	entry     float64
}

type Gateway struct {
	mu         sync.Mutex
	equity     float64
	pointValue float64
	price      PriceFunc
	open       map[string]position
}

func New(equity, pointValue float64, price PriceFunc) *Gateway {
	return &Gateway{
		equity:     equity,
		pointValue: pointValue,
		price:      price,
		open:       make(map[string]position),
	}
}

func (g *Gateway) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return gateway.OrderResult{}, err
	}
	fill := g.price()
	if fill <= 0 {
		return gateway.OrderResult{}, fmt.Errorf("paper: no price available")
	}
	id := uuid.NewString()
	g.mu.Lock()
	g.open[id] = position{direction: req.Direction, size: req.Size, entry: fill}
	g.mu.Unlock()
	logger.Infof("paper fill %s %s size=%.2f at %.1f", req.Direction, req.Instrument, req.Size, fill)
	return gateway.OrderResult{DealID: id, FillPrice: fill}, nil
}

func (g *Gateway) CloseOrder(ctx context.Context, dealID string, direction string, size float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	pos, ok := g.open[dealID]
	if !ok {
		return fmt.Errorf("paper: unknown deal %s", dealID)
	}
	delete(g.open, dealID)
	exit := g.price()
	points := exit - pos.entry
	if pos.direction == "SELL" {
		points = -points
	}
	g.equity += points * pos.size * g.pointValue
	logger.Infof("paper close %s at %.1f points=%.1f equity=%.2f", dealID, exit, points, g.equity)
	return nil
}

func (g *Gateway) Equity(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.equity, nil
}

// OpenCount reports how many paper positions are currently held.
func (g *Gateway) OpenCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.open)
}
