// Package backtest replays historical candles through the decision engine
// and summarizes the resulting trades.
package backtest

import (
	"context"
	"time"
)

// Bar is one historical candle, timestamped in the source's own timezone.
type Bar struct {
	At     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Request bounds a history fetch. End is exclusive; a zero End means "until
// the source runs out".
type Request struct {
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time
}

// Source abstracts where the candles come from.
type Source interface {
	Name() string
	Bars(ctx context.Context, req Request) ([]Bar, error)
}
