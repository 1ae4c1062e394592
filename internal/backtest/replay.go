package backtest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"zonebreak/internal/engine"
	"zonebreak/internal/events"
	"zonebreak/internal/gateway"
	"zonebreak/internal/logger"
	"zonebreak/internal/trader"
)

// Quote is a shared price cell: the runner writes each sub-tick into it so
// the paper gateway fills at the replayed price.
type Quote struct {
	mu    sync.Mutex
	price float64
}

func (q *Quote) Set(p float64) {
	q.mu.Lock()
	q.price = p
	q.mu.Unlock()
}

func (q *Quote) Get() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.price
}

// Runner drives the engine's tick pipeline over historical bars. The engine
// and trade manager must be wired to a paper gateway; the runner only feeds
// prices and collects the outcome.
type Runner struct {
	Engine   *engine.Engine
	Trades   *trader.Manager
	Recorder *Recorder
	Account  gateway.Account
	Quote    *Quote
}

// Stats summarizes one replay.
type Stats struct {
	Bars           int            `json:"bars"`
	Ticks          int            `json:"ticks"`
	Trades         int            `json:"trades"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	WinRate        float64        `json:"win_rate"`
	PointsTotal    float64        `json:"points_total"`
	ClosesByReason map[string]int `json:"closes_by_reason"`
	OpensByLevel   map[string]int `json:"opens_by_level"`
	OpensBySession map[string]int `json:"opens_by_session"`
	StartEquity    float64        `json:"start_equity"`
	FinalEquity    float64        `json:"final_equity"`
	FirstBar       time.Time      `json:"first_bar"`
	LastBar        time.Time      `json:"last_bar"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// Replay feeds each bar's low and then high through the pipeline, the same
// two sub-ticks a one-minute candle can prove happened. Anything still open
// when the data runs out is flattened at the last close.
func (r *Runner) Replay(ctx context.Context, bars []Bar) (Stats, error) {
	if r.Engine == nil || r.Trades == nil || r.Recorder == nil {
		return Stats{}, fmt.Errorf("replay runner is missing a dependency")
	}
	if len(bars) == 0 {
		return Stats{}, fmt.Errorf("no bars to replay")
	}

	stats := Stats{Bars: len(bars), FirstBar: bars[0].At, LastBar: bars[len(bars)-1].At}
	if r.Account != nil {
		stats.StartEquity, _ = r.Account.Equity(ctx)
	}

	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}
		for _, price := range []float64{bar.Low, bar.High} {
			if r.Quote != nil {
				r.Quote.Set(price)
			}
			r.Engine.OnTick(bar.At, price)
			stats.Ticks++
		}
	}

	last := bars[len(bars)-1]
	if r.Quote != nil {
		r.Quote.Set(last.Close)
	}
	r.Trades.ForceCloseAll(ctx, last.At, last.Close, "backtest_end")

	r.tally(&stats)
	if r.Account != nil {
		stats.FinalEquity, _ = r.Account.Equity(ctx)
	}
	stats.FinishedAt = time.Now()
	logger.Infof("replay done: %d bars, %d trades, %.1f points", stats.Bars, stats.Trades, stats.PointsTotal)
	return stats, nil
}

func (r *Runner) tally(stats *Stats) {
	stats.ClosesByReason = make(map[string]int)
	stats.OpensByLevel = make(map[string]int)
	stats.OpensBySession = make(map[string]int)
	for _, e := range r.Recorder.ByType(events.TradeOpen) {
		if level, ok := e.Fields["level"].(float64); ok {
			stats.OpensByLevel[strconv.FormatFloat(level, 'f', -1, 64)]++
		}
		if name, _ := e.Fields["session"].(string); name != "" {
			stats.OpensBySession[name]++
		}
	}
	for _, e := range r.Recorder.ByType(events.TradeClose) {
		stats.Trades++
		points, _ := e.Fields["points"].(float64)
		stats.PointsTotal += points
		if points >= 0 {
			stats.Wins++
		} else {
			stats.Losses++
		}
		if reason, _ := e.Fields["reason"].(string); reason != "" {
			stats.ClosesByReason[reason]++
		}
	}
	if stats.Trades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Trades)
	}
}
