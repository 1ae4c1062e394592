// Package engine owns all mutable strategy state and runs the fixed
// per-tick pipeline: clock, session lifecycle, volatility gate, sweep
// monitor, zone evaluator, trade lifecycle.
package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"zonebreak/internal/clock"
	"zonebreak/internal/config"
	"zonebreak/internal/events"
	"zonebreak/internal/logger"
	"zonebreak/internal/metrics"
	"zonebreak/internal/session"
	"zonebreak/internal/trader"
	"zonebreak/internal/zone"
)

const dealTimeout = 30 * time.Second

// Tick is one price observation.
type Tick struct {
	At    time.Time
	Price float64
}

type Engine struct {
	ref     *clock.Reference
	tracker *session.Tracker
	gate    *session.Gate
	sweep   *session.SweepMonitor
	eval    *zone.Evaluator
	trades  *trader.Manager
	sink    events.Sink
	metrics *metrics.Metrics

	forceCloseAtDayEnd bool
	sweepAggregate     bool

	day        time.Time
	lastPrice  float64
	lastTickAt time.Time

	mu     sync.Mutex
	tickCh chan Tick
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

type Deps struct {
	Ref     *clock.Reference
	Tracker *session.Tracker
	Gate    *session.Gate
	Sweep   *session.SweepMonitor
	Eval    *zone.Evaluator
	Trades  *trader.Manager
	Sink    events.Sink
	Metrics *metrics.Metrics
}

func New(cfg *config.Config, deps Deps) *Engine {
	return &Engine{
		ref:                deps.Ref,
		tracker:            deps.Tracker,
		gate:               deps.Gate,
		sweep:              deps.Sweep,
		eval:               deps.Eval,
		trades:             deps.Trades,
		sink:               deps.Sink,
		metrics:            deps.Metrics,
		forceCloseAtDayEnd: cfg.Exits.ForceCloseAtDayEnd,
		sweepAggregate:     cfg.Sweep.Aggregate,
		tickCh:             make(chan Tick, 1),
		stopCh:             make(chan struct{}),
		done:               make(chan struct{}),
	}
}

// Start launches the tick loop.
func (e *Engine) Start() {
	e.once.Do(func() {
		go e.loop()
	})
}

func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.done
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.stopCh:
			return
		case t := <-e.tickCh:
			e.OnTick(t.At, t.Price)
		}
	}
}

// Offer hands a tick to the loop without blocking the caller. The queue
// holds one slot: a tick arriving while another is queued replaces it, so
// the loop always works on the freshest observation.
func (e *Engine) Offer(at time.Time, price float64) {
	t := Tick{At: at, Price: price}
	for {
		select {
		case e.tickCh <- t:
			return
		default:
		}
		select {
		case <-e.tickCh:
			if e.metrics != nil {
				e.metrics.DroppedTicks.Inc()
			}
		default:
		}
	}
}

// OnTick runs one full pipeline pass. It is the only place engine state is
// mutated; callers must not invoke it concurrently.
func (e *Engine) OnTick(at time.Time, price float64) {
	// Zero, negative or non-finite is "no update", never a valid quote.
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	now, err := e.ref.Convert(at)
	if err != nil {
		// Fail loudly: a wrong silent fallback to local time is worse
		// than skipping the tick.
		logger.Errorf("tick time conversion failed, tick dropped: %v", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.TicksTotal.Inc()
		e.metrics.MidPrice.Set(price)
	}

	e.rollDay(now, price)
	e.lastPrice = price
	e.lastTickAt = now

	e.tracker.UpdateLifecycle(now, price)
	e.tracker.UpdateHighLow(price)
	e.gate.Observe(e.tracker, now, price)

	// Sweep runs before the evaluator so it always preempts a new entry
	// on the same tick.
	if swept := e.sweep.Check(e.tracker, now, price); len(swept) > 0 {
		e.withDealCtx(func(ctx context.Context) {
			if e.sweepAggregate {
				e.trades.ForceCloseAll(ctx, now, price, "sweep")
				return
			}
			for _, s := range swept {
				e.trades.ForceClose(ctx, s.Name, now, price, "sweep")
			}
		})
	}

	for _, s := range e.tracker.Sessions() {
		res := e.eval.Evaluate(s, price)
		switch res.Outcome {
		case zone.DisableSession:
			s.Disable()
			e.emit(events.SessionSkip, now, map[string]any{
				"session": s.Name,
				"reason":  res.Reason,
				"price":   price,
			})
		case zone.Enter:
			if s.TradeOpened {
				continue
			}
			e.withDealCtx(func(ctx context.Context) {
				e.trades.TryEnter(ctx, s, res.Decision, now)
			})
		}
	}

	e.trades.UpdatePeak(now, price)
	e.withDealCtx(func(ctx context.Context) {
		e.trades.CheckExits(ctx, now, price)
	})
}

// rollDay resets the per-day guards at the first tick of a new reference
// date. Anything still open from yesterday is closed first.
func (e *Engine) rollDay(now time.Time, price float64) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !e.day.IsZero() && day.Equal(e.day) {
		return
	}
	if !e.day.IsZero() {
		if e.forceCloseAtDayEnd {
			e.withDealCtx(func(ctx context.Context) {
				e.trades.ForceCloseAll(ctx, now, price, "day_end")
			})
		}
		e.trades.OnNewDay()
	}
	e.day = day
	e.tracker.OnNewDay()
}

func (e *Engine) withDealCtx(fn func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), dealTimeout)
	defer cancel()
	fn(ctx)
}

func (e *Engine) emit(typ events.Type, at time.Time, fields map[string]any) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(events.New(typ, at, fields))
}

// SessionStatus is a read-only view for the status API.
type SessionStatus struct {
	Name        string  `json:"name"`
	Window      string  `json:"window"`
	Active      bool    `json:"active"`
	Allowed     bool    `json:"allowed"`
	TradeOpened bool    `json:"trade_opened"`
	OpenPrice   float64 `json:"open_price"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
}

type Status struct {
	Day        string               `json:"day"`
	LastPrice  float64              `json:"last_price"`
	LastTickAt time.Time            `json:"last_tick_at"`
	Sessions   []SessionStatus      `json:"sessions"`
	Trades     []trader.TradeRecord `json:"trades"`
}

// Snapshot returns the current engine state for observers.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		LastPrice:  e.lastPrice,
		LastTickAt: e.lastTickAt,
		Trades:     e.trades.Records(),
	}
	if !e.day.IsZero() {
		st.Day = e.day.Format("2006-01-02")
	}
	for _, s := range e.tracker.Sessions() {
		st.Sessions = append(st.Sessions, SessionStatus{
			Name:        s.Name,
			Window:      s.Window.String(),
			Active:      s.Active,
			Allowed:     s.Allowed,
			TradeOpened: s.TradeOpened,
			OpenPrice:   s.OpenPrice,
			High:        s.High,
			Low:         s.Low,
		})
	}
	return st
}
