package app

import (
	"fmt"
	"time"

	"zonebreak/internal/backtest"
	"zonebreak/internal/clock"
	"zonebreak/internal/config"
	"zonebreak/internal/engine"
	"zonebreak/internal/events"
	"zonebreak/internal/gateway"
	"zonebreak/internal/gateway/ig"
	"zonebreak/internal/gateway/paper"
	"zonebreak/internal/market"
	"zonebreak/internal/metrics"
	"zonebreak/internal/rules"
	"zonebreak/internal/session"
	"zonebreak/internal/store/journal"
	livehttp "zonebreak/internal/transport/http/live"
	"zonebreak/internal/trader"
	"zonebreak/internal/zone"
)

// buildLive wires the live trading pipeline: quote stream, gateway, engine
// and the status server.
func buildLive(cfg *config.Config) (*App, error) {
	base, err := buildBase(cfg)
	if err != nil {
		return nil, err
	}

	src := market.NewStreamSource(cfg.Market)
	base.source = src

	dealer, account, err := buildGateway(cfg, src.MidPrice)
	if err != nil {
		src.Close()
		return nil, err
	}
	base.finishEngine(cfg, dealer, account)

	srv, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Engine:  base.engine,
		Rules:   base.rules,
		Journal: base.journal,
		Metrics: base.metrics,
	})
	if err != nil {
		src.Close()
		return nil, err
	}
	base.liveHTTP = srv
	return base, nil
}

// buildBacktest wires the same pipeline around a paper gateway fed from a
// replay quote cell instead of a live stream.
func buildBacktest(cfg *config.Config) (*App, error) {
	base, err := buildBase(cfg)
	if err != nil {
		return nil, err
	}

	rec := backtest.NewRecorder()
	base.recorder = rec
	base.sink.Add(rec)

	quote := &backtest.Quote{}
	equity := cfg.Backtest.Equity
	if equity <= 0 {
		equity = cfg.Gateway.Paper.Equity
	}
	pg := paper.New(equity, cfg.Engine.PointValue, quote.Get)
	base.finishEngine(cfg, pg, pg)

	base.runner = &backtest.Runner{
		Engine:   base.engine,
		Trades:   base.trades,
		Recorder: base.recorder,
		Account:  pg,
		Quote:    quote,
	}
	return base, nil
}

// buildBase assembles everything both modes share: rules, clock, sessions,
// evaluator, sinks.
func buildBase(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	a := &App{cfg: cfg}

	tables := rules.Defaults()
	if cfg.Engine.RulesPath != "" {
		reg, err := rules.NewRegistry(cfg.Engine.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("load zone rules: %w", err)
		}
		a.rules = reg
		tables = reg.Tables()
	}

	ref, err := clock.NewReference(cfg.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load reference timezone: %w", err)
	}
	a.ref = ref

	a.metrics = metrics.New()
	sinks := []events.Sink{events.LogSink{}, a.metrics.Sink()}
	if cfg.Store.Path != "" {
		j, err := journal.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = j
		sinks = append(sinks, j)
	}
	a.sink = events.NewFanout(sinks...)

	a.tracker, err = session.NewTracker(cfg.Sessions, a.sink)
	if err != nil {
		return nil, fmt.Errorf("build session tracker: %w", err)
	}
	a.gate, err = session.NewGate(cfg.Volatility, a.sink)
	if err != nil {
		return nil, fmt.Errorf("build volatility gate: %w", err)
	}
	a.sweep = session.NewSweepMonitor(cfg.Sweep.CancelLevel, a.sink)
	a.eval = zone.NewEvaluator(tables, cfg.Engine.Tolerance)
	return a, nil
}

func (a *App) finishEngine(cfg *config.Config, dealer gateway.Dealer, account gateway.Account) {
	a.trades = trader.NewManager(dealer, account, a.sink, cfg)
	a.engine = engine.New(cfg, engine.Deps{
		Ref:     a.ref,
		Tracker: a.tracker,
		Gate:    a.gate,
		Sweep:   a.sweep,
		Eval:    a.eval,
		Trades:  a.trades,
		Sink:    a.sink,
		Metrics: a.metrics,
	})
}

func buildGateway(cfg *config.Config, price func() float64) (gateway.Dealer, gateway.Account, error) {
	switch cfg.Gateway.Mode {
	case "paper", "":
		pg := paper.New(cfg.Gateway.Paper.Equity, cfg.Engine.PointValue, price)
		return pg, pg, nil
	case "ig":
		client := ig.New(cfg.Gateway.IG)
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown gateway mode %q", cfg.Gateway.Mode)
	}
}

func pollInterval(cfg *config.Config) time.Duration {
	ms := cfg.Market.PollIntervalMS
	if ms <= 0 {
		ms = 250
	}
	return time.Duration(ms) * time.Millisecond
}
