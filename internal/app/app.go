// Package app wires the configuration into a runnable process: the live
// tick loop with its status server, or a historical replay.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"zonebreak/internal/backtest"
	"zonebreak/internal/clock"
	"zonebreak/internal/config"
	"zonebreak/internal/engine"
	"zonebreak/internal/events"
	"zonebreak/internal/logger"
	"zonebreak/internal/market"
	"zonebreak/internal/metrics"
	"zonebreak/internal/rules"
	"zonebreak/internal/scheduler"
	"zonebreak/internal/session"
	"zonebreak/internal/store/journal"
	livehttp "zonebreak/internal/transport/http/live"
	"zonebreak/internal/trader"
	"zonebreak/internal/zone"
)

type App struct {
	cfg *config.Config

	ref      *clock.Reference
	rules    *rules.Registry
	metrics  *metrics.Metrics
	journal  *journal.Journal
	sink     *events.Fanout
	tracker  *session.Tracker
	gate     *session.Gate
	sweep    *session.SweepMonitor
	eval     *zone.Evaluator
	trades   *trader.Manager
	engine   *engine.Engine
	source   market.Source
	liveHTTP *livehttp.Server
	recorder *backtest.Recorder
	runner   *backtest.Runner
}

// NewLive builds the live trading process.
func NewLive(cfg *config.Config) (*App, error) {
	return buildLive(cfg)
}

// NewBacktest builds a replay process around a paper gateway.
func NewBacktest(cfg *config.Config) (*App, error) {
	return buildBacktest(cfg)
}

// Engine exposes the decision engine, mainly for harnesses.
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

// Run starts the live loop and blocks until ctx is cancelled or a component
// fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.source == nil {
		return fmt.Errorf("live run requires a market source")
	}
	defer a.close()

	a.engine.Start()
	defer a.engine.Stop()

	group, ctx := errgroup.WithContext(ctx)

	if a.liveHTTP != nil {
		group.Go(func() error {
			if err := a.liveHTTP.Start(ctx); err != nil {
				return fmt.Errorf("live http server: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		poller := scheduler.NewPoller(ctx, pollInterval(a.cfg))
		poller.Start(a.source.MidPrice, a.engine.Offer)
		return nil
	})

	logger.Infof("live loop started: instrument=%s gateway=%s tz=%s",
		a.cfg.Engine.Instrument, a.cfg.Gateway.Mode, a.ref.Name())
	return group.Wait()
}

// RunBacktest fetches the configured bar range, replays it and writes the
// report.
func (a *App) RunBacktest(ctx context.Context) error {
	if a == nil || a.runner == nil {
		return fmt.Errorf("backtest not initialized")
	}
	defer a.close()

	src, err := a.backtestSource()
	if err != nil {
		return err
	}
	req, err := a.backtestRequest()
	if err != nil {
		return err
	}

	logger.Infof("fetching bars: source=%s symbol=%s %s .. %s",
		src.Name(), req.Symbol, req.Start.Format("2006-01-02"), req.End.Format("2006-01-02"))
	bars, err := src.Bars(ctx, req)
	if err != nil {
		return fmt.Errorf("fetch bars: %w", err)
	}

	stats, err := a.runner.Replay(ctx, bars)
	if err != nil {
		return err
	}

	path, err := backtest.WriteReport(a.cfg.Backtest.ReportDir, req.Symbol, bars, stats,
		a.recorder.ByType(events.TradeClose))
	if err != nil {
		return err
	}
	logger.Infof("report written: %s", path)
	return nil
}

func (a *App) backtestSource() (backtest.Source, error) {
	switch a.cfg.Backtest.Source {
	case "csv", "":
		return backtest.NewCSVSource(a.cfg.Backtest.CSVPath, a.cfg.App.Timezone)
	case "binance":
		return backtest.NewBinanceSource(""), nil
	default:
		return nil, fmt.Errorf("unknown backtest source %q", a.cfg.Backtest.Source)
	}
}

func (a *App) backtestRequest() (backtest.Request, error) {
	req := backtest.Request{
		Symbol:   a.cfg.Backtest.Symbol,
		Interval: a.cfg.Backtest.Interval,
	}
	if req.Symbol == "" {
		req.Symbol = a.cfg.Engine.Instrument
	}
	loc := a.ref.Location()
	if raw := a.cfg.Backtest.Start; raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return req, fmt.Errorf("parse backtest start %q: %w", raw, err)
		}
		req.Start = t
	}
	if raw := a.cfg.Backtest.End; raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return req, fmt.Errorf("parse backtest end %q: %w", raw, err)
		}
		req.End = t
	}
	return req, nil
}

func (a *App) close() {
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			logger.Warnf("close market source: %v", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger.Warnf("close journal: %v", err)
		}
	}
}
