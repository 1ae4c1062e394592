package backtest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zonebreak/internal/clock"
	"zonebreak/internal/config"
	"zonebreak/internal/engine"
	"zonebreak/internal/events"
	"zonebreak/internal/gateway/paper"
	"zonebreak/internal/rules"
	"zonebreak/internal/session"
	"zonebreak/internal/trader"
	"zonebreak/internal/zone"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(rows, "\n")+"\n"), 0o644))
	return path
}

func TestCSVSourceParsesRows(t *testing.T) {
	path := writeCSV(t,
		"Date;Time;Open;High;Low;Close;Volume",
		"05/03/2024;08:01:00;18000.5;18010.0;17995.0;18005.5;120",
		"05/03/2024;08:02:00;18005.5;18012.0;18001.0;18008.0;95",
		"garbage line",
		"05/03/2024;08:03:00;nan;18012.0;18001.0;18008.0;95",
		"05/03/2024;08:04:00;18008.0;+inf;18001.0;18008.0;95",
	)
	src, err := NewCSVSource(path, "UTC")
	require.NoError(t, err)

	bars, err := src.Bars(context.Background(), Request{})
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, time.Date(2024, 3, 5, 8, 1, 0, 0, time.UTC), bars[0].At)
	assert.Equal(t, 18000.5, bars[0].Open)
	assert.Equal(t, 18010.0, bars[0].High)
	assert.Equal(t, 17995.0, bars[0].Low)
	assert.Equal(t, 18005.5, bars[0].Close)
}

func TestCSVSourceRangeFilter(t *testing.T) {
	path := writeCSV(t,
		"05/03/2024;08:01:00;1;1;1;1",
		"05/03/2024;09:00:00;2;2;2;2",
		"05/03/2024;10:00:00;3;3;3;3",
	)
	src, err := NewCSVSource(path, "UTC")
	require.NoError(t, err)

	bars, err := src.Bars(context.Background(), Request{
		Start: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 2.0, bars[0].Open)
}

func TestCSVSourceRejectsBadInputs(t *testing.T) {
	_, err := NewCSVSource("", "UTC")
	assert.Error(t, err)

	_, err = NewCSVSource("candles.csv", "Not/AZone")
	assert.Error(t, err)

	src, err := NewCSVSource(filepath.Join(t.TempDir(), "missing.csv"), "UTC")
	require.NoError(t, err)
	_, err = src.Bars(context.Background(), Request{})
	assert.Error(t, err)
}

func replayConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			Instrument:    "GER40",
			Tolerance:     9,
			PointValue:    1,
			StopDistance:  40,
			MaxPlaceTries: 5,
		},
		Sessions: []config.SessionConfig{
			{Name: "morning", Open: "08:00", Close: "12:30"},
		},
		Sweep:  config.SweepConfig{CancelLevel: 179},
		Sizing: config.SizingConfig{EquityFactor: 30000, MinSize: 0.1, SizeStep: 0.01},
		Exits: config.ExitConfig{
			BreakevenAdverse:   15,
			BreakevenBand:      1.0,
			NearPeakTimeoutMin: 16,
			FarPeakTimeoutMin:  31,
			FarDistanceFrom:    70,
			ForceCloseAtDayEnd: true,
		},
	}
}

func newReplayRunner(t *testing.T) (*Runner, *paper.Gateway) {
	t.Helper()
	cfg := replayConfig()
	rec := NewRecorder()
	quote := &Quote{}

	ref, err := clock.NewReference("UTC")
	require.NoError(t, err)
	tracker, err := session.NewTracker(cfg.Sessions, rec)
	require.NoError(t, err)
	gate, err := session.NewGate(cfg.Volatility, rec)
	require.NoError(t, err)

	pg := paper.New(30000, cfg.Engine.PointValue, quote.Get)
	mgr := trader.NewManager(pg, pg, rec, cfg)
	eng := engine.New(cfg, engine.Deps{
		Ref:     ref,
		Tracker: tracker,
		Gate:    gate,
		Sweep:   session.NewSweepMonitor(cfg.Sweep.CancelLevel, rec),
		Eval:    zone.NewEvaluator(rules.Defaults(), cfg.Engine.Tolerance),
		Trades:  mgr,
		Sink:    rec,
	})
	return &Runner{Engine: eng, Trades: mgr, Recorder: rec, Account: pg, Quote: quote}, pg
}

func bar(hhmm string, o, h, l, c float64) Bar {
	at, _ := time.Parse("2006-01-02 15:04", "2024-03-05 "+hhmm)
	return Bar{At: at.UTC(), Open: o, High: h, Low: l, Close: c}
}

func TestReplayOpensAndClosesTrade(t *testing.T) {
	runner, _ := newReplayRunner(t)

	// Session opens at 18000; the high of the second bar reaches the first
	// zone level and a SELL opens. Nothing exits it, so the replay flattens
	// the position at the end.
	bars := []Bar{
		bar("08:00", 18000, 18001, 17999, 18000),
		bar("08:30", 18030, 18045, 18020, 18040),
		bar("08:35", 18040, 18041, 18039, 18040),
	}
	stats, err := runner.Replay(context.Background(), bars)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Bars)
	assert.Equal(t, 6, stats.Ticks)
	assert.Equal(t, 1, stats.Trades)
	assert.Equal(t, 1, stats.ClosesByReason["backtest_end"])
	assert.Equal(t, 1, stats.OpensByLevel["45"])
	assert.Equal(t, 1, stats.OpensBySession["morning"])

	opens := runner.Recorder.ByType(events.TradeOpen)
	require.Len(t, opens, 1)
	assert.Equal(t, "SELL", opens[0].Fields["direction"])
	assert.Equal(t, 18045.0, opens[0].Fields["entry"])

	// SELL entered at 18045, flattened at 18040: +5 points.
	assert.InDelta(t, 5.0, stats.PointsTotal, 1e-9)
	assert.Equal(t, 1, stats.Wins)
	assert.InDelta(t, stats.StartEquity+5.0, stats.FinalEquity, 1e-9)
}

func TestReplayRejectsEmptyInput(t *testing.T) {
	runner, _ := newReplayRunner(t)
	_, err := runner.Replay(context.Background(), nil)
	assert.Error(t, err)
}

func TestWriteReportProducesHTML(t *testing.T) {
	runner, _ := newReplayRunner(t)
	bars := []Bar{
		bar("08:00", 18000, 18001, 17999, 18000),
		bar("08:30", 18030, 18045, 18020, 18040),
		bar("08:35", 18040, 18041, 18039, 18040),
	}
	stats, err := runner.Replay(context.Background(), bars)
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := WriteReport(dir, "GER40", bars, stats, runner.Recorder.ByType(events.TradeClose))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "GER40 replay")
}
