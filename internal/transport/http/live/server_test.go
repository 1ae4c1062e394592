package livehttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zonebreak/internal/clock"
	"zonebreak/internal/config"
	"zonebreak/internal/engine"
	"zonebreak/internal/gateway/paper"
	"zonebreak/internal/metrics"
	"zonebreak/internal/rules"
	"zonebreak/internal/session"
	"zonebreak/internal/trader"
	"zonebreak/internal/zone"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	cfg := &config.Config{
		Engine: config.EngineConfig{Instrument: "GER40", Tolerance: 9, StopDistance: 40, MaxPlaceTries: 1},
		Sessions: []config.SessionConfig{
			{Name: "morning", Open: "08:00", Close: "12:30"},
		},
		Sweep:  config.SweepConfig{CancelLevel: 179},
		Sizing: config.SizingConfig{EquityFactor: 30000, MinSize: 0.1, SizeStep: 0.01},
		Exits: config.ExitConfig{
			BreakevenAdverse: 15, BreakevenBand: 1,
			NearPeakTimeoutMin: 16, FarPeakTimeoutMin: 31, FarDistanceFrom: 70,
		},
	}
	ref, err := clock.NewReference("UTC")
	require.NoError(t, err)
	tracker, err := session.NewTracker(cfg.Sessions, nil)
	require.NoError(t, err)
	gate, err := session.NewGate(cfg.Volatility, nil)
	require.NoError(t, err)
	pg := paper.New(30000, 1, func() float64 { return 18000 })
	eng := engine.New(cfg, engine.Deps{
		Ref:     ref,
		Tracker: tracker,
		Gate:    gate,
		Sweep:   session.NewSweepMonitor(cfg.Sweep.CancelLevel, nil),
		Eval:    zone.NewEvaluator(rules.Defaults(), cfg.Engine.Tolerance),
		Trades:  trader.NewManager(pg, pg, nil, cfg),
	})

	srv, err := NewServer(ServerConfig{Engine: eng, Metrics: metrics.New()})
	require.NoError(t, err)
	return srv, eng
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusReflectsEngineState(t *testing.T) {
	srv, eng := newTestServer(t)
	eng.OnTick(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), 18000)

	rec := get(t, srv, "/api/live/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var st engine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "2024-03-05", st.Day)
	assert.Equal(t, 18000.0, st.LastPrice)
	require.Len(t, st.Sessions, 1)
	assert.True(t, st.Sessions[0].Active)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, eng := newTestServer(t)
	eng.OnTick(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), 18000)

	rec := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zonebreak_mid_price")
}

func TestServerRequiresEngine(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}
