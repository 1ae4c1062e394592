package config

import (
	"fmt"
	"strings"
)

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9985"
	defaultAppLogPath  = "/data/logs/zonebreak-live.log"
	defaultAppTimezone = "Europe/London"

	defaultInstrument    = "GER40"
	defaultTolerance     = 9.0
	defaultPointValue    = 1.0
	defaultStopDistance  = 40.0
	defaultMaxPlaceTries = 5

	defaultSweepCancelLevel = 179.0

	defaultEquityFactor = 30000.0
	defaultMinSize      = 0.5
	defaultSizeStep     = 0.01

	defaultBreakevenAdverse = 15.0
	defaultBreakevenBand    = 1.0
	defaultNearPeakTimeout  = 16
	defaultFarPeakTimeout   = 31
	defaultFarDistanceFrom  = 70.0

	defaultGatewayMode    = "paper"
	defaultIGTimeout      = 15
	defaultPaperEquity    = 30000.0
	defaultPollIntervalMS = 250
	defaultStaleAfterSec  = 30

	defaultStorePath = "/data/db/zonebreak.db"

	defaultBacktestSource   = "csv"
	defaultBacktestInterval = "1m"
	defaultBacktestEquity   = 30000.0
	defaultBacktestReport   = "/data/backtest"
)

// applyDefaults fills every section that the file left unset.
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.applySessionDefaults(keys)
	c.Volatility.applyDefaults(keys, c.Sessions)
	c.Sweep.applyDefaults(keys)
	c.Sizing.applyDefaults(keys)
	c.Exits.applyDefaults(keys)
	c.Gateway.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.timezone", &a.Timezone, defaultAppTimezone),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("engine.instrument", &e.Instrument, defaultInstrument),
		fieldDefault{
			key:   "engine.tolerance",
			need:  func() bool { return e.Tolerance <= 0 },
			apply: func() { e.Tolerance = defaultTolerance },
		},
		fieldDefault{
			key:   "engine.point_value",
			need:  func() bool { return e.PointValue <= 0 },
			apply: func() { e.PointValue = defaultPointValue },
		},
		fieldDefault{
			key:   "engine.stop_distance",
			need:  func() bool { return e.StopDistance <= 0 },
			apply: func() { e.StopDistance = defaultStopDistance },
		},
		fieldDefault{
			key:   "engine.max_place_tries",
			need:  func() bool { return e.MaxPlaceTries <= 0 },
			apply: func() { e.MaxPlaceTries = defaultMaxPlaceTries },
		},
	)
}

// applySessionDefaults installs the two standard sessions when none are
// configured.
func (c *Config) applySessionDefaults(keys keySet) {
	if len(c.Sessions) > 0 {
		for i := range c.Sessions {
			s := &c.Sessions[i]
			if strings.TrimSpace(s.Name) == "" {
				s.Name = fmt.Sprintf("session_%d", i)
			}
		}
		return
	}
	c.Sessions = []SessionConfig{
		{Name: "morning", Open: "08:00", Close: "12:30"},
		{Name: "afternoon", Open: "14:30", Close: "17:16"},
	}
}

func (v *VolatilityConfig) applyDefaults(keys keySet, sessions []SessionConfig) {
	if v == nil {
		return
	}
	if len(v.Checkpoints) > 0 {
		return
	}
	// The stock checkpoints are tied to the stock session names. A config
	// with its own sessions gets only the checkpoints that still resolve;
	// anything else would fail validation.
	names := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		names[s.Name] = true
	}
	for _, cp := range []VolatilityCheckpoint{
		{Name: "overnight", Capture: "17:16", Evaluate: "08:00", MaxRange: 200, Session: "morning"},
		{Name: "midday", Capture: "12:00", Evaluate: "14:30", MaxRange: 150, Session: "afternoon"},
	} {
		if names[cp.Session] {
			v.Checkpoints = append(v.Checkpoints, cp)
		}
	}
}

func (s *SweepConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "sweep.cancel_level",
			need:  func() bool { return s.CancelLevel <= 0 },
			apply: func() { s.CancelLevel = defaultSweepCancelLevel },
		},
	)
}

func (s *SizingConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "sizing.equity_factor",
			need:  func() bool { return s.EquityFactor <= 0 },
			apply: func() { s.EquityFactor = defaultEquityFactor },
		},
		fieldDefault{
			key:   "sizing.min_size",
			need:  func() bool { return s.MinSize <= 0 },
			apply: func() { s.MinSize = defaultMinSize },
		},
		fieldDefault{
			key:   "sizing.size_step",
			need:  func() bool { return s.SizeStep <= 0 },
			apply: func() { s.SizeStep = defaultSizeStep },
		},
	)
}

func (e *ExitConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "exits.breakeven_adverse",
			need:  func() bool { return e.BreakevenAdverse <= 0 },
			apply: func() { e.BreakevenAdverse = defaultBreakevenAdverse },
		},
		fieldDefault{
			key:   "exits.breakeven_band",
			need:  func() bool { return e.BreakevenBand <= 0 },
			apply: func() { e.BreakevenBand = defaultBreakevenBand },
		},
		fieldDefault{
			key:   "exits.near_peak_timeout_min",
			need:  func() bool { return e.NearPeakTimeoutMin <= 0 },
			apply: func() { e.NearPeakTimeoutMin = defaultNearPeakTimeout },
		},
		fieldDefault{
			key:   "exits.far_peak_timeout_min",
			need:  func() bool { return e.FarPeakTimeoutMin <= 0 },
			apply: func() { e.FarPeakTimeoutMin = defaultFarPeakTimeout },
		},
		fieldDefault{
			key:   "exits.far_distance_from",
			need:  func() bool { return e.FarDistanceFrom <= 0 },
			apply: func() { e.FarDistanceFrom = defaultFarDistanceFrom },
		},
		boolFieldDefault("exits.force_close_at_day_end", &e.ForceCloseAtDayEnd, true),
	)
}

func (g *GatewayConfig) applyDefaults(keys keySet) {
	if g == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("gateway.mode", &g.Mode, defaultGatewayMode),
		fieldDefault{
			key:   "gateway.ig.timeout_seconds",
			need:  func() bool { return g.IG.TimeoutSeconds <= 0 },
			apply: func() { g.IG.TimeoutSeconds = defaultIGTimeout },
		},
		fieldDefault{
			key:   "gateway.paper.equity",
			need:  func() bool { return g.Paper.Equity <= 0 },
			apply: func() { g.Paper.Equity = defaultPaperEquity },
		},
	)
	g.Mode = strings.ToLower(strings.TrimSpace(g.Mode))
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "market.poll_interval_ms",
			need:  func() bool { return m.PollIntervalMS <= 0 },
			apply: func() { m.PollIntervalMS = defaultPollIntervalMS },
		},
		fieldDefault{
			key:   "market.stale_after_sec",
			need:  func() bool { return m.StaleAfterSec <= 0 },
			apply: func() { m.StaleAfterSec = defaultStaleAfterSec },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("backtest.source", &b.Source, defaultBacktestSource),
		stringFieldDefault("backtest.interval", &b.Interval, defaultBacktestInterval),
		stringFieldDefault("backtest.report_dir", &b.ReportDir, defaultBacktestReport),
		fieldDefault{
			key:   "backtest.equity",
			need:  func() bool { return b.Equity <= 0 },
			apply: func() { b.Equity = defaultBacktestEquity },
		},
	)
	b.Source = strings.ToLower(strings.TrimSpace(b.Source))
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
