package config

import "strings"

// Config is the top-level configuration for the engine.
type Config struct {
	App        AppConfig        `toml:"app"`
	Engine     EngineConfig     `toml:"engine"`
	Sessions   []SessionConfig  `toml:"sessions"`
	Volatility VolatilityConfig `toml:"volatility"`
	Sweep      SweepConfig      `toml:"sweep"`
	Sizing     SizingConfig     `toml:"sizing"`
	Exits      ExitConfig       `toml:"exits"`
	Gateway    GatewayConfig    `toml:"gateway"`
	Market     MarketConfig     `toml:"market"`
	Store      StoreConfig      `toml:"store"`
	Backtest   BacktestConfig   `toml:"backtest"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	Timezone string `toml:"timezone"`
}

// EngineConfig holds the instrument and the zone evaluation knobs.
type EngineConfig struct {
	Instrument    string  `toml:"instrument"`
	RulesPath     string  `toml:"rules_path"`
	Tolerance     float64 `toml:"tolerance"`
	PointValue    float64 `toml:"point_value"`
	StopDistance  float64 `toml:"stop_distance"`
	MaxPlaceTries int     `toml:"max_place_tries"`
}

// SessionConfig describes one trading session window in local market time.
type SessionConfig struct {
	Name  string `toml:"name"`
	Open  string `toml:"open"`
	Close string `toml:"close"`
}

// VolatilityCheckpoint pairs a capture time with the evaluation time where
// the accumulated range is compared against the limit.
type VolatilityCheckpoint struct {
	Name     string  `toml:"name"`
	Capture  string  `toml:"capture"`
	Evaluate string  `toml:"evaluate"`
	MaxRange float64 `toml:"max_range"`
	Session  string  `toml:"session"`
}

type VolatilityConfig struct {
	Checkpoints []VolatilityCheckpoint `toml:"checkpoints"`
}

// SweepConfig controls the runaway-move guard. With Aggregate set, one
// session sweeping closes every open trade, not just its own.
type SweepConfig struct {
	CancelLevel float64 `toml:"cancel_level"`
	Aggregate   bool    `toml:"aggregate"`
}

// SizingConfig maps account equity to deal size.
type SizingConfig struct {
	EquityFactor float64 `toml:"equity_factor"`
	MinSize      float64 `toml:"min_size"`
	SizeStep     float64 `toml:"size_step"`
}

// ExitConfig holds the open-position management thresholds, all in points
// except the timeouts.
type ExitConfig struct {
	BreakevenAdverse   float64 `toml:"breakeven_adverse"`
	BreakevenBand      float64 `toml:"breakeven_band"`
	NearPeakTimeoutMin int     `toml:"near_peak_timeout_min"`
	FarPeakTimeoutMin  int     `toml:"far_peak_timeout_min"`
	FarDistanceFrom    float64 `toml:"far_distance_from"`
	ForceCloseAtDayEnd bool    `toml:"force_close_at_day_end"`
}

// GatewayConfig selects and configures the dealing backend.
type GatewayConfig struct {
	Mode  string      `toml:"mode"` // "paper" | "ig"
	IG    IGConfig    `toml:"ig"`
	Paper PaperConfig `toml:"paper"`
}

type IGConfig struct {
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	Identifier     string `toml:"identifier"`
	Password       string `toml:"password"`
	AccountID      string `toml:"account_id"`
	Epic           string `toml:"epic"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Demo           bool   `toml:"demo"`
}

type PaperConfig struct {
	Equity float64 `toml:"equity"`
}

type MarketConfig struct {
	StreamURL      string `toml:"stream_url"`
	Symbol         string `toml:"symbol"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	StaleAfterSec  int    `toml:"stale_after_sec"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// BacktestConfig configures offline replay.
type BacktestConfig struct {
	Source    string  `toml:"source"` // "csv" | "binance"
	CSVPath   string  `toml:"csv_path"`
	Symbol    string  `toml:"symbol"`
	Interval  string  `toml:"interval"`
	Start     string  `toml:"start"`
	End       string  `toml:"end"`
	Equity    float64 `toml:"equity"`
	ReportDir string  `toml:"report_dir"`
}

// keySet tracks which config keys were explicitly set in the file.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
