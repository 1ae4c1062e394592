package config

import (
	"fmt"
	"strings"

	"zonebreak/internal/clock"
)

// validate runs the fail-fast checks after defaults are in place.
func validate(c *Config) error {
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := validateSessions(c.Sessions); err != nil {
		return err
	}
	if err := c.Volatility.validate(c.Sessions); err != nil {
		return err
	}
	if err := c.Sweep.validate(); err != nil {
		return err
	}
	if err := c.Sizing.validate(); err != nil {
		return err
	}
	if err := c.Exits.validate(); err != nil {
		return err
	}
	if err := c.Gateway.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if strings.TrimSpace(e.Instrument) == "" {
		return fmt.Errorf("engine.instrument cannot be empty")
	}
	if e.Tolerance <= 0 {
		return fmt.Errorf("engine.tolerance must be > 0")
	}
	if e.StopDistance <= 0 {
		return fmt.Errorf("engine.stop_distance must be > 0")
	}
	return nil
}

func validateSessions(sessions []SessionConfig) error {
	if len(sessions) == 0 {
		return fmt.Errorf("sessions requires at least one session")
	}
	seen := make(map[string]bool, len(sessions))
	var prevClose clock.TimeOfDay
	for i, s := range sessions {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("sessions[%d] missing name", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate session name %q", name)
		}
		seen[name] = true
		open, err := clock.ParseTimeOfDay(s.Open)
		if err != nil {
			return fmt.Errorf("session %s open: %w", name, err)
		}
		cls, err := clock.ParseTimeOfDay(s.Close)
		if err != nil {
			return fmt.Errorf("session %s close: %w", name, err)
		}
		if cls.Minutes() <= open.Minutes() {
			return fmt.Errorf("session %s must close after it opens", name)
		}
		if i > 0 && open.Minutes() < prevClose.Minutes() {
			return fmt.Errorf("session %s overlaps the previous session", name)
		}
		prevClose = cls
	}
	return nil
}

func (v *VolatilityConfig) validate(sessions []SessionConfig) error {
	names := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		names[strings.TrimSpace(s.Name)] = true
	}
	for i, cp := range v.Checkpoints {
		if strings.TrimSpace(cp.Name) == "" {
			return fmt.Errorf("volatility.checkpoints[%d] missing name", i)
		}
		if _, err := clock.ParseTimeOfDay(cp.Capture); err != nil {
			return fmt.Errorf("checkpoint %s capture: %w", cp.Name, err)
		}
		if _, err := clock.ParseTimeOfDay(cp.Evaluate); err != nil {
			return fmt.Errorf("checkpoint %s evaluate: %w", cp.Name, err)
		}
		if cp.MaxRange <= 0 {
			return fmt.Errorf("checkpoint %s max_range must be > 0", cp.Name)
		}
		if session := strings.TrimSpace(cp.Session); session != "" && !names[session] {
			return fmt.Errorf("checkpoint %s references unknown session %q", cp.Name, session)
		}
	}
	return nil
}

func (s *SweepConfig) validate() error {
	if s.CancelLevel <= 0 {
		return fmt.Errorf("sweep.cancel_level must be > 0")
	}
	return nil
}

func (s *SizingConfig) validate() error {
	if s.EquityFactor <= 0 {
		return fmt.Errorf("sizing.equity_factor must be > 0")
	}
	if s.MinSize <= 0 {
		return fmt.Errorf("sizing.min_size must be > 0")
	}
	if s.SizeStep <= 0 {
		return fmt.Errorf("sizing.size_step must be > 0")
	}
	return nil
}

func (e *ExitConfig) validate() error {
	if e.NearPeakTimeoutMin <= 0 || e.FarPeakTimeoutMin <= 0 {
		return fmt.Errorf("exits peak timeouts must be > 0")
	}
	if e.FarPeakTimeoutMin < e.NearPeakTimeoutMin {
		return fmt.Errorf("exits.far_peak_timeout_min must be >= near_peak_timeout_min")
	}
	return nil
}

func (g *GatewayConfig) validate() error {
	switch g.Mode {
	case "paper":
		if g.Paper.Equity <= 0 {
			return fmt.Errorf("gateway.paper.equity must be > 0")
		}
	case "ig":
		// api_url is optional: the demo flag selects a stock endpoint.
		if strings.TrimSpace(g.IG.APIKey) == "" {
			return fmt.Errorf("gateway.ig.api_key cannot be empty")
		}
		if strings.TrimSpace(g.IG.Identifier) == "" || strings.TrimSpace(g.IG.Password) == "" {
			return fmt.Errorf("gateway.ig requires identifier and password")
		}
		if strings.TrimSpace(g.IG.Epic) == "" {
			return fmt.Errorf("gateway.ig.epic cannot be empty")
		}
	default:
		return fmt.Errorf("gateway.mode only supports 'paper' or 'ig', got %s", g.Mode)
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	switch b.Source {
	case "csv", "binance":
	default:
		return fmt.Errorf("backtest.source only supports 'csv' or 'binance', got %s", b.Source)
	}
	return nil
}
