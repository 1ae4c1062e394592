package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
app:
  env: prod
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "Europe/London", cfg.App.Timezone)
	assert.Equal(t, 9.0, cfg.Engine.Tolerance)
	assert.Equal(t, 40.0, cfg.Engine.StopDistance)
	assert.Equal(t, 179.0, cfg.Sweep.CancelLevel)
	assert.Equal(t, 30000.0, cfg.Sizing.EquityFactor)
	assert.Equal(t, 16, cfg.Exits.NearPeakTimeoutMin)
	assert.Equal(t, 31, cfg.Exits.FarPeakTimeoutMin)
	assert.Equal(t, "paper", cfg.Gateway.Mode)

	require.Len(t, cfg.Sessions, 2)
	assert.Equal(t, "morning", cfg.Sessions[0].Name)
	assert.Equal(t, "08:00", cfg.Sessions[0].Open)
	assert.Equal(t, "17:16", cfg.Sessions[1].Close)

	require.Len(t, cfg.Volatility.Checkpoints, 2)
	assert.Equal(t, 200.0, cfg.Volatility.Checkpoints[0].MaxRange)
	assert.Equal(t, "12:00", cfg.Volatility.Checkpoints[1].Capture)
}

func TestLoadExplicitValuesWin(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
engine:
  tolerance: 12.5
sweep:
  cancel_level: 150
sessions:
  - {name: single, open: "09:00", close: "11:00"}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12.5, cfg.Engine.Tolerance)
	assert.Equal(t, 150.0, cfg.Sweep.CancelLevel)
	require.Len(t, cfg.Sessions, 1)
	assert.Equal(t, "single", cfg.Sessions[0].Name)
	// No stock checkpoint references a session that is not configured.
	assert.Empty(t, cfg.Volatility.Checkpoints)
}

func TestLoadDefaultCheckpointsFollowSessions(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
sessions:
  - {name: morning, open: "08:00", close: "12:30"}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Volatility.Checkpoints, 1)
	assert.Equal(t, "overnight", cfg.Volatility.Checkpoints[0].Name)
	assert.Equal(t, "morning", cfg.Volatility.Checkpoints[0].Session)
}

func TestLoadIncludeMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "base.yaml", `
app:
  log_level: debug
`)
	path := writeConfigFile(t, dir, "config.yaml", `
include:
  - base.yaml
app:
  env: prod
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "a.yaml", `
include:
  - b.yaml
`)
	writeConfigFile(t, dir, "b.yaml", `
include:
  - a.yaml
`)
	_, err := Load(filepath.Join(dir, "a.yaml"))
	assert.ErrorContains(t, err, "include cycle")
}

func TestLoadValidation(t *testing.T) {
	dir := t.TempDir()

	t.Run("overlapping sessions", func(t *testing.T) {
		path := writeConfigFile(t, dir, "overlap.yaml", `
sessions:
  - {name: a, open: "08:00", close: "12:30"}
  - {name: b, open: "12:00", close: "17:00"}
`)
		_, err := Load(path)
		assert.ErrorContains(t, err, "overlaps")
	})

	t.Run("session closes before open", func(t *testing.T) {
		path := writeConfigFile(t, dir, "inverted.yaml", `
sessions:
  - {name: a, open: "12:30", close: "08:00"}
`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("checkpoint with unknown session", func(t *testing.T) {
		path := writeConfigFile(t, dir, "cp.yaml", `
volatility:
  checkpoints:
    - {name: x, capture: "12:00", evaluate: "14:30", max_range: 150, session: missing}
`)
		_, err := Load(path)
		assert.ErrorContains(t, err, "unknown session")
	})

	t.Run("ig mode requires credentials", func(t *testing.T) {
		path := writeConfigFile(t, dir, "ig.yaml", `
gateway:
  mode: ig
  ig:
    api_url: https://demo-api.example.com
`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("bad gateway mode", func(t *testing.T) {
		path := writeConfigFile(t, dir, "mode.yaml", `
gateway:
  mode: telepathy
`)
		_, err := Load(path)
		assert.ErrorContains(t, err, "gateway.mode")
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := Load("")
		assert.Error(t, err)
	})
}
