package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryError(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.LogLevel = "loud"
	cfg.Analysis.DepthLevels = 25
	cfg.Analysis.Sensitivity = "extreme"
	cfg.Analysis.MinConfidence = 150

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "unknown mode")
	assert.Contains(t, msg, "unknown log_level")
	assert.Contains(t, msg, "depth_levels")
	assert.Contains(t, msg, "sensitivity")
	assert.Contains(t, msg, "min_confidence")
}

func TestValidateImbalanceOrdering(t *testing.T) {
	cfg := Defaults()
	cfg.Analysis.StrongImbalance = 0.10
	cfg.Analysis.ModerateImbalance = 0.20

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strong_imbalance must exceed moderate_imbalance")
}

func TestValidateModeRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.Feed.WsURL = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws_url")

	cfg = Defaults()
	cfg.Mode = "server"
	cfg.Redis.Enabled = false
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
symbols = ["MSFT", "NVDA"]
mode = "monitor"

[analysis]
depth_levels = 15
sensitivity = "high"

[redis]
enabled = false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"MSFT", "NVDA"}, cfg.Symbols)
	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 15, cfg.Analysis.DepthLevels)
	assert.Equal(t, "high", cfg.Analysis.Sensitivity)
	assert.False(t, cfg.Redis.Enabled)
	// Untouched fields keep their defaults.
	assert.Equal(t, 60, cfg.Analysis.LookbackSeconds)
	assert.InDelta(t, 0.30, cfg.Analysis.StrongImbalance, 1e-12)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "full"`), 0o644))

	t.Setenv("L2A_SYMBOLS", "TSLA, AMD")
	t.Setenv("L2A_ANALYSIS_SENSITIVITY", "low")
	t.Setenv("L2A_ANALYSIS_STRONG_IMBALANCE", "0.45")
	t.Setenv("L2A_REDIS_PASSWORD", "hunter2")
	t.Setenv("L2A_SERVER_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"TSLA", "AMD"}, cfg.Symbols)
	assert.Equal(t, "low", cfg.Analysis.Sensitivity)
	assert.InDelta(t, 0.45, cfg.Analysis.StrongImbalance, 1e-12)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
