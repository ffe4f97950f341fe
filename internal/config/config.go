// Package config defines the top-level configuration for the Level 2 analyzer
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by L2A_* environment variables.
type Config struct {
	Symbols  []string       `toml:"symbols"`
	Analysis AnalysisConfig `toml:"analysis"`
	Feed     FeedConfig     `toml:"feed"`
	Redis    RedisConfig    `toml:"redis"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// AnalysisConfig holds every threshold consumed by the core components. The
// values are injected at construction time; nothing in the core reads global
// mutable state.
type AnalysisConfig struct {
	DepthLevels                 int     `toml:"depth_levels"` // 1..20
	ExtendedHoursEnabled        bool    `toml:"extended_hours_enabled"`
	HiddenOrderDetectionEnabled bool    `toml:"hidden_order_detection_enabled"`
	LookbackSeconds             int     `toml:"lookback_seconds"`
	Sensitivity                 string  `toml:"sensitivity"` // low | medium | high
	StrongImbalance             float64 `toml:"strong_imbalance"`
	ModerateImbalance           float64 `toml:"moderate_imbalance"`
	SpreadThresholdBps          float64 `toml:"spread_threshold_bps"`
	MinConfidence               float64 `toml:"min_confidence"` // 0..100
	SmartAggregated             bool    `toml:"smart_aggregated"`
	LevelTolerance              float64 `toml:"level_tolerance"`  // fractional band for S/R touches
	MinLevelStrength            float64 `toml:"min_level_strength"`
	MaxTrackedLevels            int     `toml:"max_tracked_levels"`
}

// FeedConfig holds the market-data bridge connection parameters.
type FeedConfig struct {
	WsURL     string `toml:"ws_url"`
	Exchange  string `toml:"exchange"`
	EventBuf  int    `toml:"event_buffer"`
}

// RedisConfig holds Redis connection parameters for the state cache and
// signal bus.
type RedisConfig struct {
	Enabled         bool   `toml:"enabled"`
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
	StreamMaxLen    int    `toml:"stream_max_len"`
}

// ServerConfig holds HTTP server parameters for the polling API.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`            // empty disables auth
	RateLimitPerMin int      `toml:"rate_limit_per_min"` // 0 disables rate limiting
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	MinConfidence     float64  `toml:"min_confidence"` // only signals at/above this are sent
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Symbols: []string{"AAPL"},
		Analysis: AnalysisConfig{
			DepthLevels:                 10,
			ExtendedHoursEnabled:        true,
			HiddenOrderDetectionEnabled: true,
			LookbackSeconds:             60,
			Sensitivity:                 "medium",
			StrongImbalance:             0.30,
			ModerateImbalance:           0.15,
			SpreadThresholdBps:          50.0,
			MinConfidence:               25.0,
			SmartAggregated:             true,
			LevelTolerance:              0.005,
			MinLevelStrength:            1.0,
			MaxTrackedLevels:            12,
		},
		Feed: FeedConfig{
			WsURL:    "ws://localhost:9300/depth",
			Exchange: "SMART",
			EventBuf: 1024,
		},
		Redis: RedisConfig{
			Enabled:         true,
			Addr:            "localhost:6379",
			DB:              0,
			PoolSize:        20,
			MaxRetries:      3,
			TLSEnabled:      false,
			CacheTTLSeconds: 300,
			StreamMaxLen:    10000,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 600,
		},
		Notify: NotifyConfig{
			Events:        []string{"signal", "hidden_order"},
			MinConfidence: 70.0,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":    true,
	"monitor": true,
	"server":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSensitivities enumerates the accepted detector sensitivities.
var validSensitivities = map[string]bool{
	"low":    true,
	"medium": true,
	"high":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. Out-of-range thresholds are
// hard errors, never clamped.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, monitor, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(c.Symbols) == 0 && c.Mode != "server" {
		errs = append(errs, "symbols: at least one symbol is required for mode "+c.Mode)
	}

	// Analysis thresholds.
	a := c.Analysis
	if a.DepthLevels < 1 || a.DepthLevels > 20 {
		errs = append(errs, fmt.Sprintf("analysis: depth_levels must be 1-20, got %d", a.DepthLevels))
	}
	if a.LookbackSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("analysis: lookback_seconds must be > 0, got %d", a.LookbackSeconds))
	}
	if !validSensitivities[strings.ToLower(a.Sensitivity)] {
		errs = append(errs, fmt.Sprintf("analysis: unknown sensitivity %q (valid: low, medium, high)", a.Sensitivity))
	}
	if a.ModerateImbalance <= 0 || a.ModerateImbalance >= 1 {
		errs = append(errs, fmt.Sprintf("analysis: moderate_imbalance must be in (0,1), got %g", a.ModerateImbalance))
	}
	if a.StrongImbalance <= 0 || a.StrongImbalance >= 1 {
		errs = append(errs, fmt.Sprintf("analysis: strong_imbalance must be in (0,1), got %g", a.StrongImbalance))
	}
	if a.StrongImbalance <= a.ModerateImbalance {
		errs = append(errs, "analysis: strong_imbalance must exceed moderate_imbalance")
	}
	if a.SpreadThresholdBps <= 0 {
		errs = append(errs, fmt.Sprintf("analysis: spread_threshold_bps must be > 0, got %g", a.SpreadThresholdBps))
	}
	if a.MinConfidence < 0 || a.MinConfidence > 100 {
		errs = append(errs, fmt.Sprintf("analysis: min_confidence must be 0-100, got %g", a.MinConfidence))
	}
	if a.LevelTolerance <= 0 || a.LevelTolerance >= 0.1 {
		errs = append(errs, fmt.Sprintf("analysis: level_tolerance must be in (0,0.1), got %g", a.LevelTolerance))
	}
	if a.MaxTrackedLevels < 1 {
		errs = append(errs, "analysis: max_tracked_levels must be >= 1")
	}

	// Feed — required for modes that ingest market data.
	if c.Mode == "full" || c.Mode == "monitor" {
		if c.Feed.WsURL == "" {
			errs = append(errs, "feed: ws_url must not be empty for mode "+c.Mode)
		}
		if c.Feed.EventBuf < 1 {
			errs = append(errs, "feed: event_buffer must be >= 1")
		}
	}

	// Redis.
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Mode == "server" && !c.Redis.Enabled {
		errs = append(errs, "redis: must be enabled for server mode (state is served from the cache)")
	}

	// Server.
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify.
	if c.Notify.MinConfidence < 0 || c.Notify.MinConfidence > 100 {
		errs = append(errs, fmt.Sprintf("notify: min_confidence must be 0-100, got %g", c.Notify.MinConfidence))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
