package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies L2A_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known L2A_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Symbols ──
	setStringSlice(&cfg.Symbols, "L2A_SYMBOLS")

	// ── Analysis ──
	setInt(&cfg.Analysis.DepthLevels, "L2A_ANALYSIS_DEPTH_LEVELS")
	setBool(&cfg.Analysis.ExtendedHoursEnabled, "L2A_ANALYSIS_EXTENDED_HOURS_ENABLED")
	setBool(&cfg.Analysis.HiddenOrderDetectionEnabled, "L2A_ANALYSIS_HIDDEN_ORDER_DETECTION_ENABLED")
	setInt(&cfg.Analysis.LookbackSeconds, "L2A_ANALYSIS_LOOKBACK_SECONDS")
	setStr(&cfg.Analysis.Sensitivity, "L2A_ANALYSIS_SENSITIVITY")
	setFloat64(&cfg.Analysis.StrongImbalance, "L2A_ANALYSIS_STRONG_IMBALANCE")
	setFloat64(&cfg.Analysis.ModerateImbalance, "L2A_ANALYSIS_MODERATE_IMBALANCE")
	setFloat64(&cfg.Analysis.SpreadThresholdBps, "L2A_ANALYSIS_SPREAD_THRESHOLD_BPS")
	setFloat64(&cfg.Analysis.MinConfidence, "L2A_ANALYSIS_MIN_CONFIDENCE")
	setBool(&cfg.Analysis.SmartAggregated, "L2A_ANALYSIS_SMART_AGGREGATED")

	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "L2A_FEED_WS_URL")
	setStr(&cfg.Feed.Exchange, "L2A_FEED_EXCHANGE")
	setInt(&cfg.Feed.EventBuf, "L2A_FEED_EVENT_BUFFER")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "L2A_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "L2A_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "L2A_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "L2A_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "L2A_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "L2A_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "L2A_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLSeconds, "L2A_REDIS_CACHE_TTL_SECONDS")
	setInt(&cfg.Redis.StreamMaxLen, "L2A_REDIS_STREAM_MAX_LEN")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "L2A_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "L2A_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "L2A_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "L2A_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMin, "L2A_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "L2A_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "L2A_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "L2A_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "L2A_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinConfidence, "L2A_NOTIFY_MIN_CONFIDENCE")

	// ── Top-level ──
	setStr(&cfg.Mode, "L2A_MODE")
	setStr(&cfg.LogLevel, "L2A_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
