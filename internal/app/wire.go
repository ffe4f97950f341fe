package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/cache/redis"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/config"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/notify"
)

// Dependencies bundles every external dependency the application modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
// Redis-backed fields are nil when Redis is disabled.
type Dependencies struct {
	StateCache  domain.StateCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	Notifier *notify.Notifier
}

// Wire constructs the concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (state cache, signal bus, rate limiter) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		cacheTTL := time.Duration(cfg.Redis.CacheTTLSeconds) * time.Second
		streamMaxLen := 10000
		if cfg.Redis.StreamMaxLen > 0 {
			streamMaxLen = cfg.Redis.StreamMaxLen
		}

		deps.StateCache = redis.NewStateCache(redisClient, cacheTTL)
		deps.SignalBus = redis.NewSignalBus(redisClient, streamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
