package app

import (
	"context"
	"log/slog"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/notify"
)

// cacheSink mirrors every published MarketState into the Redis state cache so
// server-mode processes can serve it without touching the ingestion path.
type cacheSink struct {
	cache  domain.StateCache
	logger *slog.Logger
}

func (s *cacheSink) OnState(ctx context.Context, state *domain.MarketState) {
	if err := s.cache.SetState(ctx, *state); err != nil {
		s.logger.WarnContext(ctx, "failed to cache state",
			slog.String("symbol", state.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

func (s *cacheSink) OnSignal(ctx context.Context, sig domain.Signal)            {}
func (s *cacheSink) OnAlert(ctx context.Context, alert domain.HiddenOrderAlert) {}

// busSink publishes signal direction changes and newly raised alerts on the
// Redis signal bus for WebSocket clients and durable history replay.
type busSink struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

func (s *busSink) OnState(ctx context.Context, state *domain.MarketState) {}

func (s *busSink) OnSignal(ctx context.Context, sig domain.Signal) {
	if err := s.bus.PublishSignal(ctx, sig); err != nil {
		s.logger.WarnContext(ctx, "failed to publish signal",
			slog.String("symbol", sig.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

func (s *busSink) OnAlert(ctx context.Context, alert domain.HiddenOrderAlert) {
	if err := s.bus.PublishAlert(ctx, alert); err != nil {
		s.logger.WarnContext(ctx, "failed to publish alert",
			slog.String("symbol", alert.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

// notifySink pushes high-conviction signals and strong hidden-order alerts to
// the configured notification channels. Weak events stay out of Telegram.
type notifySink struct {
	notifier      *notify.Notifier
	minConfidence float64
	logger        *slog.Logger
}

func (s *notifySink) OnState(ctx context.Context, state *domain.MarketState) {}

func (s *notifySink) OnSignal(ctx context.Context, sig domain.Signal) {
	if sig.Direction == domain.DirectionNeutral || sig.Confidence < s.minConfidence {
		return
	}
	title, message := notify.FormatSignal(sig)
	if err := s.notifier.Notify(ctx, notify.EventSignal, title, message); err != nil {
		s.logger.WarnContext(ctx, "failed to send signal notification",
			slog.String("symbol", sig.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

func (s *notifySink) OnAlert(ctx context.Context, alert domain.HiddenOrderAlert) {
	if alert.Strength != domain.StrengthHigh {
		return
	}
	title, message := notify.FormatAlert(alert)
	if err := s.notifier.Notify(ctx, notify.EventHiddenOrder, title, message); err != nil {
		s.logger.WarnContext(ctx, "failed to send alert notification",
			slog.String("symbol", alert.Symbol),
			slog.String("error", err.Error()),
		)
	}
}
