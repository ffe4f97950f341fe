package domain

import (
	"context"
	"time"
)

// StateCache stores the latest derived MarketState per symbol so a detached
// presentation layer can poll without touching the ingestion path.
type StateCache interface {
	// SetState replaces the cached state for a symbol.
	SetState(ctx context.Context, state MarketState) error
	// GetState returns the cached state for a symbol, or ErrNotFound.
	GetState(ctx context.Context, symbol string) (MarketState, error)
}

// StreamMessage is one durable message read back from the signal bus.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// BusMessage is one pub/sub message delivered to a subscriber. Channel is the
// concrete source channel (e.g. "ch:signal:AAPL") even when the subscription
// used a pattern, so consumers can route per symbol.
type BusMessage struct {
	Channel string
	Payload []byte
}

// SignalBus fans derived records out to presentation consumers. Publishes are
// fire-and-forget pub/sub; stream appends are durable and capped.
type SignalBus interface {
	// PublishSignal broadcasts a generated signal on the symbol's channel.
	PublishSignal(ctx context.Context, sig Signal) error
	// PublishAlert broadcasts a hidden-order alert on the symbol's channel.
	PublishAlert(ctx context.Context, alert HiddenOrderAlert) error
	// Subscribe returns a channel of messages published on channel, which
	// may be a glob pattern. The returned channel closes when ctx is
	// cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan BusMessage, error)
	// StreamRead reads up to count durable messages after lastID.
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter throttles API requests per client key.
type RateLimiter interface {
	// Allow reports whether one more request for key fits inside the window.
	// An allowed request is counted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
