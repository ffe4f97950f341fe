package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

// Channel and stream names. Per-symbol channels let a consumer subscribe to
// one instrument ("ch:signal:AAPL") or everything ("ch:signal:*").
const (
	SignalChannelPrefix = "ch:signal:"
	AlertChannelPrefix  = "ch:alert:"
	SignalStream        = "stream:signals"
	AlertStream         = "stream:alerts"
)

// SignalBus implements domain.SignalBus using Redis Pub/Sub for ephemeral
// fan-out and Redis Streams for durable, ordered delivery.
type SignalBus struct {
	rdb          *redis.Client
	streamMaxLen int64
}

// NewSignalBus creates a SignalBus backed by the given Client. streamMaxLen
// caps the durable streams via XADD MAXLEN ~.
func NewSignalBus(c *Client, streamMaxLen int) *SignalBus {
	if streamMaxLen <= 0 {
		streamMaxLen = 10000
	}
	return &SignalBus{rdb: c.Underlying(), streamMaxLen: int64(streamMaxLen)}
}

// PublishSignal broadcasts a signal on its symbol's channel and appends it to
// the durable signal stream.
func (sb *SignalBus) PublishSignal(ctx context.Context, sig domain.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis: marshal signal %s: %w", sig.Symbol, err)
	}
	if err := sb.publish(ctx, SignalChannelPrefix+sig.Symbol, payload); err != nil {
		return err
	}
	return sb.streamAppend(ctx, SignalStream, payload)
}

// PublishAlert broadcasts a hidden-order alert on its symbol's channel and
// appends it to the durable alert stream.
func (sb *SignalBus) PublishAlert(ctx context.Context, alert domain.HiddenOrderAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("redis: marshal alert %s: %w", alert.Symbol, err)
	}
	if err := sb.publish(ctx, AlertChannelPrefix+alert.Symbol, payload); err != nil {
		return err
	}
	return sb.streamAppend(ctx, AlertStream, payload)
}

func (sb *SignalBus) publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel of messages, each tagged with the concrete channel it arrived on so
// pattern subscribers can still route per symbol. The subscription is closed
// when the context is cancelled; the returned channel is closed at that point
// as well.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan domain.BusMessage, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan domain.BusMessage, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- domain.BusMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the Redis channel includes glob-style
// wildcards, in which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// streamAppend appends a payload to a Redis stream using XADD with an
// approximate MAXLEN for automatic trimming.
func (sb *SignalBus) streamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: sb.streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead reads up to count messages from a Redis stream starting after
// lastID. Use "0" or "0-0" as lastID to read from the beginning, or "$" to
// read only new messages. It returns an empty slice (not an error) when no
// messages are available.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1, // non-blocking; an empty stream returns redis.Nil
	}

	results, err := sb.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			payload, ok := msg.Values["payload"]
			if !ok {
				continue
			}

			var data []byte
			switch v := payload.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}

			messages = append(messages, domain.StreamMessage{
				ID:      msg.ID,
				Payload: data,
			})
		}
	}

	return messages, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
