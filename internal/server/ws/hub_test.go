package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

// fakeBus fans published messages out to pattern subscriptions the way the
// Redis bus does, tagging each delivery with the concrete source channel.
type fakeBus struct {
	mu   sync.Mutex
	subs map[string]chan domain.BusMessage
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string]chan domain.BusMessage)}
}

func (b *fakeBus) PublishSignal(ctx context.Context, sig domain.Signal) error { return nil }

func (b *fakeBus) PublishAlert(ctx context.Context, alert domain.HiddenOrderAlert) error {
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan domain.BusMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.BusMessage, 16)
	b.subs[channel] = ch
	return ch, nil
}

func (b *fakeBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) publish(channel string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for pattern, ch := range b.subs {
		prefix, wild := strings.CutSuffix(pattern, "*")
		if (wild && strings.HasPrefix(channel, prefix)) || pattern == channel {
			select {
			case ch <- domain.BusMessage{Channel: channel, Payload: payload}:
			default:
			}
		}
	}
}

func (b *fakeBus) subscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) (map[string]json.RawMessage, error) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &envelope))
	return envelope, nil
}

func TestHubDeliversToSingleSymbolSubscriber(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	bus := newFakeBus()
	hub := NewHub(bus, logger, Config{Mode: "full", Symbols: []string{"AAPL"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	require.Eventually(t, func() bool {
		return bus.subscriptionCount() == len(defaultChannels)
	}, time.Second, 5*time.Millisecond)

	conn := dialHub(t, hub)

	// First frame is the analyzer status envelope.
	envelope, err := readEnvelope(t, conn, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `"analyzer_status"`, string(envelope["type"]))

	// Narrow the subscription from the wildcard defaults to one symbol.
	require.NoError(t, conn.WriteJSON(subscribeMsg{
		Action:   "unsubscribe",
		Channels: []string{"ch:signal:*", "ch:alert:*"},
	}))
	require.NoError(t, conn.WriteJSON(subscribeMsg{
		Action:   "subscribe",
		Channels: []string{"ch:signal:AAPL"},
	}))

	payload := []byte(`{"symbol":"AAPL","direction":"BUY"}`)
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bus.publish("ch:signal:AAPL", payload)
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err, "single-symbol subscriber should receive its channel's messages")
	assert.JSONEq(t, string(payload), string(data))
}

func TestHubFiltersOtherSymbols(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	bus := newFakeBus()
	hub := NewHub(bus, logger, Config{Mode: "full", Symbols: []string{"AAPL", "MSFT"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	require.Eventually(t, func() bool {
		return bus.subscriptionCount() == len(defaultChannels)
	}, time.Second, 5*time.Millisecond)

	conn := dialHub(t, hub)
	_, err := readEnvelope(t, conn, time.Second)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(subscribeMsg{
		Action:   "unsubscribe",
		Channels: []string{"ch:signal:*", "ch:alert:*"},
	}))
	require.NoError(t, conn.WriteJSON(subscribeMsg{
		Action:   "subscribe",
		Channels: []string{"ch:signal:MSFT"},
	}))
	// Give the read pump a moment to apply the narrowed subscription.
	time.Sleep(100 * time.Millisecond)

	aapl := []byte(`{"symbol":"AAPL"}`)
	msft := []byte(`{"symbol":"MSFT"}`)
	bus.publish("ch:signal:AAPL", aapl)
	bus.publish("ch:signal:AAPL", aapl)
	bus.publish("ch:signal:MSFT", msft)

	// Per-client delivery is ordered, so the first frame after narrowing must
	// be the MSFT signal; any AAPL frame would arrive before it.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, string(msft), string(data))
}
