package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/pipeline"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/platform/depthwire"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/signal"
)

var testBase = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

// fakeBridge captures the registered handlers so tests can inject events as
// if they arrived over the wire.
type fakeBridge struct {
	mu         sync.Mutex
	connectErr error
	subscribed []string
	onDepth    depthwire.DepthHandler
	onTrade    depthwire.TradeHandler
	onStatus   depthwire.StatusHandler
}

func (f *fakeBridge) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeBridge) Subscribe(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, symbols...)
	return nil
}

func (f *fakeBridge) Close() error { return nil }

func (f *fakeBridge) OnDepth(h depthwire.DepthHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDepth = h
}

func (f *fakeBridge) OnTrade(h depthwire.TradeHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTrade = h
}

func (f *fakeBridge) OnStatus(h depthwire.StatusHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onStatus = h
}

func testManagerConfig() pipeline.Config {
	return pipeline.Config{
		DepthLevels:          10,
		ExtendedHoursEnabled: true,
		Lookback:             60 * time.Second,
		Sensitivity:          "medium",
		LevelTolerance:       0.005,
		MinLevelStrength:     2,
		MaxTrackedLevels:     12,
		Signal: signal.Config{
			StrongImbalance:    0.30,
			ModerateImbalance:  0.15,
			SpreadThresholdBps: 50,
			MinConfidence:      25,
			LevelTolerance:     0.005,
		},
		EventBuf: 64,
	}
}

func TestBridgeFeedRoutesEventsIntoPipelines(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	manager := pipeline.NewManager([]string{"AAPL"}, testManagerConfig(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = manager.Run(ctx) }()

	fake := &fakeBridge{}
	f := NewBridgeFeed("ws://bridge", []string{"AAPL"}, manager, func(string) BridgeClient {
		return fake
	}, logger)
	go func() { _ = f.Run(ctx) }()

	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.subscribed) == 1 && fake.onDepth != nil
	}, time.Second, 5*time.Millisecond)

	fake.mu.Lock()
	assert.Equal(t, []string{"AAPL"}, fake.subscribed)
	onDepth := fake.onDepth
	fake.mu.Unlock()

	onDepth(domain.DepthEvent{
		Symbol:    "AAPL",
		Side:      domain.SideBid,
		Position:  0,
		Operation: domain.OpInsert,
		Price:     150.00,
		Size:      500,
		Timestamp: testBase,
	})

	require.Eventually(t, func() bool {
		state, err := manager.Latest("AAPL")
		return err == nil && len(state.Snapshot.Bids) == 1
	}, time.Second, 5*time.Millisecond)

	state, err := manager.Latest("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 150.00, state.Snapshot.Bids[0].Price)
}

func TestBridgeFeedBroadcastsGlobalStatus(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	manager := pipeline.NewManager([]string{"AAPL", "MSFT"}, testManagerConfig(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = manager.Run(ctx) }()

	fake := &fakeBridge{}
	f := NewBridgeFeed("ws://bridge", []string{"AAPL", "MSFT"}, manager, func(string) BridgeClient {
		return fake
	}, logger)
	go func() { _ = f.Run(ctx) }()

	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return fake.onStatus != nil
	}, time.Second, 5*time.Millisecond)

	// A status event without a symbol applies to every pipeline.
	fake.mu.Lock()
	onStatus := fake.onStatus
	fake.mu.Unlock()
	onStatus(domain.StatusEvent{State: domain.ConnConnected, Timestamp: testBase})

	require.Eventually(t, func() bool {
		for _, sym := range []string{"AAPL", "MSFT"} {
			state, err := manager.Latest(sym)
			if err != nil || state.Conn != domain.ConnConnected {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
}

func TestBridgeFeedDropsUnknownSymbols(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	manager := pipeline.NewManager([]string{"AAPL"}, testManagerConfig(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = manager.Run(ctx) }()

	fake := &fakeBridge{}
	f := NewBridgeFeed("ws://bridge", []string{"AAPL"}, manager, func(string) BridgeClient {
		return fake
	}, logger)
	go func() { _ = f.Run(ctx) }()

	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return fake.onDepth != nil
	}, time.Second, 5*time.Millisecond)

	fake.mu.Lock()
	onDepth := fake.onDepth
	fake.mu.Unlock()

	// Must not panic or block; the event is logged and dropped.
	onDepth(domain.DepthEvent{
		Symbol:    "TSLA",
		Side:      domain.SideBid,
		Operation: domain.OpInsert,
		Price:     250.00,
		Size:      100,
		Timestamp: testBase,
	})

	state, err := manager.Latest("AAPL")
	require.NoError(t, err)
	assert.Empty(t, state.Snapshot.Bids)
}

func TestBridgeFeedNoSymbolsExitsCleanly(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	manager := pipeline.NewManager(nil, testManagerConfig(), logger)

	f := NewBridgeFeed("ws://bridge", nil, manager, func(string) BridgeClient {
		t.Fatal("dial should not be called with no symbols")
		return nil
	}, logger)

	err := f.Run(context.Background())
	require.NoError(t, err)
}

func TestBridgeFeedReconnectsAfterConnectFailure(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	manager := pipeline.NewManager([]string{"AAPL"}, testManagerConfig(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = manager.Run(ctx) }()

	var mu sync.Mutex
	dials := 0
	f := NewBridgeFeed("ws://bridge", []string{"AAPL"}, manager, func(string) BridgeClient {
		mu.Lock()
		defer mu.Unlock()
		dials++
		return &fakeBridge{connectErr: errors.New("connection refused")}
	}, logger)
	go func() { _ = f.Run(ctx) }()

	// The feed should keep dialing after a failed connect.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials >= 2
	}, 10*time.Second, 50*time.Millisecond)
}
