package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/signal"
)

// A Friday 11:00 New York time, well inside the regular session.
var testBase = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

func testPipelineConfig() Config {
	return Config{
		DepthLevels:          10,
		ExtendedHoursEnabled: true,
		HiddenOrdersEnabled:  true,
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

type recordingSink struct {
	mu      sync.Mutex
	states  int
	signals []domain.Signal
	alerts  []domain.HiddenOrderAlert
}

func (r *recordingSink) OnState(_ context.Context, _ *domain.MarketState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states++
}

func (r *recordingSink) OnSignal(_ context.Context, sig domain.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
}

func (r *recordingSink) OnAlert(_ context.Context, a domain.HiddenOrderAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingSink) stateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states
}

func (r *recordingSink) signalDirections() []domain.Direction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Direction, len(r.signals))
	for i, s := range r.signals {
		out[i] = s.Direction
	}
	return out
}

func depth(sym string, side domain.Side, pos int, op domain.Operation, price float64, size int64, ts time.Time) domain.Event {
	return domain.Event{Depth: &domain.DepthEvent{
		Symbol: sym, Side: side, Position: pos, Operation: op,
		Price: price, Size: size, Timestamp: ts,
	}}
}

func TestPipelinePublishesStateFromDepthEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &recordingSink{}
	p := New("AAPL", testPipelineConfig(), slog.New(slog.DiscardHandler), sink)
	go func() { _ = p.Run(ctx) }()

	ts := testBase
	require.NoError(t, p.Submit(ctx, domain.Event{Status: &domain.StatusEvent{
		Symbol: "AAPL", State: domain.ConnConnected, Timestamp: ts,
	}}))
	require.NoError(t, p.Submit(ctx, depth("AAPL", domain.SideBid, 0, domain.OpInsert, 150.00, 500, ts.Add(time.Second))))
	require.NoError(t, p.Submit(ctx, depth("AAPL", domain.SideAsk, 0, domain.OpInsert, 150.05, 400, ts.Add(2*time.Second))))

	require.Eventually(t, func() bool {
		return p.Latest().Snapshot.HasBothSides()
	}, time.Second, 5*time.Millisecond)

	state := p.Latest()
	assert.Equal(t, "AAPL", state.Symbol)
	assert.Equal(t, domain.ConnConnected, state.Conn)
	assert.Equal(t, domain.SessionRegular, state.Session)
	assert.InDelta(t, 150.00, state.Snapshot.BestBid, 1e-9)
	assert.InDelta(t, 150.05, state.Snapshot.BestAsk, 1e-9)
	assert.NotEmpty(t, state.Signal.ID)
	assert.GreaterOrEqual(t, sink.stateCount(), 3)
}

func TestPipelineSurvivesMalformedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New("AAPL", testPipelineConfig(), slog.New(slog.DiscardHandler))
	go func() { _ = p.Run(ctx) }()

	ts := testBase
	require.NoError(t, p.Submit(ctx, depth("AAPL", domain.Side("???"), 0, domain.OpInsert, 150.00, 500, ts)))
	require.NoError(t, p.Submit(ctx, depth("AAPL", domain.SideBid, -1, domain.OpInsert, 150.00, 500, ts)))
	require.NoError(t, p.Submit(ctx, depth("AAPL", domain.SideBid, 0, domain.OpInsert, 150.00, 500, ts.Add(time.Second))))

	require.Eventually(t, func() bool {
		return p.Latest().Snapshot.BestBid == 150.00
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, p.Latest().Snapshot.Asks)
}

func TestPipelineEmitsSignalOnDirectionChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &recordingSink{}
	p := New("AAPL", testPipelineConfig(), slog.New(slog.DiscardHandler), sink)
	go func() { _ = p.Run(ctx) }()

	ts := testBase
	// Heavily bid-weighted book: strong positive queue imbalance.
	require.NoError(t, p.Submit(ctx, depth("AAPL", domain.SideBid, 0, domain.OpInsert, 150.00, 2000, ts)))
	require.NoError(t, p.Submit(ctx, depth("AAPL", domain.SideAsk, 0, domain.OpInsert, 150.05, 100, ts.Add(time.Second))))

	require.Eventually(t, func() bool {
		dirs := sink.signalDirections()
		return len(dirs) > 0 && dirs[len(dirs)-1] == domain.DirectionBuy
	}, time.Second, 5*time.Millisecond)

	// Flipping the weights flips the direction, which emits again.
	require.NoError(t, p.Submit(ctx, depth("AAPL", domain.SideBid, 0, domain.OpUpdate, 150.00, 100, ts.Add(2*time.Second))))
	require.NoError(t, p.Submit(ctx, depth("AAPL", domain.SideAsk, 0, domain.OpUpdate, 150.05, 2000, ts.Add(3*time.Second))))

	require.Eventually(t, func() bool {
		dirs := sink.signalDirections()
		return len(dirs) >= 2 && dirs[len(dirs)-1] == domain.DirectionSell
	}, time.Second, 5*time.Millisecond)
}

func TestPipelineSubmitFailsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New("AAPL", testPipelineConfig(), slog.New(slog.DiscardHandler))

	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	err := p.Submit(context.Background(), depth("AAPL", domain.SideBid, 0, domain.OpInsert, 150.00, 500, testBase))
	assert.ErrorIs(t, err, domain.ErrPipelineClosed)
}

func TestManagerRoutesBySymbol(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager([]string{"AAPL", "MSFT"}, testPipelineConfig(), slog.New(slog.DiscardHandler))
	go func() { _ = m.Run(ctx) }()

	ts := testBase
	require.NoError(t, m.Submit(ctx, depth("AAPL", domain.SideBid, 0, domain.OpInsert, 150.00, 500, ts)))
	require.NoError(t, m.Submit(ctx, depth("MSFT", domain.SideBid, 0, domain.OpInsert, 410.00, 300, ts)))

	require.Eventually(t, func() bool {
		a, err := m.Latest("AAPL")
		if err != nil || a.Snapshot.BestBid != 150.00 {
			return false
		}
		msft, err := m.Latest("MSFT")
		return err == nil && msft.Snapshot.BestBid == 410.00
	}, time.Second, 5*time.Millisecond)

	err := m.Submit(ctx, depth("TSLA", domain.SideBid, 0, domain.OpInsert, 200.00, 100, ts))
	assert.ErrorIs(t, err, domain.ErrUnknownSymbol)

	_, err = m.Latest("TSLA")
	assert.ErrorIs(t, err, domain.ErrUnknownSymbol)
}
