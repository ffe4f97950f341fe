// Package feed connects the market-data boundary to the analysis pipelines.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/pipeline"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/platform/depthwire"
)

// BridgeFeed connects to the depth bridge WebSocket, subscribes the
// configured symbols, and forwards every depth update, trade print, and
// status event into the pipeline manager in arrival order. It reconnects on
// disconnect.
type BridgeFeed struct {
	wsURL     string
	symbols   []string
	manager   *pipeline.Manager
	dial      dialFunc
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// BridgeClient is the subset of the wire client the feed drives.
type BridgeClient interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Close() error
	OnDepth(depthwire.DepthHandler)
	OnTrade(depthwire.TradeHandler)
	OnStatus(depthwire.StatusHandler)
}

type dialFunc func(wsURL string) BridgeClient

// NewBridgeFeed creates a feed for the given symbols. dial builds the wire
// client per connection attempt; tests substitute a fake.
func NewBridgeFeed(wsURL string, symbols []string, manager *pipeline.Manager, dial dialFunc, logger *slog.Logger) *BridgeFeed {
	return &BridgeFeed{
		wsURL:   wsURL,
		symbols: symbols,
		manager: manager,
		dial:    dial,
		logger:  logger.With(slog.String("component", "bridge_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects, subscribes, and pumps events until ctx is cancelled.
// Reconnects with a delay after connection-level failures.
func (f *BridgeFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("bridge disconnected, reconnecting", slog.String("error", err.Error()))
		f.broadcastStatus(ctx, domain.ConnReconnecting, err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *BridgeFeed) runConnection(ctx context.Context) error {
	client := f.dial(f.wsURL)
	defer client.Close()

	client.OnDepth(func(ev domain.DepthEvent) {
		f.submit(ctx, domain.Event{Depth: &ev})
	})
	client.OnTrade(func(tp domain.TradePrint) {
		f.submit(ctx, domain.Event{Trade: &tp})
	})
	client.OnStatus(func(st domain.StatusEvent) {
		if st.Symbol != "" {
			f.submit(ctx, domain.Event{Status: &st})
			return
		}
		// Bridge-wide status applies to every symbol.
		f.broadcastStatus(ctx, st.State, st.Detail)
	})

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := client.Subscribe(ctx, f.symbols); err != nil {
		return err
	}
	f.logger.Info("bridge subscribed", slog.Int("symbols", len(f.symbols)))

	<-ctx.Done()
	return ctx.Err()
}

// submit routes one event to its pipeline. Events for symbols outside the
// configured set are dropped with a debug log; everything else about a
// submission failure is a shutdown in progress.
func (f *BridgeFeed) submit(ctx context.Context, ev domain.Event) {
	if err := f.manager.Submit(ctx, ev); err != nil {
		f.logger.Debug("dropping event",
			slog.String("symbol", ev.Symbol()),
			slog.String("error", err.Error()),
		)
	}
}

func (f *BridgeFeed) broadcastStatus(ctx context.Context, state domain.ConnState, detail string) {
	now := time.Now().UTC()
	for _, sym := range f.manager.Symbols() {
		st := domain.StatusEvent{Symbol: sym, State: state, Detail: detail, Timestamp: now}
		f.submit(ctx, domain.Event{Status: &st})
	}
}

// Close stops the feed.
func (f *BridgeFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
