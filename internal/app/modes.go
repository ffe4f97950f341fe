package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/cache/redis"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/feed"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/pipeline"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/platform/depthwire"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/server"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/server/handler"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/server/ws"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/signal"
)

// FullMode runs ingestion, analysis, and the HTTP/WebSocket API in a single
// process. The API serves state straight from the pipeline manager.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Any("symbols", a.cfg.Symbols),
	)

	g, ctx := errgroup.WithContext(ctx)
	startedAt := time.Now().UTC()

	manager := pipeline.NewManager(a.cfg.Symbols, a.pipelineConfig(), a.logger, a.buildSinks(deps)...)
	g.Go(func() error {
		return manager.Run(ctx)
	})

	bridge := feed.NewBridgeFeed(a.cfg.Feed.WsURL, a.cfg.Symbols, manager, dialBridge, a.logger)
	g.Go(func() error {
		defer bridge.Close()
		return bridge.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		srv, hub := a.buildServer(deps, manager, startedAt)
		if hub != nil {
			g.Go(func() error {
				return hub.Run(ctx)
			})
		}
		a.runServer(ctx, g, srv)
	}

	return g.Wait()
}

// MonitorMode runs ingestion and analysis without the HTTP API. Signals and
// alerts still reach the notification channels and, when Redis is enabled,
// the signal bus.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.Any("symbols", a.cfg.Symbols),
	)

	g, ctx := errgroup.WithContext(ctx)

	manager := pipeline.NewManager(a.cfg.Symbols, a.pipelineConfig(), a.logger, a.buildSinks(deps)...)
	g.Go(func() error {
		return manager.Run(ctx)
	})

	bridge := feed.NewBridgeFeed(a.cfg.Feed.WsURL, a.cfg.Symbols, manager, dialBridge, a.logger)
	g.Go(func() error {
		defer bridge.Close()
		return bridge.Run(ctx)
	})

	return g.Wait()
}

// ServerMode serves the HTTP/WebSocket API from the Redis state cache without
// running any ingestion. An analyzer in full or monitor mode keeps the cache
// warm from a separate process.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.Int("port", a.cfg.Server.Port),
	)

	g, ctx := errgroup.WithContext(ctx)
	startedAt := time.Now().UTC()

	provider := &cacheProvider{cache: deps.StateCache, symbols: a.cfg.Symbols}
	srv, hub := a.buildServer(deps, provider, startedAt)
	if hub != nil {
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}
	a.runServer(ctx, g, srv)

	return g.Wait()
}

// runServer starts srv on the group and arranges a graceful shutdown once the
// group context is cancelled.
func (a *App) runServer(ctx context.Context, g *errgroup.Group, srv *server.Server) {
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown error", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// buildServer assembles the HTTP server and, when the signal bus is wired,
// the WebSocket hub and history handler.
func (a *App) buildServer(deps *Dependencies, provider handler.StateProvider, startedAt time.Time) (*server.Server, *ws.Hub) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		State:  handler.NewStateHandler(provider, a.logger),
		Status: handler.NewStatusHandler(provider, a.cfg.Mode, startedAt, a.logger),
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		handlers.History = handler.NewHistoryHandler(deps.SignalBus, redis.SignalStream, redis.AlertStream, a.logger)
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			Symbols:   a.cfg.Symbols,
			StartedAt: startedAt,
		})
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, hub, deps.RateLimiter, a.logger)

	return srv, hub
}

// buildSinks assembles the pipeline sinks for the configured dependencies.
// The notification sink is always present; Redis sinks only when wired.
func (a *App) buildSinks(deps *Dependencies) []pipeline.Sink {
	var sinks []pipeline.Sink
	if deps.StateCache != nil {
		sinks = append(sinks, &cacheSink{cache: deps.StateCache, logger: a.logger})
	}
	if deps.SignalBus != nil {
		sinks = append(sinks, &busSink{bus: deps.SignalBus, logger: a.logger})
	}
	sinks = append(sinks, &notifySink{
		notifier:      deps.Notifier,
		minConfidence: a.cfg.Notify.MinConfidence,
		logger:        a.logger,
	})
	return sinks
}

// pipelineConfig maps the validated analysis configuration onto the
// per-symbol pipeline settings.
func (a *App) pipelineConfig() pipeline.Config {
	an := a.cfg.Analysis
	return pipeline.Config{
		DepthLevels:          an.DepthLevels,
		SmartAggregated:      an.SmartAggregated,
		ExtendedHoursEnabled: an.ExtendedHoursEnabled,
		HiddenOrdersEnabled:  an.HiddenOrderDetectionEnabled,
		Lookback:             time.Duration(an.LookbackSeconds) * time.Second,
		Sensitivity:          an.Sensitivity,
		LevelTolerance:       an.LevelTolerance,
		MinLevelStrength:     an.MinLevelStrength,
		MaxTrackedLevels:     an.MaxTrackedLevels,
		Signal: signal.Config{
			StrongImbalance:    an.StrongImbalance,
			ModerateImbalance:  an.ModerateImbalance,
			SpreadThresholdBps: an.SpreadThresholdBps,
			MinConfidence:      an.MinConfidence,
			LevelTolerance:     an.LevelTolerance,
		},
		EventBuf: a.cfg.Feed.EventBuf,
	}
}

// dialBridge builds a fresh wire client per connection attempt.
func dialBridge(wsURL string) feed.BridgeClient {
	return depthwire.NewClient(wsURL)
}

// cacheProvider serves the latest state from the Redis cache for server mode.
type cacheProvider struct {
	cache   domain.StateCache
	symbols []string
}

func (p *cacheProvider) Latest(symbol string) (*domain.MarketState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := p.cache.GetState(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (p *cacheProvider) Symbols() []string {
	return p.symbols
}
