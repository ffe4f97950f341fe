// Package server exposes the analyzer's derived state over HTTP and
// WebSocket for the detached presentation layer.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/server/handler"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/server/middleware"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimitPerMin throttles per-client request rates when a limiter is
	// provided. Zero disables rate limiting.
	RateLimitPerMin int
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	State   *handler.StateHandler
	Status  *handler.StatusHandler
	History *handler.HistoryHandler // nil when Redis is disabled
}

// Server is the read-only HTTP + WebSocket API for the analyzer.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter may be nil;
// rate limiting is then skipped.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required by convention, still cheap under auth).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Derived-state endpoints.
	mux.HandleFunc("GET /api/symbols", handlers.State.ListSymbols)
	mux.HandleFunc("GET /api/state/{symbol}", handlers.State.GetState)
	mux.HandleFunc("GET /api/book/{symbol}", handlers.State.GetBook)
	mux.HandleFunc("GET /api/signal/{symbol}", handlers.State.GetSignal)
	mux.HandleFunc("GET /api/alerts/{symbol}", handlers.State.GetAlerts)
	mux.HandleFunc("GET /api/levels/{symbol}", handlers.State.GetLevels)
	mux.HandleFunc("GET /api/session", handlers.State.GetSession)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Durable history replay, available when Redis is wired.
	if handlers.History != nil {
		mux.HandleFunc("GET /api/history/signals", handlers.History.ListSignals)
		mux.HandleFunc("GET /api/history/alerts", handlers.History.ListAlerts)
	}

	// WebSocket push endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMin, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
