package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

// Manager runs one Pipeline per configured symbol and routes inbound events
// to the right one. Symbols never share analyzer state.
type Manager struct {
	pipelines map[string]*Pipeline
	logger    *slog.Logger
}

// NewManager builds the per-symbol pipelines. The same config and sinks apply
// to every symbol.
func NewManager(symbols []string, cfg Config, logger *slog.Logger, sinks ...Sink) *Manager {
	m := &Manager{
		pipelines: make(map[string]*Pipeline, len(symbols)),
		logger:    logger.With(slog.String("component", "pipeline_manager")),
	}
	for _, sym := range symbols {
		m.pipelines[sym] = New(sym, cfg, logger, sinks...)
	}
	return m
}

// Run starts every pipeline and blocks until ctx is cancelled or one of them
// fails.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for sym, p := range m.pipelines {
		g.Go(func() error {
			if err := p.Run(ctx); err != nil {
				return fmt.Errorf("pipeline %s: %w", sym, err)
			}
			return nil
		})
	}
	m.logger.Info("pipelines running", slog.Int("symbols", len(m.pipelines)))
	return g.Wait()
}

// Submit routes one event to its symbol's pipeline.
func (m *Manager) Submit(ctx context.Context, ev domain.Event) error {
	p, ok := m.pipelines[ev.Symbol()]
	if !ok {
		return fmt.Errorf("pipeline: symbol %q: %w", ev.Symbol(), domain.ErrUnknownSymbol)
	}
	return p.Submit(ctx, ev)
}

// Latest returns the published state for symbol.
func (m *Manager) Latest(symbol string) (*domain.MarketState, error) {
	p, ok := m.pipelines[symbol]
	if !ok {
		return nil, fmt.Errorf("pipeline: symbol %q: %w", symbol, domain.ErrUnknownSymbol)
	}
	return p.Latest(), nil
}

// Symbols lists the managed symbols.
func (m *Manager) Symbols() []string {
	out := make([]string, 0, len(m.pipelines))
	for sym := range m.pipelines {
		out = append(out, sym)
	}
	return out
}
