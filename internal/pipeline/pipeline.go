// Package pipeline wires the per-symbol analyzers into a single-consumer
// event loop and publishes the derived market state atomically.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/book"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/hidden"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/imbalance"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/levels"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/session"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/signal"
)

// Sink receives derived outputs as the pipeline produces them. Calls are made
// from the pipeline goroutine; implementations must not block for long.
type Sink interface {
	// OnState is called after every processed event with the freshly
	// published state.
	OnState(ctx context.Context, state *domain.MarketState)
	// OnSignal is called when the signal direction changes.
	OnSignal(ctx context.Context, sig domain.Signal)
	// OnAlert is called once per newly raised hidden-order alert.
	OnAlert(ctx context.Context, alert domain.HiddenOrderAlert)
}

// Config is the per-symbol analysis configuration, already validated.
type Config struct {
	DepthLevels          int
	SmartAggregated      bool
	ExtendedHoursEnabled bool
	HiddenOrdersEnabled  bool
	Lookback             time.Duration
	Sensitivity          string
	LevelTolerance       float64
	MinLevelStrength     float64
	MaxTrackedLevels     int
	Signal               signal.Config
	EventBuf             int
}

// Pipeline processes one symbol's ordered event stream. All analyzer state is
// confined to the Run goroutine; the only cross-goroutine surface is the
// input channel and the atomically published MarketState.
type Pipeline struct {
	symbol string
	cfg    Config
	logger *slog.Logger

	book     *book.Book
	imb      *imbalance.Calculator
	detector *hidden.Detector
	tracker  *levels.Tracker
	gen      *signal.Generator

	in     chan domain.Event
	state  atomic.Pointer[domain.MarketState]
	sinks  []Sink
	closed atomic.Bool

	conn          domain.ConnState
	lastDirection domain.Direction
	seenAlerts    map[string]struct{}
}

// New creates a Pipeline for symbol. Sinks are optional.
func New(symbol string, cfg Config, logger *slog.Logger, sinks ...Sink) *Pipeline {
	if cfg.EventBuf <= 0 {
		cfg.EventBuf = 1024
	}
	logger = logger.With(slog.String("component", "pipeline"), slog.String("symbol", symbol))

	p := &Pipeline{
		symbol: symbol,
		cfg:    cfg,
		logger: logger,
		book: book.New(symbol, book.Config{
			MaxDepth:        cfg.DepthLevels,
			SmartAggregated: cfg.SmartAggregated,
		}, logger),
		imb: imbalance.NewCalculator(cfg.DepthLevels),
		detector: hidden.NewDetector(symbol, hidden.Config{
			Lookback:    cfg.Lookback,
			Sensitivity: cfg.Sensitivity,
		}, logger),
		tracker: levels.NewTracker(levels.Config{
			Tolerance:   cfg.LevelTolerance,
			MinStrength: cfg.MinLevelStrength,
			MaxLevels:   cfg.MaxTrackedLevels,
		}, logger),
		gen:           signal.NewGenerator(cfg.Signal),
		in:            make(chan domain.Event, cfg.EventBuf),
		sinks:         sinks,
		conn:          domain.ConnDisconnected,
		lastDirection: domain.DirectionNeutral,
		seenAlerts:    make(map[string]struct{}),
	}
	// Publish an empty state so readers never see nil before the first event.
	p.state.Store(&domain.MarketState{
		Symbol:  symbol,
		Conn:    domain.ConnDisconnected,
		Session: domain.SessionClosed,
	})
	return p
}

// Submit enqueues one event, blocking while the buffer is full. It fails once
// the pipeline has shut down or the context is cancelled.
func (p *Pipeline) Submit(ctx context.Context, ev domain.Event) error {
	if p.closed.Load() {
		return domain.ErrPipelineClosed
	}
	select {
	case p.in <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline: submit %s: %w", p.symbol, ctx.Err())
	}
}

// Run consumes the event stream until ctx is cancelled. A panic while
// handling one event is logged and the loop continues; state corruption from
// a single bad event must not take the whole symbol down.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started")
	defer p.closed.Store(true)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopped")
			return nil
		case ev := <-p.in:
			p.safeHandle(ctx, ev)
		}
	}
}

func (p *Pipeline) safeHandle(ctx context.Context, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("recovered from panic while handling event",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	p.handle(ctx, ev)
}

// handle applies one event to the analyzers and republishes state. Every
// event kind, including status changes and rejected depth updates, produces a
// fresh state so alert expiry and session boundaries are re-evaluated.
func (p *Pipeline) handle(ctx context.Context, ev domain.Event) {
	var (
		snap domain.OrderBookSnapshot
		ts   time.Time
	)

	switch {
	case ev.Depth != nil:
		ts = ev.Depth.Timestamp
		var err error
		snap, err = p.book.Apply(*ev.Depth)
		if err != nil {
			if errors.Is(err, domain.ErrMalformedEvent) {
				p.logger.Warn("dropping malformed depth event", slog.Any("error", err))
			}
			// Crossed-book rejections were already logged by the book; the
			// snapshot reflects the preserved prior state.
		}
		if p.cfg.HiddenOrdersEnabled {
			p.detector.ObserveBook(snap)
		}
		p.tracker.Observe(snap)

	case ev.Trade != nil:
		ts = ev.Trade.Timestamp
		if p.cfg.HiddenOrdersEnabled {
			p.detector.ObserveTrade(*ev.Trade)
		}
		snap = p.book.Snapshot(ts)

	case ev.Status != nil:
		ts = ev.Status.Timestamp
		p.conn = ev.Status.State
		p.logger.Info("feed status changed",
			slog.String("state", string(ev.Status.State)),
			slog.String("detail", ev.Status.Detail),
		)
		snap = p.book.Snapshot(ts)

	default:
		p.logger.Warn("discarding empty event envelope")
		return
	}

	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	sess := session.Classify(ts)
	metrics := p.imb.Compute(snap)
	var alerts []domain.HiddenOrderAlert
	if p.cfg.HiddenOrdersEnabled {
		alerts = p.detector.ActiveAlerts()
	}
	lvls := p.tracker.Levels()

	sig := p.gen.Generate(signal.Inputs{
		Snapshot: snap,
		Metrics:  metrics,
		Alerts:   alerts,
		Levels:   lvls,
		Session:  sess,
		Now:      ts,
	})
	if !p.cfg.ExtendedHoursEnabled && sess != domain.SessionRegular {
		sig.Direction = domain.DirectionNeutral
		sig.Reasons = append(sig.Reasons, "outside regular session")
	}

	state := &domain.MarketState{
		Symbol:    p.symbol,
		Snapshot:  snap,
		Alerts:    alerts,
		Levels:    lvls,
		Signal:    sig,
		Session:   sess,
		Conn:      p.conn,
		UpdatedAt: ts,
	}
	p.state.Store(state)
	p.dispatch(ctx, state, sig, alerts)
}

// dispatch fans the update out to the sinks and tracks which alerts and
// signal directions have already been announced.
func (p *Pipeline) dispatch(ctx context.Context, state *domain.MarketState, sig domain.Signal, alerts []domain.HiddenOrderAlert) {
	for _, s := range p.sinks {
		s.OnState(ctx, state)
	}

	live := make(map[string]struct{}, len(alerts))
	for _, a := range alerts {
		live[a.ID] = struct{}{}
		if _, seen := p.seenAlerts[a.ID]; !seen {
			p.seenAlerts[a.ID] = struct{}{}
			for _, s := range p.sinks {
				s.OnAlert(ctx, a)
			}
		}
	}
	for id := range p.seenAlerts {
		if _, ok := live[id]; !ok {
			delete(p.seenAlerts, id)
		}
	}

	if sig.Direction != p.lastDirection {
		p.lastDirection = sig.Direction
		for _, s := range p.sinks {
			s.OnSignal(ctx, sig)
		}
	}
}

// Latest returns the most recently published state. It never returns nil.
func (p *Pipeline) Latest() *domain.MarketState {
	return p.state.Load()
}
