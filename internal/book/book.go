// Package book maintains the per-price-level bid/ask state for a single
// instrument from incremental depth events and derives normalized snapshots.
package book

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

// Config controls book depth and feed semantics.
type Config struct {
	// MaxDepth caps the number of levels kept per side (1..20). Events
	// addressing ranks at or beyond the cap are dropped silently.
	MaxDepth int
	// SmartAggregated marks the feed as venue-aggregated. Single-exchange and
	// aggregated feeds are applied identically; the flag is carried into logs
	// and snapshots so downstream consumers know what they are looking at.
	SmartAggregated bool
}

// Book is the mutable order book for one symbol. It is not safe for
// concurrent use; the pipeline owns it and applies events from a single
// goroutine.
type Book struct {
	symbol string
	cfg    Config
	bids   []domain.PriceLevel // rank order, price descending
	asks   []domain.PriceLevel // rank order, price ascending
	// crossed counts consecutive updates that left bestBid >= bestAsk. One
	// transient crossed update is tolerated; the next event that would keep
	// the book crossed is rejected.
	crossed int
	logger  *slog.Logger
}

// New creates an empty Book for symbol.
func New(symbol string, cfg Config, logger *slog.Logger) *Book {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 10
	}
	return &Book{
		symbol: symbol,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "book"), slog.String("symbol", symbol)),
	}
}

// Apply mutates the book with one depth event and returns the resulting
// snapshot. Duplicate deliveries are reconciled idempotently; events that
// would keep the book crossed for a second consecutive update are rejected
// with domain.ErrCrossedBook and the prior state is preserved. A returned
// error is never fatal to the stream.
func (b *Book) Apply(ev domain.DepthEvent) (domain.OrderBookSnapshot, error) {
	if err := b.check(ev); err != nil {
		return b.Snapshot(ev.Timestamp), err
	}
	if ev.Position >= b.cfg.MaxDepth {
		// Rank beyond the configured depth: drop silently.
		return b.Snapshot(ev.Timestamp), nil
	}

	prevBids, prevAsks := b.bids, b.asks
	side := b.sideLevels(ev.Side)
	next, changed := applyToSide(side, ev)
	if !changed {
		return b.Snapshot(ev.Timestamp), nil
	}
	if len(next) > b.cfg.MaxDepth {
		next = next[:b.cfg.MaxDepth]
	}
	b.setSideLevels(ev.Side, next)

	if b.isCrossed() {
		b.crossed++
		if b.crossed > 1 {
			// Second consecutive crossed update: reject and roll back.
			b.bids, b.asks = prevBids, prevAsks
			b.logger.Warn("rejecting event that keeps book crossed",
				slog.String("side", string(ev.Side)),
				slog.String("op", ev.Operation.String()),
				slog.Float64("price", ev.Price),
				slog.Int("position", ev.Position),
				slog.String("exchange", ev.Exchange),
			)
			return b.Snapshot(ev.Timestamp), domain.ErrCrossedBook
		}
		// Transient crossed state: tolerated, expected to self-correct on
		// the next event.
	} else {
		b.crossed = 0
	}

	return b.Snapshot(ev.Timestamp), nil
}

// check validates the raw event fields.
func (b *Book) check(ev domain.DepthEvent) error {
	if ev.Side != domain.SideBid && ev.Side != domain.SideAsk {
		return fmt.Errorf("book: side %q: %w", ev.Side, domain.ErrMalformedEvent)
	}
	if ev.Position < 0 {
		return fmt.Errorf("book: negative position %d: %w", ev.Position, domain.ErrMalformedEvent)
	}
	if ev.Operation != domain.OpDelete && (ev.Price <= 0 || ev.Size < 0) {
		return fmt.Errorf("book: price %g size %d: %w", ev.Price, ev.Size, domain.ErrMalformedEvent)
	}
	return nil
}

func (b *Book) sideLevels(s domain.Side) []domain.PriceLevel {
	if s == domain.SideBid {
		return b.bids
	}
	return b.asks
}

func (b *Book) setSideLevels(s domain.Side, levels []domain.PriceLevel) {
	if s == domain.SideBid {
		b.bids = levels
	} else {
		b.asks = levels
	}
}

// applyToSide returns a fresh slice with the event applied, so a rejected
// event can be rolled back by keeping the old slice. changed is false when
// the event was reconciled as a duplicate or an idempotent no-op.
func applyToSide(levels []domain.PriceLevel, ev domain.DepthEvent) (next []domain.PriceLevel, changed bool) {
	pos := ev.Position
	lvl := domain.PriceLevel{Price: ev.Price, Size: ev.Size, UpdatedAt: ev.Timestamp}

	switch ev.Operation {
	case domain.OpInsert:
		// Duplicate delivery of an insert shows up as an identical level
		// already sitting at the target rank; reconcile as a no-op.
		if pos < len(levels) && levels[pos].Price == ev.Price && levels[pos].Size == ev.Size {
			return levels, false
		}
		if pos > len(levels) {
			pos = len(levels)
		}
		next = make([]domain.PriceLevel, 0, len(levels)+1)
		next = append(next, levels[:pos]...)
		next = append(next, lvl)
		next = append(next, levels[pos:]...)
		return next, true

	case domain.OpUpdate:
		if ev.Size == 0 {
			// A level whose size drops to zero is removed.
			return deleteAt(levels, pos)
		}
		if pos == len(levels) {
			// Update one past the end reconciles as an append.
			return append(copyLevels(levels), lvl), true
		}
		if pos > len(levels) {
			return levels, false
		}
		if levels[pos].Price == ev.Price && levels[pos].Size == ev.Size {
			return levels, false
		}
		next = copyLevels(levels)
		next[pos] = lvl
		return next, true

	case domain.OpDelete:
		return deleteAt(levels, pos)

	default:
		return levels, false
	}
}

func deleteAt(levels []domain.PriceLevel, pos int) ([]domain.PriceLevel, bool) {
	if pos >= len(levels) {
		// Duplicate delete: idempotent no-op.
		return levels, false
	}
	next := make([]domain.PriceLevel, 0, len(levels)-1)
	next = append(next, levels[:pos]...)
	next = append(next, levels[pos+1:]...)
	return next, true
}

func copyLevels(levels []domain.PriceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(levels))
	copy(out, levels)
	return out
}

// isCrossed reports bestBid >= bestAsk with both sides populated.
func (b *Book) isCrossed() bool {
	return len(b.bids) > 0 && len(b.asks) > 0 && b.bids[0].Price >= b.asks[0].Price
}

// Snapshot returns an immutable copy of the current book with all derived
// fields populated. ts stamps the snapshot; a zero ts falls back to now.
func (b *Book) Snapshot(ts time.Time) domain.OrderBookSnapshot {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	snap := domain.OrderBookSnapshot{
		Symbol:    b.symbol,
		Bids:      copyLevels(b.bids),
		Asks:      copyLevels(b.asks),
		Timestamp: ts,
	}
	if len(b.bids) > 0 {
		snap.BestBid = b.bids[0].Price
		snap.BestBidSize = b.bids[0].Size
	}
	if len(b.asks) > 0 {
		snap.BestAsk = b.asks[0].Price
		snap.BestAskSize = b.asks[0].Size
	}
	if snap.HasBothSides() {
		snap.MidPrice = (snap.BestBid + snap.BestAsk) / 2
		snap.Spread = snap.BestAsk - snap.BestBid
		snap.Microprice = microprice(snap.BestBid, snap.BestAsk, snap.BestBidSize, snap.BestAskSize)
		if snap.MidPrice > 0 {
			snap.SpreadBps = snap.Spread / snap.MidPrice * 10000
		}
	}
	return snap
}

// microprice is the size-weighted fair price between best bid and best ask.
// It falls back to the midpoint when both top-of-book sizes are zero.
func microprice(bestBid, bestAsk float64, bidSize, askSize int64) float64 {
	total := bidSize + askSize
	if total == 0 {
		return (bestBid + bestAsk) / 2
	}
	return (bestBid*float64(askSize) + bestAsk*float64(bidSize)) / float64(total)
}
