// Package levels tracks persistently defended support and resistance prices
// derived from volume concentrations in the depth stream.
package levels

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

// Config controls candidate discovery and level lifecycle.
type Config struct {
	// Tolerance is the fractional band around a level's price used both for
	// touch detection and for the break threshold.
	Tolerance float64
	// MinStrength filters the levels exposed to consumers; weaker candidates
	// stay internal until they accumulate defended touches.
	MinStrength float64
	// MaxLevels caps the tracked set; the weakest levels are dropped first.
	MaxLevels int
	// Lookback bounds the microprice history and the staleness horizon for
	// undefended candidates.
	Lookback time.Duration
}

// volumeFactor: a displayed size must exceed this multiple of the running
// average level size to qualify as a volume node.
const volumeFactor = 2.5

// tracked wraps a level with its in-band testing state.
type tracked struct {
	domain.SupportResistanceLevel
	// testing is set while the microprice sits inside the tolerance band. The
	// touch resolves as defended or broken on band exit.
	testing bool
	addedAt time.Time
}

// Tracker maintains the candidate level set for one symbol. Like the other
// analyzers it is single-goroutine, owned by the pipeline.
type Tracker struct {
	cfg    Config
	logger *slog.Logger

	levels []*tracked
	// sizeEWMA is the running average displayed level size, the baseline for
	// spotting volume nodes.
	sizeEWMA float64
	prevMicro float64
	hasPrev   bool
}

// NewTracker creates a Tracker for one symbol's stream.
func NewTracker(cfg Config, logger *slog.Logger) *Tracker {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 0.005
	}
	if cfg.MinStrength <= 0 {
		cfg.MinStrength = 2
	}
	if cfg.MaxLevels <= 0 {
		cfg.MaxLevels = 12
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 5 * time.Minute
	}
	return &Tracker{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "sr_tracker")),
	}
}

// Observe folds one snapshot into the tracked set: discovers new volume-node
// candidates, resolves in-band touches as defended or broken, and prunes.
func (t *Tracker) Observe(snap domain.OrderBookSnapshot) {
	t.discover(domain.LevelSupport, snap.Bids, snap.Timestamp)
	t.discover(domain.LevelResistance, snap.Asks, snap.Timestamp)

	if snap.Microprice > 0 {
		t.resolveTouches(snap.Microprice, snap.Timestamp)
		t.prevMicro = snap.Microprice
		t.hasPrev = true
	}

	t.prune(snap.Timestamp)
}

// discover scans one side for levels whose displayed size stands far above
// the running average. Bids seed supports, asks seed resistances.
func (t *Tracker) discover(kind domain.LevelKind, side []domain.PriceLevel, ts time.Time) {
	for _, lvl := range side {
		size := float64(lvl.Size)
		if t.sizeEWMA == 0 {
			t.sizeEWMA = size
		} else {
			t.sizeEWMA = 0.95*t.sizeEWMA + 0.05*size
		}

		if size < volumeFactor*t.sizeEWMA {
			continue
		}
		if t.near(lvl.Price) != nil {
			continue
		}
		t.levels = append(t.levels, &tracked{
			SupportResistanceLevel: domain.SupportResistanceLevel{
				Price:          lvl.Price,
				Kind:           kind,
				Strength:       1,
				LastDefendedAt: ts,
			},
			addedAt: ts,
		})
		t.logger.Debug("level candidate",
			slog.String("kind", string(kind)),
			slog.Float64("price", lvl.Price),
			slog.Int64("size", lvl.Size),
		)
	}
}

// near returns an existing tracked level within tolerance of price.
func (t *Tracker) near(price float64) *tracked {
	for _, l := range t.levels {
		if math.Abs(l.Price-price)/l.Price <= t.cfg.Tolerance {
			return l
		}
	}
	return nil
}

// resolveTouches walks every tracked level against the current microprice.
// Entering the tolerance band arms a test; leaving it on the defending side
// scores a touch, leaving it through the level breaks and removes it.
func (t *Tracker) resolveTouches(micro float64, ts time.Time) {
	kept := t.levels[:0]
	for _, l := range t.levels {
		band := l.Price * t.cfg.Tolerance
		dist := micro - l.Price

		inBand := math.Abs(dist) <= band
		switch {
		case inBand:
			l.testing = true

		case t.broken(l, dist, band):
			t.logger.Info("level broken",
				slog.String("kind", string(l.Kind)),
				slog.Float64("price", l.Price),
				slog.Float64("strength", l.Strength),
			)
			continue // dropped

		case l.testing:
			// Exited the band away from the level: defended.
			l.testing = false
			l.TouchCount++
			l.Strength++
			l.LastDefendedAt = ts
		}
		kept = append(kept, l)
	}
	t.levels = kept
}

// broken reports whether the microprice has closed through the level beyond
// tolerance: below a support, above a resistance.
func (t *Tracker) broken(l *tracked, dist, band float64) bool {
	if l.Kind == domain.LevelSupport {
		return dist < -band
	}
	return dist > band
}

// prune drops stale undefended candidates and enforces the size cap, weakest
// and oldest first.
func (t *Tracker) prune(now time.Time) {
	cutoff := now.Add(-t.cfg.Lookback)
	kept := t.levels[:0]
	for _, l := range t.levels {
		if l.TouchCount == 0 && l.addedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, l)
	}
	t.levels = kept

	if len(t.levels) <= t.cfg.MaxLevels {
		return
	}
	sort.Slice(t.levels, func(i, j int) bool {
		if t.levels[i].Strength != t.levels[j].Strength {
			return t.levels[i].Strength > t.levels[j].Strength
		}
		return t.levels[i].LastDefendedAt.After(t.levels[j].LastDefendedAt)
	})
	t.levels = t.levels[:t.cfg.MaxLevels]
}

// Levels returns the qualified levels, price ascending. Candidates below the
// configured minimum strength are withheld.
func (t *Tracker) Levels() []domain.SupportResistanceLevel {
	out := make([]domain.SupportResistanceLevel, 0, len(t.levels))
	for _, l := range t.levels {
		if l.Strength >= t.cfg.MinStrength {
			out = append(out, l.SupportResistanceLevel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}
