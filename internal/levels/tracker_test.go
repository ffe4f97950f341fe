package levels

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

var testBase = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return NewTracker(Config{
		Tolerance:   0.005,
		MinStrength: 2,
		MaxLevels:   5,
		Lookback:    time.Minute,
	}, slog.New(slog.DiscardHandler))
}

func obs(tr *Tracker, ts time.Time, micro float64, bids, asks []domain.PriceLevel) {
	tr.Observe(domain.OrderBookSnapshot{
		Symbol:     "AAPL",
		Bids:       bids,
		Asks:       asks,
		Microprice: micro,
		Timestamp:  ts,
	})
}

func flat(prices []float64, size int64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(prices))
	for i, p := range prices {
		out[i] = domain.PriceLevel{Price: p, Size: size}
	}
	return out
}

func TestDefendedTouchPromotesLevel(t *testing.T) {
	tr := newTestTracker(t)
	ts := testBase

	// Establish a baseline of ordinary sizes so a node stands out.
	baseBids := flat([]float64{150.90, 150.85, 150.80}, 200)
	baseAsks := flat([]float64{151.10, 151.15, 151.20}, 200)
	for i := 0; i < 5; i++ {
		obs(tr, ts, 151.00, baseBids, baseAsks)
		ts = ts.Add(time.Second)
	}

	// A 1000-lot bid at 149.50 is a volume node: candidate support, still
	// hidden from consumers at strength 1.
	nodeBids := append(flat([]float64{150.90, 150.85}, 200),
		domain.PriceLevel{Price: 149.50, Size: 1000})
	obs(tr, ts, 151.00, nodeBids, baseAsks)
	ts = ts.Add(time.Second)
	assert.Empty(t, tr.Levels())

	// Price dips into the band around 149.50 and bounces back out upward.
	obs(tr, ts, 149.80, nodeBids, baseAsks)
	ts = ts.Add(time.Second)
	obs(tr, ts, 151.00, nodeBids, baseAsks)

	got := tr.Levels()
	require.Len(t, got, 1)
	assert.Equal(t, domain.LevelSupport, got[0].Kind)
	assert.InDelta(t, 149.50, got[0].Price, 1e-9)
	assert.Equal(t, 1, got[0].TouchCount)
	assert.GreaterOrEqual(t, got[0].Strength, 2.0)
}

func TestBrokenLevelIsRemoved(t *testing.T) {
	tr := newTestTracker(t)
	ts := testBase

	baseBids := flat([]float64{150.90, 150.85, 150.80}, 200)
	baseAsks := flat([]float64{151.10, 151.15, 151.20}, 200)
	for i := 0; i < 5; i++ {
		obs(tr, ts, 151.00, baseBids, baseAsks)
		ts = ts.Add(time.Second)
	}

	nodeBids := append(flat([]float64{150.90}, 200),
		domain.PriceLevel{Price: 149.50, Size: 1000})
	obs(tr, ts, 151.00, nodeBids, baseAsks)
	ts = ts.Add(time.Second)

	// Defend once so the level is exposed.
	obs(tr, ts, 149.80, nodeBids, baseAsks)
	ts = ts.Add(time.Second)
	obs(tr, ts, 151.00, nodeBids, baseAsks)
	ts = ts.Add(time.Second)
	require.Len(t, tr.Levels(), 1)

	// Price closes through the support beyond tolerance: level invalidated.
	obs(tr, ts, 148.00, baseBids, baseAsks)
	assert.Empty(t, tr.Levels())
}

func TestResistanceFromAskNode(t *testing.T) {
	tr := newTestTracker(t)
	ts := testBase

	baseBids := flat([]float64{150.90, 150.85}, 200)
	baseAsks := flat([]float64{151.10, 151.15}, 200)
	for i := 0; i < 5; i++ {
		obs(tr, ts, 151.00, baseBids, baseAsks)
		ts = ts.Add(time.Second)
	}

	nodeAsks := append(flat([]float64{151.10}, 200),
		domain.PriceLevel{Price: 152.50, Size: 1200})
	obs(tr, ts, 151.00, baseBids, nodeAsks)
	ts = ts.Add(time.Second)

	// Rally into the band, rejection back down: defended resistance.
	obs(tr, ts, 152.20, baseBids, nodeAsks)
	ts = ts.Add(time.Second)
	obs(tr, ts, 151.00, baseBids, nodeAsks)

	got := tr.Levels()
	require.Len(t, got, 1)
	assert.Equal(t, domain.LevelResistance, got[0].Kind)
	assert.InDelta(t, 152.50, got[0].Price, 1e-9)
}

func TestStaleCandidatesPruned(t *testing.T) {
	tr := newTestTracker(t)
	ts := testBase

	baseAsks := flat([]float64{151.10, 151.15}, 200)
	for i := 0; i < 5; i++ {
		obs(tr, ts, 151.00, flat([]float64{150.90, 150.85}, 200), baseAsks)
		ts = ts.Add(time.Second)
	}

	nodeBids := append(flat([]float64{150.90}, 200),
		domain.PriceLevel{Price: 149.50, Size: 1000})
	obs(tr, ts, 151.00, nodeBids, baseAsks)

	// Never touched; after the lookback the candidate is gone, so a later
	// defended-looking move scores nothing.
	ts = ts.Add(2 * time.Minute)
	obs(tr, ts, 149.80, flat([]float64{150.90}, 200), baseAsks)
	ts = ts.Add(time.Second)
	obs(tr, ts, 151.00, flat([]float64{150.90}, 200), baseAsks)
	assert.Empty(t, tr.Levels())
}

func TestTrackedSetIsCapped(t *testing.T) {
	tr := newTestTracker(t)
	ts := testBase

	baseAsks := flat([]float64{151.10, 151.15}, 200)
	for i := 0; i < 5; i++ {
		obs(tr, ts, 151.00, flat([]float64{150.90, 150.85}, 200), baseAsks)
		ts = ts.Add(time.Second)
	}

	// Seed more candidates than the cap, spaced beyond tolerance.
	for i := 0; i < 8; i++ {
		price := 145.00 - float64(i)*2.0
		nodeBids := append(flat([]float64{150.90}, 200),
			domain.PriceLevel{Price: price, Size: 1500})
		obs(tr, ts, 151.00, nodeBids, baseAsks)
		ts = ts.Add(time.Second)
	}

	assert.LessOrEqual(t, len(tr.levels), 5,
		fmt.Sprintf("tracked set should be capped, got %d", len(tr.levels)))
}
