package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/imbalance"
)

var testNow = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		StrongImbalance:    0.30,
		ModerateImbalance:  0.15,
		SpreadThresholdBps: 50,
		MinConfidence:      25,
		LevelTolerance:     0.005,
	}
}

func twoSidedSnap(spreadBps float64) domain.OrderBookSnapshot {
	bid, ask := 150.00, 150.00+150.00*spreadBps/10000
	mid := (bid + ask) / 2
	return domain.OrderBookSnapshot{
		Symbol:      "AAPL",
		Bids:        []domain.PriceLevel{{Price: bid, Size: 500}},
		Asks:        []domain.PriceLevel{{Price: ask, Size: 500}},
		BestBid:     bid,
		BestAsk:     ask,
		BestBidSize: 500,
		BestAskSize: 500,
		MidPrice:    mid,
		Microprice:  mid,
		Spread:      ask - bid,
		SpreadBps:   spreadBps,
		Timestamp:   testNow,
	}
}

func TestStrongImbalanceWithHiddenBuyerIsBuy(t *testing.T) {
	g := NewGenerator(testConfig())

	sig := g.Generate(Inputs{
		Snapshot: twoSidedSnap(5),
		Metrics:  imbalance.Metrics{QueueImbalance: 0.45, Pressure: 900},
		Alerts: []domain.HiddenOrderAlert{{
			Kind: domain.AlertHiddenBuyer, Price: 150.00,
			Side: domain.SideBid, Strength: domain.StrengthHigh,
		}},
		Session: domain.SessionRegular,
		Now:     testNow,
	})

	assert.Equal(t, domain.DirectionBuy, sig.Direction)
	// strong imbalance (3) + hidden buyer (2) out of 8.
	assert.InDelta(t, 62.5, sig.Confidence, 1e-9)
	require.Len(t, sig.Reasons, 2)
	assert.Contains(t, sig.Reasons[0], "strong buy-side queue imbalance")
	assert.Contains(t, sig.Reasons[1], "hidden buyer")
	assert.Equal(t, 0.45, sig.Inputs.QueueImbalance)
}

func TestSellSideFeaturesProduceSell(t *testing.T) {
	g := NewGenerator(testConfig())

	sig := g.Generate(Inputs{
		Snapshot: twoSidedSnap(5),
		Metrics:  imbalance.Metrics{QueueImbalance: -0.40},
		Alerts: []domain.HiddenOrderAlert{{
			Kind: domain.AlertIceberg, Price: 150.10,
			Side: domain.SideAsk, RefreshCount: 4,
		}},
		Session: domain.SessionRegular,
		Now:     testNow,
	})

	assert.Equal(t, domain.DirectionSell, sig.Direction)
	assert.InDelta(t, 50.0, sig.Confidence, 1e-9) // (3+1)/8
}

func TestWideSpreadDampensConfidence(t *testing.T) {
	g := NewGenerator(testConfig())

	in := Inputs{
		Snapshot: twoSidedSnap(80),
		Metrics:  imbalance.Metrics{QueueImbalance: 0.45},
		Alerts: []domain.HiddenOrderAlert{{
			Kind: domain.AlertHiddenBuyer, Side: domain.SideBid,
		}},
		Session: domain.SessionRegular,
		Now:     testNow,
	}
	sig := g.Generate(in)

	// (3+2) * 0.7 = 3.5 -> 43.75.
	assert.InDelta(t, 43.75, sig.Confidence, 1e-9)
	assert.Equal(t, domain.DirectionBuy, sig.Direction)
	assert.Contains(t, sig.Reasons[len(sig.Reasons)-1], "wide spread")
}

func TestExtendedSessionDampensConfidence(t *testing.T) {
	g := NewGenerator(testConfig())

	sig := g.Generate(Inputs{
		Snapshot: twoSidedSnap(5),
		Metrics:  imbalance.Metrics{QueueImbalance: 0.45},
		Session:  domain.SessionPremarket,
		Now:      testNow,
	})

	// 3 * 0.8 = 2.4 -> 30.
	assert.InDelta(t, 30.0, sig.Confidence, 1e-9)
	assert.Equal(t, domain.DirectionBuy, sig.Direction)
}

func TestBelowMinConfidenceIsNeutral(t *testing.T) {
	g := NewGenerator(testConfig())

	sig := g.Generate(Inputs{
		Snapshot: twoSidedSnap(5),
		Metrics:  imbalance.Metrics{QueueImbalance: 0.20}, // moderate only: 1/8
		Session:  domain.SessionRegular,
		Now:      testNow,
	})

	assert.Equal(t, domain.DirectionNeutral, sig.Direction)
	assert.InDelta(t, 12.5, sig.Confidence, 1e-9)
	assert.NotEmpty(t, sig.Reasons)
}

func TestEmptyBookIsNeutralInsufficientData(t *testing.T) {
	g := NewGenerator(testConfig())

	sig := g.Generate(Inputs{
		Snapshot: domain.OrderBookSnapshot{Symbol: "AAPL", Timestamp: testNow},
		Session:  domain.SessionRegular,
		Now:      testNow,
	})

	assert.Equal(t, domain.DirectionNeutral, sig.Direction)
	assert.Zero(t, sig.Confidence)
	require.Len(t, sig.Reasons, 1)
	assert.Contains(t, sig.Reasons[0], "insufficient data")
}

func TestSupportProximityLeansLong(t *testing.T) {
	g := NewGenerator(testConfig())

	snap := twoSidedSnap(5)
	sig := g.Generate(Inputs{
		Snapshot: snap,
		Metrics:  imbalance.Metrics{QueueImbalance: 0.20},
		Levels: []domain.SupportResistanceLevel{{
			Price: snap.Microprice * 0.999, Kind: domain.LevelSupport, Strength: 3,
		}},
		Session: domain.SessionRegular,
		Now:     testNow,
	})

	// moderate (1) + support (2) = 3/8 -> 37.5.
	assert.Equal(t, domain.DirectionBuy, sig.Direction)
	assert.InDelta(t, 37.5, sig.Confidence, 1e-9)
}

func TestConfidenceIsClamped(t *testing.T) {
	g := NewGenerator(testConfig())

	alerts := []domain.HiddenOrderAlert{
		{Kind: domain.AlertHiddenBuyer, Side: domain.SideBid},
		{Kind: domain.AlertHiddenBuyer, Side: domain.SideBid},
		{Kind: domain.AlertHiddenBuyer, Side: domain.SideBid},
		{Kind: domain.AlertIceberg, Side: domain.SideBid},
	}
	sig := g.Generate(Inputs{
		Snapshot: twoSidedSnap(5),
		Metrics:  imbalance.Metrics{QueueImbalance: 0.60},
		Alerts:   alerts,
		Session:  domain.SessionRegular,
		Now:      testNow,
	})

	assert.Equal(t, float64(100), sig.Confidence)
	assert.Equal(t, domain.DirectionBuy, sig.Direction)
}

func TestConfidenceNonDecreasingInImbalance(t *testing.T) {
	g := NewGenerator(testConfig())

	// Sweep |queueImbalance| upward with everything else fixed; confidence
	// must never decrease, on either side of the book.
	sweep := []float64{0.05, 0.16, 0.20, 0.31, 0.45, 0.60, 1.0}
	for _, sign := range []float64{1, -1} {
		prev := -1.0
		for _, qi := range sweep {
			sig := g.Generate(Inputs{
				Snapshot: twoSidedSnap(5),
				Metrics:  imbalance.Metrics{QueueImbalance: sign * qi},
				Session:  domain.SessionRegular,
				Now:      testNow,
			})
			assert.GreaterOrEqual(t, sig.Confidence, prev,
				"confidence dropped at queue imbalance %.2f", sign*qi)
			prev = sig.Confidence
		}
	}
}

func TestIdenticalInputsReproduceIdenticalScoring(t *testing.T) {
	g := NewGenerator(testConfig())

	in := Inputs{
		Snapshot: twoSidedSnap(5),
		Metrics:  imbalance.Metrics{QueueImbalance: 0.45},
		Session:  domain.SessionRegular,
		Now:      testNow,
	}
	a, b := g.Generate(in), g.Generate(in)

	assert.Equal(t, a.Direction, b.Direction)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, a.Reasons, b.Reasons)
	assert.NotEqual(t, a.ID, b.ID)
}
