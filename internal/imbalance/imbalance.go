// Package imbalance derives queue-imbalance and volume-pressure metrics from
// an order-book snapshot.
package imbalance

import "github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"

// Metrics bundles the two derived values. QueueImbalance is normalized to
// [-1,1]; Pressure is the unnormalized weighted bid-ask volume difference,
// used to spot absolute volume surges independent of the ratio.
type Metrics struct {
	QueueImbalance float64
	Pressure       float64
}

// Calculator computes depth-weighted imbalance over the top levels of a book.
type Calculator struct {
	levels int
}

// NewCalculator creates a Calculator that considers up to levels price levels
// per side.
func NewCalculator(levels int) *Calculator {
	if levels <= 0 {
		levels = 5
	}
	return &Calculator{levels: levels}
}

// Compute derives the metrics for one snapshot. Weights decay with distance
// from the top of book (1/(1+rank)) so the levels closest to the touch
// dominate. An empty book yields exactly zero, not an error.
func (c *Calculator) Compute(snap domain.OrderBookSnapshot) Metrics {
	bid := weightedVolume(snap.Bids, c.levels)
	ask := weightedVolume(snap.Asks, c.levels)

	total := bid + ask
	if total == 0 {
		return Metrics{}
	}
	return Metrics{
		QueueImbalance: (bid - ask) / total,
		Pressure:       bid - ask,
	}
}

func weightedVolume(levels []domain.PriceLevel, depth int) float64 {
	if depth > len(levels) {
		depth = len(levels)
	}
	var sum float64
	for i := 0; i < depth; i++ {
		sum += float64(levels[i].Size) / float64(1+i)
	}
	return sum
}
