// Package signal combines imbalance, hidden-order, spread, and level context
// into a directional signal with an explainable confidence score.
package signal

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/imbalance"
)

// Config holds the scoring thresholds.
type Config struct {
	StrongImbalance    float64 // queue imbalance magnitude scoring +-3
	ModerateImbalance  float64 // queue imbalance magnitude scoring +-1
	SpreadThresholdBps float64 // spreads wider than this dampen confidence
	MinConfidence      float64 // below this the direction collapses to NEUTRAL
	LevelTolerance     float64 // fractional proximity band for S/R context
}

// Score contributions and dampeners. maxScore is the denominator that maps
// the raw score onto 0..100 confidence.
const (
	scoreStrongImbalance   = 3.0
	scoreModerateImbalance = 1.0
	scoreHiddenOrder       = 2.0
	scoreIceberg           = 1.0
	scoreLevelProximity    = 2.0
	maxScore               = 8.0

	wideSpreadDampen      = 0.7
	extendedSessionDampen = 0.8
)

// Generator derives signals. It is stateless: every output is a pure function
// of the inputs passed to Generate, so identical inputs always reproduce the
// same direction, confidence, and reasons (the ID and timestamp aside).
type Generator struct {
	cfg Config
}

// NewGenerator creates a Generator with the given thresholds.
func NewGenerator(cfg Config) *Generator {
	if cfg.StrongImbalance <= 0 {
		cfg.StrongImbalance = 0.30
	}
	if cfg.ModerateImbalance <= 0 {
		cfg.ModerateImbalance = 0.15
	}
	if cfg.SpreadThresholdBps <= 0 {
		cfg.SpreadThresholdBps = 50
	}
	if cfg.LevelTolerance <= 0 {
		cfg.LevelTolerance = 0.005
	}
	return &Generator{cfg: cfg}
}

// Inputs is everything a signal is derived from.
type Inputs struct {
	Snapshot domain.OrderBookSnapshot
	Metrics  imbalance.Metrics
	Alerts   []domain.HiddenOrderAlert
	Levels   []domain.SupportResistanceLevel
	Session  domain.Session
	Now      time.Time
}

// Generate scores the inputs and returns the composite signal. An empty or
// one-sided book yields NEUTRAL at zero confidence rather than an error.
func (g *Generator) Generate(in Inputs) domain.Signal {
	sig := domain.Signal{
		ID:          uuid.NewString(),
		Symbol:      in.Snapshot.Symbol,
		Direction:   domain.DirectionNeutral,
		GeneratedAt: in.Now,
		Inputs: domain.SignalInputs{
			QueueImbalance: in.Metrics.QueueImbalance,
			Pressure:       in.Metrics.Pressure,
			SpreadBps:      in.Snapshot.SpreadBps,
			Microprice:     in.Snapshot.Microprice,
			ActiveAlerts:   len(in.Alerts),
			TrackedLevels:  len(in.Levels),
			Session:        in.Session,
		},
	}

	if !in.Snapshot.HasBothSides() {
		sig.Reasons = []string{"insufficient data: book is empty or one-sided"}
		return sig
	}

	var score float64
	var reasons []string

	score, reasons = g.scoreImbalance(in.Metrics.QueueImbalance, score, reasons)
	score, reasons = g.scoreAlerts(in.Alerts, score, reasons)
	score, reasons = g.scoreLevels(in.Snapshot.Microprice, in.Levels, score, reasons)

	if in.Snapshot.SpreadBps > g.cfg.SpreadThresholdBps {
		score *= wideSpreadDampen
		reasons = append(reasons, fmt.Sprintf("wide spread (%.1f bps) reduces conviction", in.Snapshot.SpreadBps))
	}
	if in.Session.Extended() {
		score *= extendedSessionDampen
		reasons = append(reasons, fmt.Sprintf("extended hours session (%s) reduces conviction", in.Session))
	}

	confidence := math.Abs(score) / maxScore * 100
	if confidence > 100 {
		confidence = 100
	}
	sig.Confidence = confidence
	sig.Reasons = reasons

	switch {
	case confidence < g.cfg.MinConfidence:
		sig.Direction = domain.DirectionNeutral
	case score > 0:
		sig.Direction = domain.DirectionBuy
	case score < 0:
		sig.Direction = domain.DirectionSell
	}
	if len(sig.Reasons) == 0 {
		sig.Reasons = []string{"no significant depth features"}
	}
	return sig
}

func (g *Generator) scoreImbalance(qi, score float64, reasons []string) (float64, []string) {
	switch {
	case qi > g.cfg.StrongImbalance:
		score += scoreStrongImbalance
		reasons = append(reasons, fmt.Sprintf("strong buy-side queue imbalance (%.2f)", qi))
	case qi > g.cfg.ModerateImbalance:
		score += scoreModerateImbalance
		reasons = append(reasons, fmt.Sprintf("moderate buy-side queue imbalance (%.2f)", qi))
	case qi < -g.cfg.StrongImbalance:
		score -= scoreStrongImbalance
		reasons = append(reasons, fmt.Sprintf("strong sell-side queue imbalance (%.2f)", qi))
	case qi < -g.cfg.ModerateImbalance:
		score -= scoreModerateImbalance
		reasons = append(reasons, fmt.Sprintf("moderate sell-side queue imbalance (%.2f)", qi))
	}
	return score, reasons
}

func (g *Generator) scoreAlerts(alerts []domain.HiddenOrderAlert, score float64, reasons []string) (float64, []string) {
	for _, a := range alerts {
		switch a.Kind {
		case domain.AlertHiddenBuyer:
			score += scoreHiddenOrder
			reasons = append(reasons, fmt.Sprintf("hidden buyer absorbing at %.2f (%s)", a.Price, a.Strength))
		case domain.AlertHiddenSeller:
			score -= scoreHiddenOrder
			reasons = append(reasons, fmt.Sprintf("hidden seller absorbing at %.2f (%s)", a.Price, a.Strength))
		case domain.AlertIceberg:
			if a.Side == domain.SideBid {
				score += scoreIceberg
				reasons = append(reasons, fmt.Sprintf("iceberg bid at %.2f (%d refills)", a.Price, a.RefreshCount))
			} else {
				score -= scoreIceberg
				reasons = append(reasons, fmt.Sprintf("iceberg offer at %.2f (%d refills)", a.Price, a.RefreshCount))
			}
		}
	}
	return score, reasons
}

// scoreLevels credits proximity to a defended level: sitting on support leans
// long, pressing into resistance leans short. Only the nearest in-band level
// of each kind contributes.
func (g *Generator) scoreLevels(micro float64, lvls []domain.SupportResistanceLevel, score float64, reasons []string) (float64, []string) {
	if micro <= 0 {
		return score, reasons
	}
	var scoredSupport, scoredResistance bool
	for _, l := range lvls {
		if math.Abs(micro-l.Price)/l.Price > g.cfg.LevelTolerance {
			continue
		}
		switch {
		case l.Kind == domain.LevelSupport && !scoredSupport:
			score += scoreLevelProximity
			reasons = append(reasons, fmt.Sprintf("price holding defended support %.2f (strength %.0f)", l.Price, l.Strength))
			scoredSupport = true
		case l.Kind == domain.LevelResistance && !scoredResistance:
			score -= scoreLevelProximity
			reasons = append(reasons, fmt.Sprintf("price pressing defended resistance %.2f (strength %.0f)", l.Price, l.Strength))
			scoredResistance = true
		}
	}
	return score, reasons
}
