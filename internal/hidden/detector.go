// Package hidden detects concealed liquidity: absorption by hidden buyers or
// sellers, and iceberg orders that repeatedly refresh a displayed level.
package hidden

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

// Config controls the detector's rolling window and trigger thresholds.
type Config struct {
	// Lookback is the sliding evidence window. Alerts with no reinforcing
	// evidence for this long are dropped from the active set.
	Lookback time.Duration
	// Sensitivity is "low", "medium", or "high". Higher sensitivity lowers
	// both the absorption volume threshold and the minimum refresh count,
	// trading precision for recall.
	Sensitivity string
	// PriceTolerance is the maximum fractional drift of a level's price that
	// still counts as "price does not move" for absorption detection.
	PriceTolerance float64
	// RefreshGap is the maximum time between a level's full depletion and its
	// reappearance for the refill to count toward an iceberg.
	RefreshGap time.Duration
}

// thresholds are the sensitivity-scaled trigger values.
type thresholds struct {
	// volumeMult: absorbed opposite-side volume must exceed this multiple of
	// the level's average displayed size.
	volumeMult float64
	// minRefresh: minimum depleted-and-refilled cycles for an iceberg.
	minRefresh int
}

var sensitivityThresholds = map[string]thresholds{
	"low":    {volumeMult: 5.0, minRefresh: 5},
	"medium": {volumeMult: 3.0, minRefresh: 3},
	"high":   {volumeMult: 2.0, minRefresh: 2},
}

const (
	// replenishRatio: the displayed size must hold at least this fraction of
	// its window average for flow to count as absorbed rather than depleting.
	replenishRatio = 0.5
	// sizeTolerance: a refill within this fraction of the pre-depletion size
	// counts as "materially the same" for iceberg detection.
	sizeTolerance = 0.2
	// maxEvidence bounds the evidence strings retained per alert.
	maxEvidence = 8
	// maxSizeObs bounds the per-level size history.
	maxSizeObs = 50
)

type levelKey struct {
	side  domain.Side
	price float64 // rounded to 1/10000
}

func keyOf(side domain.Side, price float64) levelKey {
	return levelKey{side: side, price: math.Round(price*10000) / 10000}
}

type sizeObs struct {
	ts   time.Time
	size int64
}

type pricePoint struct {
	ts    time.Time
	price float64
}

// refreshTrack follows one level's deplete-and-refill cycle.
type refreshTrack struct {
	lastSize    int64 // displayed size before the level vanished
	depletedAt  time.Time
	count       int
	lastRefresh time.Time
}

// Detector maintains rolling windows of book snapshots and trade prints for
// one symbol and derives the active hidden-order alert set. It is owned by
// the pipeline and is not safe for concurrent use.
type Detector struct {
	symbol string
	cfg    Config
	th     thresholds
	logger *slog.Logger

	// now is the latest observed event timestamp; all window arithmetic uses
	// event time so replayed data behaves identically to live data.
	now time.Time

	trades   []domain.TradePrint
	bestBids []pricePoint
	bestAsks []pricePoint

	sizes     map[levelKey][]sizeObs
	lastSeen  map[levelKey]sizeObs
	refreshes map[levelKey]*refreshTrack

	// persistBuy/persistSell count consecutive evaluations in which the
	// absorption pattern held; persistence raises alert strength.
	persistBuy  int
	persistSell int

	active map[string]*domain.HiddenOrderAlert
}

// NewDetector creates a Detector for symbol. Unknown sensitivities fall back
// to medium; config validation upstream rejects them before this point.
func NewDetector(symbol string, cfg Config, logger *slog.Logger) *Detector {
	th, ok := sensitivityThresholds[cfg.Sensitivity]
	if !ok {
		th = sensitivityThresholds["medium"]
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 60 * time.Second
	}
	if cfg.PriceTolerance <= 0 {
		cfg.PriceTolerance = 0.002
	}
	if cfg.RefreshGap <= 0 {
		cfg.RefreshGap = 10 * time.Second
	}
	return &Detector{
		symbol:    symbol,
		cfg:       cfg,
		th:        th,
		logger:    logger.With(slog.String("component", "hidden_detector"), slog.String("symbol", symbol)),
		sizes:     make(map[levelKey][]sizeObs),
		lastSeen:  make(map[levelKey]sizeObs),
		refreshes: make(map[levelKey]*refreshTrack),
		active:    make(map[string]*domain.HiddenOrderAlert),
	}
}

// ObserveTrade records one time & sales print.
func (d *Detector) ObserveTrade(tp domain.TradePrint) {
	d.advance(tp.Timestamp)
	d.trades = append(d.trades, tp)
}

// ObserveBook records one book snapshot, updates refill tracking, and
// re-evaluates absorption and iceberg patterns. The active alert set is
// re-evaluated on every observation, so expiry is a sliding-window decay
// rather than a one-shot event.
func (d *Detector) ObserveBook(snap domain.OrderBookSnapshot) {
	d.advance(snap.Timestamp)

	if len(snap.Bids) > 0 {
		d.bestBids = append(d.bestBids, pricePoint{ts: snap.Timestamp, price: snap.BestBid})
	}
	if len(snap.Asks) > 0 {
		d.bestAsks = append(d.bestAsks, pricePoint{ts: snap.Timestamp, price: snap.BestAsk})
	}

	present := make(map[levelKey]bool, len(snap.Bids)+len(snap.Asks))
	d.observeSide(domain.SideBid, snap.Bids, snap.Timestamp, present)
	d.observeSide(domain.SideAsk, snap.Asks, snap.Timestamp, present)

	// Levels that were displayed on the previous snapshot and are now gone
	// (or zero) have been fully consumed: start a refill watch.
	for key, obs := range d.lastSeen {
		if present[key] {
			continue
		}
		tr := d.refreshes[key]
		if tr == nil {
			tr = &refreshTrack{}
			d.refreshes[key] = tr
		}
		tr.lastSize = obs.size
		tr.depletedAt = snap.Timestamp
		delete(d.lastSeen, key)
	}

	d.evalAbsorption(snap)
}

// observeSide updates size histories and refill counters for one side.
func (d *Detector) observeSide(side domain.Side, levels []domain.PriceLevel, ts time.Time, present map[levelKey]bool) {
	for _, lvl := range levels {
		if lvl.Size <= 0 {
			continue
		}
		key := keyOf(side, lvl.Price)
		present[key] = true

		if tr, ok := d.refreshes[key]; ok && !tr.depletedAt.IsZero() {
			gap := ts.Sub(tr.depletedAt)
			if gap <= d.cfg.RefreshGap && materiallySame(lvl.Size, tr.lastSize) {
				tr.count++
				tr.lastRefresh = ts
				tr.depletedAt = time.Time{}
				d.onRefresh(side, lvl, tr, ts)
			} else if gap > d.cfg.RefreshGap {
				// Too slow to be an automatic repost; restart the cycle.
				tr.depletedAt = time.Time{}
			}
		}

		d.lastSeen[key] = sizeObs{ts: ts, size: lvl.Size}
		hist := append(d.sizes[key], sizeObs{ts: ts, size: lvl.Size})
		if len(hist) > maxSizeObs {
			hist = hist[len(hist)-maxSizeObs:]
		}
		d.sizes[key] = hist
	}
}

func materiallySame(a, b int64) bool {
	if b == 0 {
		return false
	}
	diff := math.Abs(float64(a - b))
	return diff <= sizeTolerance*float64(b)
}

// onRefresh updates or creates the iceberg alert for a refilled level.
func (d *Detector) onRefresh(side domain.Side, lvl domain.PriceLevel, tr *refreshTrack, ts time.Time) {
	if tr.count < d.th.minRefresh {
		return
	}

	strength := domain.StrengthMedium
	if tr.count >= d.th.minRefresh+2 {
		strength = domain.StrengthHigh
	}
	evidence := fmt.Sprintf("level %.2f refilled %d times at ~%d displayed", lvl.Price, tr.count, lvl.Size)

	id := fmt.Sprintf("%s:%s:%.4f", domain.AlertIceberg, side, lvl.Price)
	if a, ok := d.active[id]; ok {
		a.Strength = strength
		a.RefreshCount = tr.count
		a.LastEvidence = ts
		a.Evidence = appendEvidence(a.Evidence, evidence)
		return
	}
	d.active[id] = &domain.HiddenOrderAlert{
		ID:           uuid.NewString(),
		Kind:         domain.AlertIceberg,
		Symbol:       d.symbol,
		Price:        lvl.Price,
		Side:         side,
		Strength:     strength,
		Evidence:     []string{evidence},
		RefreshCount: tr.count,
		DetectedAt:   ts,
		LastEvidence: ts,
	}
	d.logger.Info("iceberg detected",
		slog.String("side", string(side)),
		slog.Float64("price", lvl.Price),
		slog.Int("refills", tr.count),
	)
}

// evalAbsorption checks both sides of the book for the absorption pattern:
// heavy opposite-side flow into a level whose price holds and whose displayed
// size keeps getting replenished.
func (d *Detector) evalAbsorption(snap domain.OrderBookSnapshot) {
	if len(snap.Bids) > 0 {
		d.persistBuy = d.evalAbsorptionSide(
			domain.AlertHiddenBuyer, domain.SideBid, snap.Bids[0],
			d.bestBids, domain.TradeSell, d.persistBuy, snap.Timestamp,
		)
	}
	if len(snap.Asks) > 0 {
		d.persistSell = d.evalAbsorptionSide(
			domain.AlertHiddenSeller, domain.SideAsk, snap.Asks[0],
			d.bestAsks, domain.TradeBuy, d.persistSell, snap.Timestamp,
		)
	}
}

func (d *Detector) evalAbsorptionSide(
	kind domain.AlertKind,
	side domain.Side,
	top domain.PriceLevel,
	history []pricePoint,
	aggressor domain.TradeSide,
	persist int,
	ts time.Time,
) int {
	if len(history) < 2 || top.Size <= 0 {
		return 0
	}

	first, last := history[0].price, history[len(history)-1].price
	drift := (last - first) / first

	// Price giving way in the direction of the flow vetoes absorption: the
	// level is simply being eaten through.
	if side == domain.SideBid && drift < -d.cfg.PriceTolerance {
		return 0
	}
	if side == domain.SideAsk && drift > d.cfg.PriceTolerance {
		return 0
	}

	absorbed := d.flowInto(top.Price, aggressor, side)
	avg := d.avgSize(keyOf(side, top.Price), top.Size)
	if avg <= 0 {
		return 0
	}
	ratio := absorbed / avg

	// Displayed size collapsing proportionally to the flow means no hidden
	// counterparty is refreshing it.
	if float64(top.Size) < replenishRatio*avg {
		return 0
	}
	if ratio < d.th.volumeMult {
		return 0
	}

	persist++
	strength := domain.StrengthLow
	switch {
	case persist >= 3 || ratio >= 2*d.th.volumeMult:
		strength = domain.StrengthHigh
	case persist >= 2 || ratio >= 1.5*d.th.volumeMult:
		strength = domain.StrengthMedium
	}
	// Price improving against the flow is the strongest tell.
	if (side == domain.SideBid && drift > 0) || (side == domain.SideAsk && drift < 0) {
		strength = domain.StrengthHigh
	}

	evidence := fmt.Sprintf("absorbed %.0f against ~%.0f displayed at %.2f (%.1fx)", absorbed, avg, top.Price, ratio)

	id := string(kind)
	if a, ok := d.active[id]; ok {
		a.Price = top.Price
		a.Strength = strength
		a.LastEvidence = ts
		a.Evidence = appendEvidence(a.Evidence, evidence)
		return persist
	}
	d.active[id] = &domain.HiddenOrderAlert{
		ID:           uuid.NewString(),
		Kind:         kind,
		Symbol:       d.symbol,
		Price:        top.Price,
		Side:         side,
		Strength:     strength,
		Evidence:     []string{evidence},
		DetectedAt:   ts,
		LastEvidence: ts,
	}
	d.logger.Info("absorption detected",
		slog.String("kind", string(kind)),
		slog.Float64("price", top.Price),
		slog.Float64("absorbed", absorbed),
		slog.String("strength", string(strength)),
	)
	return persist
}

// flowInto sums aggressor-side trade volume at or through the given level
// price within the current window.
func (d *Detector) flowInto(price float64, aggressor domain.TradeSide, side domain.Side) float64 {
	eps := price * 1e-6
	var sum float64
	for _, tp := range d.trades {
		if tp.Side != aggressor {
			continue
		}
		if side == domain.SideBid && tp.Price <= price+eps {
			sum += float64(tp.Size)
		}
		if side == domain.SideAsk && tp.Price >= price-eps {
			sum += float64(tp.Size)
		}
	}
	return sum
}

// avgSize is the mean displayed size of the level over its window history,
// falling back to the current size when no history exists.
func (d *Detector) avgSize(key levelKey, current int64) float64 {
	hist := d.sizes[key]
	if len(hist) == 0 {
		return float64(current)
	}
	var sum float64
	for _, o := range hist {
		sum += float64(o.size)
	}
	return sum / float64(len(hist))
}

// advance moves logical time forward and runs the eviction pass: stale window
// entries, dead refill watches, and alerts whose evidence went quiet.
func (d *Detector) advance(ts time.Time) {
	if ts.After(d.now) {
		d.now = ts
	}
	cutoff := d.now.Add(-d.cfg.Lookback)

	d.trades = evictTrades(d.trades, cutoff)
	d.bestBids = evictPrices(d.bestBids, cutoff)
	d.bestAsks = evictPrices(d.bestAsks, cutoff)

	for key, hist := range d.sizes {
		i := 0
		for i < len(hist) && hist[i].ts.Before(cutoff) {
			i++
		}
		if i == len(hist) {
			delete(d.sizes, key)
		} else if i > 0 {
			d.sizes[key] = hist[i:]
		}
	}
	for key, tr := range d.refreshes {
		ref := tr.lastRefresh
		if tr.depletedAt.After(ref) {
			ref = tr.depletedAt
		}
		if ref.Before(cutoff) {
			delete(d.refreshes, key)
		}
	}
	for id, a := range d.active {
		if a.LastEvidence.Before(cutoff) {
			d.logger.Debug("alert expired",
				slog.String("kind", string(a.Kind)),
				slog.Float64("price", a.Price),
			)
			delete(d.active, id)
		}
	}
}

func evictTrades(trades []domain.TradePrint, cutoff time.Time) []domain.TradePrint {
	i := 0
	for i < len(trades) && trades[i].Timestamp.Before(cutoff) {
		i++
	}
	return trades[i:]
}

func evictPrices(points []pricePoint, cutoff time.Time) []pricePoint {
	i := 0
	for i < len(points) && points[i].ts.Before(cutoff) {
		i++
	}
	return points[i:]
}

func appendEvidence(ev []string, s string) []string {
	ev = append(ev, s)
	if len(ev) > maxEvidence {
		ev = ev[len(ev)-maxEvidence:]
	}
	return ev
}

// ActiveAlerts returns the current alert set ordered by kind then price.
// Expiry is applied against the latest observed timestamp before returning,
// so a caller polling after a quiet period sees stale alerts dropped even
// though no new evidence arrived.
func (d *Detector) ActiveAlerts() []domain.HiddenOrderAlert {
	if !d.now.IsZero() {
		d.advance(d.now)
	}
	out := make([]domain.HiddenOrderAlert, 0, len(d.active))
	for _, a := range d.active {
		cp := *a
		cp.Evidence = append([]string(nil), a.Evidence...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Price < out[j].Price
	})
	return out
}
