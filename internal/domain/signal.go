package domain

import "time"

// Direction is the directional lean of a trading signal.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// SignalInputs is a compact record of the inputs a signal was derived from,
// kept with the signal so every output can be explained after the fact.
type SignalInputs struct {
	QueueImbalance float64
	Pressure       float64
	SpreadBps      float64
	Microprice     float64
	ActiveAlerts   int
	TrackedLevels  int
	Session        Session
}

// Signal is the composite directional output. It is a pure function of the
// snapshot, active alerts, tracked levels, and session it was generated from.
type Signal struct {
	ID          string
	Symbol      string
	Direction   Direction
	Confidence  float64 // 0..100
	Reasons     []string
	Inputs      SignalInputs
	GeneratedAt time.Time
}

// MarketState is the full derived state for one symbol, published atomically
// by the pipeline after every processed event. Readers receive an immutable
// value and must not mutate the contained slices.
type MarketState struct {
	Symbol    string
	Snapshot  OrderBookSnapshot
	Alerts    []HiddenOrderAlert
	Levels    []SupportResistanceLevel
	Signal    Signal
	Session   Session
	Conn      ConnState
	UpdatedAt time.Time
}
