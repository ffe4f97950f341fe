// Package domain defines the core types shared by every component of the
// Level 2 analyzer: depth events, order-book snapshots, trade prints,
// hidden-order alerts, support/resistance levels, and trading signals.
package domain

import "time"

// Side identifies which side of the book a depth event targets.
type Side string

const (
	SideBid Side = "BID"
	SideAsk Side = "ASK"
)

// Operation is the kind of mutation a depth event applies to a price level.
type Operation int

const (
	OpInsert Operation = iota
	OpUpdate
	OpDelete
)

// String returns the wire name of the operation.
func (op Operation) String() string {
	switch op {
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// DepthEvent is a single incremental Level 2 update. Position is the
// 0-indexed rank from the best price on the event's side. Events for one
// symbol are authoritative in arrival order.
type DepthEvent struct {
	Symbol    string
	Side      Side
	Position  int
	Operation Operation
	Price     float64
	Size      int64
	Exchange  string
	Timestamp time.Time
}

// PriceLevel is one displayed price level on one side of the book.
type PriceLevel struct {
	Price     float64
	Size      int64
	UpdatedAt time.Time
}

// OrderBookSnapshot is an immutable copy of the book at one instant. Bids are
// ordered by descending price, asks by ascending price, each capped at the
// configured depth. Derived fields are zero when the respective side is empty.
type OrderBookSnapshot struct {
	Symbol      string
	Bids        []PriceLevel
	Asks        []PriceLevel
	BestBid     float64
	BestAsk     float64
	BestBidSize int64
	BestAskSize int64
	MidPrice    float64
	Microprice  float64
	Spread      float64
	SpreadBps   float64
	Timestamp   time.Time
}

// HasBothSides reports whether both bid and ask levels are present.
func (s OrderBookSnapshot) HasBothSides() bool {
	return len(s.Bids) > 0 && len(s.Asks) > 0
}
