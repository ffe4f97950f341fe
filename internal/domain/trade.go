package domain

import "time"

// TradeSide is the inferred aggressor side of a trade print.
type TradeSide string

const (
	TradeBuy  TradeSide = "BUY"
	TradeSell TradeSide = "SELL"
)

// TradePrint is a single time & sales entry. Side is inferred from whether
// the trade executed at or through the bid (SELL) or the ask (BUY).
type TradePrint struct {
	Symbol    string
	Price     float64
	Size      int64
	Side      TradeSide
	Timestamp time.Time
}

// ConnState describes the market-data connection status reported by the feed.
type ConnState string

const (
	ConnConnected    ConnState = "connected"
	ConnDisconnected ConnState = "disconnected"
	ConnReconnecting ConnState = "reconnecting"
)

// StatusEvent is a session/connectivity notification from the feed boundary.
type StatusEvent struct {
	Symbol    string
	State     ConnState
	Detail    string
	Timestamp time.Time
}

// Event is the envelope carried on a pipeline's input channel. Exactly one of
// the pointers is non-nil. A single envelope type keeps depth updates, trade
// prints, and status notifications in strict arrival order.
type Event struct {
	Depth  *DepthEvent
	Trade  *TradePrint
	Status *StatusEvent
}

// Symbol returns the instrument the event belongs to.
func (e Event) Symbol() string {
	switch {
	case e.Depth != nil:
		return e.Depth.Symbol
	case e.Trade != nil:
		return e.Trade.Symbol
	case e.Status != nil:
		return e.Status.Symbol
	default:
		return ""
	}
}
