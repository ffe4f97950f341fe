// Package depthwire is the WebSocket client for the market-data bridge that
// streams Level 2 depth updates, trade prints, and feed status messages.
package depthwire

import (
	"fmt"
	"time"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

// Command is an outbound control message.
type Command struct {
	Type    string   `json:"type"` // "subscribe" | "unsubscribe"
	Symbols []string `json:"symbols"`
}

// DepthMessage is one incremental depth update as sent by the bridge.
// Operation uses the bridge's integer codes: 0 insert, 1 update, 2 delete.
type DepthMessage struct {
	Type      string  `json:"type"` // "depth"
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"` // "BID" | "ASK"
	Position  int     `json:"position"`
	Operation int     `json:"operation"`
	Price     float64 `json:"price"`
	Size      int64   `json:"size"`
	Exchange  string  `json:"exchange,omitempty"`
	TsMillis  int64   `json:"ts"`
}

// TradeMessage is one time & sales print.
type TradeMessage struct {
	Type     string  `json:"type"` // "trade"
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Size     int64   `json:"size"`
	Side     string  `json:"side"` // "BUY" | "SELL"
	TsMillis int64   `json:"ts"`
}

// StatusMessage reports the bridge's upstream connectivity.
type StatusMessage struct {
	Type     string `json:"type"` // "status"
	Symbol   string `json:"symbol,omitempty"`
	State    string `json:"state"` // "connected" | "disconnected" | "reconnecting"
	Detail   string `json:"detail,omitempty"`
	TsMillis int64  `json:"ts"`
}

// ToDomain converts a wire depth message into the domain event.
func (m *DepthMessage) ToDomain() (domain.DepthEvent, error) {
	var op domain.Operation
	switch m.Operation {
	case 0:
		op = domain.OpInsert
	case 1:
		op = domain.OpUpdate
	case 2:
		op = domain.OpDelete
	default:
		return domain.DepthEvent{}, fmt.Errorf("depthwire: operation %d: %w", m.Operation, domain.ErrMalformedEvent)
	}
	return domain.DepthEvent{
		Symbol:    m.Symbol,
		Side:      domain.Side(m.Side),
		Position:  m.Position,
		Operation: op,
		Price:     m.Price,
		Size:      m.Size,
		Exchange:  m.Exchange,
		Timestamp: fromMillis(m.TsMillis),
	}, nil
}

// ToDomain converts a wire trade message into the domain print.
func (m *TradeMessage) ToDomain() domain.TradePrint {
	return domain.TradePrint{
		Symbol:    m.Symbol,
		Price:     m.Price,
		Size:      m.Size,
		Side:      domain.TradeSide(m.Side),
		Timestamp: fromMillis(m.TsMillis),
	}
}

// ToDomain converts a wire status message into the domain event.
func (m *StatusMessage) ToDomain() domain.StatusEvent {
	return domain.StatusEvent{
		Symbol:    m.Symbol,
		State:     domain.ConnState(m.State),
		Detail:    m.Detail,
		Timestamp: fromMillis(m.TsMillis),
	}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
