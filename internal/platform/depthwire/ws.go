package depthwire

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// DepthHandler is called for every incremental depth update.
type DepthHandler func(domain.DepthEvent)

// TradeHandler is called for every time & sales print.
type TradeHandler func(domain.TradePrint)

// StatusHandler is called for bridge status messages and for locally detected
// connection transitions (disconnect, reconnecting, reconnected).
type StatusHandler func(domain.StatusEvent)

// Client is a WebSocket client for the depth bridge. It manages the
// connection lifecycle, subscriptions, and dispatches messages to registered
// handlers. Reconnection with exponential backoff is automatic; the client
// resubscribes its tracked symbols after every reconnect.
type Client struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Symbols to restore on reconnect.
	symbols []string

	depthHandlers  []DepthHandler
	tradeHandlers  []TradeHandler
	statusHandlers []StatusHandler
	handlerMu      sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewClient creates a client for the given bridge endpoint, e.g.
// "ws://localhost:9300/depth".
func NewClient(wsURL string) *Client {
	return &Client{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("depthwire: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("depthwire: connect: %w", err)
	}

	c.conn = conn

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()

	// Restore the subscription set after reconnect.
	if len(c.symbols) > 0 {
		if err := c.sendCommand(Command{Type: "subscribe", Symbols: c.symbols}); err != nil {
			return fmt.Errorf("depthwire: restore subscription: %w", err)
		}
	}

	c.emitStatus(domain.StatusEvent{
		State:     domain.ConnConnected,
		Detail:    "bridge connection established",
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// Subscribe registers the symbols with the bridge. The set is remembered and
// restored on reconnect.
func (c *Client) Subscribe(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("depthwire: not connected")
	}
	if err := c.sendCommand(Command{Type: "subscribe", Symbols: symbols}); err != nil {
		return fmt.Errorf("depthwire: subscribe: %w", err)
	}

	known := make(map[string]struct{}, len(c.symbols))
	for _, s := range c.symbols {
		known[s] = struct{}{}
	}
	for _, s := range symbols {
		if _, ok := known[s]; !ok {
			c.symbols = append(c.symbols, s)
		}
	}
	return nil
}

// Unsubscribe removes the symbols from the bridge subscription.
func (c *Client) Unsubscribe(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("depthwire: not connected")
	}
	if err := c.sendCommand(Command{Type: "unsubscribe", Symbols: symbols}); err != nil {
		return fmt.Errorf("depthwire: unsubscribe: %w", err)
	}

	drop := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		drop[s] = struct{}{}
	}
	kept := c.symbols[:0]
	for _, s := range c.symbols {
		if _, ok := drop[s]; !ok {
			kept = append(kept, s)
		}
	}
	c.symbols = kept
	return nil
}

// Close shuts down the connection and stops the read loop.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return c.conn.Close()
	}
	return nil
}

// OnDepth registers a handler for incremental depth updates.
func (c *Client) OnDepth(handler DepthHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.depthHandlers = append(c.depthHandlers, handler)
}

// OnTrade registers a handler for trade prints.
func (c *Client) OnTrade(handler TradeHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.tradeHandlers = append(c.tradeHandlers, handler)
}

// OnStatus registers a handler for connectivity status events.
func (c *Client) OnStatus(handler StatusHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.statusHandlers = append(c.statusHandlers, handler)
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON command. Caller must hold c.mu.
func (c *Client) sendCommand(cmd Command) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages and dispatches them to handlers. On
// disconnect it hands off to reconnect, which restarts the loop.
func (c *Client) readLoop() {
	defer func() {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			c.emitStatus(domain.StatusEvent{
				State:     domain.ConnReconnecting,
				Detail:    err.Error(),
				Timestamp: time.Now().UTC(),
			})
			c.reconnect()
			return // readLoop restarts via reconnect -> Connect
		}

		c.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw message and routes it by its type tag.
func (c *Client) handleMessage(raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return // Silently drop unparseable messages.
	}

	switch envelope.Type {
	case "depth":
		var msg DepthMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		ev, err := msg.ToDomain()
		if err != nil {
			return
		}

		c.handlerMu.RLock()
		handlers := c.depthHandlers
		c.handlerMu.RUnlock()

		for _, h := range handlers {
			h(ev)
		}

	case "trade":
		var msg TradeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		tp := msg.ToDomain()

		c.handlerMu.RLock()
		handlers := c.tradeHandlers
		c.handlerMu.RUnlock()

		for _, h := range handlers {
			h(tp)
		}

	case "status":
		var msg StatusMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		c.emitStatus(msg.ToDomain())
	}
}

func (c *Client) emitStatus(ev domain.StatusEvent) {
	c.handlerMu.RLock()
	handlers := c.statusHandlers
	c.handlerMu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// reconnect re-establishes the connection with exponential backoff. It blocks
// until successful or the client is closed.
func (c *Client) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-c.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
