package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	websocket "github.com/gorilla/websocket"
	domain "github.com/inference-gateway/chatledger/internal/domain"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	money "github.com/inference-gateway/chatledger/internal/money"
	echo "github.com/labstack/echo/v4"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventBuffer       = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ReceiptEvent is the wire form of a billing receipt
type ReceiptEvent struct {
	Type           string    `json:"type"`
	ExchangeID     string    `json:"exchange_id"`
	Identity       string    `json:"identity"`
	ConversationID string    `json:"conversation_id"`
	Model          string    `json:"model"`
	Cost           string    `json:"cost"`
	BalanceAfter   string    `json:"balance_after,omitempty"`
	Failed         bool      `json:"failed"`
	Timestamp      time.Time `json:"timestamp"`
}

type eventClient struct {
	conn     *websocket.Conn
	identity string
	send     chan []byte
}

// EventHub fans billing receipts out to websocket clients. A client may
// filter on one identity with ?identity=. Slow clients drop events.
type EventHub struct {
	mu      sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool
}

// NewEventHub creates an empty hub
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*eventClient]struct{})}
}

// OnReceipt broadcasts a receipt to every matching client
func (h *EventHub) OnReceipt(receipt domain.BillingReceipt) {
	event := ReceiptEvent{
		Type:           "receipt",
		ExchangeID:     receipt.ExchangeID.String(),
		Identity:       receipt.Identity,
		ConversationID: receipt.ConversationID.String(),
		Model:          receipt.ModelName,
		Cost:           money.Format(receipt.Cost),
		Failed:         receipt.Failed,
		Timestamp:      receipt.Timestamp,
	}
	if !receipt.Failed {
		event.BalanceAfter = money.Format(receipt.BalanceAfter)
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("failed to encode receipt event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.identity != "" && c.identity != receipt.Identity {
			continue
		}
		select {
		case c.send <- data:
		default:
			logger.Warn("event client too slow, dropping receipt", "identity", c.identity)
		}
	}
}

// Clients returns the number of connected clients
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve upgrades the request and streams receipts until the client leaves.
// GET /v1/events?identity=ID
func (h *EventHub) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("failed to upgrade to websocket", "error", err)
		return nil
	}

	client := &eventClient{conn: conn, identity: c.QueryParam("identity"), send: make(chan []byte, eventBuffer)}
	if !h.add(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return nil
	}
	logger.Debug("event client connected", "identity", client.identity)

	go h.writeLoop(client)
	h.readLoop(client)
	return nil
}

func (h *EventHub) add(c *eventClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *EventHub) remove(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readLoop discards inbound frames and returns once the peer is gone
func (h *EventHub) readLoop(c *eventClient) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writeLoop(c *eventClient) {
	defer func() {
		if err := c.conn.Close(); err != nil {
			logger.Debug("failed to close websocket", "error", err)
		}
	}()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Debug("event client write failed", "error", err)
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Close disconnects every client and refuses new ones
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
