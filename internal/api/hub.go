// Package api provides the HTTP and WebSocket surface for the engine.
package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vectorquant/strategy-engine/pkg/types"
)

// MessageType defines WebSocket message types.
type MessageType string

const (
	MsgTypeSessionEvent MessageType = "session_event"
	MsgTypeTradeUpdate  MessageType = "trade_update"
	MsgTypeHeartbeat    MessageType = "heartbeat"

	MsgTypeSubscribe   MessageType = "subscribe"
	MsgTypeUnsubscribe MessageType = "unsubscribe"
)

// WSMessage is a WebSocket message envelope.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SessionEventPayload is the data carried by session_event messages.
type SessionEventPayload struct {
	Event     types.NotificationEvent   `json:"event"`
	SessionID string                    `json:"sessionId"`
	OwnerID   string                    `json:"ownerId"`
	Symbol    string                    `json:"symbol"`
	Status    types.SessionStatus       `json:"status"`
	Summary   *types.PerformanceSummary `json:"summary,omitempty"`
}

// Client is one WebSocket connection.
type Client struct {
	id            string
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]bool
	mu            sync.RWMutex
}

// Hub fans session lifecycle and trade events out to WebSocket
// subscribers. Clients subscribe to "sessions", "sessions:<id>",
// "trades", or "trades:<symbol>".
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	channels   map[string]map[*Client]bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHub creates a WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger.Named("ws"),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		channels:   make(map[string]map[*Client]bool),
		stopCh:     make(chan struct{}),
	}
}

// Run processes registration and heartbeats until Stop is called.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("id", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				for channel := range client.subscriptions {
					if clients, ok := h.channels[channel]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.channels, channel)
						}
					}
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("id", client.id))

		case <-ticker.C:
			h.heartbeat()
		}
	}
}

// Stop halts the Run loop and its heartbeat ticker.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *Hub) heartbeat() {
	data, _ := json.Marshal(WSMessage{
		Type:      MsgTypeHeartbeat,
		Timestamp: time.Now().UnixMilli(),
	})

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// Subscribe adds a client to a channel.
func (h *Hub) Subscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true

	client.mu.Lock()
	client.subscriptions[channel] = true
	client.mu.Unlock()
}

// Unsubscribe removes a client from a channel.
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.channels[channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}

	client.mu.Lock()
	delete(client.subscriptions, channel)
	client.mu.Unlock()
}

// Publish sends a message to every subscriber of a channel. Slow
// clients drop messages rather than blocking the hub.
func (h *Hub) Publish(channel string, msgType MessageType, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal message data", zap.Error(err))
		return
	}
	msgBytes, err := json.Marshal(WSMessage{
		Type:      msgType,
		Channel:   channel,
		Data:      payload,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.channels[channel] {
		select {
		case client.send <- msgBytes:
		default:
		}
	}
}

// BroadcastSessionEvent publishes a lifecycle event on the session
// channels.
func (h *Hub) BroadcastSessionEvent(event types.NotificationEvent, s *types.TradingSession) {
	payload := SessionEventPayload{
		Event:     event,
		SessionID: s.ID,
		OwnerID:   s.OwnerID,
		Symbol:    s.Symbol,
		Status:    s.Status,
		Summary:   s.Summary,
	}
	h.Publish("sessions", MsgTypeSessionEvent, payload)
	h.Publish("sessions:"+s.ID, MsgTypeSessionEvent, payload)
}

// BroadcastTrade publishes an executed trade on the trade channels.
func (h *Hub) BroadcastTrade(trade *types.Trade) {
	h.Publish("trades", MsgTypeTradeUpdate, trade)
	h.Publish("trades:"+trade.Symbol, MsgTypeTradeUpdate, trade)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient creates a client for an upgraded connection.
func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:            id,
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
	}
}

// ReadPump reads subscribe/unsubscribe requests until the connection
// closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket read error", zap.Error(err))
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.logger.Warn("invalid websocket message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case MsgTypeSubscribe:
			c.hub.Subscribe(c, msg.Channel)
		case MsgTypeUnsubscribe:
			c.hub.Unsubscribe(c, msg.Channel)
		}
	}
}

// WritePump writes queued messages and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
