package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/blood8879/turtle-canslim/internal/events"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSMessage is the envelope every server push carries over /stream.
type WSMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client is one WebSocket connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans every published trading event out to every connected client.
// One Hub per server; Subscribe it to the EventBus once at startup.
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub builds a Hub and subscribes it to every event on bus.
func NewHub(logger *zap.Logger, bus *events.EventBus) *Hub {
	h := &Hub{
		logger:     logger.Named("ws_hub"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
	bus.SubscribeAll(func(event events.Event) error {
		h.broadcastEvent(event)
		return nil
	})
	return h
}

func (h *Hub) broadcastEvent(event events.Event) {
	recordEventMetrics(event)

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("event_marshal_failed", zap.Error(err))
		return
	}
	msg := WSMessage{Type: string(event.GetType()), Data: data, Timestamp: event.GetTimestamp().UnixMilli()}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("message_marshal_failed", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("broadcast_channel_full_dropping_event")
	}
}

// recordEventMetrics updates the Prometheus counters for event types the
// trading core publishes signal/order/risk outcomes through. Every event
// passes through broadcastEvent, so this is the single counting point.
func recordEventMetrics(event events.Event) {
	switch e := event.(type) {
	case *events.SignalEvent:
		signalsTotal.WithLabelValues(e.SignalType).Inc()
	case *events.OrderEvent:
		ordersTotal.WithLabelValues(e.Side).Inc()
	case *events.RiskAlertEvent:
		if e.AlertType == "execution_failed" {
			executionFailuresTotal.WithLabelValues(e.AlertType).Inc()
		}
	}
}

// Run drives the hub's register/unregister/broadcast loop; call in its own
// goroutine for the lifetime of the server.
func (h *Hub) Run() {
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			wsClientsConnected.Set(float64(h.ClientCount()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			wsClientsConnected.Set(float64(h.ClientCount()))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()

		case <-heartbeat.C:
			msg := WSMessage{Type: "heartbeat", Timestamp: time.Now().UnixMilli()}
			data, _ := json.Marshal(msg)
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient wraps an upgraded connection and registers it with the hub.
func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{id: id, hub: hub, conn: conn, send: make(chan []byte, 256)}
	hub.register <- c
	return c
}

// ReadPump drains (and discards) client frames, keeping the connection's
// read deadline alive via pong handling; the stream is server-push only, so
// the only inbound traffic expected is pings/closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("ws_read_error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
	}
}

// WritePump drains the client's send channel to the socket, pinging on idle.
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
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
