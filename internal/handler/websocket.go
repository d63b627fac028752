package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// StatusHub streams terminal delivery statuses to connected chat clients.
type StatusHub struct {
	clients    map[*statusClient]bool
	broadcast  chan *StatusUpdate
	register   chan *statusClient
	unregister chan *statusClient
	logger     *slog.Logger
	mu         sync.RWMutex
}

// statusClient represents one WebSocket client connection
type statusClient struct {
	hub    *StatusHub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	filter *ClientFilter
}

// ClientFilter limits the updates a client receives; a chat client
// typically subscribes to its own recipient ID.
type ClientFilter struct {
	RecipientIDs    []string `json:"recipient_ids,omitempty"`
	ConversationIDs []string `json:"conversation_ids,omitempty"`
}

// StatusUpdate is one terminal status event pushed to clients.
type StatusUpdate struct {
	Type         string                      `json:"type"`
	Notification *domain.PendingNotification `json:"notification"`
	Timestamp    time.Time                   `json:"timestamp"`
}

// subscribeMessage is the subscription request a client sends.
type subscribeMessage struct {
	Action string       `json:"action"`
	Filter ClientFilter `json:"filter"`
}

// NewStatusHub creates a new StatusHub
func NewStatusHub(logger *slog.Logger) *StatusHub {
	return &StatusHub{
		clients:    make(map[*statusClient]bool),
		broadcast:  make(chan *StatusUpdate, 256),
		register:   make(chan *statusClient),
		unregister: make(chan *statusClient),
		logger:     logger.With("component", "status_hub"),
	}
}

// Run starts the hub's main loop
func (h *StatusHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("websocket client connected", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected", "client_id", client.id)

		case update := <-h.broadcast:
			message, err := json.Marshal(update)
			if err != nil {
				h.logger.Error("failed to marshal status update", "error", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				if client.shouldReceive(update.Notification) {
					select {
					case client.send <- message:
					default:
						// Client buffer full, skip
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastStatus broadcasts a notification's terminal status
func (h *StatusHub) BroadcastStatus(notification *domain.PendingNotification) {
	update := &StatusUpdate{
		Type:         "status_update",
		Notification: notification,
		Timestamp:    time.Now().UTC(),
	}

	select {
	case h.broadcast <- update:
	default:
		h.logger.Warn("broadcast channel full, dropping update")
	}
}

// shouldReceive checks if the client subscribed to this notification.
func (c *statusClient) shouldReceive(n *domain.PendingNotification) bool {
	if c.filter == nil {
		return true
	}

	for _, id := range c.filter.RecipientIDs {
		if id == n.RecipientID {
			return true
		}
	}

	for _, id := range c.filter.ConversationIDs {
		if id == n.ConversationID {
			return true
		}
	}

	return len(c.filter.RecipientIDs) == 0 && len(c.filter.ConversationIDs) == 0
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub *StatusHub
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *StatusHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleWebSocket handles WebSocket upgrade and connection
// @Summary WebSocket connection
// @Description Connect to WebSocket for realtime delivery status updates
// @Tags websocket
// @Success 101 {string} string "Switching Protocols"
// @Router /ws [get]
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Error("failed to upgrade websocket", "error", err)
		return
	}

	client := &statusClient{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 256),
		id:   uuid.New().String(),
	}

	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump pumps subscription messages from the connection to the hub
func (c *statusClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			break
		}

		var subMsg subscribeMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			continue
		}

		switch subMsg.Action {
		case "subscribe":
			c.filter = &subMsg.Filter
			c.hub.logger.Info("client subscribed with filter",
				"client_id", c.id,
				"filter", c.filter,
			)
		case "unsubscribe":
			c.filter = nil
		}
	}
}

// writePump pumps status updates from the hub to the connection
func (c *statusClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush queued updates into the same frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
