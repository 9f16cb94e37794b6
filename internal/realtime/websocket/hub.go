package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

// Message types sent to clients
const (
	MessageTypeChange       = "change"
	MessageTypeNotification = "notification"
	MessageTypeStatus       = "status"
	MessageTypePresence     = "presence"
)

// Message is the envelope written to every client
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	Target    string      `json:"target,omitempty"`
}

// presence is what a client may send to declare the projects it has open
type presence struct {
	Type       string   `json:"type"`
	ProjectIDs []string `json:"project_ids"`
}

// Connection is one WebSocket client bound to one change subscription
type Connection struct {
	ID          string
	UserID      string
	ProjectIDs  []string
	ConnectedAt time.Time
	Conn        *websocket.Conn
	Send        chan Message

	sub    *realtime.Subscription
	mu     sync.Mutex
	closed bool
}

// Hub tracks connections and routes changes and notifications to them
type Hub struct {
	broker   *realtime.Broker
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewHub creates a hub that subscribes each connection on broker
func NewHub(broker *realtime.Broker, allowedOrigins []string, logger *zap.Logger) *Hub {
	return &Hub{
		broker:      broker,
		logger:      logger,
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Serve subscribes to filter and upgrades the request. The subscription
// exists before the handshake completes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string, filter realtime.Filter) (*Connection, error) {
	sub := h.broker.Subscribe(filter)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		Conn:        conn,
		Send:        make(chan Message, sendBuffer),
		sub:         sub,
	}
	if filter.Column == "project_id" {
		c.ProjectIDs = []string{filter.Value}
	}

	h.mu.Lock()
	h.connections[c.ID] = c
	h.mu.Unlock()

	h.logger.Info("Realtime client connected",
		zap.String("connection_id", c.ID),
		zap.String("user_id", userID),
		zap.String("filter", filter.String()),
	)

	go h.forward(c)
	go h.writePump(c)
	go h.readPump(c)
	return c, nil
}

// forward copies the subscription into the send buffer until it closes
func (h *Hub) forward(c *Connection) {
	for change := range c.sub.C {
		h.trySend(c, Message{Type: MessageTypeChange, Data: change, Timestamp: change.At})
	}
}

// readPump handles presence messages and detects disconnects
func (h *Hub) readPump(c *Connection) {
	defer h.remove(c)

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg presence
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Realtime client read failed", zap.String("connection_id", c.ID), zap.Error(err))
			}
			return
		}
		if msg.Type != MessageTypePresence {
			continue
		}

		c.mu.Lock()
		c.ProjectIDs = append([]string(nil), msg.ProjectIDs...)
		c.mu.Unlock()

		h.trySend(c, Message{
			Type:      MessageTypeStatus,
			Data:      map[string]interface{}{"status": "connected", "connection_id": c.ID},
			Timestamp: time.Now(),
			Target:    c.UserID,
		})
	}
}

// writePump writes queued messages and keeps the connection alive
func (h *Hub) writePump(c *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remove unsubscribes c and closes its send buffer once
func (h *Hub) remove(c *Connection) {
	h.mu.Lock()
	_, ok := h.connections[c.ID]
	delete(h.connections, c.ID)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.sub.Unsubscribe()
	c.mu.Lock()
	c.closed = true
	close(c.Send)
	c.mu.Unlock()
	c.Conn.Close()

	h.logger.Info("Realtime client disconnected", zap.String("connection_id", c.ID))
}

// trySend queues msg without blocking and reports whether it was queued
func (h *Hub) trySend(c *Connection, msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		h.logger.Warn("Realtime client buffer full, dropping message", zap.String("connection_id", c.ID))
		return false
	}
}

// SendToUser queues msg for every connection of userID
func (h *Hub) SendToUser(userID string, msg Message) error {
	msg.Target = userID
	sent := 0
	for _, c := range h.snapshot() {
		if c.UserID == userID && h.trySend(c, msg) {
			sent++
		}
	}
	if sent == 0 {
		return fmt.Errorf("user %s not connected", userID)
	}
	return nil
}

// SendToProject queues msg for every connection that has projectID open
func (h *Hub) SendToProject(projectID string, msg Message) error {
	msg.Target = projectID
	sent := 0
	for _, c := range h.snapshot() {
		c.mu.Lock()
		member := contains(c.ProjectIDs, projectID)
		c.mu.Unlock()
		if member && h.trySend(c, msg) {
			sent++
		}
	}
	if sent == 0 {
		return fmt.Errorf("no users connected to project %s", projectID)
	}
	return nil
}

// ConnectionCount returns the number of open connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Close disconnects every client
func (h *Hub) Close() {
	for _, c := range h.snapshot() {
		h.remove(c)
	}
}

func (h *Hub) snapshot() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		out = append(out, c)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || contains(allowed, origin)
	}
}
