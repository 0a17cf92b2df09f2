// Package alerts streams session events to websocket observers.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// Connection represents a single WebSocket observer. Send is never closed;
// Done is closed once the hub has dropped the connection.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// Hub fans events out to the connections watching each session.
type Hub struct {
	connections map[string]*Connection

	// sessions maps session_id to the set of watching connection IDs
	sessions map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *SessionMessage
	done       chan struct{}

	mu sync.RWMutex
}

// SessionMessage is a payload addressed to one session's observers.
type SessionMessage struct {
	SessionID string
	Data      []byte
}

// Message is the envelope written to observers.
type Message struct {
	Type      string        `json:"type"`
	Ts        int64         `json:"ts"`
	SessionID string        `json:"session_id"`
	Alert     bool          `json:"alert,omitempty"`
	Event     *domain.Event `json:"event,omitempty"`
}

const (
	TypeWatching = "watching"
	TypeEvent    = "event"
	TypePong     = "pong"
)

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *SessionMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done. It must be
// called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, conn := range h.connections {
				conn.shutdown()
			}
			h.connections = make(map[string]*Connection)
			h.sessions = make(map[string]map[string]bool)
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.sessions[conn.SessionID] == nil {
				h.sessions[conn.SessionID] = make(map[string]bool)
			}
			h.sessions[conn.SessionID][conn.ID] = true
			h.mu.Unlock()
			slog.Debug("observer registered", "conn_id", conn.ID, "session_id", conn.SessionID)

		case conn := <-h.unregister:
			h.remove(conn)
			slog.Debug("observer unregistered", "conn_id", conn.ID)

		case msg := <-h.broadcast:
			var slow []*Connection
			h.mu.RLock()
			for connID := range h.sessions[msg.SessionID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					slow = append(slow, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range slow {
				slog.Warn("observer buffer full, closing", "conn_id", conn.ID)
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if h.sessions[conn.SessionID] != nil {
		delete(h.sessions[conn.SessionID], conn.ID)
		if len(h.sessions[conn.SessionID]) == 0 {
			delete(h.sessions, conn.SessionID)
		}
	}
	conn.shutdown()
}

// NewConnection creates a connection watching sessionID. It is not
// registered until Register is called.
func (h *Hub) NewConnection(ws *websocket.Conn, sessionID string) *Connection {
	return &Connection{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Conn:      ws,
		Send:      make(chan []byte, 256),
		done:      make(chan struct{}),
	}
}

// Register registers a connection with the hub. Once the hub has stopped
// the connection is shut down instead.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.shutdown()
	}
}

// Unregister unregisters a connection from the hub. It does not block once
// the hub has stopped.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Broadcast queues data for every observer of sessionID. When the queue is
// full the message is dropped; the event log still has it.
func (h *Hub) Broadcast(sessionID string, data []byte) {
	select {
	case h.broadcast <- &SessionMessage{SessionID: sessionID, Data: data}:
	default:
		slog.Warn("alert queue full, dropping message", "session_id", sessionID)
	}
}

// Publish implements the service's event sink.
func (h *Hub) Publish(event domain.Event) {
	data, err := json.Marshal(Message{
		Type:      TypeEvent,
		Ts:        time.Now().UnixMilli(),
		SessionID: event.SessionID,
		Alert:     event.Type == domain.EventTypePositionOutOfRange,
		Event:     &event,
	})
	if err != nil {
		slog.Error("failed to marshal alert", "error", err)
		return
	}
	h.Broadcast(event.SessionID, data)
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-conn.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Done is closed once the hub has dropped the connection.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

// ErrConnectionClosed is returned when the hub has dropped the connection.
var ErrConnectionClosed = errors.New("connection closed")

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}
