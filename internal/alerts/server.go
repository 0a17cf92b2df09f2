package alerts

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/sessiongate/internal/auth"
	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// Config holds websocket timing.
type Config struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

// WatchAuthorizer decides whether caller may watch sessionID.
type WatchAuthorizer func(ctx context.Context, sessionID string, caller domain.Identity) error

// Server upgrades watch requests and pumps messages.
type Server struct {
	cfg       Config
	hub       *Hub
	authorize WatchAuthorizer
	upgrader  websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg Config, h *Hub, authorize WatchAuthorizer) *Server {
	return &Server{
		cfg:       cfg,
		hub:       h,
		authorize: authorize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWatch serves GET /v1/sessions/:id/watch. The route must sit behind
// auth.Middleware.
func (s *Server) HandleWatch(c echo.Context) error {
	sessionID := c.Param("id")
	caller, ok := auth.Caller(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized)
	}
	if err := s.authorize(c.Request().Context(), sessionID, caller); err != nil {
		return err
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("failed to upgrade websocket", "error", err)
		return nil
	}

	conn := s.hub.NewConnection(ws, sessionID)
	s.hub.Register(conn)
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	s.hub.SendJSONToConnection(conn, Message{
		Type:      TypeWatching,
		Ts:        time.Now().UnixMilli(),
		SessionID: sessionID,
	})
	return nil
}

// readPump drains client frames. Observers only send pings.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error", "conn_id", conn.ID, "error", err)
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Type == "ping" {
			s.hub.SendJSONToConnection(conn, Message{Type: TypePong, Ts: time.Now().UnixMilli(), SessionID: conn.SessionID})
		}
	}
}

func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-conn.Done():
			conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Warn("failed to write message", "conn_id", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
