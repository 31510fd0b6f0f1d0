package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/storyloop/backend/internal/auth"
	"github.com/storyloop/backend/internal/notify"
	"github.com/storyloop/backend/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now (adjust for production)
	},
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

var (
	errClientClosed = errors.New("client closed")
	errClientSlow   = errors.New("client send buffer full")
)

// Client is one live websocket connection. It buffers outbound events in a
// channel drained by its write pump; a full buffer fails the send so the
// registry prunes the connection instead of blocking on it.
type Client struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan notify.Event
	done   chan struct{}
	once   sync.Once
}

func newClient(userID uuid.UUID, conn *websocket.Conn) *Client {
	return &Client{
		userID: userID,
		conn:   conn,
		send:   make(chan notify.Event, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Send queues an event for delivery. Never blocks.
func (c *Client) Send(event notify.Event) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- event:
		return nil
	default:
		return errClientSlow
	}
}

// Close stops the write pump; the underlying connection is closed by the
// pumps on their way out.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

var _ notify.Conn = (*Client)(nil)

// WSHandler upgrades websocket connections and registers them for
// real-time event delivery.
type WSHandler struct {
	registry   *notify.Registry
	jwtManager *auth.JWTManager
	logger     *zap.Logger
}

func NewWSHandler(registry *notify.Registry, jwtManager *auth.JWTManager, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		registry:   registry,
		jwtManager: jwtManager,
		logger:     logger,
	}
}

// HandleWebSocket authenticates via the token query parameter (browsers
// cannot set headers on websocket dials), upgrades, and runs the client
// pumps until the peer goes away.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		response.Unauthorized(w, "missing token")
		return
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		response.Unauthorized(w, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(claims.UserID, conn)
	h.registry.Connect(claims.UserID, client)

	_ = client.Send(notify.Event{
		Event:     "connection.established",
		Data:      map[string]any{"user_id": claims.UserID.String()},
		Timestamp: time.Now().UTC(),
	})

	go client.writePump(h.logger)
	go client.readPump(h.registry, h.logger)
}

// readPump discards inbound frames (the protocol is server push only) and
// tears the client down when the peer disconnects.
func (c *Client) readPump(registry *notify.Registry, logger *zap.Logger) {
	defer func() {
		registry.Disconnect(c.userID, c)
		_ = c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump drains the send buffer onto the wire and keeps the connection
// alive with pings.
func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				logger.Debug("websocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Status reports how many users and connections are currently live.
func (h *WSHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]int{
		"connected_users":   len(h.registry.ConnectedUsers()),
		"total_connections": h.registry.TotalConnections(),
	})
}
