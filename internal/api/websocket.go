package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ernie/pokearena/internal/domain"
	"github.com/ernie/pokearena/internal/matchmaking"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is one arena connection. It implements presence.Conn.
type wsClient struct {
	id       string
	conn     *websocket.Conn
	identity matchmaking.Identity
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

func newWSClient(conn *websocket.Conn, identity matchmaking.Identity, logger *slog.Logger) *wsClient {
	id := uuid.NewString()
	return &wsClient{
		id:       id,
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		logger:   logger.With("conn", id, "user_id", identity.UserID),
	}
}

// ID returns the connection's unique id
func (c *wsClient) ID() string {
	return c.id
}

// Send queues msg for the write pump. A full buffer closes the connection.
func (c *wsClient) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("send buffer full, closing connection")
		c.Close()
		return false
	}
}

// Close stops the write pump, which closes the socket
func (c *wsClient) Close() {
	c.once.Do(func() { close(c.done) })
}

// handleWebSocket upgrades an authenticated request and joins the arena
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	identity := matchmaking.Identity{UserID: claims.UserID, DisplayName: claims.DisplayName}
	client := newWSClient(conn, identity, r.logger)

	go client.writePump()

	// your_id goes out before the first presence broadcast
	hello, _ := json.Marshal(domain.YourIDMessage{Type: domain.MessageYourID, UserID: identity.UserID})
	client.Send(hello)
	r.presence.Register(identity.UserID, identity.DisplayName, client)

	go r.readPump(client)
}

// readPump feeds inbound messages to matchmaking, one at a time, and
// unregisters the client when the socket closes
func (r *Router) readPump(c *wsClient) {
	ctx, cancel := context.WithCancel(r.ctx)
	defer func() {
		cancel()
		r.presence.Unregister(c.identity.UserID, c)
		c.Close()
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		r.matchmaking.HandleMessage(ctx, c.identity, message)
	}
}

// writePump sends queued messages to the socket, one frame each
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
