package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	readLimit  = 8192
)

// Client is one websocket connection of an authenticated user
type Client struct {
	ID     string
	UserID string

	conn *websocket.Conn
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// NewClient wraps conn. conn may be nil for connections driven in tests
// through Outbound.
func NewClient(id, userID string, conn *websocket.Conn, bufferSize int, log *slog.Logger) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		conn:   conn,
		log:    log.With("conn_id", id, "user_id", userID),
		send:   make(chan []byte, bufferSize),
	}
}

// Outbound exposes the queue of encoded events waiting to be written
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// enqueue never blocks. It returns false when the event was dropped.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close stops the outbound queue, which makes WritePump hang up
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump reads frames until the connection fails and hands each to handle
func (c *Client) ReadPump(handle func(frame []byte)) {
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("WebSocket read error", "error", err)
			}
			return
		}
		handle(frame)
	}
}

// WritePump writes queued events and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("WebSocket write error", "error", err)
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
