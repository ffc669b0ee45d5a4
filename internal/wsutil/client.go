// Package wsutil factors the ping/write-loop plumbing shared by every
// browser-facing WebSocket in this bridge (status, events, history) out of
// a single reusable Client, generalized from the teacher's per-hub client
// (it no longer assumes a single Hub as the only message source).
package wsutil

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait is the maximum time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long the server waits for a pong reply after sending
	// a ping. The connection is closed if no pong arrives in time.
	pongWait = 60 * time.Second

	// pingPeriod is how often the server sends a ping frame to the client.
	// Must be less than pongWait so the client has time to reply.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size in bytes accepted from the client.
	// Clients only send close/pong frames — a small limit is sufficient.
	maxMessageSize = 512

	// SendBufferSize is the default capacity of a Client's outbound buffer.
	SendBufferSize = 32
)

// Upgrader performs the HTTP -> WebSocket protocol upgrade. CheckOrigin
// always returns true — origin validation is left to the reverse proxy.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is a single connected browser-facing WebSocket peer. Run blocks
// running both the read pump (disconnect detection, pong handling) and the
// write pump (JSON message delivery + ping ticks) until the connection
// closes. Callers push values onto Send; closing Send cleanly ends the
// write pump with a close frame.
type Client struct {
	conn   *websocket.Conn
	Send   chan any
	logger *zap.Logger

	// onClose, if set, is called once when the connection ends (either
	// direction), so the caller can unregister this client from whatever
	// broadcast source it was subscribed to.
	onClose func()
}

// Upgrade upgrades an HTTP request to a WebSocket and wraps it in a Client.
func Upgrade(w http.ResponseWriter, r *http.Request, logger *zap.Logger, onClose func()) (*Client, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:    conn,
		Send:    make(chan any, SendBufferSize),
		logger:  logger.With(zap.String("remote_addr", r.RemoteAddr)),
		onClose: onClose,
	}, nil
}

// Run starts the write pump in its own goroutine and runs the read pump on
// the calling goroutine; it blocks until the connection closes.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		if c.onClose != nil {
			c.onClose()
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("ws: failed to set read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warn("ws: unexpected close", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("ws: failed to set write deadline", zap.Error(err))
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn("ws: write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("ws: failed to set write deadline", zap.Error(err))
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("ws: ping error", zap.Error(err))
				return
			}
		}
	}
}
