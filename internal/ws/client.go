// Package ws implements the websocket gateway half of the Event Bus
// component (spec.md §4.1/§6): upgrades HTTP to a websocket connection,
// replays a stream's backlog, then pumps live frames to the client.
//
// Grounded on the teacher's internal/gateway/websocket package (Client
// read/write pump shape, ping/pong deadlines) adapted to this engine's
// simpler one-way (server to client) frame model — there is no
// client-to-server action dispatch here, since task/console streams are
// output-only.
package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/kandev/agentexec/internal/obslog"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBufferSize = 256
)

// Client is one websocket connection, implementing bus.Subscriber.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	logger *obslog.Logger
}

// NewClient wraps conn as a bus.Subscriber identified by id.
func NewClient(id string, conn *websocket.Conn, logger *obslog.Logger) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger.WithFields(zap.String("client_id", id)),
	}
}

// ID satisfies bus.Subscriber.
func (c *Client) ID() string { return c.id }

// Send satisfies bus.Subscriber: queues payload for delivery, never
// blocking the publisher. A full send buffer drops the frame and
// reports the error so the bus can drop this subscriber.
func (c *Client) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	default:
		return errClientBufferFull
	}
}

// DeliverBacklog writes frames directly to the connection, bypassing
// the send channel. It must be called before writePump starts: any
// frame published concurrently after Subscribe only ever reaches the
// send channel (via Send), never the connection directly, so writing
// the backlog straight to the connection first — then starting
// writePump to drain whatever Send queued in the meantime — guarantees
// the replay suffix is delivered before any live frame, satisfying the
// "replay then subsequent messages in publication order" invariant
// (spec.md §8.3).
func (c *Client) DeliverBacklog(frames [][]byte) error {
	for _, payload := range frames {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return err
		}
	}
	return nil
}

// CloseWithCode sends a close frame carrying code, then closes the
// underlying connection (used for the subscriber-cap rejection,
// spec.md §4.1: close code 4004).
func (c *Client) CloseWithCode(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.conn.Close()
}

// readPump drains and discards inbound frames (these streams are
// output-only) purely to keep the read deadline/pong handling alive and
// to notice when the peer goes away.
func (c *Client) readPump(onClose func()) {
	defer onClose()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump delivers queued frames and periodic pings until send
// closes or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
