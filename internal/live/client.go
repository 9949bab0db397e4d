package live

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Timing constants for the WebSocket pumps.
const (
	// writeWait is the deadline for a single write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before declaring the
	// peer dead.
	pongWait = 60 * time.Second

	// pingPeriod is how often to ping. Must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound control messages.
	maxMessageSize = 4096
)

// Client is one WebSocket connection attached to the hub.
//
// Each client runs two goroutines: a read pump that feeds control
// messages to the hub, and a write pump that drains the send buffer to
// the peer. The hub never touches the connection directly; it only
// queues onto send.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	// send buffers outbound frames. The hub closes it on unregister,
	// which stops the write pump.
	send chan []byte

	// rooms tracks joined device rooms for cleanup on disconnect.
	// Guarded by hub.mu.
	rooms map[string]struct{}
}

// NewClient attaches a connection to the hub and starts its pumps.
//
// Parameters:
//   - hub: The hub to register with
//   - conn: An upgraded WebSocket connection
//   - sendBuffer: Outbound queue depth before events get dropped
func NewClient(hub *Hub, conn *websocket.Conn, sendBuffer int) *Client {
	c := &Client{
		id:    uuid.NewString(),
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		rooms: make(map[string]struct{}),
	}

	hub.Register(c)

	go c.writePump()
	go c.readPump()

	return c
}

// ID returns the client's connection identifier.
func (c *Client) ID() string {
	return c.id
}

// readPump reads control messages until the connection drops, then
// unregisters the client. One goroutine per client.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close() //nolint:errcheck // Best effort cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error",
					"client_id", c.id,
					"error", err)
			}
			return
		}

		c.hub.handleMessage(c, raw)
	}
}

// writePump drains the send buffer to the peer and keeps the
// connection alive with pings. One goroutine per client; exits when
// the hub closes the send channel.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // Best effort cleanup
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
