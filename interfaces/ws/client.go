package ws

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mindmesh/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// Client is one connected participant. The read pump decodes and forwards
// frames to the room; the write pump drains the send buffer. A client that
// can't keep up gets disconnected rather than blocking the room.
type Client struct {
	id     string
	userID string
	name   string
	color  string
	avatar string
	role   string

	conn   *websocket.Conn
	send   chan []byte
	room   *Room
	logger *zap.Logger
}

func newClient(id string, conn *websocket.Conn, room *Room, logger *zap.Logger) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		room:   room,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With(zap.String("clientID", id)),
	}
}

// ID returns the room-scoped client id
func (c *Client) ID() string { return c.id }

// enqueue hands a frame to the write pump. Returns false when the buffer is
// full; the caller decides whether that disconnects the client.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.room.unregister <- c:
		case <-c.room.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Client read failed", zap.Error(err))
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownMessageType) {
				c.logger.Debug("Dropping unknown message from client", zap.Error(err))
			} else {
				c.logger.Warn("Dropping malformed message from client", zap.Error(err))
			}
			continue
		}

		// The authority, not the client, decides attribution and room
		msg.Sender = c.id
		msg.Room = c.room.id

		select {
		case c.room.inbound <- inboundFrame{client: c, msg: msg}:
		case <-c.room.done:
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
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
