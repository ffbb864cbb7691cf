// Package websocket adapts a gorilla/websocket connection to the session's
// channel port. One connection serves one room.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	pkgerrors "mindmesh/pkg/errors"
	"mindmesh/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Channel is a WebSocket-backed ports.Channel. Messages that fail to decode
// are logged and dropped; a single bad frame never takes the transport down.
type Channel struct {
	conn    *websocket.Conn
	logger  *zap.Logger
	inbound chan *protocol.Message

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial connects to the collaboration authority. The header typically carries
// the bearer join token.
func Dial(ctx context.Context, url string, header http.Header, logger *zap.Logger) (*Channel, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			logger.Warn("WebSocket dial rejected",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode),
			)
		}
		return nil, pkgerrors.Wrap(err, "failed to dial authority")
	}
	return NewChannel(conn, logger), nil
}

// NewChannel wraps an established connection and starts its pumps
func NewChannel(conn *websocket.Conn, logger *zap.Logger) *Channel {
	c := &Channel{
		conn:    conn,
		logger:  logger,
		inbound: make(chan *protocol.Message, 64),
		done:    make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.wg.Add(2)
	go c.readPump()
	go c.pingLoop()
	return c
}

// Send transmits one message. Writes are serialized; gorilla connections
// allow at most one concurrent writer.
func (c *Channel) Send(ctx context.Context, msg *protocol.Message) error {
	select {
	case <-c.done:
		return pkgerrors.NewTransportUnavailableError("send")
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return pkgerrors.NewTransportUnavailableError("send").WithCause(err)
	}
	return nil
}

// Receive returns the inbound message stream. Closed on transport shutdown.
func (c *Channel) Receive() <-chan *protocol.Message {
	return c.inbound
}

// Close shuts the transport down. Idempotent.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.conn.Close()
		c.wg.Wait()
	})
	return nil
}

func (c *Channel) readPump() {
	defer c.wg.Done()
	defer close(c.inbound)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("WebSocket read failed", zap.Error(err))
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownMessageType) {
				c.logger.Debug("Dropping unknown message", zap.Error(err))
			} else {
				c.logger.Warn("Dropping malformed message", zap.Error(err))
			}
			continue
		}

		select {
		case c.inbound <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
