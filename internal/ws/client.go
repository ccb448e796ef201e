// Package ws adapts gorilla/websocket connections to the session manager's
// connection interface.
package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"huddle/internal/ratelimit"
	"huddle/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// A client this far past the rate limit is disconnected outright.
	maxRateLimitWarnings = 1000
)

var (
	// ErrClosed is returned by Send after the connection closed.
	ErrClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned when the outbound buffer is full.
	ErrSlowConsumer = errors.New("send buffer full")
)

// Client is one live WebSocket connection. It satisfies session.Conn: the
// core holds it as an opaque handle, sends to it, and checks whether it is
// open.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	manager *session.Manager
	limiter *ratelimit.Limiter
	maxSize int64
	log     *zap.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// ID returns the stable connection identifier.
func (c *Client) ID() string { return c.id }

// IsOpen reports whether the connection can still accept sends.
func (c *Client) IsOpen() bool { return !c.closed.Load() }

// Send queues data for delivery. It never blocks: a full buffer drops the
// message, which is acceptable under at-most-once delivery.
func (c *Client) Send(data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSlowConsumer
	}
}

// Close tears down the connection. Idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readPump() {
	defer func() {
		c.manager.HandleClose(c)
		c.Close()
	}()

	c.conn.SetReadLimit(c.maxSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("read error", zap.String("connId", c.id), zap.Error(err))
			}
			return
		}

		if !c.limiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				c.log.Warn("rate limit exceeded",
					zap.String("connId", c.id),
					zap.Int("warnings", rateLimitWarnings))
			}
			if rateLimitWarnings > maxRateLimitWarnings {
				c.log.Warn("disconnecting abusive client", zap.String("connId", c.id))
				return
			}
			continue
		}

		c.manager.HandleMessage(c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
