package transport

import (
	"context"
	"sync"
	"time"

	"github.com/HMasataka/fanout/internal/chat"
	"github.com/HMasataka/fanout/internal/logging"
	ws "github.com/gorilla/websocket"
)

// ConnOptions tunes the per-connection transport behavior.
type ConnOptions struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
}

func DefaultConnOptions() ConnOptions {
	return ConnOptions{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
	}
}

// Conn adapts one websocket connection to the hub's link contract. Writes
// are funneled through a buffered channel drained by a single write pump,
// so Send never touches the socket directly.
type Conn struct {
	ctx      context.Context
	cancel   context.CancelFunc
	conn     *ws.Conn
	logger   *logging.Logger
	options  ConnOptions
	sendChan chan []byte
	mutex    sync.RWMutex
	closed   bool
}

var _ chat.Link = (*Conn)(nil)

func NewConn(conn *ws.Conn, logger *logging.Logger, options ConnOptions) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	return &Conn{
		ctx:      ctx,
		cancel:   cancel,
		conn:     conn,
		logger:   logger,
		options:  options,
		sendChan: make(chan []byte, options.SendBuffer),
	}
}

// Send queues one frame for the write pump. It fails fast when the
// connection is closed, the buffer is full, or ctx expires first.
func (c *Conn) Send(ctx context.Context, message []byte) error {
	if c.Closed() {
		return chat.ErrSessionClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return chat.ErrSessionClosed
	case c.sendChan <- message:
		return nil
	}
}

// Closed reports whether the connection has been torn down.
func (c *Conn) Closed() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.closed
}

// Close tears the connection down, sending a going-away frame with the
// given reason first. Idempotent.
func (c *Conn) Close(reason string) error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil
	}
	c.closed = true
	c.mutex.Unlock()

	deadline := time.Now().Add(c.options.WriteTimeout)
	msg := ws.FormatCloseMessage(ws.CloseGoingAway, reason)
	if err := c.conn.WriteControl(ws.CloseMessage, msg, deadline); err != nil {
		c.logger.Debug("failed to write close frame", "error", err)
	}

	c.cancel()
	return c.conn.Close()
}

// WritePump drains the send channel onto the socket and keeps the
// connection alive with pings. Runs until Close or a write error.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(c.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := c.conn.WriteMessage(ws.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error", "error", err)
				c.Close("write failed")
				return
			}

			n := len(c.sendChan)
			for range n {
				select {
				case msg := <-c.sendChan:
					if err := c.conn.WriteMessage(ws.TextMessage, msg); err != nil {
						c.logger.Debug("websocket write error", "error", err)
						c.Close("write failed")
						return
					}
				default:
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				c.logger.Debug("websocket ping error", "error", err)
				c.Close("ping failed")
				return
			}
		}
	}
}
