// Package transport accepts websocket connections and feeds their inbound
// events to the hub lifecycle, honoring the connect, events, disconnect
// contract per session.
package transport

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/HMasataka/fanout/internal/chat"
	"github.com/HMasataka/fanout/internal/logging"
	ws "github.com/gorilla/websocket"
)

type Server struct {
	upgrader  ws.Upgrader
	lifecycle *chat.Lifecycle
	logger    *logging.Logger
	options   ConnOptions
}

func NewServer(lifecycle *chat.Lifecycle, logger *logging.Logger, options ConnOptions) *Server {
	upgrader := ws.Upgrader{
		ReadBufferSize:  options.ReadBufferSize,
		WriteBufferSize: options.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &Server{
		upgrader:  upgrader,
		lifecycle: lifecycle,
		logger:    logger,
		options:   options,
	}
}

// Handle upgrades the request and runs the session until the peer goes
// away. It blocks for the lifetime of the connection.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), s.logger)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade connection", "error", err)
		return
	}

	addr := PeerAddr(r)
	c := NewConn(conn, logger, s.options)
	go c.WritePump()

	sess := s.lifecycle.Connect(c, addr)
	s.readPump(r.Context(), logger.WithFields(map[string]any{"session_id": sess.ID()}), c, sess)

	// The registry unwind must run even when the request context is
	// already gone.
	s.lifecycle.Disconnect(context.Background(), sess)
	c.Close("connection closed")
}

func (s *Server) readPump(ctx context.Context, logger *logging.Logger, c *Conn, sess *chat.Session) {
	c.conn.SetReadLimit(s.options.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(s.options.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(s.options.ReadTimeout))
		return nil
	})

	for {
		wsType, message, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure, ws.CloseAbnormalClosure) {
				logger.Warn("websocket unexpected close", "error", err)
			} else {
				logger.Debug("websocket connection closed", "error", err)
			}
			return
		}

		if wsType != ws.TextMessage {
			continue
		}

		c.conn.SetReadDeadline(time.Now().Add(s.options.ReadTimeout))
		s.lifecycle.HandleEvent(ctx, sess, message)
	}
}

// PeerAddr extracts the peer's source address from the request, stripping
// the IPv6-mapped prefix some stacks prepend to IPv4 peers. Returns ""
// when no address can be resolved; the hub fails open on that.
func PeerAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return ""
	}

	return strings.TrimPrefix(host, "::ffff:")
}
