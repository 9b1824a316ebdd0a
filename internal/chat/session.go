package chat

import (
	"context"
	"sync"

	"github.com/rs/xid"
)

// Link is the transport end of a session. The transport layer owns the
// underlying connection; the hub only sends on it and observes liveness.
type Link interface {
	// Send delivers one encoded frame. It must not block past ctx.
	Send(ctx context.Context, message []byte) error

	// Closed reports whether the link is no longer usable.
	Closed() bool

	// Close tears the link down with a reason visible to the peer.
	Close(reason string) error
}

// Session is one live client connection and its identity state. The source
// address is captured once at connect; the display name is bound on join.
type Session struct {
	id   string
	link Link
	addr string

	mu   sync.RWMutex
	name string
}

// NewSession creates an unnamed session for a freshly accepted link.
func NewSession(link Link, addr string) *Session {
	return &Session{
		id:   xid.New().String(),
		link: link,
		addr: addr,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Addr returns the source address, or "" when the transport could not
// resolve one.
func (s *Session) Addr() string {
	return s.addr
}

func (s *Session) Link() Link {
	return s.link
}

// Name returns the bound display name, or "" while unnamed.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Named reports whether a display name has been bound.
func (s *Session) Named() bool {
	return s.Name() != ""
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}
