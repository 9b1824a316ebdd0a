package chat

import (
	"context"
	"encoding/json"

	"github.com/HMasataka/fanout/internal/eventbus"
	"github.com/HMasataka/fanout/internal/logging"
)

// AnonymousName labels messages from sessions that never joined.
const AnonymousName = "Anonymous"

const (
	eventTypeJoin    = "join"
	eventTypeMessage = "message"
)

type inboundEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Lifecycle is the per-connection control loop: it interprets inbound
// events, enforces rate limiting, admission and naming in order, and
// drives the broadcast engine. The transport layer calls Connect,
// HandleEvent and Disconnect in that order, never concurrently for the
// same session.
type Lifecycle struct {
	registry *Registry
	limiter  *RateLimiter
	caps     *ConnectionLimiter
	names    *NameAllocator
	engine   *Engine
	logger   *logging.Logger
	bus      eventbus.Bus
	maxRunes int
}

type LifecycleOptions struct {
	Registry        *Registry
	RateLimiter     *RateLimiter
	Limiter         *ConnectionLimiter
	Names           *NameAllocator
	Engine          *Engine
	Logger          *logging.Logger
	Bus             eventbus.Bus
	MaxMessageRunes int
}

func NewLifecycle(options LifecycleOptions) *Lifecycle {
	return &Lifecycle{
		registry: options.Registry,
		limiter:  options.RateLimiter,
		caps:     options.Limiter,
		names:    options.Names,
		engine:   options.Engine,
		logger:   options.Logger,
		bus:      options.Bus,
		maxRunes: options.MaxMessageRunes,
	}
}

// Connect registers a new unnamed session for the given link.
func (l *Lifecycle) Connect(link Link, addr string) *Session {
	s := NewSession(link, addr)
	l.registry.Register(s)

	l.logger.Info("session connected",
		"session_id", s.ID(),
		"addr", addr,
		"total_sessions", l.registry.Len(),
	)
	l.publishEvent(eventbus.EventSessionConnected, s.ID(), nil)

	return s
}

// HandleEvent dispatches one inbound payload. Unparsable payloads and
// unrecognized types are dropped without reply or state change.
func (l *Lifecycle) HandleEvent(ctx context.Context, s *Session, raw []byte) {
	var ev inboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}

	switch ev.Type {
	case eventTypeJoin:
		l.handleJoin(ctx, s, ev)
	case eventTypeMessage:
		l.handleMessage(ctx, s, ev)
	}
}

// Disconnect unwinds the session's registry state and, if it had joined,
// announces the departure and republishes the roster. Safe to call for a
// session the maintenance sweep already released.
func (l *Lifecycle) Disconnect(ctx context.Context, s *Session) {
	name := l.registry.Release(s)

	l.logger.Info("session disconnected",
		"session_id", s.ID(),
		"name", name,
		"total_sessions", l.registry.Len(),
	)
	l.publishEvent(eventbus.EventSessionClosed, s.ID(), name)

	if name == "" {
		return
	}

	l.engine.Publish(ctx, LeaveNotice{From: name, Addr: s.Addr()})
	l.engine.Publish(ctx, Roster{Users: l.registry.ListNames()})
}

// handleJoin runs the join policy chain: rate limit, then the per-address
// login cap, then sanitize-and-claim. The rate token is charged even when
// the cap check rejects afterwards. A repeated join from a named session
// rebinds: the old name is released and the new one claimed in one
// registry critical section, and the cap is not re-checked since the
// count does not change.
func (l *Lifecycle) handleJoin(ctx context.Context, s *Session, ev inboundEvent) {
	allowed, retryAfter := l.limiter.TryConsume(s.Addr(), 1)
	if !allowed {
		l.reply(ctx, s, RateLimited{RetryAfter: retryAfter})
		l.publishEvent(eventbus.EventPolicyRejected, s.ID(), "rate_limited")
		return
	}

	firstJoin := !s.Named()
	if firstJoin && !l.caps.Admit(l.registry, s.Addr()) {
		l.reply(ctx, s, TooManyLogins{Limit: l.caps.Limit()})
		l.publishEvent(eventbus.EventPolicyRejected, s.ID(), "too_many_logins")
		return
	}

	name := l.names.AllocateUnique(l.registry, s, ev.Username)

	l.logger.Info("session joined",
		"session_id", s.ID(),
		"name", name,
		"addr", s.Addr(),
	)
	if firstJoin {
		l.publishEvent(eventbus.EventSessionNamed, s.ID(), name)
	}

	l.reply(ctx, s, Welcome{Username: name})
	l.engine.Publish(ctx, JoinNotice{From: name, Addr: s.Addr()})
	l.engine.Publish(ctx, Roster{Users: l.registry.ListNames()})
}

func (l *Lifecycle) handleMessage(ctx context.Context, s *Session, ev inboundEvent) {
	allowed, retryAfter := l.limiter.TryConsume(s.Addr(), 1)
	if !allowed {
		l.reply(ctx, s, RateLimited{RetryAfter: retryAfter})
		l.publishEvent(eventbus.EventPolicyRejected, s.ID(), "rate_limited")
		return
	}

	text := truncateRunes(stripControl(ev.Text), l.maxRunes)

	from := s.Name()
	if from == "" {
		from = AnonymousName
	}

	l.engine.Publish(ctx, ChatMessage{From: from, Addr: s.Addr(), Text: text})
	l.publishEvent(eventbus.EventMessageBroadcast, s.ID(), nil)
}

// reply sends a direct envelope to the originating session only. Reply
// failures are absorbed; the dead link will be reaped by broadcast or the
// sweep.
func (l *Lifecycle) reply(ctx context.Context, s *Session, env Envelope) {
	if err := l.engine.SendTo(ctx, s, env); err != nil {
		l.logger.Debug("failed to reply to session",
			"session_id", s.ID(),
			"error", err,
		)
	}
}

func (l *Lifecycle) publishEvent(t eventbus.EventType, source string, data any) {
	if l.bus != nil {
		l.bus.PublishAsync(eventbus.NewEvent(t, source, data))
	}
}
