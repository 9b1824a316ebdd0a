package chat

import (
	"context"
	"time"

	"github.com/HMasataka/fanout/internal/eventbus"
	"github.com/HMasataka/fanout/internal/logging"
)

// Engine fans envelopes out to every registered session. Delivery is
// best-effort per recipient: a failed or closed recipient is marked during
// the pass and released afterwards, and never interrupts delivery to the
// rest.
type Engine struct {
	registry    *Registry
	logger      *logging.Logger
	bus         eventbus.Bus
	sendTimeout time.Duration
}

type EngineOptions struct {
	// SendTimeout bounds the per-recipient send. A slow recipient counts
	// as a delivery failure rather than stalling the fan-out.
	SendTimeout time.Duration

	// Bus receives delivery-failure events. Optional.
	Bus eventbus.Bus
}

func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		SendTimeout: 5 * time.Second,
	}
}

func NewEngine(registry *Registry, logger *logging.Logger, options EngineOptions) *Engine {
	if options.SendTimeout <= 0 {
		options.SendTimeout = DefaultEngineOptions().SendTimeout
	}

	return &Engine{
		registry:    registry,
		logger:      logger,
		bus:         options.Bus,
		sendTimeout: options.SendTimeout,
	}
}

// Publish encodes the envelope once and attempts delivery to the registry
// snapshot taken at call time. Sessions joining after the snapshot do not
// receive it; sessions leaving mid-pass are still attempted once, with the
// send failure as the removal signal.
func (e *Engine) Publish(ctx context.Context, env Envelope) {
	data, err := Encode(env)
	if err != nil {
		e.logger.Error("failed to encode envelope", "error", err)
		return
	}

	var dead []*Session
	for _, s := range e.registry.Snapshot() {
		if s.Link().Closed() {
			dead = append(dead, s)
			continue
		}

		if err := e.send(ctx, s, data); err != nil {
			e.logger.Warn("failed to deliver to session",
				"session_id", s.ID(),
				"error", err,
			)
			dead = append(dead, s)
		}
	}

	for _, s := range dead {
		name := e.registry.Release(s)
		if e.bus != nil {
			// The freed name rides along so subscribers tracking named
			// sessions see the departure; the later close event carries
			// an empty name for a session pruned here.
			e.bus.PublishAsync(eventbus.NewEvent(eventbus.EventDeliveryFailed, s.ID(), name))
		}

		// A pruned session that had joined still owes the others a
		// departure notice; its own disconnect path finds the name
		// already freed and stays silent.
		if name != "" {
			e.Publish(ctx, LeaveNotice{From: name, Addr: s.Addr()})
			e.Publish(ctx, Roster{Users: e.registry.ListNames()})
		}
	}
}

// SendTo delivers an envelope to a single session. Used for the direct
// reply variants.
func (e *Engine) SendTo(ctx context.Context, s *Session, env Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}

	if s.Link().Closed() {
		return ErrSessionClosed
	}

	return e.send(ctx, s, data)
}

func (e *Engine) send(ctx context.Context, s *Session, data []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	return s.Link().Send(sendCtx, data)
}
