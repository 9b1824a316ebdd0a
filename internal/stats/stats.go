// Package stats aggregates hub counters from the event stream.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/HMasataka/fanout/internal/eventbus"
)

// Snapshot is the externally visible view of the counters.
type Snapshot struct {
	ConnectedSessions int64   `json:"connected_sessions"`
	NamedSessions     int64   `json:"named_sessions"`
	MessagesBroadcast int64   `json:"messages_broadcast"`
	DeliveryFailures  int64   `json:"delivery_failures"`
	PolicyRejections  int64   `json:"policy_rejections"`
	Uptime            float64 `json:"uptime_seconds"`
}

// Collector subscribes to the event bus and keeps running totals.
type Collector struct {
	started time.Time

	connected atomic.Int64
	named     atomic.Int64
	messages  atomic.Int64
	failures  atomic.Int64
	rejected  atomic.Int64
}

func NewCollector() *Collector {
	return &Collector{started: time.Now()}
}

// Attach wires the collector into the bus.
func (c *Collector) Attach(bus eventbus.Bus) {
	bus.Subscribe(eventbus.EventSessionConnected, func(*eventbus.Event) {
		c.connected.Add(1)
	})
	bus.Subscribe(eventbus.EventSessionClosed, func(e *eventbus.Event) {
		c.connected.Add(-1)
		if name, ok := e.Data.(string); ok && name != "" {
			c.named.Add(-1)
		}
	})
	bus.Subscribe(eventbus.EventSessionNamed, func(*eventbus.Event) {
		c.named.Add(1)
	})
	bus.Subscribe(eventbus.EventMessageBroadcast, func(*eventbus.Event) {
		c.messages.Add(1)
	})
	bus.Subscribe(eventbus.EventDeliveryFailed, func(e *eventbus.Event) {
		c.failures.Add(1)
		// A pruned session that had a name is gone from the roster now;
		// its close event will carry an empty name.
		if name, ok := e.Data.(string); ok && name != "" {
			c.named.Add(-1)
		}
	})
	bus.Subscribe(eventbus.EventPolicyRejected, func(*eventbus.Event) {
		c.rejected.Add(1)
	})
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		ConnectedSessions: c.connected.Load(),
		NamedSessions:     c.named.Load(),
		MessagesBroadcast: c.messages.Load(),
		DeliveryFailures:  c.failures.Load(),
		PolicyRejections:  c.rejected.Load(),
		Uptime:            time.Since(c.started).Seconds(),
	}
}
