package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HMasataka/fanout/internal/logging"
)

// Maintenance is the periodic sweep that reclaims dead state: sessions
// whose link closed without a disconnect event, and rate buckets idle past
// the staleness age. One instance runs at a time; ticks never overlap
// because the sweep runs on the ticker goroutine itself.
type Maintenance struct {
	registry *Registry
	limiter  *RateLimiter
	interval time.Duration
	staleAge time.Duration
	logger   *logging.Logger

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewMaintenance(registry *Registry, limiter *RateLimiter, interval, staleAge time.Duration, logger *logging.Logger) *Maintenance {
	return &Maintenance{
		registry: registry,
		limiter:  limiter,
		interval: interval,
		staleAge: staleAge,
		logger:   logger,
	}
}

// Start launches the sweep loop.
func (m *Maintenance) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run(ctx)

	m.logger.Info("maintenance started", "interval", m.interval)
	return nil
}

// Stop cancels the loop and waits for it to unwind.
func (m *Maintenance) Stop() {
	if !m.started.Load() {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Info("maintenance stopped")
}

func (m *Maintenance) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep releases sessions with closed links and prunes stale rate buckets.
func (m *Maintenance) Sweep() (released, pruned int) {
	for _, s := range m.registry.Snapshot() {
		if s.Link().Closed() {
			m.registry.Release(s)
			released++
		}
	}

	pruned = m.limiter.PruneStale(m.staleAge)

	if released > 0 || pruned > 0 {
		m.logger.Debug("sweep complete",
			"sessions_released", released,
			"buckets_pruned", pruned,
		)
	}
	return released, pruned
}
