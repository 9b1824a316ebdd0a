package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HMasataka/fanout/internal/logging"
)

type stubLink struct {
	closed bool
}

func (l *stubLink) Send(ctx context.Context, message []byte) error { return nil }
func (l *stubLink) Closed() bool                                   { return l.closed }
func (l *stubLink) Close(reason string) error                      { l.closed = true; return nil }

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "text"})
}

func TestMaintenance_SweepReleasesClosedSessions(t *testing.T) {
	registry := NewRegistry()
	limiter := NewRateLimiter(8, 1)
	m := NewMaintenance(registry, limiter, time.Minute, 600*time.Second, quietLogger())

	live := NewSession(&stubLink{}, "10.0.0.1")
	dead := NewSession(&stubLink{closed: true}, "10.0.0.2")
	registry.Register(live)
	registry.Register(dead)
	require.True(t, registry.ClaimName(dead, "Ghost"))

	released, _ := m.Sweep()
	assert.Equal(t, 1, released)
	assert.Equal(t, 1, registry.Len())
	assert.Empty(t, registry.ListNames(), "the dead session's name is freed")
	assert.Equal(t, 0, registry.NamedCount("10.0.0.2"))
}

func TestMaintenance_SweepPrunesStaleBuckets(t *testing.T) {
	registry := NewRegistry()
	limiter, clock := newTestLimiter(8, 1)
	m := NewMaintenance(registry, limiter, time.Minute, 600*time.Second, quietLogger())

	_, _ = limiter.TryConsume("10.0.0.1", 1)
	clock.Advance(601 * time.Second)

	_, pruned := m.Sweep()
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 0, limiter.Len())
}

func TestMaintenance_StartIsExclusive(t *testing.T) {
	registry := NewRegistry()
	limiter := NewRateLimiter(8, 1)
	m := NewMaintenance(registry, limiter, time.Hour, 600*time.Second, quietLogger())

	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)

	m.Stop()
}

func TestMaintenance_StopCancelsCleanly(t *testing.T) {
	registry := NewRegistry()
	limiter := NewRateLimiter(8, 1)
	m := NewMaintenance(registry, limiter, time.Millisecond, 600*time.Second, quietLogger())

	require.NoError(t, m.Start(context.Background()))
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
