package chat

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// RateLimiter is a per-address token bucket. Refill is continuous: elapsed
// wall time times the refill rate is credited on every check, capped at
// capacity. Buckets outlive sessions on purpose; reconnecting from the same
// address inherits the drained bucket.
type RateLimiter struct {
	mu       sync.Mutex
	capacity float64
	refill   float64
	buckets  map[string]*bucket
	now      func() time.Time
}

func NewRateLimiter(capacity, refillPerSecond float64) *RateLimiter {
	return &RateLimiter{
		capacity: capacity,
		refill:   refillPerSecond,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// TryConsume charges cost tokens against addr's bucket. A missing address
// always allows: rate limiting without an identity key is meaningless and
// must not block legitimate local use. On denial, retryAfter is the number
// of whole seconds to wait, always at least 1.
func (l *RateLimiter) TryConsume(addr string, cost float64) (allowed bool, retryAfter int) {
	if addr == "" {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[addr]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.buckets[addr] = b
	}

	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(l.capacity, b.tokens+elapsed*l.refill)
		b.last = now
	}

	if b.tokens >= cost {
		b.tokens -= cost
		return true, 0
	}

	needed := cost - b.tokens
	return false, int(needed/l.refill) + 1
}

// PruneStale discards buckets with no observed action for longer than
// maxAge, and returns how many were dropped.
func (l *RateLimiter) PruneStale(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pruned := 0
	for addr, b := range l.buckets {
		if now.Sub(b.last) > maxAge {
			delete(l.buckets, addr)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of tracked buckets.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
