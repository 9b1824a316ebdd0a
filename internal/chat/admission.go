package chat

// ConnectionLimiter caps concurrent named sessions per source address.
type ConnectionLimiter struct {
	max int
}

func NewConnectionLimiter(max int) *ConnectionLimiter {
	return &ConnectionLimiter{max: max}
}

// Admit reports whether another login from addr is allowed. An unresolved
// address is never capped.
func (l *ConnectionLimiter) Admit(reg *Registry, addr string) bool {
	if addr == "" {
		return true
	}
	return reg.NamedCount(addr) < l.max
}

// Limit returns the configured cap, for the rejection reply.
func (l *ConnectionLimiter) Limit() int {
	return l.max
}
