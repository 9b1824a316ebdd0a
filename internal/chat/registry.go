package chat

import (
	"sort"
	"sync"
)

// Registry owns the set of live sessions, the claimed-name set, and the
// per-address named-session counts. The three structures form one
// consistency unit: every mutation happens under a single mutex so that
// name claims and count changes are observed atomically by concurrent
// joins.
type Registry struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	names    map[string]*Session
	counts   map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[*Session]struct{}),
		names:    make(map[string]*Session),
		counts:   make(map[string]int),
	}
}

// Register adds an unnamed session to the membership set.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	r.sessions[s] = struct{}{}
	r.mu.Unlock()
}

// ClaimName atomically binds name to s if the name is free. A session that
// already holds a name gives it up in the same critical section, so a
// rebind never leaks the old reservation. Claiming a name the session
// already owns succeeds. The per-address count is incremented only on the
// unnamed-to-named transition.
func (r *Registry) ClaimName(s *Session, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, taken := r.names[name]; taken {
		return owner == s
	}

	if old := s.Name(); old != "" {
		if r.names[old] == s {
			delete(r.names, old)
		}
	} else if s.Addr() != "" {
		r.counts[s.Addr()]++
	}

	r.names[name] = s
	s.setName(name)
	return true
}

// Release removes s from membership, frees its claimed name, and decrements
// the address count, dropping the entry at zero. Idempotent: releasing an
// already-released session is a no-op. Returns the name that was freed, or
// "" if the session was unnamed.
func (r *Registry) Release(s *Session) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, s)

	name := s.Name()
	if name == "" || r.names[name] != s {
		return ""
	}

	delete(r.names, name)
	s.setName("")

	if addr := s.Addr(); addr != "" {
		if r.counts[addr] <= 1 {
			delete(r.counts, addr)
		} else {
			r.counts[addr]--
		}
	}

	return name
}

// Snapshot returns a stable copy of the membership set. Broadcast
// correctness depends on iteration not observing concurrent mutation.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// ListNames returns the claimed names sorted lexicographically.
func (r *Registry) ListNames() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	return names
}

// NamedCount returns the number of live named sessions from addr.
func (r *Registry) NamedCount(addr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[addr]
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
