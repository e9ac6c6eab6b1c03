package scan

import (
	"sync"
)

// Registry tracks the one session that may capture at a time. Only Session
// writes to it: Show claims the slot, Destroy releases it if still held.
type Registry struct {
	mu      sync.Mutex
	current *Session
}

var defaultRegistry = &Registry{}

// DefaultRegistry is the process-wide registry used by scanners that were
// not given their own.
func DefaultRegistry() *Registry { return defaultRegistry }

// Current returns the session holding the slot, or nil.
func (r *Registry) Current() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// claim makes s current unless another session holds the slot, in which
// case that session is returned and nothing changes.
func (r *Registry) claim(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current != s {
		return r.current
	}
	r.current = s
	return nil
}

// release clears the slot if s holds it.
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == s {
		r.current = nil
	}
}
