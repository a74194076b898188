// Package gateway owns the client-facing side of vocegate: one WebSocket
// connection per client, routed to an internal/orchestrator.Session, plus
// the process-wide session index, inactivity sweeper, and bounded shutdown
// fan-out.
package gateway

import (
	"sync"

	"github.com/vocegate/vocegate/internal/orchestrator"
)

// Registry is the single index every live Session lives in. It is a plain
// mutex-guarded map rather than sync.Map; Snapshot hands the sweeper a copy
// of that map, so a sweep iterates without holding the registry lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*orchestrator.Session
}

// NewRegistry returns an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*orchestrator.Session)}
}

// Add indexes sess under id, replacing any previous entry for the same id.
func (r *Registry) Add(id string, sess *orchestrator.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = sess
}

// Get returns the session indexed under id, if any.
func (r *Registry) Get(id string) (*orchestrator.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove deletes id from the index. A single locked delete, so a session is
// never visible to a concurrent sweep half-removed.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len reports the number of indexed sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns a copy of the current id->session index, safe to iterate
// without holding the registry lock.
func (r *Registry) Snapshot() map[string]*orchestrator.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := make(map[string]*orchestrator.Session, len(r.sessions))
	for id, sess := range r.sessions {
		snap[id] = sess
	}
	return snap
}
