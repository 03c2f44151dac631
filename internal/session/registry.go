package session

import "sync"

// Registry is the authoritative set of live runtimes, indexed by bot id
// and by token. Both indexes are updated under one lock so they cannot
// diverge. No network calls happen while the lock is held.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Runtime
	byToken map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]*Runtime),
		byToken: make(map[string]string),
	}
}

// Add registers rt under its bot id and token. Adding a duplicate of
// either key fails without touching the registry.
func (r *Registry) Add(rt *Runtime) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[rt.id]; exists {
		return ErrAlreadyRegistered
	}
	if _, exists := r.byToken[rt.token]; exists {
		return ErrAlreadyRegistered
	}
	r.byID[rt.id] = rt
	r.byToken[rt.token] = rt.id
	return nil
}

// Remove drops the runtime with the given id from both indexes. It is
// idempotent: removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, exists := r.byID[id]
	if !exists {
		return
	}
	delete(r.byID, id)
	delete(r.byToken, rt.token)
}

func (r *Registry) Get(id string) (*Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.byID[id]
	return rt, ok
}

// Lookup finds a runtime by its bot token.
func (r *Registry) Lookup(token string) (*Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[token]
	if !ok {
		return nil, false
	}
	rt, ok := r.byID[id]
	return rt, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshot returns the current runtimes. Callers iterate the snapshot
// without holding the registry lock, so a slow stop or health check
// never blocks concurrent adds and removes.
func (r *Registry) Snapshot() []*Runtime {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runtimes := make([]*Runtime, 0, len(r.byID))
	for _, rt := range r.byID {
		runtimes = append(runtimes, rt)
	}
	return runtimes
}
