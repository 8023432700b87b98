package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateModel is returned when registering a model whose (app, name)
// identity is already taken.
var ErrDuplicateModel = errors.New("duplicate model")

// Registry is a concurrency-safe store of currently-declared models. It is an
// explicit object handed to callers rather than process-global state, so tests
// and tools control its lifecycle. Registration is exclusive; lookups are
// shared.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelState
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]ModelState)}
}

// Register adds a model snapshot. The snapshot is deep-copied, so later
// mutation of the caller's value does not leak into the registry.
func (r *Registry) Register(m ModelState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[m.ID()]; exists {
		return fmt.Errorf("register %s: %w", m.ID(), ErrDuplicateModel)
	}
	r.models[m.ID()] = m.Clone()
	return nil
}

// Replace installs a model snapshot, overwriting any existing registration.
func (r *Registry) Replace(m ModelState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.ID()] = m.Clone()
}

// Get returns a copy of the registered model, if any.
func (r *Registry) Get(appLabel, name string) (ModelState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[appLabel+"."+name]
	if !ok {
		return ModelState{}, false
	}
	return m.Clone(), true
}

// Remove deletes a registration. Removing an unknown model is a no-op.
func (r *Registry) Remove(appLabel, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.models, appLabel+"."+name)
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Snapshot returns deep copies of all registered models ordered by identity.
// The result is the "current" state set fed to migration autodetection.
func (r *Registry) Snapshot() []ModelState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]ModelState, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.models[id].Clone())
	}
	return out
}
