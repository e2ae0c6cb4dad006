package forms

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownKind is returned when a form kind has no registered factory.
// Callers resuming a persisted form should treat it as a permanent failure
// for that row, not a transient one.
var ErrUnknownKind = errors.New("forms: unknown form kind")

// Factory builds a fresh, unstarted Form for its kind. Factories must
// return an identical graph every call; a restored snapshot is only
// meaningful against the graph it was taken from.
type Factory func() (*Form, error)

// Registry maps stable kind strings to form factories. Handlers register
// their kinds at startup; the persistence layer resolves kinds read back
// from storage. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds kind to its factory. Re-registering a kind replaces the
// previous factory; registration is expected to happen once at startup.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// New builds a fresh form of the given kind.
func (r *Registry) New(kind string) (*Form, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return factory()
}

// Restore builds a fresh form of the snapshot's kind and rehydrates it.
func (r *Registry) Restore(snap Snapshot) (*Form, error) {
	f, err := r.New(snap.Kind)
	if err != nil {
		return nil, err
	}
	if err := f.Restore(snap); err != nil {
		return nil, err
	}
	return f, nil
}

// Kinds returns the registered kind strings, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
