package provider

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// RegistryService is the AppContext service name under which the shared
// *Registry is published.
const RegistryService = "provider.registry"

// Registry maps provider kinds to the factory that serves them.
// All methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register binds every kind the factory serves. A kind already bound to
// another factory is an error.
func (r *Registry) Register(f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range f.Kinds() {
		if _, exists := r.factories[k]; exists {
			return fmt.Errorf("provider: kind %q already registered", k)
		}
	}
	for _, k := range f.Kinds() {
		r.factories[k] = f
	}
	return nil
}

// New builds a provider of the given kind.
func (r *Registry) New(ctx context.Context, kind Kind, creds Credentials) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, kind)
	}
	return f.New(ctx, kind, creds)
}

// Kinds returns the registered kinds sorted by name.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	slices.SortFunc(kinds, func(a, b Kind) int { return cmp.Compare(a, b) })
	return kinds
}
