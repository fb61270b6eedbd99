// Package rbac provides the pluggable role-based access control backends
// that resolve roles for users. The record layer never evaluates policy
// itself; it delegates to whichever backend the deployment registered.
package rbac

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pimguilherme/st2/internal/model"
	"github.com/pimguilherme/st2/internal/store"
)

// ErrUserNotFound is returned by backends when roles are requested for a
// user that does not exist.
var ErrUserNotFound = errors.New("user not found")

// Factory creates a role resolver bound to the given system store. Backends
// that do not need persistence may ignore it.
type Factory func(st *store.Store) (model.RoleResolver, error)

// Registry manages the named RBAC backends available to a deployment.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registers a backend factory under a name. Re-registering a name
// replaces the previous factory.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Open instantiates the named backend against the given store.
func (r *Registry) Open(name string, st *store.Store) (model.RoleResolver, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown rbac backend: %s (available: %v)", name, r.available())
	}
	return factory(st)
}

func (r *Registry) available() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	return names
}

// defaultRegistry holds the backends compiled into this binary.
var defaultRegistry = NewRegistry()

// Register adds a backend to the default registry.
func Register(name string, factory Factory) {
	defaultRegistry.Register(name, factory)
}

// Open instantiates a backend from the default registry.
func Open(name string, st *store.Store) (model.RoleResolver, error) {
	return defaultRegistry.Open(name, st)
}

func init() {
	Register("noop", func(st *store.Store) (model.RoleResolver, error) {
		return NoopResolver{}, nil
	})
	Register("store", func(st *store.Store) (model.RoleResolver, error) {
		if st == nil {
			return nil, errors.New("store rbac backend requires a system store")
		}
		return &StoreResolver{store: st}, nil
	})
}
