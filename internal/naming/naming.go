// Package naming is an in-process service locator: a registry of bound
// names and the closable contexts workers use to resolve them.
package naming

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/torosent/poolbench/internal/resource"
)

var (
	// ErrAlreadyBound is returned when binding a name that is already bound.
	ErrAlreadyBound = errors.New("name already bound")
	// ErrContextClosed is returned when using a closed Context.
	ErrContextClosed = errors.New("naming context closed")
)

// Registry holds name bindings. It implements resource.Locator.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]any
	open     atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]any)}
}

// Bind registers value under name.
func (r *Registry) Bind(name string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bindings[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, name)
	}
	r.bindings[name] = value
	return nil
}

// Unbind removes name. Unbinding an unknown name returns resource.ErrNotFound.
func (r *Registry) Unbind(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bindings[name]; !ok {
		return fmt.Errorf("%w: %s", resource.ErrNotFound, name)
	}
	delete(r.bindings, name)
	return nil
}

// Names returns the bound names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenContexts reports how many contexts are open.
func (r *Registry) OpenContexts() int64 {
	return r.open.Load()
}

// NewContext opens a context on the registry.
func (r *Registry) NewContext() (resource.NamingContext, error) {
	r.open.Add(1)
	return &Context{registry: r}, nil
}

func (r *Registry) lookup(name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.bindings[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", resource.ErrNotFound, name)
	}
	return value, nil
}

// Context is a closable view onto a Registry.
type Context struct {
	registry *Registry
	closed   atomic.Bool
}

// Lookup resolves name.
func (c *Context) Lookup(name string) (any, error) {
	if c.closed.Load() {
		return nil, ErrContextClosed
	}
	return c.registry.lookup(name)
}

// Close releases the context. Closing twice returns ErrContextClosed.
func (c *Context) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrContextClosed
	}
	c.registry.open.Add(-1)
	return nil
}
