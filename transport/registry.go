package transport

import (
	"strings"
	"sync"

	apperrors "github.com/arielkovacs/msgbus/internal/errors"
)

// Factory builds a Transport from adapter-specific options, typically a
// struct the caller type-asserts opts into.
type Factory func(opts any) (Transport, error)

// Registry is a process-wide named registry of transport factories.
// Names are case-insensitive symbols (:memory, :stdout, :file, :redis,
// :redis_queue).
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Factory)}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds (or replaces) the factory for name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[normalize(name)] = factory
}

// Registered reports whether name has a registered factory.
func (r *Registry) Registered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[normalize(name)]
	return ok
}

// Create builds a new Transport instance using the factory registered
// under name.
func (r *Registry) Create(name string, opts any) (Transport, error) {
	r.mu.RLock()
	factory, ok := r.byName[normalize(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.CodeTransportNotConfigured, "no transport registered under name: "+name, nil)
	}
	return factory(opts)
}

// List returns every registered transport name.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// Default is the process-wide transport registry. Concrete adapters
// register themselves here in their package init() so callers only need
// to import the adapter package for its name to become available.
var Default = NewRegistry()
