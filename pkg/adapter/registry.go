package adapter

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// Factory creates an adapter. A nil logger means discard.
type Factory func(*slog.Logger) Adapter

// Registry maps dialect names to adapter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry is populated by adapter packages in their init() functions.
var DefaultRegistry = NewRegistry()

// Register adds an adapter factory under a dialect name.
func (r *Registry) Register(dialect string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[dialect] = factory
}

// Get retrieves an adapter factory by dialect.
func (r *Registry) Get(dialect string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[dialect]
	return f, ok
}

// IsRegistered checks if a dialect is registered.
func (r *Registry) IsRegistered(dialect string) bool {
	_, ok := r.Get(dialect)
	return ok
}

// ListAdapters returns all registered dialect names (sorted).
func (r *Registry) ListAdapters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewAdapter creates an adapter for a dialect.
func (r *Registry) NewAdapter(dialect string, logger *slog.Logger) (Adapter, error) {
	if dialect == "" {
		return nil, fmt.Errorf("adapter dialect not specified")
	}
	factory, ok := r.Get(dialect)
	if !ok {
		return nil, &core.UnsupportedDialectError{Dialect: dialect, Available: r.ListAdapters()}
	}
	return factory(logger), nil
}

// ForTarget selects the adapter for a target. Without an explicit dialect
// the connection string scheme picks the adapter.
func (r *Registry) ForTarget(target core.Target, logger *slog.Logger) (Adapter, error) {
	if target.Dialect != "" {
		return r.NewAdapter(target.Dialect, logger)
	}

	scheme := SchemeOf(target.ConnectionString)
	if scheme == "" {
		return nil, &core.UnsupportedDialectError{Dialect: "", Available: r.ListAdapters()}
	}
	for _, name := range r.ListAdapters() {
		factory, _ := r.Get(name)
		a := factory(logger)
		if slices.Contains(a.Schemes(), scheme) {
			return a, nil
		}
	}
	return nil, &core.UnsupportedDialectError{Dialect: scheme, Available: r.ListAdapters()}
}

// Register adds an adapter factory to DefaultRegistry.
// Called by adapter implementations in their init() functions.
func Register(dialect string, factory Factory) {
	DefaultRegistry.Register(dialect, factory)
}

// Get retrieves an adapter factory from DefaultRegistry.
func Get(dialect string) (Factory, bool) {
	return DefaultRegistry.Get(dialect)
}

// ListAdapters returns the dialects registered with DefaultRegistry.
func ListAdapters() []string {
	return DefaultRegistry.ListAdapters()
}

// IsRegistered checks if a dialect is registered with DefaultRegistry.
func IsRegistered(dialect string) bool {
	return DefaultRegistry.IsRegistered(dialect)
}
