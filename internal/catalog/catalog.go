// Package catalog discovers models on disk and holds them, keyed by
// qualified name, together with the dependency graph built over them.
//
// A Catalog is built once per invocation and passed explicitly to whatever
// needs it; there is no package-level catalog.
package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/cadac/internal/dag"
	"github.com/leapstack-labs/cadac/internal/registry"
	"github.com/leapstack-labs/cadac/pkg/core"
)

// Failure records a model file that could not be read or parsed.
type Failure struct {
	// Identity is empty when the path could not be mapped to a model name.
	Identity core.ModelIdentity
	Path     string
	Err      error
}

// Catalog maps qualified names to model metadata.
type Catalog struct {
	mu       sync.RWMutex
	models   map[string]*core.ModelMetadata
	failures map[string]*Failure // by qualified name, or path when unnamed

	graph    *dag.Graph
	registry *registry.ModelRegistry
	deps     map[string][]string
	externs  map[string][]string

	logger *slog.Logger
}

func newCatalog(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{
		models:   make(map[string]*core.ModelMetadata),
		failures: make(map[string]*Failure),
		deps:     make(map[string][]string),
		externs:  make(map[string][]string),
		logger:   logger,
	}
}

// FromModels builds a catalog from already extracted models and builds its
// graph. It is mostly useful in tests.
func FromModels(models ...*core.ModelMetadata) (*Catalog, error) {
	c := newCatalog(nil)
	byName := make(map[string]*core.ModelMetadata, len(models))
	for _, m := range models {
		key := strings.ToLower(m.Name())
		if existing, ok := byName[key]; ok {
			return nil, &core.DuplicateModelError{
				QualifiedName: m.Name(),
				Paths:         []string{existing.Identity.FilePath, m.Identity.FilePath},
			}
		}
		byName[key] = m
		c.models[m.Name()] = m
	}
	if err := c.BuildGraph(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) add(m *core.ModelMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[m.Name()] = m
}

func (c *Catalog) addFailure(f *Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := f.Identity.QualifiedName
	if key == "" {
		key = f.Path
	}
	c.failures[key] = f
}

// Get returns a model by qualified name.
func (c *Catalog) Get(name string) (*core.ModelMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[name]
	return m, ok
}

// Has reports whether a model of that name exists, parsed or not.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.models[name]; ok {
		return true
	}
	f, ok := c.failures[name]
	return ok && f.Identity.QualifiedName != ""
}

// Len returns the number of successfully parsed models.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// Names returns the qualified names of the parsed models, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.models))
	for name := range c.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllNames returns the qualified names of every model, including those
// that failed to parse, sorted.
func (c *Catalog) AllNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.models)+len(c.failures))
	for name := range c.models {
		names = append(names, name)
	}
	for _, f := range c.failures {
		if f.Identity.QualifiedName != "" {
			names = append(names, f.Identity.QualifiedName)
		}
	}
	sort.Strings(names)
	return names
}

// Models returns the parsed models ordered by qualified name.
func (c *Catalog) Models() []*core.ModelMetadata {
	names := c.Names()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*core.ModelMetadata, len(names))
	for i, name := range names {
		out[i] = c.models[name]
	}
	return out
}

// Failures returns every recorded failure ordered by path.
func (c *Catalog) Failures() []*Failure {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Failure, 0, len(c.failures))
	for _, f := range c.failures {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Failure returns the failure recorded for a model.
func (c *Catalog) Failure(name string) (*Failure, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.failures[name]
	if !ok || f.Identity.QualifiedName == "" {
		return nil, false
	}
	return f, true
}

// Graph returns the dependency graph. It is nil until BuildGraph succeeds.
func (c *Catalog) Graph() *dag.Graph {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph
}

// Dependencies returns the models a model reads from, in reference order.
func (c *Catalog) Dependencies(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deps[name]
}

// ExternalReferences returns the external tables a model reads from.
func (c *Catalog) ExternalReferences(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.externs[name]
}

// ExternalTables returns every external table referenced by any model.
func (c *Catalog) ExternalTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.registry == nil {
		return nil
	}
	return c.registry.ExternalTables()
}

// BuildGraph resolves every model's references and builds the dependency
// graph. Models that failed to parse are nodes without dependencies, so
// references to them still order correctly. A cycle, including a model
// reading its own table, is returned as *core.CycleError.
func (c *Catalog) BuildGraph() error {
	names := c.AllNames()

	c.mu.Lock()
	defer c.mu.Unlock()

	reg := registry.NewModelRegistry(names...)
	g := dag.NewGraph()
	for _, name := range names {
		if m, ok := c.models[name]; ok {
			g.AddNode(name, m)
		} else {
			g.AddNode(name, nil)
		}
	}

	deps := make(map[string][]string, len(c.models))
	externs := make(map[string][]string, len(c.models))
	for _, name := range names {
		m, ok := c.models[name]
		if !ok {
			continue
		}
		modelDeps, modelExterns := reg.ResolveAll(m)
		deps[name] = modelDeps
		externs[name] = modelExterns

		for _, dep := range modelDeps {
			if dep == name {
				return &core.CycleError{Path: []string{name}}
			}
			if err := g.AddEdge(dep, name); err != nil {
				return fmt.Errorf("failed to add dependency %s -> %s: %w", dep, name, err)
			}
		}
	}

	if cycle := g.FindCycle(); cycle != nil {
		return &core.CycleError{Path: cycle}
	}

	c.graph = g
	c.registry = reg
	c.deps = deps
	c.externs = externs

	c.logger.Debug("dependency graph built",
		"models", g.NodeCount(),
		"edges", g.EdgeCount(),
		"external_tables", len(reg.ExternalTables()))

	return nil
}
