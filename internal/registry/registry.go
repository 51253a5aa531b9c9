// Package registry classifies table references found in model SQL as
// either another model of the catalog or an external table.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// ModelRegistry knows the qualified names of every model in a catalog.
type ModelRegistry struct {
	mu sync.RWMutex

	// byName maps lower-cased qualified names to the registered spelling:
	// "client.users" → "client.users"
	byName map[string]string

	// externalSources collects every reference resolved as external.
	externalSources map[string]struct{}
}

// NewModelRegistry creates a registry holding the given qualified names.
func NewModelRegistry(qualifiedNames ...string) *ModelRegistry {
	r := &ModelRegistry{
		byName:          make(map[string]string, len(qualifiedNames)),
		externalSources: make(map[string]struct{}),
	}
	for _, name := range qualifiedNames {
		r.Register(name)
	}
	return r
}

// Register adds a model's qualified name.
func (r *ModelRegistry) Register(qualifiedName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[strings.ToLower(qualifiedName)] = qualifiedName
}

// Lookup returns the registered spelling of a qualified name.
// Identifiers compare case-insensitively.
func (r *ModelRegistry) Lookup(qualifiedName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byName[strings.ToLower(qualifiedName)]
	return name, ok
}

// Resolve classifies a reference made by the current model:
//   - database.schema.table is always external;
//   - schema.table is the model of that name if one exists;
//   - table is the model of that name in the current model's schema.
//
// Unqualified references never search other schemas.
func (r *ModelRegistry) Resolve(ref core.RawReference, current core.ModelIdentity) core.ResolvedDependency {
	var candidate string
	switch ref.Parts() {
	case 3:
		return r.external(ref)
	case 2:
		candidate = ref.Schema + "." + ref.Table
	default:
		candidate = current.SchemaName + "." + ref.Table
	}

	if name, ok := r.Lookup(candidate); ok {
		return core.InternalModel(name)
	}
	return r.external(ref)
}

func (r *ModelRegistry) external(ref core.RawReference) core.ResolvedDependency {
	name := ref.String()
	r.mu.Lock()
	r.externalSources[name] = struct{}{}
	r.mu.Unlock()
	return core.ExternalTable(name)
}

// ResolveAll resolves every reference of a model. Both results are
// de-duplicated and keep the order of first appearance.
func (r *ModelRegistry) ResolveAll(model *core.ModelMetadata) (dependencies, externals []string) {
	seen := make(map[string]bool)
	for _, ref := range model.References {
		dep := r.Resolve(ref, model.Identity)
		if seen[string(dep.Kind)+":"+dep.Name] {
			continue
		}
		seen[string(dep.Kind)+":"+dep.Name] = true
		if dep.IsInternal() {
			dependencies = append(dependencies, dep.Name)
		} else {
			externals = append(externals, dep.Name)
		}
	}
	return dependencies, externals
}

// ExternalTables returns every external reference resolved so far, sorted.
func (r *ModelRegistry) ExternalTables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.externalSources))
	for name := range r.externalSources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
