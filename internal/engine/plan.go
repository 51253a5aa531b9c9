package engine

import (
	"fmt"
	"path"
	"sort"

	"github.com/leapstack-labs/cadac/internal/catalog"
	"github.com/leapstack-labs/cadac/pkg/core"
)

// Plan returns the models a run would execute, in execution order.
//
// Selectors are qualified names or path.Match patterns such as "client.*".
// No selectors selects every model. The selection is then widened with
// upstream and downstream models as the options ask.
func (e *Engine) Plan(cat *catalog.Catalog, selectors []string, opts core.RunOptions) ([]string, error) {
	g := cat.Graph()
	if g == nil {
		if err := cat.BuildGraph(); err != nil {
			return nil, err
		}
		g = cat.Graph()
	}

	selected, err := selectModels(cat.AllNames(), selectors)
	if err != nil {
		return nil, err
	}

	if opts.IncludeUpstream && !opts.IncludeDownstream {
		order, err := g.ExecutionOrder(selected)
		if err != nil {
			return nil, fmt.Errorf("failed to order models: %w", err)
		}
		return order, nil
	}

	set := make(map[string]bool, len(selected))
	for _, name := range selected {
		set[name] = true
		if opts.IncludeUpstream {
			for _, up := range g.GetUpstreamNodes(name) {
				set[up] = true
			}
		}
		if opts.IncludeDownstream {
			for _, down := range g.GetDownstreamNodes(name) {
				set[down] = true
			}
		}
	}

	expanded := make([]string, 0, len(set))
	for name := range set {
		expanded = append(expanded, name)
	}
	sort.Strings(expanded)

	order, err := g.Order(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to order models: %w", err)
	}
	return order, nil
}

func selectModels(names, selectors []string) ([]string, error) {
	if len(selectors) == 0 {
		return names, nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, sel := range selectors {
		matched := false
		for _, name := range names {
			ok, err := path.Match(sel, name)
			if err != nil {
				return nil, fmt.Errorf("invalid model selector %q: %w", sel, err)
			}
			if !ok {
				continue
			}
			matched = true
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		if !matched {
			return nil, &core.ModelNotFoundError{Name: sel}
		}
	}
	return out, nil
}
