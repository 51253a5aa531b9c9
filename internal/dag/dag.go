// Package dag provides directed acyclic graph operations for model dependencies.
// It supports cycle detection, deterministic topological ordering, and
// upstream/downstream expansion.
//
// An edge parent -> child means the parent must run before the child.
package dag

import (
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// Node represents a node in the DAG.
type Node struct {
	// ID is the unique identifier (qualified model name)
	ID string
	// Data holds arbitrary node data
	Data any
}

// Graph represents a directed acyclic graph.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string, data any) {
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &Node{ID: id, Data: data}
		g.edges[id] = []string{}
		g.parents[id] = []string{}
	} else {
		// Update data if node already exists
		g.nodes[id].Data = data
	}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}

	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
		sort.Strings(g.edges[parentID])
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
		sort.Strings(g.parents[childID])
	}

	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// HasNode reports whether the node exists.
func (g *Graph) HasNode(id string) bool {
	_, exists := g.nodes[id]
	return exists
}

// GetParents returns the parents (dependencies) of a node, sorted.
func (g *Graph) GetParents(id string) []string {
	return g.parents[id]
}

// GetChildren returns the children (dependents) of a node, sorted.
func (g *Graph) GetChildren(id string) []string {
	return g.edges[id]
}

// NodeIDs returns all node IDs, sorted.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// FindCycle returns the members of a cycle in edge order, starting at the
// lexicographically smallest member, or nil when the graph is acyclic.
func (g *Graph) FindCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, childID := range g.edges[id] {
			if onStack[childID] {
				start := slices.Index(stack, childID)
				cycle = slices.Clone(stack[start:])
				return true
			}
			if !visited[childID] && dfs(childID) {
				return true
			}
		}

		stack = stack[:len(stack)-1]
		onStack[id] = false
		return false
	}

	for _, id := range g.NodeIDs() {
		if !visited[id] && dfs(id) {
			return rotateToMin(cycle)
		}
	}
	return nil
}

func rotateToMin(cycle []string) []string {
	if len(cycle) == 0 {
		return cycle
	}
	minIdx := 0
	for i, id := range cycle {
		if id < cycle[minIdx] {
			minIdx = i
		}
	}
	return append(slices.Clone(cycle[minIdx:]), cycle[:minIdx]...)
}

// HasCycle reports whether the graph contains a cycle.
func (g *Graph) HasCycle() bool {
	return g.FindCycle() != nil
}

// TopologicalSort returns all node IDs with dependencies before
// dependents. Among nodes that are ready at the same time the
// lexicographically smallest comes first.
func (g *Graph) TopologicalSort() ([]string, error) {
	return g.Order(g.NodeIDs())
}

// Order returns exactly the given nodes in dependency order. Edges through
// nodes outside the set are ignored. Unknown IDs are an error.
func (g *Graph) Order(ids []string) ([]string, error) {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !g.HasNode(id) {
			return nil, fmt.Errorf("node %q does not exist", id)
		}
		set[id] = true
	}

	inDegree := make(map[string]int, len(set))
	for id := range set {
		for _, parentID := range g.parents[id] {
			if set[parentID] {
				inDegree[id]++
			}
		}
	}

	ready := make([]string, 0, len(set))
	for id := range set {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(set))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, childID := range g.edges[id] {
			if !set[childID] {
				continue
			}
			inDegree[childID]--
			if inDegree[childID] == 0 {
				pos, _ := slices.BinarySearch(ready, childID)
				ready = slices.Insert(ready, pos, childID)
			}
		}
	}

	if len(order) != len(set) {
		if sub := g.Subgraph(ids); sub.HasCycle() {
			return nil, &core.CycleError{Path: sub.FindCycle()}
		}
		return nil, &core.CycleError{}
	}
	return order, nil
}

// ExecutionOrder returns the given nodes together with everything they
// depend on, in dependency order.
func (g *Graph) ExecutionOrder(ids []string) ([]string, error) {
	set := make(map[string]bool)
	for _, id := range ids {
		if !g.HasNode(id) {
			return nil, fmt.Errorf("node %q does not exist", id)
		}
		set[id] = true
		for _, up := range g.GetUpstreamNodes(id) {
			set[up] = true
		}
	}

	expanded := make([]string, 0, len(set))
	for id := range set {
		expanded = append(expanded, id)
	}
	return g.Order(expanded)
}

// GetExecutionLevels returns nodes grouped by execution level.
// Nodes at level N only depend on nodes of lower levels.
// Level 0 contains nodes with no dependencies.
func (g *Graph) GetExecutionLevels() ([][]string, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	levels := [][]string{}
	assigned := make(map[string]int, len(order))
	for _, id := range order {
		level := 0
		for _, parentID := range g.parents[id] {
			if l := assigned[parentID] + 1; l > level {
				level = l
			}
		}
		assigned[id] = level
		for len(levels) <= level {
			levels = append(levels, []string{})
		}
		levels[level] = append(levels[level], id)
	}

	// Sort each level for deterministic output
	for i := range levels {
		sort.Strings(levels[i])
	}

	return levels, nil
}

// GetUpstreamNodes returns all nodes upstream of the given node (its dependencies and their dependencies).
func (g *Graph) GetUpstreamNodes(id string) []string {
	return g.reach(id, g.parents)
}

// GetDownstreamNodes returns all nodes downstream of the given node (its dependents and theirs).
func (g *Graph) GetDownstreamNodes(id string) []string {
	return g.reach(id, g.edges)
}

func (g *Graph) reach(id string, next map[string][]string) []string {
	seen := make(map[string]bool)

	var mark func(nodeID string)
	mark = func(nodeID string) {
		for _, n := range next[nodeID] {
			if !seen[n] {
				seen[n] = true
				mark(n)
			}
		}
	}
	mark(id)

	result := make([]string, 0, len(seen))
	for nodeID := range seen {
		result = append(result, nodeID)
	}
	sort.Strings(result)
	return result
}

// GetRoots returns nodes with no parents (no dependencies).
func (g *Graph) GetRoots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// GetLeaves returns nodes with no children (no dependents).
func (g *Graph) GetLeaves() []string {
	var leaves []string
	for id := range g.nodes {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves
}

// Subgraph returns a new graph containing only the specified nodes and their edges.
func (g *Graph) Subgraph(nodeIDs []string) *Graph {
	subgraph := NewGraph()
	nodeSet := make(map[string]bool)

	for _, id := range nodeIDs {
		nodeSet[id] = true
		if node, exists := g.nodes[id]; exists {
			subgraph.AddNode(id, node.Data)
		}
	}

	for _, id := range nodeIDs {
		for _, childID := range g.edges[id] {
			if nodeSet[childID] {
				_ = subgraph.AddEdge(id, childID)
			}
		}
	}

	return subgraph
}
