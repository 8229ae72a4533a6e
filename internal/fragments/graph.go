// # internal/fragments/graph.go
package fragments

import (
	"sort"
	"strings"

	"gqlshift/internal/core/errors"
)

// DependencyGraph maps each fragment to the fragments it spreads.
type DependencyGraph struct {
	edges map[string][]string
}

func BuildGraph(r *Registry) *DependencyGraph {
	g := &DependencyGraph{edges: make(map[string][]string, r.Len())}
	for _, name := range r.Names() {
		def, _ := r.Lookup(name)
		g.edges[name] = SpreadNames(def.Body)
	}
	return g
}

func (g *DependencyGraph) DependenciesOf(name string) []string {
	return g.edges[name]
}

// DetectCycles runs DFS over the spread edges and returns every cycle found.
func (g *DependencyGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	names := make([]string, 0, len(g.edges))
	for name := range g.edges {
		names = append(names, name)
	}
	// Deterministic traversal order keeps cycle reports stable.
	sort.Strings(names)

	for _, name := range names {
		if !visited[name] {
			g.findCycles(name, visited, onStack, []string{}, &cycles)
		}
	}
	return cycles
}

func (g *DependencyGraph) findCycles(curr string, visited, onStack map[string]bool, path []string, cycles *[][]string) {
	visited[curr] = true
	onStack[curr] = true
	path = append(path, curr)

	for _, next := range g.edges[curr] {
		if onStack[next] {
			cycleStart := -1
			for i, name := range path {
				if name == next {
					cycleStart = i
					break
				}
			}
			if cycleStart != -1 {
				cycle := make([]string, len(path)-cycleStart)
				copy(cycle, path[cycleStart:])
				*cycles = append(*cycles, cycle)
			}
		} else if !visited[next] {
			g.findCycles(next, visited, onStack, path, cycles)
		}
	}

	onStack[curr] = false
}

// Validate rejects any cyclic spread chain before inlining can recurse into it.
func (g *DependencyGraph) Validate() error {
	cycles := g.DetectCycles()
	if len(cycles) == 0 {
		return nil
	}
	parts := make([]string, 0, len(cycles))
	for _, c := range cycles {
		parts = append(parts, strings.Join(append(c, c[0]), " -> "))
	}
	return errors.Newf(errors.CodeFragmentCycle, "fragment spread cycle: %s", strings.Join(parts, "; "))
}
