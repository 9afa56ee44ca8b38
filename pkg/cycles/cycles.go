// Package cycles finds circular relationships on the canvas.
package cycles

import (
	"sort"

	"github.com/ritzau/kube-playground/pkg/graph"
	"github.com/ritzau/kube-playground/pkg/model"
)

// Cycle is a set of canvas nodes that reach each other.
type Cycle struct {
	Nodes []string `json:"nodes"`
}

// Find returns the cycles of t. Node ids within a cycle are sorted, and
// cycles are ordered by their first node.
func Find(t *graph.Topology) []Cycle {
	sccs := NewTarjanSCC(t.Graph()).FindSCCs()

	out := make([]Cycle, 0, len(sccs))
	for _, scc := range sccs {
		nodes := make([]string, 0, len(scc))
		for _, id := range scc {
			nodes = append(nodes, t.Name(id))
		}
		sort.Strings(nodes)
		out = append(out, Cycle{Nodes: nodes})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nodes[0] < out[j].Nodes[0] })
	return out
}

// Dependency selects the edges that express a dependency of one resource on
// another. Containment and the statefulset back-reference to its governing
// service mirror another edge and would report every statefulset as a cycle.
func Dependency(e *model.Edge) bool {
	switch e.Relationship {
	case model.RelContains, model.RelHeadlessService:
		return false
	}
	return true
}

// FindInGraph returns the dependency cycles of a canvas graph.
func FindInGraph(g *model.Graph) []Cycle {
	return Find(graph.FromGraph(g, Dependency))
}
