// Package graph projects a model.Graph onto a gonum directed graph for
// structural queries such as reachability and cycle detection.
package graph

import (
	"sort"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/ritzau/kube-playground/pkg/model"
)

// EdgeFilter selects the model edges a topology includes.
type EdgeFilter func(e *model.Edge) bool

// AllEdges includes every edge.
func AllEdges(*model.Edge) bool { return true }

// Topology is a directed graph over canvas node ids.
type Topology struct {
	graph  *simple.DirectedGraph
	ids    map[string]int64
	names  map[int64]string
	nextID int64
}

// NewTopology creates an empty topology.
func NewTopology() *Topology {
	return &Topology{
		graph: simple.NewDirectedGraph(),
		ids:   make(map[string]int64),
		names: make(map[int64]string),
	}
}

// FromGraph builds a topology holding every node of g and the edges
// accepted by keep.
func FromGraph(g *model.Graph, keep EdgeFilter) *Topology {
	t := NewTopology()
	for _, n := range g.Nodes() {
		t.AddNode(n.ID)
	}
	for _, e := range g.Edges() {
		if keep(e) {
			t.AddEdge(e.Source, e.Target)
		}
	}
	return t
}

// AddNode adds a node; adding an existing id is a no-op.
func (t *Topology) AddNode(id string) {
	if _, exists := t.ids[id]; exists {
		return
	}
	t.ids[id] = t.nextID
	t.names[t.nextID] = id
	t.graph.AddNode(simple.Node(t.nextID))
	t.nextID++
}

// AddEdge adds a directed edge, creating missing endpoints. Self loops are
// ignored.
func (t *Topology) AddEdge(source, target string) {
	if source == target {
		return
	}
	t.AddNode(source)
	t.AddNode(target)
	from, to := t.ids[source], t.ids[target]
	if !t.graph.HasEdgeFromTo(from, to) {
		t.graph.SetEdge(t.graph.NewEdge(t.graph.Node(from), t.graph.Node(to)))
	}
}

// Graph returns the underlying directed graph.
func (t *Topology) Graph() gonum.Directed {
	return t.graph
}

// ID returns the gonum id of a canvas node.
func (t *Topology) ID(name string) (int64, bool) {
	id, ok := t.ids[name]
	return id, ok
}

// Name returns the canvas node id for a gonum id.
func (t *Topology) Name(id int64) string {
	return t.names[id]
}

// Len returns the number of nodes.
func (t *Topology) Len() int {
	return len(t.ids)
}

// Successors returns the direct successors of name, sorted.
func (t *Topology) Successors(name string) []string {
	id, ok := t.ids[name]
	if !ok {
		return nil
	}
	var out []string
	it := t.graph.From(id)
	for it.Next() {
		out = append(out, t.names[it.Node().ID()])
	}
	sort.Strings(out)
	return out
}

// Reachable returns every node reachable from the given roots, roots
// included.
func (t *Topology) Reachable(roots ...string) map[string]bool {
	seen := make(map[string]bool)
	var bfs traverse.BreadthFirst
	for _, root := range roots {
		id, ok := t.ids[root]
		if !ok {
			continue
		}
		bfs.Walk(t.graph, t.graph.Node(id), func(n gonum.Node, _ int) bool {
			seen[t.names[n.ID()]] = true
			return false
		})
	}
	return seen
}
