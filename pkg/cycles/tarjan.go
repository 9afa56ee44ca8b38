package cycles

import (
	"sort"

	"gonum.org/v1/gonum/graph"
)

// TarjanSCC finds strongly connected components using Tarjan's algorithm.
type TarjanSCC struct {
	graph   graph.Directed
	index   int
	stack   []int64
	onStack map[int64]bool
	indices map[int64]int
	lowLink map[int64]int
	sccs    [][]int64
}

// NewTarjanSCC creates a new Tarjan SCC finder
func NewTarjanSCC(g graph.Directed) *TarjanSCC {
	return &TarjanSCC{
		graph:   g,
		onStack: make(map[int64]bool),
		indices: make(map[int64]int),
		lowLink: make(map[int64]int),
	}
}

// FindSCCs returns the components with more than one node. Nodes are
// visited in id order so the result is stable for a given graph.
func (t *TarjanSCC) FindSCCs() [][]int64 {
	nodes := graph.NodesOf(t.graph.Nodes())
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	for _, node := range nodes {
		if _, visited := t.indices[node.ID()]; !visited {
			t.strongConnect(node.ID())
		}
	}
	return t.sccs
}

func (t *TarjanSCC) strongConnect(nodeID int64) {
	t.indices[nodeID] = t.index
	t.lowLink[nodeID] = t.index
	t.index++

	t.stack = append(t.stack, nodeID)
	t.onStack[nodeID] = true

	successors := graph.NodesOf(t.graph.From(nodeID))
	sort.Slice(successors, func(i, j int) bool { return successors[i].ID() < successors[j].ID() })
	for _, successor := range successors {
		successorID := successor.ID()
		if _, visited := t.indices[successorID]; !visited {
			t.strongConnect(successorID)
			t.lowLink[nodeID] = min(t.lowLink[nodeID], t.lowLink[successorID])
		} else if t.onStack[successorID] {
			t.lowLink[nodeID] = min(t.lowLink[nodeID], t.indices[successorID])
		}
	}

	// Root of a component: pop it off the stack.
	if t.lowLink[nodeID] == t.indices[nodeID] {
		var scc []int64
		for {
			w := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == nodeID {
				break
			}
		}
		if len(scc) > 1 {
			t.sccs = append(t.sccs, scc)
		}
	}
}
