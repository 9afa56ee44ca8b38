package lens

import (
	"github.com/ritzau/kube-playground/pkg/model"
)

// Infinite is the distance of nodes not connected to any focused node.
const Infinite = -1

// distanceQueueNode represents a node in the BFS queue
type distanceQueueNode struct {
	nodeID   string
	distance int
}

// ComputeDistances calculates the shortest distance, ignoring edge
// direction, from each node to the nearest focused node. Unknown focus ids
// are ignored.
func ComputeDistances(g *model.Graph, focus []string) map[string]int {
	distances := make(map[string]int, g.Len())
	adjacency := buildAdjacencyList(g)

	var queue []distanceQueueNode
	for _, id := range focus {
		if !g.HasNode(id) {
			continue
		}
		if _, seen := distances[id]; seen {
			continue
		}
		distances[id] = 0
		queue = append(queue, distanceQueueNode{nodeID: id})
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, neighbor := range adjacency[current.nodeID] {
			if _, exists := distances[neighbor]; !exists {
				distances[neighbor] = current.distance + 1
				queue = append(queue, distanceQueueNode{nodeID: neighbor, distance: current.distance + 1})
			}
		}
	}

	for _, n := range g.Nodes() {
		if _, exists := distances[n.ID]; !exists {
			distances[n.ID] = Infinite
		}
	}
	return distances
}

// buildAdjacencyList creates an undirected adjacency list from graph edges
func buildAdjacencyList(g *model.Graph) map[string][]string {
	adjacency := make(map[string][]string)
	for _, edge := range g.Edges() {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		adjacency[edge.Target] = append(adjacency[edge.Target], edge.Source)
	}
	return adjacency
}

// Neighborhood returns the part of g within radius hops of the focused
// nodes: those nodes and every edge between two of them. A negative radius
// keeps everything connected to the focus.
func Neighborhood(g *model.Graph, focus []string, radius int) *model.Graph {
	distances := ComputeDistances(g, focus)
	keep := func(id string) bool {
		d := distances[id]
		return d != Infinite && (radius < 0 || d <= radius)
	}

	out := model.NewGraph()
	for _, n := range g.Nodes() {
		if keep(n.ID) {
			// Ids are unique in g, so this cannot fail.
			_ = out.AddNode(n.Clone())
		}
	}
	for _, e := range g.Edges() {
		if keep(e.Source) && keep(e.Target) {
			copied := *e
			_ = out.AddEdge(&copied)
		}
	}
	return out
}
