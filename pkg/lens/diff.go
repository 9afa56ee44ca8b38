// Package lens captures canvas snapshots and describes how a canvas changed
// between two of them.
package lens

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ritzau/kube-playground/pkg/model"
)

// GraphDiff represents the difference between two canvas states.
type GraphDiff struct {
	AddedNodes    []*model.Node `json:"addedNodes"`
	RemovedNodes  []string      `json:"removedNodes"`
	ModifiedNodes []*model.Node `json:"modifiedNodes"` // config, status or position changed
	AddedEdges    []*model.Edge `json:"addedEdges"`
	RemovedEdges  []string      `json:"removedEdges"`
	FullGraph     bool          `json:"fullGraph"` // True if this is a full graph, not a diff
	Hash          string        `json:"hash"`
}

// Empty reports whether the diff carries no change.
func (d *GraphDiff) Empty() bool {
	return !d.FullGraph &&
		len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 && len(d.ModifiedNodes) == 0 &&
		len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// Snapshot is an immutable copy of a canvas, indexed for diffing.
type Snapshot struct {
	Hash  string
	nodes map[string]*model.Node
	edges map[string]*model.Edge
	// encoded node JSON, compared to detect modification
	encoded map[string]string
}

// Capture snapshots g. Nodes are deep-copied, so later mutation of g does
// not affect the snapshot.
func Capture(g *model.Graph) *Snapshot {
	s := &Snapshot{
		nodes:   make(map[string]*model.Node),
		edges:   make(map[string]*model.Edge),
		encoded: make(map[string]string),
	}
	for _, n := range g.Nodes() {
		c := n.Clone()
		s.nodes[c.ID] = c
		s.encoded[c.ID] = encode(c)
	}
	for _, e := range g.Edges() {
		copied := *e
		s.edges[e.ID] = &copied
	}
	s.Hash = Hash(g)
	return s
}

// Hash returns a content hash of g.
func Hash(g *model.Graph) string {
	data, err := json.Marshal(g)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

func encode(n *model.Node) string {
	data, err := json.Marshal(n)
	if err != nil {
		return ""
	}
	return string(data)
}

// ComputeDiff computes the difference between a snapshot and the current
// state of g. A nil snapshot yields the full graph. Entries of each list are
// sorted by id.
func ComputeDiff(old *Snapshot, g *model.Graph) *GraphDiff {
	diff := &GraphDiff{
		AddedNodes:    make([]*model.Node, 0),
		RemovedNodes:  make([]string, 0),
		ModifiedNodes: make([]*model.Node, 0),
		AddedEdges:    make([]*model.Edge, 0),
		RemovedEdges:  make([]string, 0),
		Hash:          Hash(g),
	}

	if old == nil {
		diff.FullGraph = true
		for _, n := range g.Nodes() {
			diff.AddedNodes = append(diff.AddedNodes, n.Clone())
		}
		diff.AddedEdges = append(diff.AddedEdges, g.Edges()...)
		return diff
	}

	current := make(map[string]bool)
	for _, n := range g.Nodes() {
		current[n.ID] = true
		prev, exists := old.encoded[n.ID]
		switch {
		case !exists:
			diff.AddedNodes = append(diff.AddedNodes, n.Clone())
		case prev != encode(n):
			diff.ModifiedNodes = append(diff.ModifiedNodes, n.Clone())
		}
	}
	for id := range old.nodes {
		if !current[id] {
			diff.RemovedNodes = append(diff.RemovedNodes, id)
		}
	}

	currentEdges := make(map[string]bool)
	for _, e := range g.Edges() {
		currentEdges[e.ID] = true
		if _, exists := old.edges[e.ID]; !exists {
			diff.AddedEdges = append(diff.AddedEdges, e)
		}
	}
	for id := range old.edges {
		if !currentEdges[id] {
			diff.RemovedEdges = append(diff.RemovedEdges, id)
		}
	}

	sortNodes(diff.AddedNodes)
	sortNodes(diff.ModifiedNodes)
	sort.Strings(diff.RemovedNodes)
	sort.Slice(diff.AddedEdges, func(i, j int) bool { return diff.AddedEdges[i].ID < diff.AddedEdges[j].ID })
	sort.Strings(diff.RemovedEdges)
	return diff
}

func sortNodes(nodes []*model.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
