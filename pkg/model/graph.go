// Package model holds the canonical in-memory representation of a playground
// canvas: typed nodes, directed relationship edges and the invariants that
// keep them consistent.
package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ritzau/kube-playground/pkg/kinds"
)

var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrEdgeNotFound  = errors.New("edge not found")
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrDuplicateEdge = errors.New("duplicate edge id")
	ErrDanglingEdge  = errors.New("edge references a missing node")
	ErrEmptyID       = errors.New("empty id")
)

// Status is the health marker shown on a node.
type Status string

const (
	StatusRunning Status = "running"
	StatusPending Status = "pending"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Relationship tags the meaning of an edge.
type Relationship string

const (
	RelRoutesTraffic   Relationship = "routes-traffic"
	RelForwardsTo      Relationship = "forwards-to"
	RelMountsVolume    Relationship = "mounts-volume"
	RelContains        Relationship = "contains"
	RelScaleTarget     Relationship = "scale-target"
	RelManages         Relationship = "manages"
	RelConfigures      Relationship = "configures"
	RelProvidesSecret  Relationship = "provides-secret"
	RelBinds           Relationship = "binds"
	RelProvisions      Relationship = "provisions"
	RelHeadlessService Relationship = "headless-service"
	RelExternalTraffic Relationship = "external-traffic"
	RelConnects        Relationship = "connects"
)

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single resource on the canvas.
type Node struct {
	ID       string              `json:"id"`
	Type     kinds.ComponentType `json:"type"`
	Position Position            `json:"position"`
	Label    string              `json:"label"`
	Config   Config              `json:"config"`
	Status   Status              `json:"status"`

	// ManagedBy is the id of the deployment that synthesized this pod.
	// It records provenance only and does not tie lifetimes together.
	ManagedBy    string `json:"managedBy,omitempty"`
	Orphaned     bool   `json:"orphaned,omitempty"`
	OrphanedFrom string `json:"orphanedFrom,omitempty"`
}

// Name returns the resource name of the node.
func (n *Node) Name() string {
	if n.Config != nil && n.Config.Metadata().Name != "" {
		return n.Config.Metadata().Name
	}
	return n.Label
}

// Namespace returns the namespace of the node, or "".
func (n *Node) Namespace() string {
	if n.Config == nil {
		return ""
	}
	return n.Config.Metadata().Namespace
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := *n
	c.Config = CloneConfig(n.Config)
	return &c
}

type nodeJSON struct {
	ID           string              `json:"id"`
	Type         kinds.ComponentType `json:"type"`
	Position     Position            `json:"position"`
	Label        string              `json:"label"`
	Config       json.RawMessage     `json:"config,omitempty"`
	Status       Status              `json:"status"`
	ManagedBy    string              `json:"managedBy,omitempty"`
	Orphaned     bool                `json:"orphaned,omitempty"`
	OrphanedFrom string              `json:"orphanedFrom,omitempty"`
}

// UnmarshalJSON decodes the config variant selected by the node type.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg, err := DecodeConfig(raw.Type, raw.Config)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}
	*n = Node{
		ID:           raw.ID,
		Type:         raw.Type,
		Position:     raw.Position,
		Label:        raw.Label,
		Config:       cfg,
		Status:       raw.Status,
		ManagedBy:    raw.ManagedBy,
		Orphaned:     raw.Orphaned,
		OrphanedFrom: raw.OrphanedFrom,
	}
	return nil
}

// Edge is a directed relationship between two nodes.
type Edge struct {
	ID           string       `json:"id"`
	Source       string       `json:"source"`
	Target       string       `json:"target"`
	Relationship Relationship `json:"relationship"`
	Animated     bool         `json:"animated,omitempty"`
	Dashed       bool         `json:"dashed,omitempty"`
}

// EdgeID derives an edge id from its endpoints and relationship. The optional
// discriminator allows parallel edges of the same relationship.
func EdgeID(source, target string, rel Relationship, discriminator string) string {
	id := fmt.Sprintf("%s-%s-%s", source, rel, target)
	if discriminator != "" {
		id += "-" + discriminator
	}
	return id
}

// NewEdge builds an edge with a derived id and the presentation hints
// conventional for rel.
func NewEdge(source, target string, rel Relationship, discriminator string) *Edge {
	return &Edge{
		ID:           EdgeID(source, target, rel, discriminator),
		Source:       source,
		Target:       target,
		Relationship: rel,
		Animated:     rel == RelRoutesTraffic || rel == RelForwardsTo || rel == RelExternalTraffic,
		Dashed:       rel == RelContains,
	}
}

// Graph is the node and edge set of a canvas. Nodes and edges keep their
// insertion order. Every edge endpoint refers to an existing node.
type Graph struct {
	nodes     []*Node
	nodeIndex map[string]*Node
	edges     []*Edge
	edgeIndex map[string]*Edge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodeIndex: make(map[string]*Node),
		edgeIndex: make(map[string]*Edge),
	}
}

// Nodes returns the nodes in insertion order. The slice is a copy; the nodes are not.
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []*Edge {
	return append([]*Edge(nil), g.edges...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodeIndex[id]
	return n, ok
}

// Edge looks up an edge by id.
func (g *Graph) Edge(id string) (*Edge, bool) {
	e, ok := g.edgeIndex[id]
	return e, ok
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodeIndex[id]
	return ok
}

// NodesOfType returns the nodes of type t in insertion order.
func (g *Graph) NodesOfType(t kinds.ComponentType) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// EdgesOf returns the edges incident to id.
func (g *Graph) EdgesOf(id string) []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.Source == id || e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// Connected reports whether an edge exists between a and b in either direction.
func (g *Graph) Connected(a, b string) bool {
	for _, e := range g.edges {
		if (e.Source == a && e.Target == b) || (e.Source == b && e.Target == a) {
			return true
		}
	}
	return false
}

// UniqueID returns base if it is free, otherwise base with the smallest
// numeric suffix that is.
func (g *Graph) UniqueID(base string) string {
	if !g.HasNode(base) {
		return base
	}
	for i := 2; ; i++ {
		id := fmt.Sprintf("%s-%d", base, i)
		if !g.HasNode(id) {
			return id
		}
	}
}

// AddNode inserts n. Ids must be unique.
func (g *Graph) AddNode(n *Node) error {
	if n.ID == "" {
		return ErrEmptyID
	}
	if g.HasNode(n.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	if n.Config == nil {
		n.Config = DefaultConfig(n.Type, n.Label)
	}
	if n.Status == "" {
		n.Status = StatusRunning
	}
	g.nodes = append(g.nodes, n)
	g.nodeIndex[n.ID] = n
	return nil
}

// RemoveNode deletes the node with the given id together with every edge
// that touches it, and returns the removed edges.
func (g *Graph) RemoveNode(id string) ([]*Edge, error) {
	if !g.HasNode(id) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	delete(g.nodeIndex, id)
	for i, n := range g.nodes {
		if n.ID == id {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			break
		}
	}
	return g.pruneEdges(func(e *Edge) bool { return e.Source == id || e.Target == id }), nil
}

// AddEdge inserts e. Both endpoints must exist and the id must be unique.
func (g *Graph) AddEdge(e *Edge) error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if !g.HasNode(e.Source) || !g.HasNode(e.Target) {
		return fmt.Errorf("%w: %s -> %s", ErrDanglingEdge, e.Source, e.Target)
	}
	if _, ok := g.edgeIndex[e.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEdge, e.ID)
	}
	g.edges = append(g.edges, e)
	g.edgeIndex[e.ID] = e
	return nil
}

// RemoveEdge deletes an edge by id.
func (g *Graph) RemoveEdge(id string) error {
	if _, ok := g.edgeIndex[id]; !ok {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
	}
	g.pruneEdges(func(e *Edge) bool { return e.ID == id })
	return nil
}

// RemoveEdgesBetween deletes all edges between a and b in either direction.
func (g *Graph) RemoveEdgesBetween(a, b string) []*Edge {
	return g.pruneEdges(func(e *Edge) bool {
		return (e.Source == a && e.Target == b) || (e.Source == b && e.Target == a)
	})
}

func (g *Graph) pruneEdges(match func(*Edge) bool) []*Edge {
	var removed []*Edge
	kept := g.edges[:0]
	for _, e := range g.edges {
		if match(e) {
			removed = append(removed, e)
			delete(g.edgeIndex, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(g.edges); i++ {
		g.edges[i] = nil
	}
	g.edges = kept
	return removed
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	c := NewGraph()
	for _, n := range g.nodes {
		cn := n.Clone()
		c.nodes = append(c.nodes, cn)
		c.nodeIndex[cn.ID] = cn
	}
	for _, e := range g.edges {
		ce := *e
		c.edges = append(c.edges, &ce)
		c.edgeIndex[ce.ID] = &ce
	}
	return c
}

// Validate checks id uniqueness and edge referential integrity.
func (g *Graph) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(g.nodes))
	for _, n := range g.nodes {
		if seen[n.ID] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID))
		}
		seen[n.ID] = true
	}
	edgeSeen := make(map[string]bool, len(g.edges))
	for _, e := range g.edges {
		if !seen[e.Source] || !seen[e.Target] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDanglingEdge, e.ID))
		}
		if edgeSeen[e.ID] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateEdge, e.ID))
		}
		edgeSeen[e.ID] = true
	}
	return errors.Join(errs...)
}

type graphJSON struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// MarshalJSON encodes the graph as ordered node and edge lists.
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := graphJSON{Nodes: g.nodes, Edges: g.edges}
	if out.Nodes == nil {
		out.Nodes = []*Node{}
	}
	if out.Edges == nil {
		out.Edges = []*Edge{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds a graph, rejecting snapshots that break its invariants.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var raw graphJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fresh := NewGraph()
	for _, n := range raw.Nodes {
		if err := fresh.AddNode(n); err != nil {
			return err
		}
	}
	for _, e := range raw.Edges {
		if err := fresh.AddEdge(e); err != nil {
			return err
		}
	}
	*g = *fresh
	return nil
}
