package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ritzau/kube-playground/pkg/kinds"
)

func node(t kinds.ComponentType, name string) *Node {
	return &Node{ID: fmt.Sprintf("%s-%s", t, name), Type: t, Label: name}
}

func TestAddNodeDefaults(t *testing.T) {
	g := NewGraph()
	n := node(kinds.Deployment, "web")
	if err := g.AddNode(n); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}

	cfg, ok := n.Config.(*DeploymentConfig)
	if !ok {
		t.Fatalf("expected *DeploymentConfig, got %T", n.Config)
	}
	if cfg.Replicas != DefaultReplicas {
		t.Errorf("replicas = %d, want %d", cfg.Replicas, DefaultReplicas)
	}
	if Image(cfg) != DefaultImage {
		t.Errorf("image = %q, want %q", Image(cfg), DefaultImage)
	}
	if n.Status != StatusRunning {
		t.Errorf("status = %q, want running", n.Status)
	}
	if n.Name() != "web" {
		t.Errorf("name = %q, want web", n.Name())
	}
}

func TestAddNodeDuplicate(t *testing.T) {
	g := NewGraph()
	if err := g.AddNode(node(kinds.Service, "web")); err != nil {
		t.Fatal(err)
	}
	err := g.AddNode(node(kinds.Service, "web"))
	if !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("expected ErrDuplicateNode, got %v", err)
	}
}

func TestAddEdgeRejectsDangling(t *testing.T) {
	g := NewGraph()
	if err := g.AddNode(node(kinds.Service, "web")); err != nil {
		t.Fatal(err)
	}
	err := g.AddEdge(NewEdge("service-web", "deployment-web", RelRoutesTraffic, ""))
	if !errors.Is(err, ErrDanglingEdge) {
		t.Errorf("expected ErrDanglingEdge, got %v", err)
	}
	if len(g.Edges()) != 0 {
		t.Errorf("expected no edges, got %d", len(g.Edges()))
	}
}

func TestRemoveNodePrunesEdges(t *testing.T) {
	g := NewGraph()
	for _, n := range []*Node{node(kinds.Service, "web"), node(kinds.Deployment, "web"), node(kinds.ConfigMap, "cfg")} {
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	mustEdge(t, g, NewEdge("service-web", "deployment-web", RelRoutesTraffic, ""))
	mustEdge(t, g, NewEdge("configmap-cfg", "deployment-web", RelConfigures, "ENV"))
	mustEdge(t, g, NewEdge("configmap-cfg", "service-web", RelConnects, ""))

	removed, err := g.RemoveNode("deployment-web")
	if err != nil {
		t.Fatalf("RemoveNode failed: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("expected 2 removed edges, got %d", len(removed))
	}
	if len(g.Edges()) != 1 {
		t.Errorf("expected 1 remaining edge, got %d", len(g.Edges()))
	}
	if err := g.Validate(); err != nil {
		t.Errorf("graph invalid after removal: %v", err)
	}
}

func TestUniqueID(t *testing.T) {
	g := NewGraph()
	if got := g.UniqueID("service-web"); got != "service-web" {
		t.Errorf("UniqueID on empty graph = %q", got)
	}
	_ = g.AddNode(node(kinds.Service, "web"))
	_ = g.AddNode(&Node{ID: "service-web-2", Type: kinds.Service, Label: "web"})
	if got := g.UniqueID("service-web"); got != "service-web-3" {
		t.Errorf("UniqueID = %q, want service-web-3", got)
	}
}

func TestGraphJSONRoundTrip(t *testing.T) {
	g := NewGraph()
	_ = g.AddNode(node(kinds.Deployment, "api"))
	_ = g.AddNode(node(kinds.Service, "api"))
	_ = g.AddNode(&Node{ID: "widget-x", Type: "widget", Label: "x"})
	mustEdge(t, g, NewEdge("service-api", "deployment-api", RelRoutesTraffic, ""))

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out Graph
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out.Len() != 3 || len(out.Edges()) != 1 {
		t.Fatalf("round trip lost data: %d nodes, %d edges", out.Len(), len(out.Edges()))
	}
	dep, _ := out.Node("deployment-api")
	if _, ok := dep.Config.(*DeploymentConfig); !ok {
		t.Errorf("deployment config decoded as %T", dep.Config)
	}
	w, _ := out.Node("widget-x")
	if o, ok := w.Config.(*OpaqueConfig); !ok || o.Type != "widget" {
		t.Errorf("opaque config decoded as %#v", w.Config)
	}
}

func TestCloneIsDeep(t *testing.T) {
	g := NewGraph()
	_ = g.AddNode(node(kinds.Deployment, "api"))
	c := g.Clone()

	n, _ := c.Node("deployment-api")
	n.Config.(*DeploymentConfig).Replicas = 7
	n.Position.X = 99

	orig, _ := g.Node("deployment-api")
	if orig.Config.(*DeploymentConfig).Replicas == 7 || orig.Position.X == 99 {
		t.Error("mutating the clone changed the original")
	}
}

func TestOpaqueKnownTypeSurvivesCloneAndJSON(t *testing.T) {
	g := NewGraph()
	n := &Node{
		ID:    "deployment-api",
		Type:  kinds.Deployment,
		Label: "api",
		Config: &OpaqueConfig{
			Meta:   Meta{Name: "api"},
			Type:   kinds.Deployment,
			Kind:   "Deployment",
			Fields: map[string]any{"spec": map[string]any{"replicas": "lots"}},
		},
	}
	if err := g.AddNode(n); err != nil {
		t.Fatal(err)
	}

	c, _ := g.Clone().Node("deployment-api")
	if !IsOpaque(c.Config) {
		t.Fatalf("clone config = %T, want *OpaqueConfig", c.Config)
	}

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	back := NewGraph()
	if err := json.Unmarshal(data, back); err != nil {
		t.Fatal(err)
	}
	m, _ := back.Node("deployment-api")
	o, ok := m.Config.(*OpaqueConfig)
	if !ok {
		t.Fatalf("decoded config = %T, want *OpaqueConfig", m.Config)
	}
	if o.Type != kinds.Deployment || o.Name != "api" || o.Fields["spec"] == nil {
		t.Errorf("decoded config = %#v", o)
	}
}

// Random mutation sequences must never leave an edge pointing at a missing node.
func TestReferentialIntegrityUnderRandomMutations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	g := NewGraph()
	types := []kinds.ComponentType{kinds.Service, kinds.Deployment, kinds.Pod, kinds.ConfigMap}

	for step := 0; step < 2000; step++ {
		nodes := g.Nodes()
		switch op := rng.Intn(4); {
		case op == 0 || len(nodes) < 2:
			ct := types[rng.Intn(len(types))]
			_ = g.AddNode(node(ct, fmt.Sprintf("n%d", rng.Intn(30))))
		case op == 1:
			_, _ = g.RemoveNode(nodes[rng.Intn(len(nodes))].ID)
		case op == 2:
			a, b := nodes[rng.Intn(len(nodes))], nodes[rng.Intn(len(nodes))]
			_ = g.AddEdge(NewEdge(a.ID, b.ID, RelConnects, ""))
		default:
			if edges := g.Edges(); len(edges) > 0 {
				_ = g.RemoveEdge(edges[rng.Intn(len(edges))].ID)
			}
		}
		if err := g.Validate(); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
	}
}

func mustEdge(t *testing.T, g *Graph, e *Edge) {
	t.Helper()
	if err := g.AddEdge(e); err != nil {
		t.Fatalf("AddEdge(%s) failed: %v", e.ID, err)
	}
}
