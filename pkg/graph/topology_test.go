package graph

import (
	"testing"

	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/model"
)

func TestNewTopology(t *testing.T) {
	tp := NewTopology()
	if tp.Len() != 0 {
		t.Errorf("New topology should have 0 nodes, got %d", tp.Len())
	}
}

func TestAddEdge(t *testing.T) {
	tp := NewTopology()
	tp.AddEdge("ingress", "service")
	tp.AddEdge("ingress", "service")
	tp.AddEdge("service", "service")

	if tp.Len() != 2 {
		t.Errorf("Expected 2 nodes, got %d", tp.Len())
	}
	if got := tp.Successors("ingress"); len(got) != 1 || got[0] != "service" {
		t.Errorf("Successors(ingress) = %v", got)
	}
	if got := tp.Successors("service"); len(got) != 0 {
		t.Errorf("self loop kept: %v", got)
	}
	id, ok := tp.ID("service")
	if !ok || tp.Name(id) != "service" {
		t.Errorf("ID/Name round trip failed")
	}
}

func TestFromGraphAndReachable(t *testing.T) {
	g := model.NewGraph()
	for _, n := range []*model.Node{
		{ID: "user", Type: kinds.ExternalUser, Label: "user"},
		{ID: "ing", Type: kinds.Ingress, Label: "ing"},
		{ID: "svc", Type: kinds.Service, Label: "svc"},
		{ID: "dep", Type: kinds.Deployment, Label: "dep"},
		{ID: "ns", Type: kinds.Namespace, Label: "ns"},
		{ID: "lonely", Type: kinds.Deployment, Label: "lonely"},
	} {
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range []*model.Edge{
		model.NewEdge("user", "ing", model.RelExternalTraffic, ""),
		model.NewEdge("ing", "svc", model.RelForwardsTo, ""),
		model.NewEdge("svc", "dep", model.RelRoutesTraffic, ""),
		model.NewEdge("ns", "lonely", model.RelContains, ""),
	} {
		if err := g.AddEdge(e); err != nil {
			t.Fatal(err)
		}
	}

	tp := FromGraph(g, func(e *model.Edge) bool { return e.Relationship != model.RelContains })
	if tp.Len() != 6 {
		t.Errorf("Expected 6 nodes, got %d", tp.Len())
	}
	reach := tp.Reachable("user")
	for _, id := range []string{"user", "ing", "svc", "dep"} {
		if !reach[id] {
			t.Errorf("%s not reachable", id)
		}
	}
	if reach["lonely"] || reach["ns"] {
		t.Errorf("unexpected reachable set %v", reach)
	}

	if got := FromGraph(g, AllEdges).Successors("ns"); len(got) != 1 {
		t.Errorf("AllEdges dropped containment: %v", got)
	}
	if len(tp.Reachable("missing")) != 0 {
		t.Errorf("unknown root reached nodes")
	}
}
