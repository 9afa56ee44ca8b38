package lens

import (
	"testing"

	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/model"
)

func chain(t *testing.T) *model.Graph {
	t.Helper()
	g := model.NewGraph()
	for _, n := range []*model.Node{
		{ID: "ing", Type: kinds.Ingress, Label: "ing"},
		{ID: "svc", Type: kinds.Service, Label: "svc"},
		{ID: "dep", Type: kinds.Deployment, Label: "dep"},
		{ID: "cm", Type: kinds.ConfigMap, Label: "cm"},
		{ID: "island", Type: kinds.Secret, Label: "island"},
	} {
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range []*model.Edge{
		model.NewEdge("ing", "svc", model.RelForwardsTo, ""),
		model.NewEdge("svc", "dep", model.RelRoutesTraffic, ""),
		model.NewEdge("cm", "dep", model.RelConfigures, ""),
	} {
		if err := g.AddEdge(e); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func TestComputeDistances(t *testing.T) {
	g := chain(t)
	d := ComputeDistances(g, []string{"svc", "missing"})

	want := map[string]int{"svc": 0, "ing": 1, "dep": 1, "cm": 2, "island": Infinite}
	for id, w := range want {
		if d[id] != w {
			t.Errorf("distance(%s) = %d, want %d", id, d[id], w)
		}
	}

	none := ComputeDistances(g, nil)
	for id, dist := range none {
		if dist != Infinite {
			t.Errorf("distance(%s) = %d without focus", id, dist)
		}
	}
}

func TestNeighborhood(t *testing.T) {
	g := chain(t)
	sub := Neighborhood(g, []string{"ing"}, 1)
	if sub.Len() != 2 || len(sub.Edges()) != 1 {
		t.Errorf("radius 1: %d nodes, %d edges", sub.Len(), len(sub.Edges()))
	}
	if err := sub.Validate(); err != nil {
		t.Errorf("neighborhood invalid: %v", err)
	}

	all := Neighborhood(g, []string{"ing"}, -1)
	if all.Len() != 4 {
		t.Errorf("unbounded radius: %d nodes, want 4", all.Len())
	}
}

func TestComputeDiff(t *testing.T) {
	g := chain(t)

	full := ComputeDiff(nil, g)
	if !full.FullGraph || len(full.AddedNodes) != 5 || len(full.AddedEdges) != 3 {
		t.Fatalf("full diff = %+v", full)
	}

	snap := Capture(g)
	if d := ComputeDiff(snap, g); !d.Empty() {
		t.Errorf("diff against own snapshot not empty: %+v", d)
	}

	dep, _ := g.Node("dep")
	dep.Position = model.Position{X: 1, Y: 2}
	if _, err := g.RemoveNode("cm"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode(&model.Node{ID: "pod", Type: kinds.Pod, Label: "pod"}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge(model.NewEdge("dep", "pod", model.RelManages, "")); err != nil {
		t.Fatal(err)
	}

	d := ComputeDiff(snap, g)
	if d.FullGraph || d.Empty() {
		t.Fatalf("unexpected diff %+v", d)
	}
	if len(d.AddedNodes) != 1 || d.AddedNodes[0].ID != "pod" {
		t.Errorf("added nodes = %v", d.AddedNodes)
	}
	if len(d.RemovedNodes) != 1 || d.RemovedNodes[0] != "cm" {
		t.Errorf("removed nodes = %v", d.RemovedNodes)
	}
	if len(d.ModifiedNodes) != 1 || d.ModifiedNodes[0].ID != "dep" {
		t.Errorf("modified nodes = %v", d.ModifiedNodes)
	}
	if len(d.AddedEdges) != 1 || len(d.RemovedEdges) != 1 {
		t.Errorf("edges added %d removed %d", len(d.AddedEdges), len(d.RemovedEdges))
	}
	if d.Hash == snap.Hash {
		t.Error("hash unchanged after mutation")
	}
}
