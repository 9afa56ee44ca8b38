package cycles

import (
	"testing"

	"github.com/ritzau/kube-playground/pkg/graph"
	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/model"
)

func TestFind_NoCycles(t *testing.T) {
	tp := graph.NewTopology()
	tp.AddEdge("a", "b")
	tp.AddEdge("b", "c")

	if cycles := Find(tp); len(cycles) != 0 {
		t.Errorf("Expected no cycles, but found %d", len(cycles))
	}
}

func TestFind_SimpleCycle(t *testing.T) {
	tp := graph.NewTopology()
	tp.AddEdge("b", "a")
	tp.AddEdge("a", "b")

	cycles := Find(tp)
	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cycle, but found %d", len(cycles))
	}
	if got := cycles[0].Nodes; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected cycle [a b], got %v", got)
	}
}

func TestFind_MultipleCycles(t *testing.T) {
	tp := graph.NewTopology()
	// x -> y -> z -> x and p <-> q, joined by a one-way edge.
	tp.AddEdge("x", "y")
	tp.AddEdge("y", "z")
	tp.AddEdge("z", "x")
	tp.AddEdge("p", "q")
	tp.AddEdge("q", "p")
	tp.AddEdge("z", "p")

	cycles := Find(tp)
	if len(cycles) != 2 {
		t.Fatalf("Expected 2 cycles, but found %d: %v", len(cycles), cycles)
	}
	if cycles[0].Nodes[0] != "p" || len(cycles[1].Nodes) != 3 {
		t.Errorf("Unexpected cycle order %v", cycles)
	}
}

func TestFindInGraph_IgnoresMirrorEdges(t *testing.T) {
	g := model.NewGraph()
	for _, n := range []*model.Node{
		{ID: "svc", Type: kinds.Service, Label: "db"},
		{ID: "sts", Type: kinds.StatefulSet, Label: "db"},
		{ID: "pod", Type: kinds.Pod, Label: "p"},
	} {
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range []*model.Edge{
		model.NewEdge("svc", "sts", model.RelRoutesTraffic, ""),
		model.NewEdge("sts", "svc", model.RelHeadlessService, ""),
	} {
		if err := g.AddEdge(e); err != nil {
			t.Fatal(err)
		}
	}
	if cycles := FindInGraph(g); len(cycles) != 0 {
		t.Fatalf("headless service reported as cycle: %v", cycles)
	}

	if err := g.AddEdge(model.NewEdge("pod", "svc", model.RelConnects, "")); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge(model.NewEdge("svc", "pod", model.RelRoutesTraffic, "")); err != nil {
		t.Fatal(err)
	}
	cycles := FindInGraph(g)
	if len(cycles) != 1 || len(cycles[0].Nodes) != 2 {
		t.Errorf("Expected one pod/service cycle, got %v", cycles)
	}
}
