package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/model"
	"github.com/ritzau/kube-playground/pkg/reconcile"
)

// value returns the value of the series of family name whose labels include
// every pair in labels.
func value(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	series:
		for _, s := range f.GetMetric() {
			got := make(map[string]string)
			for _, l := range s.GetLabel() {
				got[l.GetName()] = l.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue series
				}
			}
			switch {
			case s.GetCounter() != nil:
				return s.GetCounter().GetValue()
			case s.GetGauge() != nil:
				return s.GetGauge().GetValue()
			case s.GetHistogram() != nil:
				return float64(s.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("no series %s%v", name, labels)
	return 0
}

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("add-node", true, time.Millisecond)
	m.ObserveOperation("add-node", true, time.Millisecond)
	m.ObserveOperation("add-edge", false, time.Millisecond)

	if v := value(t, m, "kube_playground_operations_total", map[string]string{"operation": "add-node", "result": "ok"}); v != 2 {
		t.Errorf("add-node ok = %v", v)
	}
	if v := value(t, m, "kube_playground_operations_total", map[string]string{"operation": "add-edge", "result": "failed"}); v != 1 {
		t.Errorf("add-edge failed = %v", v)
	}
	if v := value(t, m, "kube_playground_operation_duration_seconds", map[string]string{"operation": "add-node"}); v != 2 {
		t.Errorf("duration samples = %v", v)
	}
}

func TestObserveReconcile(t *testing.T) {
	m := New()
	m.ObserveReconcile(&reconcile.Report{Added: []string{"a", "b"}}, nil)
	m.ObserveReconcile(&reconcile.Report{Removed: []string{"c"}}, nil)
	m.ObserveReconcile(&reconcile.Report{}, nil)
	m.ObserveReconcile(&reconcile.Report{Skipped: true}, nil)
	m.ObserveReconcile(nil, errors.New("boom"))

	for result, want := range map[string]float64{"changed": 2, "noop": 1, "skipped": 1, "failed": 1} {
		if v := value(t, m, "kube_playground_reconciliations_total", map[string]string{"result": result}); v != want {
			t.Errorf("%s = %v, want %v", result, v, want)
		}
	}
	if v := value(t, m, "kube_playground_pods_created_total", nil); v != 2 {
		t.Errorf("pods created = %v", v)
	}
	if v := value(t, m, "kube_playground_pods_removed_total", nil); v != 1 {
		t.Errorf("pods removed = %v", v)
	}
}

func TestSetGraph(t *testing.T) {
	g := model.NewGraph()
	for _, n := range []*model.Node{
		{ID: "a", Type: kinds.Deployment, Label: "a"},
		{ID: "b", Type: kinds.Deployment, Label: "b"},
		{ID: "c", Type: "widget", Label: "c"},
	} {
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.AddEdge(model.NewEdge("a", "b", model.RelConnects, "")); err != nil {
		t.Fatal(err)
	}

	m := New()
	m.SetGraph(g)
	if v := value(t, m, "kube_playground_nodes", map[string]string{"type": "deployment"}); v != 2 {
		t.Errorf("deployments = %v", v)
	}
	if v := value(t, m, "kube_playground_nodes", map[string]string{"type": "service"}); v != 0 {
		t.Errorf("services = %v", v)
	}
	if v := value(t, m, "kube_playground_nodes", map[string]string{"type": "widget"}); v != 1 {
		t.Errorf("widgets = %v", v)
	}
	if v := value(t, m, "kube_playground_edges", nil); v != 1 {
		t.Errorf("edges = %v", v)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("x", true, 0)
	m.ObserveReconcile(nil, nil)
	m.ObserveDroppedDocuments(3)
	m.SetGraph(model.NewGraph())
	if m.Registry() != nil {
		t.Error("nil metrics has a registry")
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveDroppedDocuments(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "kube_playground_dropped_documents_total 2") {
		t.Errorf("exposition missing counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("runtime collectors not registered")
	}
}
