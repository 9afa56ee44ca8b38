package connect

import (
	"testing"

	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/model"
)

func TestIsLegalConnection(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"service", "deployment", true},
		{"Deployment", "Service", true},
		{"ingress", "svc", true},
		{"pod", "configmap", true},
		{"persistentvolumeclaim", "persistentvolume", true},
		{"hpa", "deployment", true},
		{"horizontalpodautoscaler", "statefulset", true},
		{"user", "ingress", true},
		{"namespace", "deployment", true},
		{"ingress", "pod", false},
		{"configmap", "secret", false},
		{"namespace", "namespace", false},
		{"widget", "service", false},
	}
	for _, tt := range tests {
		if got := IsLegalConnection(tt.a, tt.b); got != tt.want {
			t.Errorf("IsLegalConnection(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsLegalConnectionSymmetric(t *testing.T) {
	all := append(kinds.All(), "widget")
	for _, a := range all {
		for _, b := range all {
			if IsLegalConnection(string(a), string(b)) != IsLegalConnection(string(b), string(a)) {
				t.Errorf("asymmetric legality for %s/%s", a, b)
			}
		}
	}
}

func TestRelationship(t *testing.T) {
	if got := Relationship(kinds.Service, kinds.Deployment); got != model.RelRoutesTraffic {
		t.Errorf("service->deployment = %s", got)
	}
	if got := Relationship(kinds.Deployment, kinds.PVC); got != model.RelMountsVolume {
		t.Errorf("deployment->pvc = %s", got)
	}
	if got := Relationship(kinds.Namespace, kinds.Pod); got != model.RelConnects {
		t.Errorf("namespace->pod = %s", got)
	}
}

func TestTargets(t *testing.T) {
	targets := Targets(kinds.Ingress)
	found := map[kinds.ComponentType]bool{}
	for _, tt := range targets {
		found[tt] = true
	}
	if !found[kinds.Service] || !found[kinds.ExternalUser] || !found[kinds.Namespace] {
		t.Errorf("ingress targets = %v", targets)
	}
	if found[kinds.Pod] {
		t.Errorf("ingress should not connect to pods")
	}
}
