package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/manifest"
	"github.com/ritzau/kube-playground/pkg/model"
)

func rules(advice []Advice, nodeID string) map[string]bool {
	out := make(map[string]bool)
	for _, a := range advice {
		if nodeID == "" || a.NodeID == nodeID {
			out[a.Rule] = true
		}
	}
	return out
}

func mustAdd(t *testing.T, g *model.Graph, nodes ...*model.Node) {
	t.Helper()
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n))
	}
}

func TestCheckDefaultDeployment(t *testing.T) {
	g := model.NewGraph()
	mustAdd(t, g,
		&model.Node{ID: "svc", Type: kinds.Service, Label: "web"},
		&model.Node{ID: "dep", Type: kinds.Deployment, Label: "web"},
	)

	advice := Check(g)
	dep := rules(advice, "dep")
	assert.True(t, dep["image-tag"], "default nginx:latest image")
	assert.True(t, dep["missing-limits"])
	assert.True(t, dep["no-autoscaler"])
	assert.False(t, dep["single-replica"], "defaults to three replicas")
	assert.True(t, rules(advice, "svc")["service-without-endpoints"])

	for _, a := range advice {
		assert.NotEmpty(t, a.Rule)
		assert.NotEmpty(t, a.Message)
	}
}

func TestCheckWellConfiguredDeployment(t *testing.T) {
	g := model.NewGraph()
	cfg := &model.DeploymentConfig{
		Meta:     model.Meta{Name: "api"},
		Replicas: 1,
		Template: model.PodTemplate{PodSpec: model.PodSpec{Containers: []model.Container{{
			Name:   "api",
			Image:  "example/api:1.4.2",
			Limits: map[string]string{"cpu": "500m", "memory": "128Mi"},
			Env: []model.EnvVar{
				{Name: "DB_PASSWORD", Value: "hunter2"},
				{Name: "API_TOKEN", From: &model.KeyRef{Kind: kinds.Secret, Name: "api", Key: "token"}},
				{Name: "MODE", Value: "production"},
			},
		}}}},
	}
	mustAdd(t, g,
		&model.Node{ID: "dep", Type: kinds.Deployment, Label: "api", Config: cfg},
		&model.Node{ID: "svc", Type: kinds.Service, Label: "api"},
		&model.Node{ID: "hpa", Type: kinds.HPA, Label: "api"},
	)
	require.NoError(t, g.AddEdge(model.NewEdge("svc", "dep", model.RelRoutesTraffic, "")))
	require.NoError(t, g.AddEdge(model.NewEdge("hpa", "dep", model.RelScaleTarget, "")))

	advice := Check(g)
	dep := rules(advice, "dep")
	assert.False(t, dep["image-tag"])
	assert.False(t, dep["missing-limits"])
	assert.False(t, dep["no-autoscaler"])
	assert.True(t, dep["single-replica"])
	assert.False(t, rules(advice, "svc")["service-without-endpoints"])

	var secrets []Advice
	for _, a := range advice {
		if a.Rule == "plain-secret" {
			secrets = append(secrets, a)
		}
	}
	require.Len(t, secrets, 1)
	assert.Contains(t, secrets[0].Message, "DB_PASSWORD")
}

func TestCheckInvalidImage(t *testing.T) {
	g := model.NewGraph()
	mustAdd(t, g, &model.Node{ID: "pod", Type: kinds.Pod, Config: &model.PodConfig{
		Meta:    model.Meta{Name: "p"},
		PodSpec: model.PodSpec{Containers: []model.Container{{Name: "c", Image: "UPPER/Case::bad"}}},
	}})

	var found bool
	for _, a := range Check(g) {
		if a.Rule == "image-tag" {
			found = true
			assert.Equal(t, SeverityError, a.Severity)
		}
	}
	assert.True(t, found)
}

func TestCheckOrphansCyclesAndReachability(t *testing.T) {
	g := model.NewGraph()
	mustAdd(t, g,
		&model.Node{ID: "user", Type: kinds.ExternalUser, Label: "External User"},
		&model.Node{ID: "svc", Type: kinds.Service, Label: "front"},
		&model.Node{ID: "front", Type: kinds.Deployment, Label: "front"},
		&model.Node{ID: "back", Type: kinds.Deployment, Label: "back"},
		&model.Node{ID: "pod", Type: kinds.Pod, Label: "stray", Orphaned: true, OrphanedFrom: "gone", Status: model.StatusError},
	)
	for _, e := range []*model.Edge{
		model.NewEdge("user", "svc", model.RelExternalTraffic, ""),
		model.NewEdge("svc", "front", model.RelRoutesTraffic, ""),
		model.NewEdge("svc", "pod", model.RelRoutesTraffic, ""),
		model.NewEdge("pod", "svc", model.RelConnects, ""),
	} {
		require.NoError(t, g.AddEdge(e))
	}

	advice := Check(g)
	assert.True(t, rules(advice, "pod")["orphaned-pod"])
	assert.True(t, rules(advice, "back")["unreachable-workload"])
	assert.False(t, rules(advice, "front")["unreachable-workload"])
	assert.True(t, rules(advice, "")["dependency-cycle"])

	counts := Count(advice)
	assert.Equal(t, 1, counts[SeverityError])
}

func TestNoReachabilityAdviceWithoutEntryPoint(t *testing.T) {
	g := model.NewGraph()
	mustAdd(t, g, &model.Node{ID: "dep", Type: kinds.Deployment, Label: "a"})
	assert.False(t, rules(Check(g), "")["unreachable-workload"])
}

func TestCheckRecords(t *testing.T) {
	res := manifest.Parse(`kind: Service
metadata:
  name: web
---
apiVersion: v1
kind: ConfigMap
metadata:
  labels: {a: b}
---
apiVersion: v1
kind: Service
metadata:
  name: Web_Front
---
apiVersion: example.com/v1
kind: Widget
metadata:
  name: gizmo
---
apiVersion: v1
kind: Service
metadata:
  name: web
---
- not a resource
`)
	advice := CheckRecords(res)

	byRule := make(map[string][]Advice)
	for _, a := range advice {
		byRule[a.Rule] = append(byRule[a.Rule], a)
	}

	require.Len(t, byRule["missing-api-version"], 1)
	assert.Equal(t, 1, byRule["missing-api-version"][0].Line)
	require.Len(t, byRule["missing-name"], 1)
	assert.Equal(t, 5, byRule["missing-name"][0].Line)
	require.Len(t, byRule["invalid-name"], 1)
	assert.Contains(t, byRule["invalid-name"][0].Message, "Web_Front")
	require.Len(t, byRule["unknown-kind"], 1)
	assert.Equal(t, SeverityInfo, byRule["unknown-kind"][0].Severity)
	require.Len(t, byRule["duplicate-resource"], 1)
	assert.Contains(t, byRule["duplicate-resource"][0].Message, "line 1")
	require.Len(t, byRule["dropped-document"], 1)
	assert.Equal(t, 5, byRule["dropped-document"][0].Document)
}

func TestCheckTextDuplicateKeys(t *testing.T) {
	advice := CheckText(`apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
spec:
  replicas: 2
  replicas: 5
`)
	var dups []Advice
	for _, a := range advice {
		if a.Rule == "duplicate-key" {
			dups = append(dups, a)
		}
	}
	require.Len(t, dups, 1)
	assert.Equal(t, 7, dups[0].Line)
	assert.Contains(t, dups[0].Message, "line 6")
}

func TestCheckManifestUsesGivenParse(t *testing.T) {
	text := "kind: ConfigMap\nmetadata:\n  name: a\n  name: b\n"
	res := manifest.Parse(text)

	advice := CheckManifest(res, text)
	assert.Equal(t, CheckText(text), advice)

	dups := DuplicateKeys(text)
	require.Len(t, dups, 1)
	assert.Equal(t, 4, dups[0].Line)
	assert.Equal(t, "duplicate-key", dups[0].Rule)
}
