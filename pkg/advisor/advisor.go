// Package advisor inspects a canvas and its manifests for common mistakes.
// Advice is informational: nothing here blocks an edit or an apply.
package advisor

import (
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/ritzau/kube-playground/pkg/cycles"
	"github.com/ritzau/kube-playground/pkg/graph"
	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/model"
)

// Severity ranks advice.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Advice is one suggestion about the canvas.
type Advice struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	NodeID   string   `json:"nodeId,omitempty"`
	// Document and Line locate manifest warnings; both are zero for
	// advice about the canvas.
	Document int    `json:"document,omitempty"`
	Line     int    `json:"line,omitempty"`
	Message  string `json:"message"`
}

func (a Advice) String() string {
	if a.NodeID != "" {
		return fmt.Sprintf("[%s] %s: %s", a.Rule, a.NodeID, a.Message)
	}
	return fmt.Sprintf("[%s] %s", a.Rule, a.Message)
}

// Rule inspects a graph.
type Rule struct {
	Name  string
	Check func(c *Context) []Advice
}

// Context is shared by the rules of one Check call.
type Context struct {
	Graph *model.Graph
	// Topology holds every edge of Graph.
	Topology *graph.Topology
}

// Rules is the rule list Check applies, in order.
var Rules = []Rule{
	{"orphaned-pod", orphanedPods},
	{"service-without-endpoints", servicesWithoutEndpoints},
	{"single-replica", singleReplica},
	{"no-autoscaler", noAutoscaler},
	{"image-tag", imageTags},
	{"missing-limits", missingLimits},
	{"plain-secret", plainSecrets},
	{"dependency-cycle", dependencyCycles},
	{"unreachable-workload", unreachableWorkloads},
}

// Check runs every rule over g.
func Check(g *model.Graph) []Advice {
	c := &Context{Graph: g, Topology: graph.FromGraph(g, graph.AllEdges)}
	var out []Advice
	for _, r := range Rules {
		for _, a := range r.Check(c) {
			a.Rule = r.Name
			out = append(out, a)
		}
	}
	return out
}

// Count returns the number of advice entries per severity.
func Count(advice []Advice) map[Severity]int {
	out := make(map[Severity]int)
	for _, a := range advice {
		out[a.Severity]++
	}
	return out
}

func hasEdge(g *model.Graph, id string, match func(e *model.Edge) bool) bool {
	for _, e := range g.EdgesOf(id) {
		if match(e) {
			return true
		}
	}
	return false
}

func orphanedPods(c *Context) []Advice {
	var out []Advice
	for _, n := range c.Graph.NodesOfType(kinds.Pod) {
		if n.Orphaned {
			out = append(out, Advice{
				Severity: SeverityError,
				NodeID:   n.ID,
				Message:  fmt.Sprintf("pod was managed by %s, which has been removed", n.OrphanedFrom),
			})
		}
	}
	return out
}

func servicesWithoutEndpoints(c *Context) []Advice {
	var out []Advice
	for _, n := range c.Graph.NodesOfType(kinds.Service) {
		routed := hasEdge(c.Graph, n.ID, func(e *model.Edge) bool {
			return e.Source == n.ID && e.Relationship == model.RelRoutesTraffic
		})
		if !routed {
			out = append(out, Advice{
				Severity: SeverityWarning,
				NodeID:   n.ID,
				Message:  "service selects no workloads or pods",
			})
		}
	}
	return out
}

func singleReplica(c *Context) []Advice {
	var out []Advice
	for _, n := range c.Graph.NodesOfType(kinds.Deployment) {
		if r, ok := model.Replicas(n.Config); ok && r == 1 {
			out = append(out, Advice{
				Severity: SeverityInfo,
				NodeID:   n.ID,
				Message:  "a single replica has no redundancy; consider running at least two",
			})
		}
	}
	return out
}

func noAutoscaler(c *Context) []Advice {
	var out []Advice
	for _, n := range c.Graph.NodesOfType(kinds.Deployment) {
		scaled := hasEdge(c.Graph, n.ID, func(e *model.Edge) bool {
			return e.Target == n.ID && e.Relationship == model.RelScaleTarget
		})
		if !scaled {
			out = append(out, Advice{
				Severity: SeverityInfo,
				NodeID:   n.ID,
				Message:  "no HorizontalPodAutoscaler targets this deployment",
			})
		}
	}
	return out
}

// containers returns the containers of nodes that define a pod spec. Pods
// managed by a workload are skipped; their workload is reported instead.
func containers(g *model.Graph, visit func(n *model.Node, c model.Container)) {
	for _, n := range g.Nodes() {
		if n.ManagedBy != "" {
			continue
		}
		holder, ok := n.Config.(model.PodSpecHolder)
		if !ok {
			continue
		}
		for _, ctr := range holder.Spec().Containers {
			visit(n, ctr)
		}
	}
}

func imageTags(c *Context) []Advice {
	var out []Advice
	containers(c.Graph, func(n *model.Node, ctr model.Container) {
		image := ctr.Image
		if image == "" {
			image = model.DefaultImage
		}
		ref, err := name.ParseReference(image)
		if err != nil {
			out = append(out, Advice{
				Severity: SeverityError,
				NodeID:   n.ID,
				Message:  fmt.Sprintf("container %q has an invalid image reference %q: %v", ctr.Name, image, err),
			})
			return
		}
		if tag, ok := ref.(name.Tag); ok && tag.TagStr() == "latest" {
			out = append(out, Advice{
				Severity: SeverityWarning,
				NodeID:   n.ID,
				Message:  fmt.Sprintf("container %q uses %q; pin a specific version", ctr.Name, image),
			})
		}
	})
	return out
}

func missingLimits(c *Context) []Advice {
	var out []Advice
	containers(c.Graph, func(n *model.Node, ctr model.Container) {
		var missing []string
		for _, r := range []string{"cpu", "memory"} {
			if _, ok := ctr.Limits[r]; !ok {
				missing = append(missing, r)
			}
		}
		if len(missing) > 0 {
			out = append(out, Advice{
				Severity: SeverityWarning,
				NodeID:   n.ID,
				Message:  fmt.Sprintf("container %q has no %s limit", ctr.Name, strings.Join(missing, " or ")),
			})
		}
	})
	return out
}

var secretWords = []string{"password", "passwd", "secret", "token", "apikey", "api_key", "private_key"}

func plainSecrets(c *Context) []Advice {
	var out []Advice
	containers(c.Graph, func(n *model.Node, ctr model.Container) {
		for _, ev := range ctr.Env {
			if ev.From != nil || ev.Value == "" {
				continue
			}
			lower := strings.ToLower(ev.Name)
			for _, w := range secretWords {
				if strings.Contains(lower, w) {
					out = append(out, Advice{
						Severity: SeverityWarning,
						NodeID:   n.ID,
						Message:  fmt.Sprintf("environment variable %s holds a literal value; reference a Secret instead", ev.Name),
					})
					break
				}
			}
		}
	})
	return out
}

func dependencyCycles(c *Context) []Advice {
	var out []Advice
	for _, cycle := range cycles.FindInGraph(c.Graph) {
		out = append(out, Advice{
			Severity: SeverityWarning,
			NodeID:   cycle.Nodes[0],
			Message:  "circular relationship between " + strings.Join(cycle.Nodes, ", "),
		})
	}
	return out
}

// unreachableWorkloads reports workloads that no external traffic can
// reach. It stays quiet when the canvas has no entry point at all.
func unreachableWorkloads(c *Context) []Advice {
	var roots []string
	for _, n := range c.Graph.NodesOfType(kinds.ExternalUser) {
		roots = append(roots, n.ID)
	}
	if len(roots) == 0 {
		return nil
	}
	reach := c.Topology.Reachable(roots...)

	var out []Advice
	for _, n := range c.Graph.Nodes() {
		if !n.Type.IsWorkload() || n.Type == kinds.Job || n.Type == kinds.CronJob {
			continue
		}
		if !reach[n.ID] {
			out = append(out, Advice{
				Severity: SeverityInfo,
				NodeID:   n.ID,
				Message:  "not reachable from external traffic",
			})
		}
	}
	return out
}
