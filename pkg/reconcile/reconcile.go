// Package reconcile keeps the pods attached to a deployment in line with the
// deployment's declared replica count.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/layout"
	"github.com/ritzau/kube-playground/pkg/logging"
	"github.com/ritzau/kube-playground/pkg/model"
)

var (
	ErrNotDeployment    = errors.New("node is not a deployment")
	ErrMissingConfig    = errors.New("deployment has no configuration")
	ErrNegativeReplicas = errors.New("replica count is negative")
)

// Error reports a failed reconciliation. The graph is left as it was.
type Error struct {
	DeploymentID string
	Err          error
}

func (e *Error) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.DeploymentID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Report describes what one reconciliation pass did.
type Report struct {
	DeploymentID string
	Desired      int
	// Current is the pod count before the pass.
	Current int
	Added   []string
	Removed []string
	// Skipped is set when the deployment no longer exists.
	Skipped bool
}

// Changed reports whether the pass mutated the graph.
func (r *Report) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// ManagedPods returns the pods attributed to deployment depID: pods carrying
// ManagedBy == depID and pods joined to it by any edge. Pods the user
// attached come first, synthesized pods after them, each group in graph
// order. Scale-down truncates from the end, so synthesized pods go first.
func ManagedPods(g *model.Graph, depID string) []*model.Node {
	var manual, synthesized []*model.Node
	for _, n := range g.NodesOfType(kinds.Pod) {
		switch {
		case n.ManagedBy == depID:
			synthesized = append(synthesized, n)
		case g.Connected(depID, n.ID):
			manual = append(manual, n)
		}
	}
	return append(manual, synthesized...)
}

// Reconcile adds or removes pods so that deployment depID has exactly
// replicas pods. A deployment that has disappeared is a no-op.
func Reconcile(g *model.Graph, depID string) (*Report, error) {
	report := &Report{DeploymentID: depID}

	dep, ok := g.Node(depID)
	if !ok {
		report.Skipped = true
		logging.Debug("Skipping reconciliation of missing deployment", "deployment", depID)
		return report, nil
	}
	if dep.Type != kinds.Deployment {
		return nil, &Error{DeploymentID: depID, Err: ErrNotDeployment}
	}
	cfg, ok := dep.Config.(*model.DeploymentConfig)
	if !ok || cfg == nil {
		return nil, &Error{DeploymentID: depID, Err: ErrMissingConfig}
	}
	if cfg.Replicas < 0 {
		return nil, &Error{DeploymentID: depID, Err: fmt.Errorf("%w: %d", ErrNegativeReplicas, cfg.Replicas)}
	}

	pods := ManagedPods(g, depID)
	report.Current = len(pods)
	report.Desired = int(cfg.Replicas)

	switch {
	case report.Current < report.Desired:
		added, err := scaleUp(g, dep, cfg, report.Current, report.Desired-report.Current)
		if err != nil {
			return nil, &Error{DeploymentID: depID, Err: err}
		}
		report.Added = added
	case report.Current > report.Desired:
		for _, pod := range pods[report.Desired:] {
			if _, err := g.RemoveNode(pod.ID); err != nil {
				return nil, &Error{DeploymentID: depID, Err: err}
			}
			report.Removed = append(report.Removed, pod.ID)
		}
	}

	if report.Changed() {
		logging.Info("Reconciled deployment",
			"deployment", depID,
			"replicas", report.Desired,
			"previous", report.Current,
			"added", len(report.Added),
			"removed", len(report.Removed))
	}
	return report, nil
}

// scaleUp synthesizes count pods. Pod ordinals continue from current+1 and
// skip ids that are still taken.
func scaleUp(g *model.Graph, dep *model.Node, cfg *model.DeploymentConfig, current, count int) ([]string, error) {
	pods := make([]*model.Node, 0, count)
	taken := make(map[string]bool)
	i := current
	for len(pods) < count {
		i++
		id := fmt.Sprintf("%s-pod-%d", dep.ID, i)
		if g.HasNode(id) || taken[id] {
			continue
		}
		taken[id] = true
		pods = append(pods, newPod(dep, cfg, id, fmt.Sprintf("%s-pod-%d", dep.Name(), i), current+len(pods)))
	}

	added := make([]string, 0, len(pods))
	for _, pod := range pods {
		if err := g.AddNode(pod); err != nil {
			return added, err
		}
		if err := g.AddEdge(model.NewEdge(dep.ID, pod.ID, model.RelManages, "")); err != nil {
			return added, err
		}
		added = append(added, pod.ID)
	}
	return added, nil
}

func newPod(dep *model.Node, cfg *model.DeploymentConfig, id, name string, slot int) *model.Node {
	podCfg := &model.PodConfig{
		Meta: model.Meta{
			Name:      name,
			Namespace: cfg.Namespace,
			Labels:    cfg.Template.Labels,
			Owners:    []model.OwnerRef{{Kind: kinds.Deployment.Kind(), Name: dep.Name()}},
		},
		PodSpec: cfg.Template.PodSpec,
	}
	return &model.Node{
		ID:        id,
		Type:      kinds.Pod,
		Label:     name,
		Position:  layout.Near(dep.Position, slot),
		Config:    model.CloneConfig(podCfg),
		Status:    model.StatusRunning,
		ManagedBy: dep.ID,
	}
}

// Orphan marks the pods managed by depID as orphaned before the deployment
// is removed. Pods stay on the canvas with an error status; the caller's
// removal of the deployment drops their edges to it.
func Orphan(g *model.Graph, depID string) []string {
	var ids []string
	for _, pod := range ManagedPods(g, depID) {
		pod.Status = model.StatusError
		pod.Orphaned = true
		pod.OrphanedFrom = depID
		pod.ManagedBy = ""
		ids = append(ids, pod.ID)
	}
	if len(ids) > 0 {
		logging.Warn("Deployment removed, pods orphaned", "deployment", depID, "pods", len(ids))
	}
	return ids
}

// Deployments returns the ids of every deployment in g that can be
// reconciled. Deployments kept opaque have no replica count to converge to.
func Deployments(g *model.Graph) []string {
	var ids []string
	for _, n := range g.NodesOfType(kinds.Deployment) {
		if _, ok := n.Config.(*model.DeploymentConfig); ok {
			ids = append(ids, n.ID)
		}
	}
	return ids
}
