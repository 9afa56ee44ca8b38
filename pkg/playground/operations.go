package playground

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/google/uuid"

	"github.com/ritzau/kube-playground/pkg/advisor"
	"github.com/ritzau/kube-playground/pkg/canvas"
	"github.com/ritzau/kube-playground/pkg/connect"
	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/layout"
	"github.com/ritzau/kube-playground/pkg/model"
	"github.com/ritzau/kube-playground/pkg/reconcile"
)

// NodeSpec describes a node dropped onto the canvas.
type NodeSpec struct {
	Type string `json:"type" validate:"required"`
	// Name defaults to the config's name, then to a generated one.
	Name string `json:"name,omitempty"`
	// Position defaults to the next free slot of the type's lane.
	Position *model.Position `json:"position,omitempty"`
	// Config defaults to the type's starter configuration.
	Config json.RawMessage `json:"config,omitempty"`
}

// EdgeSpec describes a user-drawn edge.
type EdgeSpec struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
	// Relationship defaults to the tag suggested for the two types.
	Relationship model.Relationship `json:"relationship,omitempty"`
}

func generatedName(t kinds.ComponentType) string {
	return fmt.Sprintf("%s-%s", t, uuid.NewString()[:8])
}

func lookup(g *model.Graph, id string) (*model.Node, error) {
	n, ok := g.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrNodeNotFound, id)
	}
	return n, nil
}

// deploymentOf returns the deployment end of an edge between a deployment
// and a pod.
func deploymentOf(a, b *model.Node) (string, bool) {
	switch {
	case a.Type == kinds.Deployment && b.Type == kinds.Pod:
		return a.ID, true
	case b.Type == kinds.Deployment && a.Type == kinds.Pod:
		return b.ID, true
	}
	return "", false
}

// AddNode creates a node. Adding a deployment or a pod triggers
// reconciliation.
func (s *Session) AddNode(ctx context.Context, spec NodeSpec) Outcome {
	return s.mutate(ctx, "add-node", func(g *model.Graph) (*change, error) {
		t := kinds.Normalize(spec.Type)
		if !t.Known() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, spec.Type)
		}

		name := spec.Name
		var cfg model.Config
		if len(spec.Config) > 0 {
			var err error
			if cfg, err = model.DecodeConfig(t, spec.Config); err != nil {
				return nil, err
			}
			if name == "" {
				name = cfg.Metadata().Name
			}
		}
		if name == "" {
			name = generatedName(t)
		}
		if cfg == nil {
			cfg = model.DefaultConfig(t, name)
		}
		cfg.Metadata().Name = name

		pos := model.Position{}
		if spec.Position != nil {
			pos = *spec.Position
		} else {
			a := layout.NewAssigner()
			a.Occupy(g)
			pos = a.Next(t)
		}

		node := &model.Node{
			ID:       g.UniqueID(fmt.Sprintf("%s-%s", t, name)),
			Type:     t,
			Label:    name,
			Position: pos,
			Config:   cfg,
			Status:   model.StatusRunning,
		}
		if err := g.AddNode(node); err != nil {
			return nil, err
		}

		ch := &change{id: node.ID, message: fmt.Sprintf("Added %s %s", t, name)}
		switch t {
		case kinds.Deployment:
			ch.reconcile = []string{node.ID}
		case kinds.Pod:
			ch.reconcile = reconcile.Deployments(g)
		}
		return ch, nil
	})
}

// RemoveNode deletes a node and its edges. Pods managed by a removed
// deployment stay behind, marked as orphans.
func (s *Session) RemoveNode(ctx context.Context, id string) Outcome {
	return s.mutate(ctx, "remove-node", func(g *model.Graph) (*change, error) {
		n, err := lookup(g, id)
		if err != nil {
			return nil, err
		}

		var orphaned []string
		if n.Type == kinds.Deployment {
			orphaned = reconcile.Orphan(g, id)
		}
		if _, err := g.RemoveNode(id); err != nil {
			return nil, err
		}

		ch := &change{message: fmt.Sprintf("Removed %s %s", n.Type, n.Label)}
		if len(orphaned) > 0 {
			ch.warnings = append(ch.warnings, fmt.Sprintf("%d pod(s) orphaned by removing %s", len(orphaned), id))
		}
		return ch, nil
	})
}

// MoveNode changes where a node is drawn. It has no semantic effect.
func (s *Session) MoveNode(ctx context.Context, id string, pos model.Position) Outcome {
	return s.mutate(ctx, "move-node", func(g *model.Graph) (*change, error) {
		n, err := lookup(g, id)
		if err != nil {
			return nil, err
		}
		n.Position = pos
		return &change{quiet: true}, nil
	})
}

// UpdateNodeConfig applies a JSON merge patch (RFC 7386) to a node's
// configuration. A changed replica count triggers reconciliation.
func (s *Session) UpdateNodeConfig(ctx context.Context, id string, patch json.RawMessage) Outcome {
	return s.mutate(ctx, "update-node-config", func(g *model.Graph) (*change, error) {
		n, err := lookup(g, id)
		if err != nil {
			return nil, err
		}

		current, err := json.Marshal(n.Config)
		if err != nil {
			return nil, fmt.Errorf("encode %s config: %w", id, err)
		}
		merged, err := jsonpatch.MergePatch(current, patch)
		if err != nil {
			return nil, fmt.Errorf("invalid config patch: %w", err)
		}
		cfg, err := model.DecodeConfig(n.Type, merged)
		if err != nil {
			return nil, err
		}
		if cfg.Metadata().Name == "" {
			return nil, fmt.Errorf("invalid config patch: %s needs a name", id)
		}

		oldName := n.Name()
		before, _ := model.Replicas(n.Config)
		n.Config = cfg
		if n.Label == oldName {
			n.Label = cfg.Metadata().Name
		}
		if n.Status == model.StatusWarning {
			// A warning marked a spec that did not decode; the user has
			// now supplied one that does.
			n.Status = model.StatusRunning
		}

		ch := &change{message: fmt.Sprintf("Updated %s", n.Label)}
		if after, _ := model.Replicas(cfg); n.Type == kinds.Deployment && after != before {
			ch.reconcile = []string{id}
		}
		return ch, nil
	})
}

// AddEdge draws an edge the connection validator allows. Connecting a pod
// to a deployment triggers reconciliation, since the pod now counts
// towards its replicas.
func (s *Session) AddEdge(ctx context.Context, spec EdgeSpec) Outcome {
	return s.mutate(ctx, "add-edge", func(g *model.Graph) (*change, error) {
		src, err := lookup(g, spec.Source)
		if err != nil {
			return nil, err
		}
		tgt, err := lookup(g, spec.Target)
		if err != nil {
			return nil, err
		}
		if src.ID == tgt.ID {
			return nil, fmt.Errorf("%w: %s cannot connect to itself", ErrIllegalConnection, src.ID)
		}
		if !connect.IsLegalConnection(string(src.Type), string(tgt.Type)) {
			return nil, fmt.Errorf("%w: %s cannot connect to %s", ErrIllegalConnection, src.Type, tgt.Type)
		}

		rel := spec.Relationship
		if rel == "" {
			rel = connect.Relationship(src.Type, tgt.Type)
		}
		e := model.NewEdge(src.ID, tgt.ID, rel, "")
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}

		ch := &change{id: e.ID, message: fmt.Sprintf("Connected %s to %s", src.Label, tgt.Label)}
		if dep, ok := deploymentOf(src, tgt); ok {
			ch.reconcile = []string{dep}
		}
		return ch, nil
	})
}

// RemoveEdge deletes an edge. Detaching a pod from a deployment triggers
// reconciliation.
func (s *Session) RemoveEdge(ctx context.Context, id string) Outcome {
	return s.mutate(ctx, "remove-edge", func(g *model.Graph) (*change, error) {
		e, ok := g.Edge(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", model.ErrEdgeNotFound, id)
		}
		src, srcOK := g.Node(e.Source)
		tgt, tgtOK := g.Node(e.Target)
		if err := g.RemoveEdge(id); err != nil {
			return nil, err
		}

		ch := &change{message: fmt.Sprintf("Disconnected %s from %s", e.Source, e.Target)}
		if srcOK && tgtOK {
			if dep, ok := deploymentOf(src, tgt); ok {
				ch.reconcile = []string{dep}
			}
		}
		return ch, nil
	})
}

// UpdateFromYAML replaces the canvas with the resources of text. Syntax
// errors in every document, or text without any resource, fail the call
// and keep the previous canvas. Dropped documents and best-practice
// concerns come back as warnings.
func (s *Session) UpdateFromYAML(ctx context.Context, text string) Outcome {
	return s.mutate(ctx, "apply", func(g *model.Graph) (*change, error) {
		b, err := canvas.FromYAML(text)
		if err != nil {
			msg := "Invalid YAML format"
			if errors.Is(err, canvas.ErrNoResources) {
				msg = "No Kubernetes resources found"
			}
			return nil, &ApplyError{Message: msg, Err: err}
		}
		*g = *b.Graph

		ch := &change{
			full:           true,
			replaceAdvice:  true,
			manifestAdvice: advisor.CheckManifest(b.Parse, text),
			reconcile:      reconcile.Deployments(g),
			message:        fmt.Sprintf("Applied %d resource(s)", len(b.Parse.Records)),
		}
		for _, a := range ch.manifestAdvice {
			ch.warnings = append(ch.warnings, warning(a))
		}
		for _, err := range b.DecodeErrors {
			ch.warnings = append(ch.warnings, err.Error())
		}
		for _, a := range advisor.Check(g) {
			if a.Severity != advisor.SeverityInfo {
				ch.warnings = append(ch.warnings, warning(a))
			}
		}
		s.metrics.ObserveDroppedDocuments(len(b.Parse.Errors))
		return ch, nil
	})
}

// ClearCanvas removes everything.
func (s *Session) ClearCanvas(ctx context.Context) Outcome {
	return s.mutate(ctx, "clear", func(g *model.Graph) (*change, error) {
		*g = *model.NewGraph()
		return &change{full: true, replaceAdvice: true, message: "Canvas cleared"}, nil
	})
}
