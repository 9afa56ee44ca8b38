// Package canvas turns manifest text into a laid-out graph and back.
package canvas

import (
	"errors"
	"fmt"

	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/layout"
	"github.com/ritzau/kube-playground/pkg/logging"
	"github.com/ritzau/kube-playground/pkg/manifest"
	"github.com/ritzau/kube-playground/pkg/model"
	"github.com/ritzau/kube-playground/pkg/resolver"
)

var (
	// ErrInvalidYAML is returned when no document of the input is valid YAML.
	ErrInvalidYAML = errors.New("invalid YAML format")
	// ErrNoResources is returned when the input has content but no document
	// describes a Kubernetes resource.
	ErrNoResources = errors.New("no Kubernetes resources found")
)

// Build is a graph constructed from manifest text.
type Build struct {
	Graph *model.Graph
	Parse *manifest.Result
	// DecodeErrors lists records whose spec did not match their kind's
	// schema. Those nodes keep their metadata and are marked with a warning.
	DecodeErrors []error
}

// FromYAML parses text and builds a fresh graph. Invalid YAML fails the
// whole call; individual malformed documents are dropped.
func FromYAML(text string) (*Build, error) {
	res := manifest.Parse(text)
	if res.SyntaxOnly() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidYAML, res.Err())
	}
	if res.Documents > 0 && len(res.Records) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoResources, res.Err())
	}
	return FromRecords(res), nil
}

// FromRecords builds a graph from parsed records: node ids are derived from
// type and name, positions from the layout lanes, edges from the resolver.
//
// Ids are stable within one call only. A name collision appends the
// record's ordinal, so reordering equivalent input may change ids.
func FromRecords(res *manifest.Result) *Build {
	b := &Build{Graph: model.NewGraph(), Parse: res}
	g := b.Graph
	assigner := layout.NewAssigner()

	for i := range res.Records {
		rec := &res.Records[i]
		cfg, err := manifest.Decode(rec)
		status := model.StatusRunning
		if err != nil {
			logging.Warn("Record does not match its schema", "kind", rec.Kind, "name", rec.Name, "error", err)
			b.DecodeErrors = append(b.DecodeErrors, err)
			status = model.StatusWarning
		}

		node := &model.Node{
			ID:       nodeID(g, rec),
			Type:     rec.Type,
			Label:    rec.Name,
			Position: assigner.Next(rec.Type),
			Config:   cfg,
			Status:   status,
		}
		if node.Label == "" {
			node.Label = node.ID
		}
		if err := g.AddNode(node); err != nil {
			// nodeID only returns free ids.
			logging.Error("Failed to add parsed node", "id", node.ID, "error", err)
		}
	}

	r := resolver.Resolve(g.Nodes())
	if r.ExternalUser != nil {
		r.ExternalUser.Position = assigner.Next(kinds.ExternalUser)
		if err := g.AddNode(r.ExternalUser); err != nil {
			logging.Error("Failed to add external user", "error", err)
		}
	}
	for podID, ownerID := range r.ManagedBy {
		if pod, ok := g.Node(podID); ok {
			pod.ManagedBy = ownerID
		}
	}
	for _, e := range r.Edges {
		if err := g.AddEdge(e); err != nil {
			logging.Error("Failed to add inferred edge", "edge", e.ID, "error", err)
		}
	}

	logging.Debug("Built graph from manifest", "nodes", g.Len(), "edges", len(g.Edges()))
	return b
}

func nodeID(g *model.Graph, rec *manifest.ComponentRecord) string {
	if rec.Name == "" {
		return g.UniqueID(fmt.Sprintf("%s-%d", rec.Type, rec.Index))
	}
	id := fmt.Sprintf("%s-%s", rec.Type, rec.Name)
	if !g.HasNode(id) {
		return id
	}
	return g.UniqueID(fmt.Sprintf("%s-%d", id, rec.Index))
}

// ToYAML renders g as multi-document YAML.
func ToYAML(g *model.Graph) (string, error) {
	return manifest.Generate(g)
}
