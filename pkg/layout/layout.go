// Package layout assigns initial canvas coordinates by traffic tier.
// Positions are cosmetic and never feed back into inference or validation.
package layout

import (
	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/model"
)

const (
	// Top is the y coordinate of the first node in a lane.
	Top = 100.0
	// Spacing is the vertical distance between nodes of one lane.
	Spacing = 120.0
	// PodOffset is the horizontal distance between a deployment and its pods.
	PodOffset = 200.0
	// PodSpacing is the vertical distance between pods of one deployment.
	PodSpacing = 70.0
)

// Lanes are the x coordinates of each tier, left to right.
var lanes = map[kinds.ComponentType]float64{
	kinds.Namespace:    50,
	kinds.ConfigMap:    200,
	kinds.Secret:       200,
	kinds.ExternalUser: 350,
	kinds.Ingress:      500,
	kinds.Service:      650,
	kinds.Deployment:   800,
	kinds.StatefulSet:  800,
	kinds.DaemonSet:    800,
	kinds.Job:          800,
	kinds.CronJob:      800,
	kinds.HPA:          875,
	kinds.Pod:          1000,
	kinds.PVC:          1150,
	kinds.PV:           1300,
	kinds.StorageClass: 1450,
}

const unknownLane = 1600.0

// Lane returns the x coordinate of the tier t belongs to.
func Lane(t kinds.ComponentType) float64 {
	if x, ok := lanes[t]; ok {
		return x
	}
	return unknownLane
}

// Assign returns the position of the ordinal-th node of type t in a batch.
func Assign(t kinds.ComponentType, ordinal int) model.Position {
	if ordinal < 0 {
		ordinal = 0
	}
	y := Top + float64(ordinal)*Spacing
	// Autoscalers share a vertical band with workloads; shift them down
	// half a row so their cards do not cover the workload cards.
	if t == kinds.HPA {
		y += Spacing / 2
	}
	return model.Position{X: Lane(t), Y: y}
}

// Near returns the position of the index-th pod placed beside anchor.
func Near(anchor model.Position, index int) model.Position {
	return model.Position{
		X: anchor.X + PodOffset,
		Y: anchor.Y + float64(index)*PodSpacing,
	}
}

// Assigner hands out per-lane ordinals for a batch of nodes. Ordinals are
// counted per component type so nodes of different types sharing a lane
// keep distinct rows.
type Assigner struct {
	perLane map[float64]int
}

// NewAssigner returns an Assigner with empty lanes.
func NewAssigner() *Assigner {
	return &Assigner{perLane: make(map[float64]int)}
}

// Next returns the position for the next node of type t.
func (a *Assigner) Next(t kinds.ComponentType) model.Position {
	lane := Lane(t)
	ordinal := a.perLane[lane]
	a.perLane[lane]++
	return Assign(t, ordinal)
}

// Occupy records the nodes of g so subsequent positions do not land on them.
func (a *Assigner) Occupy(g *model.Graph) {
	for _, n := range g.Nodes() {
		a.perLane[Lane(n.Type)]++
	}
}
