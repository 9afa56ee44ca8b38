// Package connect decides which user-drawn connections are legal.
//
// The allow-list is static and independent of the resolver: users may draw
// edges the resolver would never infer, and the resolver may infer edges the
// table does not list.
package connect

import (
	"sort"

	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/model"
)

var podConsumers = []kinds.ComponentType{kinds.ConfigMap, kinds.Secret, kinds.PVC}

// adjacency lists, per type, the types it may connect to. Legality is
// checked in both directions, so each pair needs to appear only once.
var adjacency = map[kinds.ComponentType][]kinds.ComponentType{
	kinds.ExternalUser: {kinds.Ingress, kinds.Service},
	kinds.Ingress:      {kinds.Service},
	kinds.Service:      {kinds.Deployment, kinds.StatefulSet, kinds.DaemonSet, kinds.Pod},
	kinds.Deployment:   append([]kinds.ComponentType{kinds.Pod, kinds.HPA}, podConsumers...),
	kinds.StatefulSet:  append([]kinds.ComponentType{kinds.Pod, kinds.HPA}, podConsumers...),
	kinds.DaemonSet:    append([]kinds.ComponentType{kinds.Pod}, podConsumers...),
	kinds.Job:          append([]kinds.ComponentType{kinds.Pod}, podConsumers...),
	kinds.CronJob:      {kinds.Job, kinds.ConfigMap, kinds.Secret},
	kinds.Pod:          podConsumers,
	kinds.PVC:          {kinds.PV, kinds.StorageClass},
	kinds.PV:           {kinds.StorageClass},
	kinds.Namespace: {
		kinds.Ingress, kinds.Service, kinds.Deployment, kinds.StatefulSet,
		kinds.DaemonSet, kinds.Job, kinds.CronJob, kinds.Pod, kinds.ConfigMap,
		kinds.Secret, kinds.PVC, kinds.HPA,
	},
}

// relationships suggests a tag for a legal pair, keyed source then target.
var relationships = map[[2]kinds.ComponentType]model.Relationship{
	{kinds.ExternalUser, kinds.Ingress}:  model.RelExternalTraffic,
	{kinds.ExternalUser, kinds.Service}:  model.RelExternalTraffic,
	{kinds.Ingress, kinds.Service}:       model.RelForwardsTo,
	{kinds.Service, kinds.Deployment}:    model.RelRoutesTraffic,
	{kinds.Service, kinds.StatefulSet}:   model.RelRoutesTraffic,
	{kinds.Service, kinds.DaemonSet}:     model.RelRoutesTraffic,
	{kinds.Service, kinds.Pod}:           model.RelRoutesTraffic,
	{kinds.Deployment, kinds.Pod}:        model.RelManages,
	{kinds.StatefulSet, kinds.Pod}:       model.RelManages,
	{kinds.DaemonSet, kinds.Pod}:         model.RelManages,
	{kinds.Job, kinds.Pod}:               model.RelManages,
	{kinds.CronJob, kinds.Job}:           model.RelManages,
	{kinds.HPA, kinds.Deployment}:        model.RelScaleTarget,
	{kinds.HPA, kinds.StatefulSet}:       model.RelScaleTarget,
	{kinds.StatefulSet, kinds.Service}:   model.RelHeadlessService,
	{kinds.PVC, kinds.Deployment}:        model.RelMountsVolume,
	{kinds.PVC, kinds.StatefulSet}:       model.RelMountsVolume,
	{kinds.PVC, kinds.DaemonSet}:         model.RelMountsVolume,
	{kinds.PVC, kinds.Job}:               model.RelMountsVolume,
	{kinds.PVC, kinds.Pod}:               model.RelMountsVolume,
	{kinds.PV, kinds.PVC}:                model.RelBinds,
	{kinds.StorageClass, kinds.PVC}:      model.RelProvisions,
	{kinds.StorageClass, kinds.PV}:       model.RelProvisions,
	{kinds.ConfigMap, kinds.Deployment}:  model.RelConfigures,
	{kinds.ConfigMap, kinds.StatefulSet}: model.RelConfigures,
	{kinds.ConfigMap, kinds.DaemonSet}:   model.RelConfigures,
	{kinds.ConfigMap, kinds.Job}:         model.RelConfigures,
	{kinds.ConfigMap, kinds.CronJob}:     model.RelConfigures,
	{kinds.ConfigMap, kinds.Pod}:         model.RelConfigures,
	{kinds.Secret, kinds.Deployment}:     model.RelProvidesSecret,
	{kinds.Secret, kinds.StatefulSet}:    model.RelProvidesSecret,
	{kinds.Secret, kinds.DaemonSet}:      model.RelProvidesSecret,
	{kinds.Secret, kinds.Job}:            model.RelProvidesSecret,
	{kinds.Secret, kinds.CronJob}:        model.RelProvidesSecret,
	{kinds.Secret, kinds.Pod}:            model.RelProvidesSecret,
}

func listed(from, to kinds.ComponentType) bool {
	for _, t := range adjacency[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsLegalConnection reports whether an edge between components of type a
// and b may be drawn. Both tags go through kinds.Normalize, and the answer
// is the same for either argument order.
func IsLegalConnection(a, b string) bool {
	ta, tb := kinds.Normalize(a), kinds.Normalize(b)
	if ta.Category() == kinds.CategoryNamespace && tb.Category() == kinds.CategoryNamespace {
		return false
	}
	return listed(ta, tb) || listed(tb, ta)
}

// Relationship suggests the relationship tag for a user-drawn edge from a
// component of type source to one of type target.
func Relationship(source, target kinds.ComponentType) model.Relationship {
	if rel, ok := relationships[[2]kinds.ComponentType{source, target}]; ok {
		return rel
	}
	if rel, ok := relationships[[2]kinds.ComponentType{target, source}]; ok {
		return rel
	}
	return model.RelConnects
}

// Targets returns the types a component of type t may connect to, sorted.
func Targets(t kinds.ComponentType) []kinds.ComponentType {
	seen := make(map[kinds.ComponentType]bool)
	for _, other := range kinds.All() {
		if IsLegalConnection(string(t), string(other)) {
			seen[other] = true
		}
	}
	out := make([]kinds.ComponentType, 0, len(seen))
	for other := range seen {
		out = append(out, other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
