// Package resolver infers relationship edges between the resources of one
// manifest batch using Kubernetes selector and reference semantics.
//
// Every rule reads only the batch itself, never edges produced by another
// rule, so the resulting edge set does not depend on rule order.
package resolver

import (
	"sort"
	"strconv"

	"k8s.io/apimachinery/pkg/labels"

	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/logging"
	"github.com/ritzau/kube-playground/pkg/model"
)

// ExternalUserID is the preferred id of the synthetic traffic source.
const ExternalUserID = "external-user"

// Result is the inferred structure of a batch.
type Result struct {
	// Edges are deduplicated by id and sorted by id.
	Edges []*model.Edge
	// ExternalUser is the injected traffic source node, or nil when nothing
	// in the batch is reachable from outside the cluster.
	ExternalUser *model.Node
	// ManagedBy maps pod ids to the id of the workload owning them.
	ManagedBy map[string]string
}

// Rule produces edges for one kind of reference.
type Rule func(b *Batch) []*model.Edge

// Rules lists the inference rules applied by Resolve.
var Rules = map[string]Rule{
	"selector":         selectorEdges,
	"ingress-backend":  ingressEdges,
	"config-reference": configEdges,
	"volume-claim":     volumeEdges,
	"namespace":        namespaceEdges,
	"pv-binding":       bindingEdges,
	"storage-class":    storageClassEdges,
	"scale-target":     scaleTargetEdges,
	"headless-service": headlessServiceEdges,
	"owner-reference":  ownerEdges,
}

// Batch indexes the nodes of one parse by type and name.
type Batch struct {
	nodes  []*model.Node
	byType map[kinds.ComponentType][]*model.Node
	byID   map[string]*model.Node
}

// NewBatch indexes nodes. Every node must carry a config.
func NewBatch(nodes []*model.Node) *Batch {
	b := &Batch{
		nodes:  nodes,
		byType: make(map[kinds.ComponentType][]*model.Node),
		byID:   make(map[string]*model.Node, len(nodes)),
	}
	for _, n := range nodes {
		b.byType[n.Type] = append(b.byType[n.Type], n)
		b.byID[n.ID] = n
	}
	return b
}

// OfType returns the nodes of type t in batch order.
func (b *Batch) OfType(t kinds.ComponentType) []*model.Node {
	return b.byType[t]
}

// Lookup returns the nodes of type t named name that are in scope of namespace ns.
func (b *Batch) Lookup(t kinds.ComponentType, name, ns string) []*model.Node {
	var out []*model.Node
	for _, n := range b.byType[t] {
		if n.Name() == name && sameScope(n.Namespace(), ns) {
			out = append(out, n)
		}
	}
	return out
}

// Workloads returns every node that owns a pod template.
func (b *Batch) Workloads() []*model.Node {
	var out []*model.Node
	for _, n := range b.nodes {
		if _, ok := n.Config.(model.WorkloadConfig); ok {
			out = append(out, n)
		}
	}
	return out
}

// Consumers returns every node that runs containers, except pods controlled
// by a resource of the batch. Their references belong to the owner.
func (b *Batch) Consumers() []*model.Node {
	var out []*model.Node
	for _, n := range b.nodes {
		if _, ok := n.Config.(model.PodSpecHolder); !ok {
			continue
		}
		if n.Type == kinds.Pod && ownedInBatch(b, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// sameScope reports whether two namespaces can see each other. An unset
// namespace matches any.
func sameScope(a, b string) bool {
	return a == "" || b == "" || a == b
}

// Resolve applies every rule to nodes and injects the external-user node
// when an ingress or externally exposed service is present.
func Resolve(nodes []*model.Node) *Result {
	b := NewBatch(nodes)
	res := &Result{ManagedBy: make(map[string]string)}

	seen := make(map[string]bool)
	add := func(e *model.Edge) {
		if seen[e.ID] {
			return
		}
		seen[e.ID] = true
		res.Edges = append(res.Edges, e)
	}

	for name, rule := range Rules {
		edges := rule(b)
		logging.Trace("Resolver rule applied", "rule", name, "edges", len(edges))
		for _, e := range edges {
			add(e)
		}
	}

	if user, edges := externalTraffic(b); user != nil {
		res.ExternalUser = user
		for _, e := range edges {
			add(e)
		}
	}

	for _, e := range res.Edges {
		if e.Relationship != model.RelManages {
			continue
		}
		if target := b.find(e.Target); target != nil && target.Type == kinds.Pod {
			if _, taken := res.ManagedBy[e.Target]; !taken {
				res.ManagedBy[e.Target] = e.Source
			}
		}
	}

	sort.Slice(res.Edges, func(i, j int) bool { return res.Edges[i].ID < res.Edges[j].ID })
	logging.Debug("Resolved references", "nodes", len(nodes), "edges", len(res.Edges), "externalUser", res.ExternalUser != nil)
	return res
}

func (b *Batch) find(id string) *model.Node {
	return b.byID[id]
}

// selectorEdges connects services to the workloads and bare pods their
// selector matches. Matching is conjunctive exact equality.
func selectorEdges(b *Batch) []*model.Edge {
	var edges []*model.Edge
	for _, svc := range b.OfType(kinds.Service) {
		cfg, ok := svc.Config.(*model.ServiceConfig)
		if !ok || len(cfg.Selector) == 0 {
			continue
		}
		sel := labels.SelectorFromSet(labels.Set(cfg.Selector))

		for _, w := range b.Workloads() {
			if w.Type == kinds.Job || w.Type == kinds.CronJob {
				continue
			}
			tmpl := w.Config.(model.WorkloadConfig).PodTemplate()
			if sameScope(svc.Namespace(), w.Namespace()) && sel.Matches(labels.Set(tmpl.Labels)) {
				edges = append(edges, model.NewEdge(svc.ID, w.ID, model.RelRoutesTraffic, ""))
			}
		}
		for _, pod := range b.OfType(kinds.Pod) {
			if ownedInBatch(b, pod) {
				continue
			}
			if sameScope(svc.Namespace(), pod.Namespace()) && sel.Matches(labels.Set(pod.Config.Metadata().Labels)) {
				edges = append(edges, model.NewEdge(svc.ID, pod.ID, model.RelRoutesTraffic, ""))
			}
		}
	}
	return edges
}

// ownedInBatch reports whether pod is controlled by a resource of the batch;
// such pods are reached through their owner.
func ownedInBatch(b *Batch, pod *model.Node) bool {
	for _, o := range pod.Config.Metadata().Owners {
		if len(b.Lookup(kinds.Normalize(o.Kind), o.Name, pod.Namespace())) > 0 {
			return true
		}
	}
	return false
}

// ingressEdges connects an ingress to every distinct existing backend service.
// References to services outside the batch are skipped.
func ingressEdges(b *Batch) []*model.Edge {
	var edges []*model.Edge
	for _, ing := range b.OfType(kinds.Ingress) {
		cfg, ok := ing.Config.(*model.IngressConfig)
		if !ok {
			continue
		}
		for _, name := range cfg.Backends() {
			for _, svc := range b.Lookup(kinds.Service, name, ing.Namespace()) {
				edges = append(edges, model.NewEdge(ing.ID, svc.ID, model.RelForwardsTo, ""))
			}
		}
	}
	return edges
}

// configEdges emits one edge per ConfigMap or Secret reference. Environment
// variables keep their own edge each, keyed by variable name.
func configEdges(b *Batch) []*model.Edge {
	var edges []*model.Edge
	link := func(consumer *model.Node, kind kinds.ComponentType, name, discriminator string) {
		rel := model.RelConfigures
		if kind == kinds.Secret {
			rel = model.RelProvidesSecret
		}
		for _, src := range b.Lookup(kind, name, consumer.Namespace()) {
			edges = append(edges, model.NewEdge(src.ID, consumer.ID, rel, discriminator))
		}
	}

	for _, c := range b.Consumers() {
		spec := c.Config.(model.PodSpecHolder).Spec()
		for _, ctr := range spec.Containers {
			for _, ef := range ctr.EnvFrom {
				link(c, ef.Kind, ef.Name, "envfrom-"+ctr.Name)
			}
			for _, ev := range ctr.Env {
				if ev.From != nil {
					link(c, ev.From.Kind, ev.From.Name, "env-"+ev.Name)
				}
			}
		}
		for _, v := range spec.Volumes {
			if v.ConfigMap != "" {
				link(c, kinds.ConfigMap, v.ConfigMap, "volume-"+v.Name)
			}
			if v.Secret != "" {
				link(c, kinds.Secret, v.Secret, "volume-"+v.Name)
			}
		}
	}
	return edges
}

// volumeEdges connects claims to the pods and workloads mounting them.
func volumeEdges(b *Batch) []*model.Edge {
	var edges []*model.Edge
	for _, c := range b.Consumers() {
		for _, v := range c.Config.(model.PodSpecHolder).Spec().Volumes {
			if v.ClaimName == "" {
				continue
			}
			for _, pvc := range b.Lookup(kinds.PVC, v.ClaimName, c.Namespace()) {
				edges = append(edges, model.NewEdge(pvc.ID, c.ID, model.RelMountsVolume, ""))
			}
		}
	}
	return edges
}

// namespaceEdges connects a Namespace node to every resource declaring it.
// Pods controlled by a resource of the batch are contained through it.
func namespaceEdges(b *Batch) []*model.Edge {
	var edges []*model.Edge
	for _, n := range b.nodes {
		ns := n.Namespace()
		if ns == "" || n.Type == kinds.Namespace {
			continue
		}
		if n.Type == kinds.Pod && ownedInBatch(b, n) {
			continue
		}
		for _, nsNode := range b.OfType(kinds.Namespace) {
			if nsNode.Name() == ns {
				edges = append(edges, model.NewEdge(nsNode.ID, n.ID, model.RelContains, ""))
			}
		}
	}
	return edges
}

// bindingEdges binds volumes to claims on an explicit volumeName or an equal,
// non-empty storage class. Capacity and access modes are ignored.
func bindingEdges(b *Batch) []*model.Edge {
	var edges []*model.Edge
	for _, pvNode := range b.OfType(kinds.PV) {
		pv, ok := pvNode.Config.(*model.PVConfig)
		if !ok {
			continue
		}
		for _, pvcNode := range b.OfType(kinds.PVC) {
			pvc, ok := pvcNode.Config.(*model.PVCConfig)
			if !ok {
				continue
			}
			byName := pvc.VolumeName != "" && pvc.VolumeName == pv.Name
			byClass := pv.StorageClassName != "" && pv.StorageClassName == pvc.StorageClassName
			if byName || byClass {
				edges = append(edges, model.NewEdge(pvNode.ID, pvcNode.ID, model.RelBinds, ""))
			}
		}
	}
	return edges
}

func storageClassEdges(b *Batch) []*model.Edge {
	var edges []*model.Edge
	for _, pvcNode := range b.OfType(kinds.PVC) {
		pvc, ok := pvcNode.Config.(*model.PVCConfig)
		if !ok || pvc.StorageClassName == "" {
			continue
		}
		for _, sc := range b.Lookup(kinds.StorageClass, pvc.StorageClassName, "") {
			edges = append(edges, model.NewEdge(sc.ID, pvcNode.ID, model.RelProvisions, ""))
		}
	}
	return edges
}

// scaleTargetEdges connects autoscalers to the deployment or statefulset
// named by their scaleTargetRef.
func scaleTargetEdges(b *Batch) []*model.Edge {
	var edges []*model.Edge
	for _, h := range b.OfType(kinds.HPA) {
		cfg, ok := h.Config.(*model.HPAConfig)
		if !ok || cfg.TargetName == "" {
			continue
		}
		target := kinds.Normalize(cfg.TargetKind)
		if target != kinds.Deployment && target != kinds.StatefulSet {
			continue
		}
		for _, w := range b.Lookup(target, cfg.TargetName, h.Namespace()) {
			edges = append(edges, model.NewEdge(h.ID, w.ID, model.RelScaleTarget, ""))
		}
	}
	return edges
}

func headlessServiceEdges(b *Batch) []*model.Edge {
	var edges []*model.Edge
	for _, s := range b.OfType(kinds.StatefulSet) {
		cfg, ok := s.Config.(*model.StatefulSetConfig)
		if !ok || cfg.ServiceName == "" {
			continue
		}
		for _, svc := range b.Lookup(kinds.Service, cfg.ServiceName, s.Namespace()) {
			edges = append(edges, model.NewEdge(s.ID, svc.ID, model.RelHeadlessService, ""))
		}
	}
	return edges
}

// ownerEdges follows ownerReferences from a resource back to its controller.
func ownerEdges(b *Batch) []*model.Edge {
	var edges []*model.Edge
	for _, n := range b.nodes {
		for _, o := range n.Config.Metadata().Owners {
			for _, owner := range b.Lookup(kinds.Normalize(o.Kind), o.Name, n.Namespace()) {
				edges = append(edges, model.NewEdge(owner.ID, n.ID, model.RelManages, ""))
			}
		}
	}
	return edges
}

// externalTraffic builds the synthetic traffic source and its edges.
func externalTraffic(b *Batch) (*model.Node, []*model.Edge) {
	var entries []*model.Node
	entries = append(entries, b.OfType(kinds.Ingress)...)
	for _, svc := range b.OfType(kinds.Service) {
		if cfg, ok := svc.Config.(*model.ServiceConfig); ok && cfg.Exposed() {
			entries = append(entries, svc)
		}
	}
	if len(entries) == 0 {
		return nil, nil
	}

	id := ExternalUserID
	for i := 2; b.byID[id] != nil; i++ {
		id = ExternalUserID + "-" + strconv.Itoa(i)
	}
	user := NewExternalUser(id)

	edges := make([]*model.Edge, 0, len(entries))
	for _, n := range entries {
		edges = append(edges, model.NewEdge(user.ID, n.ID, model.RelExternalTraffic, ""))
	}
	return user, edges
}

// NewExternalUser returns a synthetic external traffic source node.
func NewExternalUser(id string) *model.Node {
	return &model.Node{
		ID:     id,
		Type:   kinds.ExternalUser,
		Label:  "External User",
		Config: &model.ExternalUserConfig{Meta: model.Meta{Name: "external-user"}},
		Status: model.StatusRunning,
	}
}
