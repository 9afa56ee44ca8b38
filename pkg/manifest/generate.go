package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	storagev1 "k8s.io/api/storage/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/yaml"

	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/logging"
	"github.com/ritzau/kube-playground/pkg/model"
)

// Separator joins generated documents.
const Separator = "---\n"

const (
	defaultProvisioner = "kubernetes.io/no-provisioner"
	defaultSchedule    = "*/5 * * * *"
	defaultTargetCPU   = int32(80)
)

// Generate renders one YAML document per node of g, in graph order. Nodes
// without a template (unknown kinds, records kept opaque and the synthetic
// external user) produce no document. A node that fails to render is skipped and reported
// in the returned error; the remaining documents are still produced.
func Generate(g *model.Graph) (string, error) {
	var docs []string
	var errs []error
	for _, n := range g.Nodes() {
		doc, ok, err := GenerateNode(g, n)
		if err != nil {
			logging.Warn("Failed to render node", "node", n.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			docs = append(docs, doc)
		}
	}
	return strings.Join(docs, Separator), errors.Join(errs...)
}

// GenerateNode renders a single node. ok is false when the node's type has
// no template.
func GenerateNode(g *model.Graph, n *model.Node) (doc string, ok bool, err error) {
	obj, ok := template(g, n)
	if !ok {
		return "", false, nil
	}

	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return "", false, fmt.Errorf("render %s: %w", n.ID, err)
	}
	delete(content, "status")
	prune(content)

	out, err := yaml.Marshal(content)
	if err != nil {
		return "", false, fmt.Errorf("marshal %s: %w", n.ID, err)
	}
	return string(out), true, nil
}

// prune drops null values and empty mappings left behind by zero-valued
// API structs, such as creationTimestamp and resources.
func prune(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			prune(val)
			if len(val) == 0 {
				delete(m, k)
			}
		case []any:
			for _, item := range val {
				if im, ok := item.(map[string]any); ok {
					prune(im)
				}
			}
		}
	}
}

func template(g *model.Graph, n *model.Node) (any, bool) {
	if n.Config == nil {
		return nil, false
	}
	r := &renderer{g: g, n: n}

	switch cfg := n.Config.(type) {
	case *model.DeploymentConfig:
		return r.deployment(cfg), true
	case *model.StatefulSetConfig:
		return r.statefulSet(cfg), true
	case *model.DaemonSetConfig:
		return r.daemonSet(cfg), true
	case *model.JobConfig:
		return r.job(cfg), true
	case *model.CronJobConfig:
		return r.cronJob(cfg), true
	case *model.PodConfig:
		return r.pod(cfg), true
	case *model.ServiceConfig:
		return r.service(cfg), true
	case *model.IngressConfig:
		return r.ingress(cfg), true
	case *model.ConfigMapConfig:
		return &corev1.ConfigMap{TypeMeta: typeMeta(kinds.ConfigMap), ObjectMeta: r.objectMeta(&cfg.Meta, nil), Data: cfg.Data}, true
	case *model.SecretConfig:
		return r.secret(cfg), true
	case *model.PVCConfig:
		return r.pvc(cfg), true
	case *model.PVConfig:
		return r.pv(cfg), true
	case *model.StorageClassConfig:
		return r.storageClass(cfg), true
	case *model.HPAConfig:
		return r.hpa(cfg), true
	case *model.NamespaceConfig:
		return &corev1.Namespace{TypeMeta: typeMeta(kinds.Namespace), ObjectMeta: r.objectMeta(&cfg.Meta, nil)}, true
	default:
		return nil, false
	}
}

func typeMeta(t kinds.ComponentType) metav1.TypeMeta {
	return metav1.TypeMeta{APIVersion: t.APIVersion(), Kind: t.Kind()}
}

// renderer builds the typed object of one node, consulting the node's edges
// for fields the configuration leaves empty.
type renderer struct {
	g *model.Graph
	n *model.Node
}

func (r *renderer) name(meta *model.Meta) string {
	if meta.Name != "" {
		return meta.Name
	}
	if r.n.Label != "" {
		return r.n.Label
	}
	return r.n.ID
}

func (r *renderer) objectMeta(meta *model.Meta, defaultLabels map[string]string) metav1.ObjectMeta {
	om := metav1.ObjectMeta{
		Name:      r.name(meta),
		Namespace: meta.Namespace,
		Labels:    meta.Labels,
	}
	if len(om.Labels) == 0 {
		om.Labels = defaultLabels
	}
	owners := meta.Owners
	if len(owners) == 0 && r.n.ManagedBy != "" {
		if dep, ok := r.g.Node(r.n.ManagedBy); ok {
			owners = []model.OwnerRef{{Kind: dep.Type.Kind(), Name: dep.Name()}}
		}
	}
	for _, o := range owners {
		t := kinds.Normalize(o.Kind)
		apiVersion := t.APIVersion()
		if apiVersion == "" {
			apiVersion = "v1"
		}
		om.OwnerReferences = append(om.OwnerReferences, metav1.OwnerReference{
			APIVersion: apiVersion,
			Kind:       o.Kind,
			Name:       o.Name,
		})
	}
	return om
}

// neighbors returns the nodes of type t joined to the current node by an
// edge in either direction, in edge order.
func (r *renderer) neighbors(t kinds.ComponentType) []*model.Node {
	var out []*model.Node
	seen := make(map[string]bool)
	for _, e := range r.g.EdgesOf(r.n.ID) {
		other := e.Target
		if other == r.n.ID {
			other = e.Source
		}
		if seen[other] {
			continue
		}
		if n, ok := r.g.Node(other); ok && n.Type == t {
			seen[other] = true
			out = append(out, n)
		}
	}
	return out
}

func (r *renderer) appLabels(tmpl *model.PodTemplate, meta *model.Meta) map[string]string {
	if len(tmpl.Labels) > 0 {
		return tmpl.Labels
	}
	return map[string]string{"app": r.name(meta)}
}

func (r *renderer) selector(sel, podLabels map[string]string) *metav1.LabelSelector {
	if len(sel) == 0 {
		sel = podLabels
	}
	return &metav1.LabelSelector{MatchLabels: sel}
}

func (r *renderer) podTemplate(tmpl *model.PodTemplate, meta *model.Meta, restart corev1.RestartPolicy) corev1.PodTemplateSpec {
	spec := r.podSpec(&tmpl.PodSpec, r.name(meta))
	spec.RestartPolicy = restart
	return corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{Labels: r.appLabels(tmpl, meta)},
		Spec:       spec,
	}
}

func (r *renderer) podSpec(spec *model.PodSpec, name string) corev1.PodSpec {
	containers := spec.Containers
	if len(containers) == 0 {
		containers = []model.Container{{Name: name, Image: model.DefaultImage, Port: model.DefaultPort}}
	}
	volumes := append([]model.Volume(nil), spec.Volumes...)
	var envFrom []model.EnvSource

	// Claims, ConfigMaps and Secrets drawn onto the node but not referenced
	// by its spec are mounted or injected.
	for _, pvc := range r.neighbors(kinds.PVC) {
		if !referencesVolume(volumes, func(v model.Volume) bool { return v.ClaimName == pvc.Name() }) {
			volumes = append(volumes, model.Volume{Name: pvc.Name(), ClaimName: pvc.Name(), MountPath: "/data/" + pvc.Name()})
		}
	}
	for _, t := range []kinds.ComponentType{kinds.ConfigMap, kinds.Secret} {
		for _, src := range r.neighbors(t) {
			if !referencesSource(containers, volumes, t, src.Name()) {
				envFrom = append(envFrom, model.EnvSource{Kind: t, Name: src.Name()})
			}
		}
	}

	var out corev1.PodSpec
	for i, c := range containers {
		ctr := corev1.Container{Name: c.Name, Image: c.Image}
		if ctr.Name == "" {
			ctr.Name = name
		}
		if ctr.Image == "" {
			ctr.Image = model.DefaultImage
		}
		if c.Port != 0 {
			ctr.Ports = []corev1.ContainerPort{{ContainerPort: c.Port}}
		}
		for _, ev := range c.Env {
			ctr.Env = append(ctr.Env, envVar(ev))
		}
		sources := c.EnvFrom
		if i == 0 {
			sources = append(append([]model.EnvSource(nil), sources...), envFrom...)
		}
		for _, ef := range sources {
			ctr.EnvFrom = append(ctr.EnvFrom, envFromSource(ef))
		}
		ctr.Resources.Limits = resourceList(c.Limits)
		ctr.Resources.Requests = resourceList(c.Requests)
		if i == 0 {
			for _, v := range volumes {
				if v.MountPath != "" {
					ctr.VolumeMounts = append(ctr.VolumeMounts, corev1.VolumeMount{Name: v.Name, MountPath: v.MountPath})
				}
			}
		}
		out.Containers = append(out.Containers, ctr)
	}

	for _, v := range volumes {
		vol := corev1.Volume{Name: v.Name}
		switch {
		case v.ClaimName != "":
			vol.PersistentVolumeClaim = &corev1.PersistentVolumeClaimVolumeSource{ClaimName: v.ClaimName}
		case v.ConfigMap != "":
			vol.ConfigMap = &corev1.ConfigMapVolumeSource{LocalObjectReference: corev1.LocalObjectReference{Name: v.ConfigMap}}
		case v.Secret != "":
			vol.Secret = &corev1.SecretVolumeSource{SecretName: v.Secret}
		}
		out.Volumes = append(out.Volumes, vol)
	}
	return out
}

func referencesVolume(volumes []model.Volume, match func(model.Volume) bool) bool {
	for _, v := range volumes {
		if match(v) {
			return true
		}
	}
	return false
}

func referencesSource(containers []model.Container, volumes []model.Volume, t kinds.ComponentType, name string) bool {
	for _, c := range containers {
		for _, ef := range c.EnvFrom {
			if ef.Kind == t && ef.Name == name {
				return true
			}
		}
		for _, ev := range c.Env {
			if ev.From != nil && ev.From.Kind == t && ev.From.Name == name {
				return true
			}
		}
	}
	return referencesVolume(volumes, func(v model.Volume) bool {
		return (t == kinds.ConfigMap && v.ConfigMap == name) || (t == kinds.Secret && v.Secret == name)
	})
}

func envVar(ev model.EnvVar) corev1.EnvVar {
	out := corev1.EnvVar{Name: ev.Name, Value: ev.Value}
	if ev.From == nil {
		return out
	}
	out.Value = ""
	ref := corev1.LocalObjectReference{Name: ev.From.Name}
	if ev.From.Kind == kinds.Secret {
		out.ValueFrom = &corev1.EnvVarSource{SecretKeyRef: &corev1.SecretKeySelector{LocalObjectReference: ref, Key: ev.From.Key}}
	} else {
		out.ValueFrom = &corev1.EnvVarSource{ConfigMapKeyRef: &corev1.ConfigMapKeySelector{LocalObjectReference: ref, Key: ev.From.Key}}
	}
	return out
}

func envFromSource(ef model.EnvSource) corev1.EnvFromSource {
	ref := corev1.LocalObjectReference{Name: ef.Name}
	if ef.Kind == kinds.Secret {
		return corev1.EnvFromSource{SecretRef: &corev1.SecretEnvSource{LocalObjectReference: ref}}
	}
	return corev1.EnvFromSource{ConfigMapRef: &corev1.ConfigMapEnvSource{LocalObjectReference: ref}}
}

func resourceList(m map[string]string) corev1.ResourceList {
	if len(m) == 0 {
		return nil
	}
	out := make(corev1.ResourceList, len(m))
	for name, v := range m {
		q, err := resource.ParseQuantity(v)
		if err != nil {
			logging.Warn("Ignoring invalid resource quantity", "resource", name, "value", v, "error", err)
			continue
		}
		out[corev1.ResourceName(name)] = q
	}
	return out
}

func (r *renderer) deployment(cfg *model.DeploymentConfig) *appsv1.Deployment {
	tmpl := r.podTemplate(&cfg.Template, &cfg.Meta, "")
	return &appsv1.Deployment{
		TypeMeta:   typeMeta(kinds.Deployment),
		ObjectMeta: r.objectMeta(&cfg.Meta, tmpl.Labels),
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(cfg.Replicas),
			Selector: r.selector(cfg.Selector, tmpl.Labels),
			Template: tmpl,
		},
	}
}

func (r *renderer) statefulSet(cfg *model.StatefulSetConfig) *appsv1.StatefulSet {
	tmpl := r.podTemplate(&cfg.Template, &cfg.Meta, "")
	serviceName := cfg.ServiceName
	if serviceName == "" {
		if svcs := r.neighbors(kinds.Service); len(svcs) > 0 {
			serviceName = svcs[0].Name()
		}
	}
	return &appsv1.StatefulSet{
		TypeMeta:   typeMeta(kinds.StatefulSet),
		ObjectMeta: r.objectMeta(&cfg.Meta, tmpl.Labels),
		Spec: appsv1.StatefulSetSpec{
			Replicas:    ptr.To(cfg.Replicas),
			ServiceName: serviceName,
			Selector:    r.selector(cfg.Selector, tmpl.Labels),
			Template:    tmpl,
		},
	}
}

func (r *renderer) daemonSet(cfg *model.DaemonSetConfig) *appsv1.DaemonSet {
	tmpl := r.podTemplate(&cfg.Template, &cfg.Meta, "")
	return &appsv1.DaemonSet{
		TypeMeta:   typeMeta(kinds.DaemonSet),
		ObjectMeta: r.objectMeta(&cfg.Meta, tmpl.Labels),
		Spec: appsv1.DaemonSetSpec{
			Selector: r.selector(cfg.Selector, tmpl.Labels),
			Template: tmpl,
		},
	}
}

func (r *renderer) job(cfg *model.JobConfig) *batchv1.Job {
	tmpl := r.podTemplate(&cfg.Template, &cfg.Meta, corev1.RestartPolicyNever)
	job := &batchv1.Job{
		TypeMeta:   typeMeta(kinds.Job),
		ObjectMeta: r.objectMeta(&cfg.Meta, nil),
		Spec:       batchv1.JobSpec{Template: tmpl},
	}
	if cfg.Completions > 0 {
		completions := cfg.Completions
		job.Spec.Completions = &completions
	}
	return job
}

func (r *renderer) cronJob(cfg *model.CronJobConfig) *batchv1.CronJob {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}
	return &batchv1.CronJob{
		TypeMeta:   typeMeta(kinds.CronJob),
		ObjectMeta: r.objectMeta(&cfg.Meta, nil),
		Spec: batchv1.CronJobSpec{
			Schedule: schedule,
			JobTemplate: batchv1.JobTemplateSpec{
				Spec: batchv1.JobSpec{Template: r.podTemplate(&cfg.Template, &cfg.Meta, corev1.RestartPolicyOnFailure)},
			},
		},
	}
}

func (r *renderer) pod(cfg *model.PodConfig) *corev1.Pod {
	return &corev1.Pod{
		TypeMeta:   typeMeta(kinds.Pod),
		ObjectMeta: r.objectMeta(&cfg.Meta, map[string]string{"app": r.name(&cfg.Meta)}),
		Spec:       r.podSpec(&cfg.PodSpec, r.name(&cfg.Meta)),
	}
}

func (r *renderer) service(cfg *model.ServiceConfig) *corev1.Service {
	svcType := cfg.Type
	if svcType == "" {
		svcType = model.DefaultServiceType
	}
	selector := cfg.Selector
	if len(selector) == 0 {
		selector = r.derivedSelector()
	}

	svc := &corev1.Service{
		TypeMeta:   typeMeta(kinds.Service),
		ObjectMeta: r.objectMeta(&cfg.Meta, nil),
		Spec: corev1.ServiceSpec{
			Type:      corev1.ServiceType(svcType),
			Selector:  selector,
			ClusterIP: cfg.ClusterIP,
		},
	}
	ports := cfg.Ports
	if len(ports) == 0 {
		ports = []model.ServicePort{{Port: model.DefaultPort, TargetPort: model.DefaultPort}}
	}
	for _, p := range ports {
		sp := corev1.ServicePort{
			Name:     p.Name,
			Port:     p.Port,
			NodePort: p.NodePort,
			Protocol: corev1.Protocol(p.Protocol),
		}
		target := p.TargetPort
		if target == 0 {
			target = p.Port
		}
		sp.TargetPort = intstr.FromInt32(target)
		svc.Spec.Ports = append(svc.Spec.Ports, sp)
	}
	return svc
}

// derivedSelector borrows the pod labels of the first workload or pod the
// service is connected to.
func (r *renderer) derivedSelector() map[string]string {
	for _, e := range r.g.EdgesOf(r.n.ID) {
		other := e.Target
		if other == r.n.ID {
			other = e.Source
		}
		n, ok := r.g.Node(other)
		if !ok {
			continue
		}
		switch cfg := n.Config.(type) {
		case model.WorkloadConfig:
			if labels := cfg.PodTemplate().Labels; len(labels) > 0 {
				return labels
			}
			return map[string]string{"app": n.Name()}
		case *model.PodConfig:
			if len(cfg.Labels) > 0 {
				return cfg.Labels
			}
		}
	}
	return nil
}

func (r *renderer) ingress(cfg *model.IngressConfig) *networkingv1.Ingress {
	rules := cfg.Rules
	if len(rules) == 0 && cfg.DefaultBackend == nil {
		for _, svc := range r.neighbors(kinds.Service) {
			path := "/"
			if len(rules) > 0 {
				path = "/" + svc.Name()
			}
			rules = append(rules, model.IngressRule{Path: path, ServiceName: svc.Name(), ServicePort: servicePort(svc)})
		}
	}

	ing := &networkingv1.Ingress{
		TypeMeta:   typeMeta(kinds.Ingress),
		ObjectMeta: r.objectMeta(&cfg.Meta, nil),
	}
	if cfg.ClassName != "" {
		className := cfg.ClassName
		ing.Spec.IngressClassName = &className
	}
	if cfg.DefaultBackend != nil {
		ing.Spec.DefaultBackend = ingressBackend(*cfg.DefaultBackend)
	}

	// Group paths by host, keeping first-seen host order.
	var hosts []string
	byHost := make(map[string][]networkingv1.HTTPIngressPath)
	for _, rule := range rules {
		if _, ok := byHost[rule.Host]; !ok {
			hosts = append(hosts, rule.Host)
		}
		path := rule.Path
		if path == "" {
			path = "/"
		}
		byHost[rule.Host] = append(byHost[rule.Host], networkingv1.HTTPIngressPath{
			Path:     path,
			PathType: ptr.To(networkingv1.PathTypePrefix),
			Backend:  *ingressBackend(rule),
		})
	}
	for _, host := range hosts {
		ing.Spec.Rules = append(ing.Spec.Rules, networkingv1.IngressRule{
			Host: host,
			IngressRuleValue: networkingv1.IngressRuleValue{
				HTTP: &networkingv1.HTTPIngressRuleValue{Paths: byHost[host]},
			},
		})
	}
	return ing
}

func ingressBackend(rule model.IngressRule) *networkingv1.IngressBackend {
	port := rule.ServicePort
	if port == 0 {
		port = model.DefaultPort
	}
	return &networkingv1.IngressBackend{
		Service: &networkingv1.IngressServiceBackend{
			Name: rule.ServiceName,
			Port: networkingv1.ServiceBackendPort{Number: port},
		},
	}
}

func servicePort(svc *model.Node) int32 {
	if p := model.Port(svc.Config); p != 0 {
		return p
	}
	return model.DefaultPort
}

func (r *renderer) secret(cfg *model.SecretConfig) *corev1.Secret {
	secretType := cfg.SecretType
	if secretType == "" {
		secretType = string(corev1.SecretTypeOpaque)
	}
	s := &corev1.Secret{
		TypeMeta:   typeMeta(kinds.Secret),
		ObjectMeta: r.objectMeta(&cfg.Meta, nil),
		Type:       corev1.SecretType(secretType),
	}
	if len(cfg.Data) > 0 {
		s.Data = make(map[string][]byte, len(cfg.Data))
		keys := make([]string, 0, len(cfg.Data))
		for k := range cfg.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s.Data[k] = []byte(cfg.Data[k])
		}
	}
	return s
}

func accessModes(modes []string) []corev1.PersistentVolumeAccessMode {
	if len(modes) == 0 {
		return []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce}
	}
	out := make([]corev1.PersistentVolumeAccessMode, len(modes))
	for i, m := range modes {
		out[i] = corev1.PersistentVolumeAccessMode(m)
	}
	return out
}

func storageQuantity(v string) resource.Quantity {
	if q, err := resource.ParseQuantity(v); err == nil {
		return q
	}
	return resource.MustParse(model.DefaultStorage)
}

func (r *renderer) pvc(cfg *model.PVCConfig) *corev1.PersistentVolumeClaim {
	storageClass := cfg.StorageClassName
	if storageClass == "" {
		if scs := r.neighbors(kinds.StorageClass); len(scs) > 0 {
			storageClass = scs[0].Name()
		}
	}
	pvc := &corev1.PersistentVolumeClaim{
		TypeMeta:   typeMeta(kinds.PVC),
		ObjectMeta: r.objectMeta(&cfg.Meta, nil),
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: accessModes(cfg.AccessModes),
			VolumeName:  cfg.VolumeName,
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: storageQuantity(cfg.Storage)},
			},
		},
	}
	if storageClass != "" {
		pvc.Spec.StorageClassName = ptr.To(storageClass)
	}
	return pvc
}

func (r *renderer) pv(cfg *model.PVConfig) *corev1.PersistentVolume {
	hostPath := cfg.HostPath
	if hostPath == "" {
		hostPath = "/mnt/data/" + r.name(&cfg.Meta)
	}
	return &corev1.PersistentVolume{
		TypeMeta:   typeMeta(kinds.PV),
		ObjectMeta: r.objectMeta(&cfg.Meta, nil),
		Spec: corev1.PersistentVolumeSpec{
			Capacity:                      corev1.ResourceList{corev1.ResourceStorage: storageQuantity(cfg.Capacity)},
			AccessModes:                   accessModes(cfg.AccessModes),
			StorageClassName:              cfg.StorageClassName,
			PersistentVolumeReclaimPolicy: corev1.PersistentVolumeReclaimPolicy(cfg.ReclaimPolicy),
			PersistentVolumeSource: corev1.PersistentVolumeSource{
				HostPath: &corev1.HostPathVolumeSource{Path: hostPath},
			},
		},
	}
}

func (r *renderer) storageClass(cfg *model.StorageClassConfig) *storagev1.StorageClass {
	provisioner := cfg.Provisioner
	if provisioner == "" {
		provisioner = defaultProvisioner
	}
	sc := &storagev1.StorageClass{
		TypeMeta:    typeMeta(kinds.StorageClass),
		ObjectMeta:  r.objectMeta(&cfg.Meta, nil),
		Provisioner: provisioner,
	}
	if cfg.ReclaimPolicy != "" {
		sc.ReclaimPolicy = ptr.To(corev1.PersistentVolumeReclaimPolicy(cfg.ReclaimPolicy))
	}
	if cfg.VolumeBindingMode != "" {
		sc.VolumeBindingMode = ptr.To(storagev1.VolumeBindingMode(cfg.VolumeBindingMode))
	}
	return sc
}

func (r *renderer) hpa(cfg *model.HPAConfig) *autoscalingv2.HorizontalPodAutoscaler {
	targetKind, targetName := cfg.TargetKind, cfg.TargetName
	if targetName == "" {
		for _, t := range []kinds.ComponentType{kinds.Deployment, kinds.StatefulSet} {
			if ws := r.neighbors(t); len(ws) > 0 {
				targetKind, targetName = t.Kind(), ws[0].Name()
				break
			}
		}
	}
	if targetKind == "" {
		targetKind = kinds.Deployment.Kind()
	}

	minReplicas := cfg.MinReplicas
	if minReplicas < 1 {
		minReplicas = 1
	}
	maxReplicas := cfg.MaxReplicas
	if maxReplicas == 0 {
		maxReplicas = model.DefaultMaxReplicas
	}
	if maxReplicas < minReplicas {
		maxReplicas = minReplicas
	}
	cpu := cfg.TargetCPU
	if cpu == 0 {
		cpu = defaultTargetCPU
	}

	return &autoscalingv2.HorizontalPodAutoscaler{
		TypeMeta:   typeMeta(kinds.HPA),
		ObjectMeta: r.objectMeta(&cfg.Meta, nil),
		Spec: autoscalingv2.HorizontalPodAutoscalerSpec{
			ScaleTargetRef: autoscalingv2.CrossVersionObjectReference{
				APIVersion: kinds.Normalize(targetKind).APIVersion(),
				Kind:       targetKind,
				Name:       targetName,
			},
			MinReplicas: ptr.To(minReplicas),
			MaxReplicas: maxReplicas,
			Metrics: []autoscalingv2.MetricSpec{{
				Type: autoscalingv2.ResourceMetricSourceType,
				Resource: &autoscalingv2.ResourceMetricSource{
					Name: corev1.ResourceCPU,
					Target: autoscalingv2.MetricTarget{
						Type:               autoscalingv2.UtilizationMetricType,
						AverageUtilization: ptr.To(cpu),
					},
				},
			}},
		},
	}
}
