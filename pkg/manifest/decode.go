package manifest

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	storagev1 "k8s.io/api/storage/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/model"
)

// Decode extracts the typed configuration of a record. The returned config
// always has the record's metadata, even when err is non-nil.
func Decode(rec *ComponentRecord) (model.Config, error) {
	meta := model.Meta{
		Name:      rec.Name,
		Namespace: rec.Namespace,
		Labels:    rec.Labels,
	}
	for _, o := range rec.OwnerReferences {
		meta.Owners = append(meta.Owners, model.OwnerRef{Kind: o.Kind, Name: o.Name})
	}

	cfg, err := decodeTyped(rec, meta)
	if err != nil {
		return opaque(rec, meta), fmt.Errorf("decode %s %q: %w", rec.Kind, rec.Name, err)
	}
	return cfg, nil
}

// opaque keeps the record verbatim. It is used for kinds without a variant
// and for known kinds whose fields do not fit the typed schema.
func opaque(rec *ComponentRecord, meta model.Meta) *model.OpaqueConfig {
	return &model.OpaqueConfig{
		Meta:       meta,
		Type:       rec.Type,
		Kind:       rec.Kind,
		APIVersion: rec.APIVersion,
		Fields:     runtime.DeepCopyJSON(rec.Object.Object),
	}
}

func fromUnstructured(rec *ComponentRecord, obj any) error {
	return runtime.DefaultUnstructuredConverter.FromUnstructured(rec.Object.Object, obj)
}

func decodeTyped(rec *ComponentRecord, meta model.Meta) (model.Config, error) {
	switch rec.Type {
	case kinds.Deployment:
		var d appsv1.Deployment
		if err := fromUnstructured(rec, &d); err != nil {
			return nil, err
		}
		return &model.DeploymentConfig{
			Meta:     meta,
			Replicas: replicasOrDefault(d.Spec.Replicas),
			Selector: matchLabels(d.Spec.Selector),
			Template: podTemplate(d.Spec.Template),
		}, nil

	case kinds.StatefulSet:
		var s appsv1.StatefulSet
		if err := fromUnstructured(rec, &s); err != nil {
			return nil, err
		}
		return &model.StatefulSetConfig{
			Meta:        meta,
			Replicas:    replicasOrDefault(s.Spec.Replicas),
			ServiceName: s.Spec.ServiceName,
			Selector:    matchLabels(s.Spec.Selector),
			Template:    podTemplate(s.Spec.Template),
		}, nil

	case kinds.DaemonSet:
		var d appsv1.DaemonSet
		if err := fromUnstructured(rec, &d); err != nil {
			return nil, err
		}
		return &model.DaemonSetConfig{
			Meta:     meta,
			Selector: matchLabels(d.Spec.Selector),
			Template: podTemplate(d.Spec.Template),
		}, nil

	case kinds.Job:
		var j batchv1.Job
		if err := fromUnstructured(rec, &j); err != nil {
			return nil, err
		}
		cfg := &model.JobConfig{Meta: meta, Template: podTemplate(j.Spec.Template)}
		if j.Spec.Completions != nil {
			cfg.Completions = *j.Spec.Completions
		}
		return cfg, nil

	case kinds.CronJob:
		var c batchv1.CronJob
		if err := fromUnstructured(rec, &c); err != nil {
			return nil, err
		}
		return &model.CronJobConfig{
			Meta:     meta,
			Schedule: c.Spec.Schedule,
			Template: podTemplate(c.Spec.JobTemplate.Spec.Template),
		}, nil

	case kinds.Pod:
		var p corev1.Pod
		if err := fromUnstructured(rec, &p); err != nil {
			return nil, err
		}
		return &model.PodConfig{Meta: meta, PodSpec: podSpec(p.Spec)}, nil

	case kinds.Service:
		var s corev1.Service
		if err := fromUnstructured(rec, &s); err != nil {
			return nil, err
		}
		cfg := &model.ServiceConfig{
			Meta:      meta,
			Type:      string(s.Spec.Type),
			Selector:  s.Spec.Selector,
			ClusterIP: s.Spec.ClusterIP,
		}
		for _, p := range s.Spec.Ports {
			cfg.Ports = append(cfg.Ports, model.ServicePort{
				Name:       p.Name,
				Port:       p.Port,
				TargetPort: int32(p.TargetPort.IntValue()),
				NodePort:   p.NodePort,
				Protocol:   string(p.Protocol),
			})
		}
		return cfg, nil

	case kinds.Ingress:
		var ing networkingv1.Ingress
		if err := fromUnstructured(rec, &ing); err != nil {
			return nil, err
		}
		cfg := &model.IngressConfig{Meta: meta}
		if ing.Spec.IngressClassName != nil {
			cfg.ClassName = *ing.Spec.IngressClassName
		}
		if b := ing.Spec.DefaultBackend; b != nil && b.Service != nil {
			cfg.DefaultBackend = &model.IngressRule{ServiceName: b.Service.Name, ServicePort: b.Service.Port.Number}
		}
		for _, rule := range ing.Spec.Rules {
			if rule.HTTP == nil {
				continue
			}
			for _, p := range rule.HTTP.Paths {
				if p.Backend.Service == nil {
					continue
				}
				cfg.Rules = append(cfg.Rules, model.IngressRule{
					Host:        rule.Host,
					Path:        p.Path,
					ServiceName: p.Backend.Service.Name,
					ServicePort: p.Backend.Service.Port.Number,
				})
			}
		}
		return cfg, nil

	case kinds.ConfigMap:
		var cm corev1.ConfigMap
		if err := fromUnstructured(rec, &cm); err != nil {
			return nil, err
		}
		return &model.ConfigMapConfig{Meta: meta, Data: cm.Data}, nil

	case kinds.Secret:
		var s corev1.Secret
		if err := fromUnstructured(rec, &s); err != nil {
			return nil, err
		}
		cfg := &model.SecretConfig{Meta: meta, SecretType: string(s.Type)}
		if len(s.Data)+len(s.StringData) > 0 {
			cfg.Data = make(map[string]string, len(s.Data)+len(s.StringData))
		}
		for k, v := range s.Data {
			cfg.Data[k] = string(v)
		}
		for k, v := range s.StringData {
			cfg.Data[k] = v
		}
		return cfg, nil

	case kinds.PVC:
		var pvc corev1.PersistentVolumeClaim
		if err := fromUnstructured(rec, &pvc); err != nil {
			return nil, err
		}
		cfg := &model.PVCConfig{Meta: meta, VolumeName: pvc.Spec.VolumeName}
		if pvc.Spec.StorageClassName != nil {
			cfg.StorageClassName = *pvc.Spec.StorageClassName
		}
		if q, ok := pvc.Spec.Resources.Requests[corev1.ResourceStorage]; ok {
			cfg.Storage = q.String()
		}
		for _, m := range pvc.Spec.AccessModes {
			cfg.AccessModes = append(cfg.AccessModes, string(m))
		}
		return cfg, nil

	case kinds.PV:
		var pv corev1.PersistentVolume
		if err := fromUnstructured(rec, &pv); err != nil {
			return nil, err
		}
		cfg := &model.PVConfig{
			Meta:             meta,
			StorageClassName: pv.Spec.StorageClassName,
			ReclaimPolicy:    string(pv.Spec.PersistentVolumeReclaimPolicy),
		}
		if q, ok := pv.Spec.Capacity[corev1.ResourceStorage]; ok {
			cfg.Capacity = q.String()
		}
		if pv.Spec.HostPath != nil {
			cfg.HostPath = pv.Spec.HostPath.Path
		}
		for _, m := range pv.Spec.AccessModes {
			cfg.AccessModes = append(cfg.AccessModes, string(m))
		}
		return cfg, nil

	case kinds.StorageClass:
		var sc storagev1.StorageClass
		if err := fromUnstructured(rec, &sc); err != nil {
			return nil, err
		}
		cfg := &model.StorageClassConfig{Meta: meta, Provisioner: sc.Provisioner}
		if sc.ReclaimPolicy != nil {
			cfg.ReclaimPolicy = string(*sc.ReclaimPolicy)
		}
		if sc.VolumeBindingMode != nil {
			cfg.VolumeBindingMode = string(*sc.VolumeBindingMode)
		}
		return cfg, nil

	case kinds.HPA:
		var hpa autoscalingv2.HorizontalPodAutoscaler
		if err := fromUnstructured(rec, &hpa); err != nil {
			return nil, err
		}
		cfg := &model.HPAConfig{
			Meta:        meta,
			TargetKind:  hpa.Spec.ScaleTargetRef.Kind,
			TargetName:  hpa.Spec.ScaleTargetRef.Name,
			MaxReplicas: hpa.Spec.MaxReplicas,
		}
		if hpa.Spec.MinReplicas != nil {
			cfg.MinReplicas = *hpa.Spec.MinReplicas
		}
		for _, m := range hpa.Spec.Metrics {
			if m.Resource != nil && m.Resource.Name == corev1.ResourceCPU && m.Resource.Target.AverageUtilization != nil {
				cfg.TargetCPU = *m.Resource.Target.AverageUtilization
			}
		}
		// autoscaling/v1 carries the CPU target at the top of the spec.
		if v, found, _ := unstructured.NestedInt64(rec.Object.Object, "spec", "targetCPUUtilizationPercentage"); found {
			cfg.TargetCPU = int32(v)
		}
		return cfg, nil

	case kinds.Namespace:
		return &model.NamespaceConfig{Meta: meta}, nil

	default:
		return opaque(rec, meta), nil
	}
}

func replicasOrDefault(r *int32) int32 {
	// The API server defaults an omitted replica count to one.
	if r == nil {
		return 1
	}
	return *r
}

func podTemplate(t corev1.PodTemplateSpec) model.PodTemplate {
	return model.PodTemplate{Labels: t.Labels, PodSpec: podSpec(t.Spec)}
}

func podSpec(spec corev1.PodSpec) model.PodSpec {
	var out model.PodSpec
	mounts := make(map[string]string)

	for _, c := range spec.Containers {
		mc := model.Container{Name: c.Name, Image: c.Image}
		if len(c.Ports) > 0 {
			mc.Port = c.Ports[0].ContainerPort
		}
		for _, e := range c.Env {
			ev := model.EnvVar{Name: e.Name, Value: e.Value}
			if e.ValueFrom != nil {
				switch {
				case e.ValueFrom.ConfigMapKeyRef != nil:
					ref := e.ValueFrom.ConfigMapKeyRef
					ev.From = &model.KeyRef{Kind: kinds.ConfigMap, Name: ref.Name, Key: ref.Key}
				case e.ValueFrom.SecretKeyRef != nil:
					ref := e.ValueFrom.SecretKeyRef
					ev.From = &model.KeyRef{Kind: kinds.Secret, Name: ref.Name, Key: ref.Key}
				}
			}
			mc.Env = append(mc.Env, ev)
		}
		for _, ef := range c.EnvFrom {
			switch {
			case ef.ConfigMapRef != nil:
				mc.EnvFrom = append(mc.EnvFrom, model.EnvSource{Kind: kinds.ConfigMap, Name: ef.ConfigMapRef.Name})
			case ef.SecretRef != nil:
				mc.EnvFrom = append(mc.EnvFrom, model.EnvSource{Kind: kinds.Secret, Name: ef.SecretRef.Name})
			}
		}
		mc.Limits = quantities(c.Resources.Limits)
		mc.Requests = quantities(c.Resources.Requests)
		for _, vm := range c.VolumeMounts {
			if _, ok := mounts[vm.Name]; !ok {
				mounts[vm.Name] = vm.MountPath
			}
		}
		out.Containers = append(out.Containers, mc)
	}

	for _, v := range spec.Volumes {
		mv := model.Volume{Name: v.Name, MountPath: mounts[v.Name]}
		switch {
		case v.PersistentVolumeClaim != nil:
			mv.ClaimName = v.PersistentVolumeClaim.ClaimName
		case v.ConfigMap != nil:
			mv.ConfigMap = v.ConfigMap.Name
		case v.Secret != nil:
			mv.Secret = v.Secret.SecretName
		default:
			continue
		}
		out.Volumes = append(out.Volumes, mv)
	}
	return out
}

func matchLabels(sel *metav1.LabelSelector) map[string]string {
	if sel == nil {
		return nil
	}
	return sel.MatchLabels
}

func quantities(list corev1.ResourceList) map[string]string {
	if len(list) == 0 {
		return nil
	}
	out := make(map[string]string, len(list))
	for name, q := range list {
		out[string(name)] = q.String()
	}
	return out
}
