// Package kinds holds the component-type tags shared by the parser, resolver,
// generator and connection validator, plus the single synonym table that maps
// Kubernetes kinds and their abbreviations onto those tags.
package kinds

import (
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	storagev1 "k8s.io/api/storage/v1"
)

// ComponentType is a normalized, lowercase resource tag (e.g. "deployment", "pvc").
type ComponentType string

const (
	Namespace    ComponentType = "namespace"
	Ingress      ComponentType = "ingress"
	Service      ComponentType = "service"
	Deployment   ComponentType = "deployment"
	StatefulSet  ComponentType = "statefulset"
	DaemonSet    ComponentType = "daemonset"
	Job          ComponentType = "job"
	CronJob      ComponentType = "cronjob"
	Pod          ComponentType = "pod"
	ConfigMap    ComponentType = "configmap"
	Secret       ComponentType = "secret"
	PVC          ComponentType = "pvc"
	PV           ComponentType = "pv"
	StorageClass ComponentType = "storageclass"
	HPA          ComponentType = "hpa"

	// ExternalUser is the synthetic traffic source injected in front of
	// ingresses and externally exposed services. It has no manifest.
	ExternalUser ComponentType = "user"
)

// Category groups component types into traffic tiers.
type Category string

const (
	CategoryNamespace     Category = "namespace"
	CategoryExternal      Category = "external"
	CategoryNetwork       Category = "network"
	CategoryWorkloads     Category = "workloads"
	CategoryPods          Category = "pods"
	CategoryConfiguration Category = "configuration"
	CategoryStorage       Category = "storage"
	CategoryAutoscaling   Category = "autoscaling"
	CategoryUnknown       Category = "unknown"
)

type info struct {
	kind       string
	apiVersion string
	category   Category
}

var (
	core        = corev1.SchemeGroupVersion.String()
	apps        = appsv1.SchemeGroupVersion.String()
	batch       = batchv1.SchemeGroupVersion.String()
	networking  = networkingv1.SchemeGroupVersion.String()
	storage     = storagev1.SchemeGroupVersion.String()
	autoscaling = autoscalingv2.SchemeGroupVersion.String()
)

var known = map[ComponentType]info{
	Namespace:    {"Namespace", core, CategoryNamespace},
	Ingress:      {"Ingress", networking, CategoryNetwork},
	Service:      {"Service", core, CategoryNetwork},
	Deployment:   {"Deployment", apps, CategoryWorkloads},
	StatefulSet:  {"StatefulSet", apps, CategoryWorkloads},
	DaemonSet:    {"DaemonSet", apps, CategoryWorkloads},
	Job:          {"Job", batch, CategoryWorkloads},
	CronJob:      {"CronJob", batch, CategoryWorkloads},
	Pod:          {"Pod", core, CategoryPods},
	ConfigMap:    {"ConfigMap", core, CategoryConfiguration},
	Secret:       {"Secret", core, CategoryConfiguration},
	PVC:          {"PersistentVolumeClaim", core, CategoryStorage},
	PV:           {"PersistentVolume", core, CategoryStorage},
	StorageClass: {"StorageClass", storage, CategoryStorage},
	HPA:          {"HorizontalPodAutoscaler", autoscaling, CategoryAutoscaling},
	ExternalUser: {"", "", CategoryExternal},
}

// synonyms maps every accepted spelling (already lower-cased) to its tag.
var synonyms = map[string]ComponentType{
	"namespace":               Namespace,
	"namespaces":              Namespace,
	"ns":                      Namespace,
	"ingress":                 Ingress,
	"ingresses":               Ingress,
	"ing":                     Ingress,
	"service":                 Service,
	"services":                Service,
	"svc":                     Service,
	"deployment":              Deployment,
	"deployments":             Deployment,
	"deploy":                  Deployment,
	"statefulset":             StatefulSet,
	"statefulsets":            StatefulSet,
	"sts":                     StatefulSet,
	"daemonset":               DaemonSet,
	"daemonsets":              DaemonSet,
	"ds":                      DaemonSet,
	"job":                     Job,
	"jobs":                    Job,
	"cronjob":                 CronJob,
	"cronjobs":                CronJob,
	"cj":                      CronJob,
	"pod":                     Pod,
	"pods":                    Pod,
	"po":                      Pod,
	"configmap":               ConfigMap,
	"configmaps":              ConfigMap,
	"cm":                      ConfigMap,
	"secret":                  Secret,
	"secrets":                 Secret,
	"persistentvolumeclaim":   PVC,
	"persistentvolumeclaims":  PVC,
	"pvc":                     PVC,
	"persistentvolume":        PV,
	"persistentvolumes":       PV,
	"pv":                      PV,
	"storageclass":            StorageClass,
	"storageclasses":          StorageClass,
	"sc":                      StorageClass,
	"horizontalpodautoscaler": HPA,
	"hpa":                     HPA,
	"user":                    ExternalUser,
	"external-user":           ExternalUser,
}

// Normalize maps a Kubernetes kind, plural or short name onto its component
// type. Unrecognized kinds are returned lower-cased verbatim.
func Normalize(kind string) ComponentType {
	k := strings.ToLower(strings.TrimSpace(kind))
	if t, ok := synonyms[k]; ok {
		return t
	}
	return ComponentType(k)
}

// Known reports whether t is one of the built-in component types.
func (t ComponentType) Known() bool {
	_, ok := known[t]
	return ok
}

// Kind returns the canonical Kubernetes kind, or "" for unknown and synthetic types.
func (t ComponentType) Kind() string {
	return known[t].kind
}

// APIVersion returns the apiVersion the generator emits for t.
func (t ComponentType) APIVersion() string {
	return known[t].apiVersion
}

// Category returns the traffic tier of t.
func (t ComponentType) Category() Category {
	if i, ok := known[t]; ok {
		return i.category
	}
	return CategoryUnknown
}

// IsWorkload reports whether t owns a pod template.
func (t ComponentType) IsWorkload() bool {
	return t.Category() == CategoryWorkloads
}

func (t ComponentType) String() string {
	return string(t)
}

// All returns the built-in component types in lane order.
func All() []ComponentType {
	return []ComponentType{
		Namespace, ConfigMap, Secret, ExternalUser, Ingress, Service,
		Deployment, StatefulSet, DaemonSet, Job, CronJob, HPA, Pod,
		PVC, PV, StorageClass,
	}
}
