package model

import (
	"encoding/json"
	"fmt"

	"github.com/ritzau/kube-playground/pkg/kinds"
)

// Defaults applied when a node is created without explicit configuration and
// by the manifest generator for fields left empty.
const (
	DefaultImage       = "nginx:latest"
	DefaultReplicas    = int32(3)
	DefaultServiceType = "ClusterIP"
	DefaultPort        = int32(80)
	DefaultStorage     = "1Gi"
	DefaultMaxReplicas = int32(10)
)

// Config is the type-specific configuration carried by a node. The set of
// implementations is closed: one per built-in component type, plus
// OpaqueConfig for kinds the engine does not understand.
type Config interface {
	Metadata() *Meta
	ComponentType() kinds.ComponentType
}

// Meta holds the fields every component shares.
type Meta struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Owners    []OwnerRef        `json:"owners,omitempty"`
}

// OwnerRef names the controller of a resource.
type OwnerRef struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Metadata returns m itself so embedding structs satisfy Config.
func (m *Meta) Metadata() *Meta { return m }

// KeyRef points at a single key of a ConfigMap or Secret.
type KeyRef struct {
	Kind kinds.ComponentType `json:"kind"`
	Name string              `json:"name"`
	Key  string              `json:"key,omitempty"`
}

// EnvVar is a container environment variable, either literal or referenced.
type EnvVar struct {
	Name  string  `json:"name"`
	Value string  `json:"value,omitempty"`
	From  *KeyRef `json:"from,omitempty"`
}

// EnvSource imports every key of a ConfigMap or Secret.
type EnvSource struct {
	Kind kinds.ComponentType `json:"kind"`
	Name string              `json:"name"`
}

// Container is the subset of a container spec the engine tracks.
type Container struct {
	Name     string            `json:"name"`
	Image    string            `json:"image,omitempty"`
	Port     int32             `json:"port,omitempty"`
	Env      []EnvVar          `json:"env,omitempty"`
	EnvFrom  []EnvSource       `json:"envFrom,omitempty"`
	Limits   map[string]string `json:"limits,omitempty"`
	Requests map[string]string `json:"requests,omitempty"`
}

// Volume is a pod volume backed by a claim, a ConfigMap or a Secret.
type Volume struct {
	Name      string `json:"name"`
	ClaimName string `json:"claimName,omitempty"`
	ConfigMap string `json:"configMap,omitempty"`
	Secret    string `json:"secret,omitempty"`
	MountPath string `json:"mountPath,omitempty"`
}

// PodSpec lists containers and volumes.
type PodSpec struct {
	Containers []Container `json:"containers,omitempty"`
	Volumes    []Volume    `json:"volumes,omitempty"`
}

// Image returns the first container's image.
func (s *PodSpec) Image() string {
	if len(s.Containers) == 0 {
		return ""
	}
	return s.Containers[0].Image
}

// Port returns the first container's port.
func (s *PodSpec) Port() int32 {
	if len(s.Containers) == 0 {
		return 0
	}
	return s.Containers[0].Port
}

// PodTemplate is the template a workload stamps pods from.
type PodTemplate struct {
	Labels map[string]string `json:"labels,omitempty"`
	PodSpec
}

// PodSpecHolder is implemented by every config that runs containers.
type PodSpecHolder interface {
	Config
	Spec() *PodSpec
}

// WorkloadConfig is implemented by configs that own a pod template.
type WorkloadConfig interface {
	PodSpecHolder
	PodTemplate() *PodTemplate
}

type DeploymentConfig struct {
	Meta
	Replicas int32             `json:"replicas"`
	Selector map[string]string `json:"selector,omitempty"`
	Template PodTemplate       `json:"template"`
}

type StatefulSetConfig struct {
	Meta
	Replicas    int32             `json:"replicas"`
	ServiceName string            `json:"serviceName,omitempty"`
	Selector    map[string]string `json:"selector,omitempty"`
	Template    PodTemplate       `json:"template"`
}

type DaemonSetConfig struct {
	Meta
	Selector map[string]string `json:"selector,omitempty"`
	Template PodTemplate       `json:"template"`
}

type JobConfig struct {
	Meta
	Completions int32       `json:"completions,omitempty"`
	Template    PodTemplate `json:"template"`
}

type CronJobConfig struct {
	Meta
	Schedule string      `json:"schedule,omitempty"`
	Template PodTemplate `json:"template"`
}

type PodConfig struct {
	Meta
	PodSpec
}

type ServicePort struct {
	Name       string `json:"name,omitempty"`
	Port       int32  `json:"port"`
	TargetPort int32  `json:"targetPort,omitempty"`
	NodePort   int32  `json:"nodePort,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
}

type ServiceConfig struct {
	Meta
	Type      string            `json:"serviceType,omitempty"`
	Selector  map[string]string `json:"selector,omitempty"`
	Ports     []ServicePort     `json:"ports,omitempty"`
	ClusterIP string            `json:"clusterIP,omitempty"`
}

// Port returns the first service port.
func (c *ServiceConfig) Port() int32 {
	if len(c.Ports) == 0 {
		return 0
	}
	return c.Ports[0].Port
}

// Exposed reports whether the service accepts traffic from outside the cluster.
func (c *ServiceConfig) Exposed() bool {
	return c.Type == "LoadBalancer" || c.Type == "NodePort"
}

// IngressRule is one host/path routed to a backend service. An empty Host and
// Path with a service name describes the default backend.
type IngressRule struct {
	Host        string `json:"host,omitempty"`
	Path        string `json:"path,omitempty"`
	ServiceName string `json:"serviceName"`
	ServicePort int32  `json:"servicePort,omitempty"`
}

type IngressConfig struct {
	Meta
	ClassName      string        `json:"className,omitempty"`
	Rules          []IngressRule `json:"rules,omitempty"`
	DefaultBackend *IngressRule  `json:"defaultBackend,omitempty"`
}

// Backends returns the distinct backend service names in rule order.
func (c *IngressConfig) Backends() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	if c.DefaultBackend != nil {
		add(c.DefaultBackend.ServiceName)
	}
	for _, r := range c.Rules {
		add(r.ServiceName)
	}
	return out
}

type ConfigMapConfig struct {
	Meta
	Data map[string]string `json:"data,omitempty"`
}

type SecretConfig struct {
	Meta
	SecretType string            `json:"secretType,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
}

type PVCConfig struct {
	Meta
	StorageClassName string   `json:"storageClassName,omitempty"`
	Storage          string   `json:"storage,omitempty"`
	AccessModes      []string `json:"accessModes,omitempty"`
	VolumeName       string   `json:"volumeName,omitempty"`
}

type PVConfig struct {
	Meta
	StorageClassName string   `json:"storageClassName,omitempty"`
	Capacity         string   `json:"capacity,omitempty"`
	AccessModes      []string `json:"accessModes,omitempty"`
	HostPath         string   `json:"hostPath,omitempty"`
	ReclaimPolicy    string   `json:"reclaimPolicy,omitempty"`
}

type StorageClassConfig struct {
	Meta
	Provisioner       string `json:"provisioner,omitempty"`
	ReclaimPolicy     string `json:"reclaimPolicy,omitempty"`
	VolumeBindingMode string `json:"volumeBindingMode,omitempty"`
}

type HPAConfig struct {
	Meta
	TargetKind  string `json:"targetKind,omitempty"`
	TargetName  string `json:"targetName,omitempty"`
	MinReplicas int32  `json:"minReplicas,omitempty"`
	MaxReplicas int32  `json:"maxReplicas,omitempty"`
	TargetCPU   int32  `json:"targetCPU,omitempty"`
}

type NamespaceConfig struct {
	Meta
}

type ExternalUserConfig struct {
	Meta
}

// OpaqueConfig carries a resource of a kind the engine has no variant for.
// Fields holds the whole decoded document.
type OpaqueConfig struct {
	Meta
	Type       kinds.ComponentType `json:"componentType"`
	Kind       string              `json:"kind"`
	APIVersion string              `json:"apiVersion,omitempty"`
	Fields     map[string]any      `json:"fields,omitempty"`
}

func (*DeploymentConfig) ComponentType() kinds.ComponentType   { return kinds.Deployment }
func (*StatefulSetConfig) ComponentType() kinds.ComponentType  { return kinds.StatefulSet }
func (*DaemonSetConfig) ComponentType() kinds.ComponentType    { return kinds.DaemonSet }
func (*JobConfig) ComponentType() kinds.ComponentType          { return kinds.Job }
func (*CronJobConfig) ComponentType() kinds.ComponentType      { return kinds.CronJob }
func (*PodConfig) ComponentType() kinds.ComponentType          { return kinds.Pod }
func (*ServiceConfig) ComponentType() kinds.ComponentType      { return kinds.Service }
func (*IngressConfig) ComponentType() kinds.ComponentType      { return kinds.Ingress }
func (*ConfigMapConfig) ComponentType() kinds.ComponentType    { return kinds.ConfigMap }
func (*SecretConfig) ComponentType() kinds.ComponentType       { return kinds.Secret }
func (*PVCConfig) ComponentType() kinds.ComponentType          { return kinds.PVC }
func (*PVConfig) ComponentType() kinds.ComponentType           { return kinds.PV }
func (*StorageClassConfig) ComponentType() kinds.ComponentType { return kinds.StorageClass }
func (*HPAConfig) ComponentType() kinds.ComponentType          { return kinds.HPA }
func (*NamespaceConfig) ComponentType() kinds.ComponentType    { return kinds.Namespace }
func (*ExternalUserConfig) ComponentType() kinds.ComponentType { return kinds.ExternalUser }
func (c *OpaqueConfig) ComponentType() kinds.ComponentType     { return c.Type }

func (c *DeploymentConfig) Spec() *PodSpec         { return &c.Template.PodSpec }
func (c *StatefulSetConfig) Spec() *PodSpec        { return &c.Template.PodSpec }
func (c *DaemonSetConfig) Spec() *PodSpec          { return &c.Template.PodSpec }
func (c *JobConfig) Spec() *PodSpec                { return &c.Template.PodSpec }
func (c *CronJobConfig) Spec() *PodSpec            { return &c.Template.PodSpec }
func (c *PodConfig) Spec() *PodSpec                { return &c.PodSpec }
func (c *DeploymentConfig) PodTemplate() *PodTemplate  { return &c.Template }
func (c *StatefulSetConfig) PodTemplate() *PodTemplate { return &c.Template }
func (c *DaemonSetConfig) PodTemplate() *PodTemplate   { return &c.Template }
func (c *JobConfig) PodTemplate() *PodTemplate         { return &c.Template }
func (c *CronJobConfig) PodTemplate() *PodTemplate     { return &c.Template }

// NewConfig returns an empty config variant for t. Unknown types get an
// OpaqueConfig.
func NewConfig(t kinds.ComponentType) Config {
	switch t {
	case kinds.Deployment:
		return &DeploymentConfig{}
	case kinds.StatefulSet:
		return &StatefulSetConfig{}
	case kinds.DaemonSet:
		return &DaemonSetConfig{}
	case kinds.Job:
		return &JobConfig{}
	case kinds.CronJob:
		return &CronJobConfig{}
	case kinds.Pod:
		return &PodConfig{}
	case kinds.Service:
		return &ServiceConfig{}
	case kinds.Ingress:
		return &IngressConfig{}
	case kinds.ConfigMap:
		return &ConfigMapConfig{}
	case kinds.Secret:
		return &SecretConfig{}
	case kinds.PVC:
		return &PVCConfig{}
	case kinds.PV:
		return &PVConfig{}
	case kinds.StorageClass:
		return &StorageClassConfig{}
	case kinds.HPA:
		return &HPAConfig{}
	case kinds.Namespace:
		return &NamespaceConfig{}
	case kinds.ExternalUser:
		return &ExternalUserConfig{}
	default:
		return &OpaqueConfig{Type: t, Kind: string(t)}
	}
}

// DefaultConfig returns the configuration a freshly dropped node of type t
// starts with.
func DefaultConfig(t kinds.ComponentType, name string) Config {
	app := map[string]string{"app": name}
	container := func() []Container {
		return []Container{{Name: name, Image: DefaultImage, Port: DefaultPort}}
	}
	template := func() PodTemplate {
		return PodTemplate{Labels: copyMap(app), PodSpec: PodSpec{Containers: container()}}
	}

	c := NewConfig(t)
	switch v := c.(type) {
	case *DeploymentConfig:
		v.Replicas = DefaultReplicas
		v.Selector = copyMap(app)
		v.Template = template()
	case *StatefulSetConfig:
		v.Replicas = DefaultReplicas
		v.Selector = copyMap(app)
		v.Template = template()
	case *DaemonSetConfig:
		v.Selector = copyMap(app)
		v.Template = template()
	case *JobConfig:
		v.Template = template()
	case *CronJobConfig:
		v.Schedule = "*/5 * * * *"
		v.Template = template()
	case *PodConfig:
		v.Labels = copyMap(app)
		v.Containers = container()
	case *ServiceConfig:
		v.Type = DefaultServiceType
		v.Selector = copyMap(app)
		v.Ports = []ServicePort{{Port: DefaultPort, TargetPort: DefaultPort}}
	case *PVCConfig:
		v.Storage = DefaultStorage
		v.AccessModes = []string{"ReadWriteOnce"}
	case *HPAConfig:
		v.TargetKind = kinds.Deployment.Kind()
		v.MinReplicas = 1
		v.MaxReplicas = DefaultMaxReplicas
		v.TargetCPU = 80
	}
	c.Metadata().Name = name
	return c
}

// DecodeConfig decodes the JSON form of a config of type t. JSON carrying
// the opaque componentType marker decodes as an OpaqueConfig even for a
// known type, which is how a resource that did not fit its schema is kept.
func DecodeConfig(t kinds.ComponentType, data []byte) (Config, error) {
	c := NewConfig(t)
	if len(data) == 0 || string(data) == "null" {
		return c, nil
	}
	if isOpaque(data) {
		c = &OpaqueConfig{}
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", t, err)
	}
	if o, ok := c.(*OpaqueConfig); ok {
		o.Type = t
	}
	return c, nil
}

func isOpaque(data []byte) bool {
	var marker struct {
		ComponentType *string `json:"componentType"`
	}
	return json.Unmarshal(data, &marker) == nil && marker.ComponentType != nil
}

// IsOpaque reports whether c is kept verbatim rather than as a typed variant.
func IsOpaque(c Config) bool {
	_, ok := c.(*OpaqueConfig)
	return ok
}

// CloneConfig returns a deep copy of c.
func CloneConfig(c Config) Config {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("config %T is not serializable: %v", c, err))
	}
	out, err := DecodeConfig(c.ComponentType(), data)
	if err != nil {
		panic(fmt.Sprintf("config %T does not round-trip: %v", c, err))
	}
	return out
}

// Replicas returns the declared replica count of a deployment or statefulset
// config and whether c has one.
func Replicas(c Config) (int32, bool) {
	switch v := c.(type) {
	case *DeploymentConfig:
		return v.Replicas, true
	case *StatefulSetConfig:
		return v.Replicas, true
	}
	return 0, false
}

// Image returns the primary image of a container-running config.
func Image(c Config) string {
	if h, ok := c.(PodSpecHolder); ok {
		return h.Spec().Image()
	}
	return ""
}

// Port returns the primary port of a config, if it has one.
func Port(c Config) int32 {
	switch v := c.(type) {
	case PodSpecHolder:
		return v.Spec().Port()
	case *ServiceConfig:
		return v.Port()
	}
	return 0
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
