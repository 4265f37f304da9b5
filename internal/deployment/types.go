// Package deployment implements the Deployment Engine (spec §4.4):
// the top-level state machine that places a ServiceDefinition on a
// target, tracks its lifecycle, and tears it down through one of
// three backend implementations (local Docker, remote Docker over a
// u-node agent, or Kubernetes).
package deployment

import (
	"time"

	"github.com/ushadow-io/ushadow/internal/capability"
	"github.com/ushadow-io/ushadow/internal/registry"
)

// State is one node of the Deployment state machine from spec §4.4.
type State string

const (
	StatePending   State = "pending"
	StateDeploying State = "deploying"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateRemoving  State = "removing"
	StateRemoved   State = "removed"
	StateFailed    State = "failed"
)

// TargetKind discriminates which backend handles a Deployment.
type TargetKind string

const (
	TargetLocalDocker  TargetKind = "local-docker"
	TargetRemoteDocker TargetKind = "remote-docker"
	TargetKubernetes   TargetKind = "kubernetes"
)

// ResourceSpec is a CPU/memory quantity pair in Kubernetes resource
// string form (e.g. "500m", "256Mi"), used for both requests and
// limits on a Target.
type ResourceSpec struct {
	CPU    string `json:"cpu,omitempty" bson:"cpu,omitempty"`
	Memory string `json:"memory,omitempty" bson:"memory,omitempty"`
}

// Target names where a Deployment should run.
type Target struct {
	Kind TargetKind `json:"kind" bson:"kind"`
	// NodeID identifies the u-node when Kind == TargetRemoteDocker.
	NodeID string `json:"node_id,omitempty" bson:"node_id,omitempty"`
	// ClusterID identifies a registered Kubernetes cluster when
	// Kind == TargetKubernetes; empty selects the process-default
	// cluster built from KUBECONFIG/in-cluster config, when one exists.
	ClusterID string `json:"cluster_id,omitempty" bson:"cluster_id,omitempty"`
	// Namespace is the Kubernetes namespace when Kind == TargetKubernetes.
	Namespace string `json:"namespace,omitempty" bson:"namespace,omitempty"`
	// ServiceType overrides the Kubernetes Service type (default ClusterIP).
	ServiceType string `json:"service_type,omitempty" bson:"service_type,omitempty"`
	Replicas    int32  `json:"replicas,omitempty" bson:"replicas,omitempty"`
	// IngressHost, when set, gets an Ingress pointed at the Service's
	// primary port alongside the Deployment/Service/ConfigMap.
	IngressHost string `json:"ingress_host,omitempty" bson:"ingress_host,omitempty"`
	// Annotations are copied onto the Deployment's pod template,
	// letting operators attach things like autoscaler or service-mesh
	// hints without a registry or code change.
	Annotations map[string]string `json:"annotations,omitempty" bson:"annotations,omitempty"`
	// ResourceRequests/ResourceLimits size the single container
	// Kubernetes places per pod; nil leaves Kubernetes defaults.
	ResourceRequests *ResourceSpec `json:"resource_requests,omitempty" bson:"resource_requests,omitempty"`
	ResourceLimits   *ResourceSpec `json:"resource_limits,omitempty" bson:"resource_limits,omitempty"`
}

// Deployment is one instance of a ServiceDefinition running on a
// Target, carrying the full lifecycle described in spec §4.4.
type Deployment struct {
	ID          string            `json:"id" bson:"_id"`
	ServiceID   string            `json:"service_id" bson:"service_id"`
	Target      Target            `json:"target" bson:"target"`
	State       State             `json:"state" bson:"state"`
	ContainerID string            `json:"container_id,omitempty" bson:"container_id,omitempty"`
	AccessURL   string            `json:"access_url,omitempty" bson:"access_url,omitempty"`
	PrimaryPort int               `json:"primary_port,omitempty" bson:"primary_port,omitempty"`
	Error       string            `json:"error,omitempty" bson:"error,omitempty"`
	Env         map[string]string `json:"-" bson:"-"`
	CreatedAt   time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" bson:"updated_at"`
	// Version is an optimistic-concurrency counter bumped on every
	// persisted write, matching the per-document concurrency model
	// spec §5 describes for the deployment store.
	Version int `json:"-" bson:"version"`
}

// ResolvedServiceDefinition is a ServiceDefinition plus its fully
// materialized environment (spec §4.4 step 3), ready to hand to a
// Backend.
type ResolvedServiceDefinition struct {
	registry.ServiceDefinition
	ResolvedEnv map[string]string
	Name        string
}

// DeployRequest is the input to Engine.Deploy.
type DeployRequest struct {
	ServiceID string
	Target    Target
}

// ErrUnconfigured is returned by Deploy when the Capability Resolver
// reports AllConfigured == false; carries the same missing-keys detail
// so API handlers can render it directly.
type ErrUnconfigured struct {
	Resolution capability.Resolution
}

func (e *ErrUnconfigured) Error() string {
	return "service capabilities are not fully configured"
}
