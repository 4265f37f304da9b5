package deployment

import "context"

// BackendStatus is a backend's normalized view of one running
// workload, before the Engine folds it back into the Deployment state
// machine.
type BackendStatus struct {
	State       State
	ContainerID string
	PrimaryHost string
	PrimaryPort int
	Message     string
}

// Backend is the abstract collaborator every deployment target
// implements: local Docker, a remote u-node's agent, or Kubernetes
// (spec §4.5–§4.7). All three share this exact method set so the
// Engine never branches on backend kind outside of backend selection.
type Backend interface {
	Deploy(ctx context.Context, containerName string, def ResolvedServiceDefinition, target Target) (BackendStatus, error)
	Status(ctx context.Context, containerName string, target Target) (BackendStatus, error)
	Stop(ctx context.Context, containerName string, target Target) error
	Remove(ctx context.Context, containerName string, target Target) error
	Logs(ctx context.Context, containerName string, target Target, tail int) (string, error)
}
