package deployment

import (
	"context"

	"github.com/ushadow-io/ushadow/internal/dockerrt"
)

// LocalDockerBackend drives the container runtime on the same host as
// the control plane — the same operation set as the Node Agent's HTTP
// API, but in-process, per spec §4.7.
type LocalDockerBackend struct {
	runtime     *dockerrt.Runtime
	networkName string
}

// NewLocalDockerBackend builds a LocalDockerBackend attaching every
// deployed container to networkName (the control plane's overlay
// network interface).
func NewLocalDockerBackend(runtime *dockerrt.Runtime, networkName string) *LocalDockerBackend {
	return &LocalDockerBackend{runtime: runtime, networkName: networkName}
}

func (b *LocalDockerBackend) Deploy(ctx context.Context, containerName string, def ResolvedServiceDefinition, target Target) (BackendStatus, error) {
	status, err := b.runtime.Deploy(ctx, containerName, toRuntimeSpec(def, b.networkName))
	if err != nil {
		return BackendStatus{}, err
	}
	return fromRuntimeStatus(status), nil
}

func (b *LocalDockerBackend) Status(ctx context.Context, containerName string, target Target) (BackendStatus, error) {
	status, err := b.runtime.Status(ctx, containerName)
	if err != nil {
		return BackendStatus{}, err
	}
	return fromRuntimeStatus(status), nil
}

func (b *LocalDockerBackend) Stop(ctx context.Context, containerName string, target Target) error {
	return b.runtime.Stop(ctx, containerName)
}

func (b *LocalDockerBackend) Remove(ctx context.Context, containerName string, target Target) error {
	return b.runtime.Remove(ctx, containerName)
}

func (b *LocalDockerBackend) Logs(ctx context.Context, containerName string, target Target, tail int) (string, error) {
	return b.runtime.Logs(ctx, containerName, tail)
}

// defaultRestartPolicy applies when a Compose service declares no
// restart policy of its own.
const defaultRestartPolicy = "unless-stopped"

func toRuntimeSpec(def ResolvedServiceDefinition, networkName string) dockerrt.Spec {
	restartPolicy := def.RestartPolicy
	if restartPolicy == "" {
		restartPolicy = defaultRestartPolicy
	}
	return dockerrt.Spec{
		Image:         def.Image,
		Command:       def.Command,
		Env:           def.ResolvedEnv,
		Ports:         def.Ports,
		Volumes:       def.Volumes,
		NetworkName:   networkName,
		RestartPolicy: restartPolicy,
	}
}

func fromRuntimeStatus(s dockerrt.Status) BackendStatus {
	state := StateRunning
	switch s.State {
	case "running":
		state = StateRunning
	case "exited", "dead":
		state = StateStopped
	case "created":
		state = StateDeploying
	}
	var port int
	for _, hostPort := range s.Ports {
		port = hostPort
		break
	}
	return BackendStatus{State: state, ContainerID: s.ID, PrimaryHost: "127.0.0.1", PrimaryPort: port}
}
