// Package dockerrt is the shared container-runtime driver used by
// both the control plane's Local-Docker backend and the per-node
// Node Agent daemon (spec §4.6, §4.7) — the same operation set,
// exposed in-process for the former and over HTTP for the latter.
package dockerrt

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/ushadow-io/ushadow/core/utils"
)

// Spec is the subset of a resolved service definition the runtime
// needs to create one container.
type Spec struct {
	Image       string
	Command     []string
	Env         map[string]string
	Ports       []string // "host:container" or "container" or "container/udp"
	Volumes     []string // "host:container[:ro]"
	NetworkName string
	RestartPolicy string // docker restart policy name, e.g. "unless-stopped"
}

// Status mirrors the handful of container fields the Deployment
// Engine's backends normalize into deployment.BackendStatus.
type Status struct {
	ID      string
	State   string // "running", "exited", "created", ...
	Running bool
	Ports   map[string]int // container port -> published host port
}

// Runtime wraps the Docker Engine API client with the small operation
// set spec §4.6 documents for the Node Agent's local HTTP surface:
// deploy, status, stop, remove, logs.
type Runtime struct {
	cli    *client.Client
	logger *utils.Logger
}

// New connects to the local Docker daemon using the standard
// environment-based configuration (DOCKER_HOST, DOCKER_TLS_VERIFY,
// ...), matching how every Docker Go SDK consumer in the retrieved
// pack's manifests bootstraps a client.
func New() (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to container runtime: %w", err)
	}
	return &Runtime{cli: cli, logger: utils.NewLogger("dockerrt")}, nil
}

// Deploy pulls spec.Image if not present, creates a container named
// name, attaches it to spec.NetworkName, starts it, and returns its
// runtime status.
func (r *Runtime) Deploy(ctx context.Context, name string, spec Spec) (Status, error) {
	if err := r.ensureImage(ctx, spec.Image); err != nil {
		return Status{}, fmt.Errorf("pulling image %s: %w", spec.Image, err)
	}

	exposedPorts, portBindings, err := parsePorts(spec.Ports)
	if err != nil {
		return Status{}, fmt.Errorf("parsing port declarations: %w", err)
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	binds := make([]string, 0, len(spec.Volumes))
	binds = append(binds, spec.Volumes...)

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        binds,
	}
	if spec.RestartPolicy != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyMode(spec.RestartPolicy)}
	}

	created, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		Env:          env,
		ExposedPorts: exposedPorts,
	}, hostConfig, nil, nil, name)
	if err != nil {
		return Status{}, fmt.Errorf("creating container %s: %w", name, err)
	}

	if spec.NetworkName != "" {
		if err := r.cli.NetworkConnect(ctx, spec.NetworkName, created.ID, &network.EndpointSettings{}); err != nil {
			r.logger.Warn("failed to attach %s to overlay network %s: %v", name, spec.NetworkName, err)
		}
	}

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return Status{}, fmt.Errorf("starting container %s: %w", name, err)
	}

	return r.Status(ctx, created.ID)
}

// ensureImage pulls image if the daemon does not already have it
// cached locally.
func (r *Runtime) ensureImage(ctx context.Context, ref string) error {
	_, _, err := r.cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	reader, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Status inspects a container by name or id and normalizes its state.
func (r *Runtime) Status(ctx context.Context, nameOrID string) (Status, error) {
	inspect, err := r.cli.ContainerInspect(ctx, nameOrID)
	if err != nil {
		return Status{}, fmt.Errorf("inspecting container %s: %w", nameOrID, err)
	}
	ports := map[string]int{}
	for containerPort, bindings := range inspect.NetworkSettings.Ports {
		if len(bindings) == 0 {
			continue
		}
		hostPort, err := strconv.Atoi(bindings[0].HostPort)
		if err != nil {
			continue
		}
		ports[containerPort.Port()] = hostPort
	}
	return Status{
		ID:      inspect.ID,
		State:   inspect.State.Status,
		Running: inspect.State.Running,
		Ports:   ports,
	}, nil
}

// Stop stops a running container by name or id.
func (r *Runtime) Stop(ctx context.Context, nameOrID string) error {
	if err := r.cli.ContainerStop(ctx, nameOrID, container.StopOptions{}); err != nil {
		return fmt.Errorf("stopping container %s: %w", nameOrID, err)
	}
	return nil
}

// Remove force-removes a container by name or id.
func (r *Runtime) Remove(ctx context.Context, nameOrID string) error {
	if err := r.cli.ContainerRemove(ctx, nameOrID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("removing container %s: %w", nameOrID, err)
	}
	return nil
}

// Logs returns the last tail lines of a container's combined
// stdout/stderr.
func (r *Runtime) Logs(ctx context.Context, nameOrID string, tail int) (string, error) {
	reader, err := r.cli.ContainerLogs(ctx, nameOrID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", fmt.Errorf("reading logs for container %s: %w", nameOrID, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parsePorts turns the "host:container[/proto]" declarations from a
// ServiceDefinition into the nat.PortSet/PortMap pair ContainerCreate
// expects. A bare "container" entry is published on an
// ephemeral host port.
func parsePorts(decls []string) (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, decl := range decls {
		proto := "tcp"
		spec := decl
		if idx := strings.LastIndex(spec, "/"); idx >= 0 {
			proto = spec[idx+1:]
			spec = spec[:idx]
		}

		var hostPort, containerPort string
		if idx := strings.LastIndex(spec, ":"); idx >= 0 {
			hostPort = spec[:idx]
			containerPort = spec[idx+1:]
		} else {
			containerPort = spec
		}

		port, err := nat.NewPort(proto, containerPort)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid port declaration %q: %w", decl, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{HostIP: "0.0.0.0", HostPort: hostPort})
	}
	return exposed, bindings, nil
}
