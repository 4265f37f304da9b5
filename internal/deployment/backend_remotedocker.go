package deployment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NodeAddressResolver resolves a u-node id to the base URL its Node
// Agent listens on, and the shared secret used to authenticate
// requests to it. The Node Manager is the only implementation; this
// package depends on the narrow interface instead of importing
// internal/node directly, keeping the dependency graph pointed the
// same direction the data-flow diagram in spec §2 describes.
type NodeAddressResolver interface {
	AgentBaseURL(nodeID string) (string, error)
	SharedSecret() string
}

// RemoteDockerBackend dispatches every Backend operation to the
// target u-node's Node Agent over the overlay network (spec §4.6).
type RemoteDockerBackend struct {
	resolver NodeAddressResolver
	client   *http.Client
}

// NewRemoteDockerBackend builds a RemoteDockerBackend using resolver
// to translate u-node ids to reachable addresses.
func NewRemoteDockerBackend(resolver NodeAddressResolver) *RemoteDockerBackend {
	return &RemoteDockerBackend{resolver: resolver, client: &http.Client{Timeout: 30 * time.Second}}
}

type agentDeployRequest struct {
	Name    string            `json:"name"`
	Image   string            `json:"image"`
	Command []string          `json:"command,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Ports   []string          `json:"ports,omitempty"`
	Volumes []string          `json:"volumes,omitempty"`
}

type agentStatusResponse struct {
	ContainerID string `json:"container_id"`
	State       string `json:"state"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Message     string `json:"message,omitempty"`
}

func (b *RemoteDockerBackend) Deploy(ctx context.Context, containerName string, def ResolvedServiceDefinition, target Target) (BackendStatus, error) {
	body := agentDeployRequest{
		Name:    containerName,
		Image:   def.Image,
		Command: def.Command,
		Env:     def.ResolvedEnv,
		Ports:   def.Ports,
		Volumes: def.Volumes,
	}
	var resp agentStatusResponse
	if err := b.call(ctx, target.NodeID, http.MethodPost, "/deploy", body, &resp); err != nil {
		return BackendStatus{}, err
	}
	return fromAgentResponse(resp), nil
}

func (b *RemoteDockerBackend) Status(ctx context.Context, containerName string, target Target) (BackendStatus, error) {
	var resp agentStatusResponse
	if err := b.call(ctx, target.NodeID, http.MethodGet, "/status/"+containerName, nil, &resp); err != nil {
		return BackendStatus{}, err
	}
	return fromAgentResponse(resp), nil
}

func (b *RemoteDockerBackend) Stop(ctx context.Context, containerName string, target Target) error {
	return b.call(ctx, target.NodeID, http.MethodPost, "/stop/"+containerName, nil, nil)
}

func (b *RemoteDockerBackend) Remove(ctx context.Context, containerName string, target Target) error {
	return b.call(ctx, target.NodeID, http.MethodDelete, "/remove/"+containerName, nil, nil)
}

func (b *RemoteDockerBackend) Logs(ctx context.Context, containerName string, target Target, tail int) (string, error) {
	var resp struct {
		Logs string `json:"logs"`
	}
	path := fmt.Sprintf("/logs/%s?tail=%d", containerName, tail)
	if err := b.call(ctx, target.NodeID, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Logs, nil
}

func (b *RemoteDockerBackend) call(ctx context.Context, nodeID, method, path string, reqBody, respBody any) error {
	base, err := b.resolver.AgentBaseURL(nodeID)
	if err != nil {
		return fmt.Errorf("resolving u-node %s: %w", nodeID, err)
	}

	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ushadow-Node-Secret", b.resolver.SharedSecret())

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling node agent at %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("node agent returned %d: %s", resp.StatusCode, string(data))
	}
	if respBody != nil {
		return json.NewDecoder(resp.Body).Decode(respBody)
	}
	return nil
}

func fromAgentResponse(resp agentStatusResponse) BackendStatus {
	state := StateRunning
	switch resp.State {
	case "running":
		state = StateRunning
	case "exited", "dead", "stopped":
		state = StateStopped
	case "created", "deploying":
		state = StateDeploying
	}
	return BackendStatus{
		State:       state,
		ContainerID: resp.ContainerID,
		PrimaryHost: resp.Host,
		PrimaryPort: resp.Port,
		Message:     resp.Message,
	}
}
