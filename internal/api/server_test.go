package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ushadow-io/ushadow/core/metrics"
	"github.com/ushadow-io/ushadow/internal/auth"
	"github.com/ushadow-io/ushadow/internal/capability"
	"github.com/ushadow-io/ushadow/internal/cloud"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/deployment"
	"github.com/ushadow-io/ushadow/internal/node"
	"github.com/ushadow-io/ushadow/internal/registry"
)

type fakeCloudProvider struct {
	instances map[string]cloud.Instance
}

func (fakeCloudProvider) Name() cloud.ProviderName { return cloud.ProviderHetzner }
func (fakeCloudProvider) ListRegions(context.Context) ([]cloud.Region, error) {
	return []cloud.Region{{ID: "nbg1", Name: "Nuremberg", Available: true}}, nil
}
func (fakeCloudProvider) ListSizes(context.Context) ([]cloud.Size, error) {
	return []cloud.Size{{ID: "cx22", VCPUs: 2, MemoryGiB: 4, DiskGiB: 40, HourlyPrice: 0.01, Regions: []string{"nbg1"}}}, nil
}
func (fakeCloudProvider) CreateSSHKey(context.Context, string, string) (cloud.SSHKey, error) {
	return cloud.SSHKey{}, nil
}
func (fakeCloudProvider) ListSSHKeys(context.Context) ([]cloud.SSHKey, error) { return nil, nil }
func (fakeCloudProvider) DeleteSSHKey(context.Context, string) error          { return nil }
func (f *fakeCloudProvider) Create(_ context.Context, req cloud.CreateRequest) (cloud.Instance, error) {
	inst := cloud.Instance{ID: "inst-1", Provider: cloud.ProviderHetzner, Region: req.Region, Size: req.Size, Status: cloud.InstanceProvisioning}
	f.instances[inst.ID] = inst
	return inst, nil
}
func (f *fakeCloudProvider) Get(_ context.Context, id string) (cloud.Instance, error) {
	return f.instances[id], nil
}
func (f *fakeCloudProvider) List(context.Context) ([]cloud.Instance, error) {
	out := make([]cloud.Instance, 0, len(f.instances))
	for _, inst := range f.instances {
		out = append(out, inst)
	}
	return out, nil
}
func (f *fakeCloudProvider) Delete(_ context.Context, id string) error {
	delete(f.instances, id)
	return nil
}
func (fakeCloudProvider) Start(context.Context, string) error  { return nil }
func (fakeCloudProvider) Stop(context.Context, string) error   { return nil }
func (fakeCloudProvider) Reboot(context.Context, string) error { return nil }
func (f *fakeCloudProvider) WaitForReady(_ context.Context, id string) (cloud.Instance, error) {
	return f.instances[id], nil
}

type fakeUserRepo struct{ users map[string]auth.User }

func (f *fakeUserRepo) Insert(u auth.User) error { f.users[u.Email] = u; return nil }
func (f *fakeUserRepo) GetByEmail(email string) (auth.User, bool) {
	u, ok := f.users[email]
	return u, ok
}
func (f *fakeUserRepo) Count() (int, error) { return len(f.users), nil }

type fakeDeploymentRepo struct{}

func (fakeDeploymentRepo) Insert(context.Context, deployment.Deployment) error { return nil }
func (fakeDeploymentRepo) Get(context.Context, string) (deployment.Deployment, error) {
	return deployment.Deployment{}, nil
}
func (fakeDeploymentRepo) List(context.Context, deployment.State) ([]deployment.Deployment, error) {
	return nil, nil
}
func (fakeDeploymentRepo) Update(ctx context.Context, d deployment.Deployment, mutate func(*deployment.Deployment)) (deployment.Deployment, error) {
	mutate(&d)
	return d, nil
}
func (fakeDeploymentRepo) Delete(context.Context, string) error { return nil }

type fakeProxy struct{}

func (fakeProxy) AddRoute(string, string, int) error { return nil }
func (fakeProxy) RemoveRoute(string) error           { return nil }

type fakeNodeRepo struct{ nodes map[string]node.UNode }

func (f *fakeNodeRepo) Insert(_ context.Context, n node.UNode) error { f.nodes[n.ID] = n; return nil }
func (f *fakeNodeRepo) Get(_ context.Context, id string) (node.UNode, error) {
	return f.nodes[id], nil
}
func (f *fakeNodeRepo) List(_ context.Context) ([]node.UNode, error) {
	out := make([]node.UNode, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out, nil
}
func (f *fakeNodeRepo) Update(_ context.Context, n node.UNode, mutate func(*node.UNode)) (node.UNode, error) {
	mutate(&n)
	f.nodes[n.ID] = n
	return n, nil
}
func (f *fakeNodeRepo) Delete(_ context.Context, id string) error { delete(f.nodes, id); return nil }

type fakeTokenRepo struct{ tokens map[string]node.JoinToken }

func (f *fakeTokenRepo) Insert(_ context.Context, t node.JoinToken) error {
	f.tokens[t.Token] = t
	return nil
}
func (f *fakeTokenRepo) Get(_ context.Context, token string) (node.JoinToken, error) {
	return f.tokens[token], nil
}
func (f *fakeTokenRepo) IncrementUses(_ context.Context, token string) error {
	t := f.tokens[token]
	t.Uses++
	f.tokens[token] = t
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Open(t.TempDir())
	if err != nil {
		t.Fatalf("config.Open: %v", err)
	}
	reg, err := registry.New(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	resolver := capability.New(reg, cfg, nil)
	m := metrics.NewCollector("ushadow_test")

	engine := deployment.New(reg, resolver, cfg, fakeDeploymentRepo{}, map[deployment.TargetKind]deployment.Backend{}, fakeProxy{}, m)
	nodes := node.New(&fakeNodeRepo{nodes: map[string]node.UNode{}}, &fakeTokenRepo{tokens: map[string]node.JoinToken{}}, cfg, time.Second, m)

	local := auth.NewLocalBroker(&fakeUserRepo{users: map[string]auth.User{}}, "test-secret", true)
	broker, err := auth.NewBroker(local, nil)
	if err != nil {
		t.Fatalf("auth.NewBroker: %v", err)
	}

	providers := map[cloud.ProviderName]cloud.CloudProvider{
		cloud.ProviderHetzner: &fakeCloudProvider{instances: map[string]cloud.Instance{}},
	}
	return New(cfg, reg, resolver, engine, nodes, broker, local, nil, providers, nil, nil)
}

func doJSON(router http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupLoginMe_RoundTripsThroughBrokerMiddleware(t *testing.T) {
	s := newTestServer(t)
	router := s.Router(nil)

	w := doJSON(router, http.MethodGet, "/api/auth/setup/status", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("setup status: %d %s", w.Code, w.Body.String())
	}
	var status struct {
		SetupRequired bool `json:"setup_required"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding setup status: %v", err)
	}
	if !status.SetupRequired {
		t.Fatalf("expected setup_required=true before any user exists")
	}

	w = doJSON(router, http.MethodPost, "/api/auth/setup", map[string]string{
		"email": "admin@example.com", "password": "hunter2",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("setup: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(router, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "admin@example.com", "password": "hunter2",
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var principal auth.Principal
	if err := json.Unmarshal(w.Body.Bytes(), &principal); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if principal.Token == "" {
		t.Fatalf("expected non-empty token")
	}

	w = doJSON(router, http.MethodGet, "/api/auth/me", nil, principal.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("me: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(router, http.MethodGet, "/api/auth/me", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", w.Code)
	}
}

func TestSettingsConfig_RequiresAdminRole(t *testing.T) {
	s := newTestServer(t)
	router := s.Router(nil)

	doJSON(router, http.MethodPost, "/api/auth/setup", map[string]string{
		"email": "admin@example.com", "password": "hunter2",
	}, "")
	w := doJSON(router, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "admin@example.com", "password": "hunter2",
	}, "")
	var principal auth.Principal
	_ = json.Unmarshal(w.Body.Bytes(), &principal)

	w = doJSON(router, http.MethodGet, "/api/settings/config", nil, principal.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected admin to read settings, got %d %s", w.Code, w.Body.String())
	}

	w = doJSON(router, http.MethodGet, "/api/settings/config", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", w.Code)
	}

	user, err := s.local.Signup("user@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	w = doJSON(router, http.MethodGet, "/api/settings/config", nil, user.Token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-admin user, got %d", w.Code)
	}
}

func TestCloudProvisioning_CreatesAndListsInstance(t *testing.T) {
	s := newTestServer(t)
	router := s.Router(nil)

	doJSON(router, http.MethodPost, "/api/auth/setup", map[string]string{
		"email": "admin@example.com", "password": "hunter2",
	}, "")
	w := doJSON(router, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "admin@example.com", "password": "hunter2",
	}, "")
	var principal auth.Principal
	_ = json.Unmarshal(w.Body.Bytes(), &principal)

	w = doJSON(router, http.MethodPost, "/api/cloud/hetzner/instances", map[string]any{
		"name": "u-node-1", "region": "nbg1",
	}, principal.Token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create instance: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(router, http.MethodGet, "/api/cloud/hetzner/instances", nil, principal.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("list instances: %d %s", w.Code, w.Body.String())
	}
	var listed struct {
		Instances []cloud.Instance `json:"instances"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decoding instance list: %v", err)
	}
	if len(listed.Instances) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(listed.Instances))
	}

	w = doJSON(router, http.MethodGet, "/api/cloud/digitalocean/instances", nil, principal.Token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected unconfigured provider to 422, got %d", w.Code)
	}
}

func TestNodeHeartbeat_RejectsMissingSharedSecret(t *testing.T) {
	s := newTestServer(t)
	router := s.Router(nil)

	w := doJSON(router, http.MethodPost, "/api/nodes/heartbeat", map[string]string{"node_id": "n1"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without node secret, got %d %s", w.Code, w.Body.String())
	}
}
