package deployment

import (
	"context"
	"sync"
	"testing"

	"github.com/ushadow-io/ushadow/core/metrics"
	"github.com/ushadow-io/ushadow/internal/capability"
	"github.com/ushadow-io/ushadow/internal/registry"
)

type fakeRepo struct {
	mu    sync.Mutex
	items map[string]Deployment
}

func newFakeRepo() *fakeRepo { return &fakeRepo{items: map[string]Deployment{}} }

func (f *fakeRepo) Insert(ctx context.Context, d Deployment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[d.ID] = d
	return nil
}

func (f *fakeRepo) Get(ctx context.Context, id string) (Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[id]
	if !ok {
		return Deployment{}, context.DeadlineExceeded
	}
	return d, nil
}

func (f *fakeRepo) List(ctx context.Context, state State) ([]Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Deployment
	for _, d := range f.items {
		if state == "" || d.State == state {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeRepo) Update(ctx context.Context, d Deployment, mutate func(*Deployment)) (Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(&d)
	f.items[d.ID] = d
	return d, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

type fakeBackend struct {
	deployStatus BackendStatus
	deployErr    error
	stopErr      error
}

func (b *fakeBackend) Deploy(ctx context.Context, name string, def ResolvedServiceDefinition, target Target) (BackendStatus, error) {
	return b.deployStatus, b.deployErr
}
func (b *fakeBackend) Status(ctx context.Context, name string, target Target) (BackendStatus, error) {
	return b.deployStatus, nil
}
func (b *fakeBackend) Stop(ctx context.Context, name string, target Target) error { return b.stopErr }
func (b *fakeBackend) Remove(ctx context.Context, name string, target Target) error { return nil }
func (b *fakeBackend) Logs(ctx context.Context, name string, target Target, tail int) (string, error) {
	return "log output", nil
}

type fakeEngineRegistry struct {
	def registry.ServiceDefinition
}

func (f fakeEngineRegistry) Get(id string) (registry.ServiceDefinition, bool) {
	if id == f.def.ID {
		return f.def, true
	}
	return registry.ServiceDefinition{}, false
}
func (f fakeEngineRegistry) EnvMappingsFor(cap string) []registry.EnvMap { return nil }

type fakeResolver struct {
	resolution capability.Resolution
	err        error
}

func (f fakeResolver) Resolve(ids []string) (capability.Resolution, error) { return f.resolution, f.err }

type fakeStore struct{}

func (fakeStore) Get(path string, def any) any { return def }

type fakeProxy struct {
	added   []string
	removed []string
}

func (p *fakeProxy) AddRoute(serviceID, host string, port int) error {
	p.added = append(p.added, serviceID)
	return nil
}
func (p *fakeProxy) RemoveRoute(serviceID string) error {
	p.removed = append(p.removed, serviceID)
	return nil
}

func newTestEngine(backend Backend, resolution capability.Resolution) (*Engine, *fakeRepo, *fakeProxy) {
	reg := fakeEngineRegistry{def: registry.ServiceDefinition{ID: "app:web", Image: "nginx", Ports: []string{"8080:80"}}}
	repo := newFakeRepo()
	proxy := &fakeProxy{}
	e := New(reg, fakeResolver{resolution: resolution}, fakeStore{}, repo,
		map[TargetKind]Backend{TargetLocalDocker: backend}, proxy, metrics.NewCollector("test"))
	return e, repo, proxy
}

func TestDeploy_HappyPathAddsProxyRoute(t *testing.T) {
	backend := &fakeBackend{deployStatus: BackendStatus{State: StateRunning, ContainerID: "c1", PrimaryHost: "10.0.0.5", PrimaryPort: 8080}}
	e, _, proxy := newTestEngine(backend, capability.Resolution{AllConfigured: true})

	d, err := e.Deploy(context.Background(), DeployRequest{ServiceID: "app:web", Target: Target{Kind: TargetLocalDocker}})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if d.State != StateRunning {
		t.Errorf("state = %s, want running", d.State)
	}
	if len(proxy.added) != 1 || proxy.added[0] != "app:web" {
		t.Errorf("expected a proxy route to be added, got %v", proxy.added)
	}
}

func TestDeploy_UnconfiguredRefusesToDeploy(t *testing.T) {
	backend := &fakeBackend{}
	resolution := capability.Resolution{AllConfigured: false, RequiredCapabilities: []capability.RequiredCapability{
		{ID: "llm", MissingKeys: []capability.MissingKey{{Key: "OPENAI_API_KEY"}}},
	}}
	e, _, _ := newTestEngine(backend, resolution)

	_, err := e.Deploy(context.Background(), DeployRequest{ServiceID: "app:web", Target: Target{Kind: TargetLocalDocker}})
	if err == nil {
		t.Fatal("expected Deploy to fail when capabilities are not fully configured")
	}
}

func TestDeploy_BackendFailureMarksDeploymentFailed(t *testing.T) {
	backend := &fakeBackend{deployErr: context.DeadlineExceeded}
	e, repo, _ := newTestEngine(backend, capability.Resolution{AllConfigured: true})

	d, err := e.Deploy(context.Background(), DeployRequest{ServiceID: "app:web", Target: Target{Kind: TargetLocalDocker}})
	if err == nil {
		t.Fatal("expected Deploy to return an error when the backend fails")
	}
	if d.State != StateFailed {
		t.Errorf("state = %s, want failed", d.State)
	}
	stored, _ := repo.Get(context.Background(), d.ID)
	if stored.State != StateFailed {
		t.Errorf("persisted state = %s, want failed", stored.State)
	}
}

func TestStop_WithdrawsProxyRoute(t *testing.T) {
	backend := &fakeBackend{deployStatus: BackendStatus{State: StateRunning, PrimaryHost: "10.0.0.5", PrimaryPort: 8080}}
	e, _, proxy := newTestEngine(backend, capability.Resolution{AllConfigured: true})

	d, err := e.Deploy(context.Background(), DeployRequest{ServiceID: "app:web", Target: Target{Kind: TargetLocalDocker}})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	stopped, err := e.Stop(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.State != StateStopped {
		t.Errorf("state = %s, want stopped", stopped.State)
	}
	if len(proxy.removed) != 1 {
		t.Errorf("expected proxy route to be withdrawn, got %v", proxy.removed)
	}
}
