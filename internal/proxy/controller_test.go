package proxy

import (
	"context"
	"sync"
	"testing"

	"github.com/ushadow-io/ushadow/core/metrics"
)

type fakeTransport struct {
	mu     sync.Mutex
	routes map[string]Route
}

func newFakeTransport() *fakeTransport { return &fakeTransport{routes: map[string]Route{}} }

func (f *fakeTransport) Upsert(ctx context.Context, route Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route.PathPrefix] = route
	return nil
}

func (f *fakeTransport) Delete(ctx context.Context, pathPrefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.routes, pathPrefix)
	return nil
}

func (f *fakeTransport) List(ctx context.Context) ([]Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Route
	for _, r := range f.routes {
		out = append(out, r)
	}
	return out, nil
}

type fakeLister struct {
	running []RunningDeployment
}

func (f fakeLister) RunningDeployments(ctx context.Context) ([]RunningDeployment, error) {
	return f.running, nil
}

func TestAddRoute_InstallsPathPrefixedUpstream(t *testing.T) {
	transport := newFakeTransport()
	c := New(transport, metrics.NewCollector("test_proxy_add"))

	if err := c.AddRoute("app:web", "10.0.0.5", 8080); err != nil {
		t.Fatalf("AddRoute: %v", err)
	}

	route, ok := transport.routes["/app:web"]
	if !ok {
		t.Fatal("expected a route to be installed")
	}
	if route.Upstream != "10.0.0.5:8080" {
		t.Errorf("upstream = %s, want 10.0.0.5:8080", route.Upstream)
	}
}

func TestRemoveRoute_WithdrawsPreviouslyAddedRoute(t *testing.T) {
	transport := newFakeTransport()
	c := New(transport, metrics.NewCollector("test_proxy_remove"))
	_ = c.AddRoute("app:web", "10.0.0.5", 8080)

	if err := c.RemoveRoute("app:web"); err != nil {
		t.Fatalf("RemoveRoute: %v", err)
	}
	if _, ok := transport.routes["/app:web"]; ok {
		t.Error("expected route to be withdrawn")
	}
}

func TestReconcile_RemovesRouteTheEngineDoesNotRecognise(t *testing.T) {
	transport := newFakeTransport()
	transport.routes["/stale-service"] = Route{PathPrefix: "/stale-service", Upstream: "10.0.0.9:1234"}
	c := New(transport, metrics.NewCollector("test_proxy_reconcile"))

	lister := fakeLister{running: []RunningDeployment{{ServiceID: "app:web", Host: "10.0.0.5", Port: 8080}}}
	if err := c.Reconcile(context.Background(), lister); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if _, ok := transport.routes["/stale-service"]; ok {
		t.Error("expected unrecognised route to be removed")
	}
	if _, ok := transport.routes["/app:web"]; !ok {
		t.Error("expected running deployment's route to be (re)installed")
	}
	for _, r := range staticRoutes {
		if _, ok := transport.routes[r.PathPrefix]; !ok {
			t.Errorf("expected static route %s to be installed", r.PathPrefix)
		}
	}
}
