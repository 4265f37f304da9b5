package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ushadow-io/ushadow/core/metrics"
)

type fakeNodeRepo struct {
	mu    sync.Mutex
	items map[string]UNode
}

func newFakeNodeRepo() *fakeNodeRepo { return &fakeNodeRepo{items: map[string]UNode{}} }

func (f *fakeNodeRepo) Insert(ctx context.Context, n UNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[n.ID] = n
	return nil
}

func (f *fakeNodeRepo) Get(ctx context.Context, id string) (UNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.items[id]
	if !ok {
		return UNode{}, context.DeadlineExceeded
	}
	return n, nil
}

func (f *fakeNodeRepo) List(ctx context.Context) ([]UNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []UNode
	for _, n := range f.items {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeNodeRepo) Update(ctx context.Context, n UNode, mutate func(*UNode)) (UNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(&n)
	f.items[n.ID] = n
	return n, nil
}

func (f *fakeNodeRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

type fakeTokenRepo struct {
	mu    sync.Mutex
	items map[string]JoinToken
}

func newFakeTokenRepo() *fakeTokenRepo { return &fakeTokenRepo{items: map[string]JoinToken{}} }

func (f *fakeTokenRepo) Insert(ctx context.Context, t JoinToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[t.Token] = t
	return nil
}

func (f *fakeTokenRepo) Get(ctx context.Context, token string) (JoinToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.items[token]
	if !ok {
		return JoinToken{}, context.DeadlineExceeded
	}
	return t, nil
}

func (f *fakeTokenRepo) IncrementUses(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.items[token]
	t.Uses++
	f.items[token] = t
	return nil
}

type fakeConfigGetter struct{ secret string }

func (f fakeConfigGetter) GetString(path, def string) string {
	if path == "node_secret" && f.secret != "" {
		return f.secret
	}
	return def
}

func newTestManager(interval time.Duration) (*Manager, *fakeNodeRepo, *fakeTokenRepo) {
	nodes := newFakeNodeRepo()
	tokens := newFakeTokenRepo()
	m := New(nodes, tokens, fakeConfigGetter{}, interval, metrics.NewCollector("test_node"))
	return m, nodes, tokens
}

func TestJoin_ValidTokenRegistersNode(t *testing.T) {
	m, _, tokens := newTestManager(time.Second)
	token, err := m.CreateJoinToken(context.Background(), "worker", time.Hour, 1)
	if err != nil {
		t.Fatalf("CreateJoinToken: %v", err)
	}

	n, err := m.Join(context.Background(), JoinRequest{Token: token.Token, Hostname: "box1", OverlayIP: "10.8.0.2"})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if n.Hostname != "worker-box1" {
		t.Errorf("hostname = %q, want role-qualified name", n.Hostname)
	}

	stored, _ := tokens.Get(context.Background(), token.Token)
	if stored.Uses != 1 {
		t.Errorf("uses = %d, want 1", stored.Uses)
	}
}

func TestJoin_ExhaustedTokenIsRejected(t *testing.T) {
	m, _, _ := newTestManager(time.Second)
	token, _ := m.CreateJoinToken(context.Background(), "worker", time.Hour, 1)

	if _, err := m.Join(context.Background(), JoinRequest{Token: token.Token, Hostname: "box1", OverlayIP: "10.8.0.2"}); err != nil {
		t.Fatalf("first Join: %v", err)
	}
	if _, err := m.Join(context.Background(), JoinRequest{Token: token.Token, Hostname: "box2", OverlayIP: "10.8.0.3"}); err == nil {
		t.Fatal("expected second Join on a single-use token to fail")
	}
}

func TestJoin_ExpiredTokenIsRejected(t *testing.T) {
	m, _, _ := newTestManager(time.Second)
	token, _ := m.CreateJoinToken(context.Background(), "worker", -time.Hour, 0)

	if _, err := m.Join(context.Background(), JoinRequest{Token: token.Token, Hostname: "box1", OverlayIP: "10.8.0.2"}); err == nil {
		t.Fatal("expected Join with an expired token to fail")
	}
}

func TestEffectiveStatus_ClassifiesByHeartbeatAge(t *testing.T) {
	m, _, _ := newTestManager(10 * time.Second)

	fresh := UNode{LastHeartbeat: time.Now()}
	if got := m.EffectiveStatus(fresh); got != StatusOnline {
		t.Errorf("fresh node status = %s, want online", got)
	}

	stale := UNode{LastHeartbeat: time.Now().Add(-31 * time.Second)}
	if got := m.EffectiveStatus(stale); got != StatusStale {
		t.Errorf("stale node status = %s, want stale", got)
	}

	lost := UNode{LastHeartbeat: time.Now().Add(-101 * time.Second)}
	if got := m.EffectiveStatus(lost); got != StatusLost {
		t.Errorf("lost node status = %s, want lost", got)
	}
}

func TestAvailableTargets_ExcludesStaleAndLostNodes(t *testing.T) {
	m, nodes, _ := newTestManager(10 * time.Second)
	nodes.items["online"] = UNode{ID: "online", LastHeartbeat: time.Now()}
	nodes.items["stale"] = UNode{ID: "stale", LastHeartbeat: time.Now().Add(-31 * time.Second)}
	nodes.items["lost"] = UNode{ID: "lost", LastHeartbeat: time.Now().Add(-200 * time.Second)}

	targets, err := m.AvailableTargets(context.Background())
	if err != nil {
		t.Fatalf("AvailableTargets: %v", err)
	}
	if len(targets) != 1 || targets[0].ID != "online" {
		t.Errorf("targets = %v, want only the online node", targets)
	}
}

func TestHeartbeat_UpdatesLastHeartbeatAndResetsToOnline(t *testing.T) {
	m, nodes, _ := newTestManager(10 * time.Second)
	nodes.items["n1"] = UNode{ID: "n1", LastHeartbeat: time.Now().Add(-200 * time.Second), Status: StatusLost}

	if err := m.Heartbeat(context.Background(), Heartbeat{NodeID: "n1", ServicesRunning: []string{"app:web"}}); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	n, err := m.GetNode(context.Background(), "n1")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if n.Status != StatusOnline {
		t.Errorf("status = %s, want online after heartbeat", n.Status)
	}
	if len(n.ServicesRunning) != 1 || n.ServicesRunning[0] != "app:web" {
		t.Errorf("services_running = %v, want [app:web]", n.ServicesRunning)
	}
}
