package nodeagent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ushadow-io/ushadow/internal/dockerrt"
)

type fakeRuntime struct {
	deployStatus dockerrt.Status
	deployErr    error
	stopErr      error
	removeErr    error
	logs         string
	lastTail     int
}

func (f *fakeRuntime) Deploy(ctx context.Context, name string, spec dockerrt.Spec) (dockerrt.Status, error) {
	return f.deployStatus, f.deployErr
}
func (f *fakeRuntime) Status(ctx context.Context, nameOrID string) (dockerrt.Status, error) {
	return f.deployStatus, nil
}
func (f *fakeRuntime) Stop(ctx context.Context, nameOrID string) error   { return f.stopErr }
func (f *fakeRuntime) Remove(ctx context.Context, nameOrID string) error { return f.removeErr }
func (f *fakeRuntime) Logs(ctx context.Context, nameOrID string, tail int) (string, error) {
	f.lastTail = tail
	return f.logs, nil
}

func TestHandleDeploy_RejectsWrongSecret(t *testing.T) {
	s := New(&fakeRuntime{}, "ushadow-net", "correct-secret")
	req := httptest.NewRequest(http.MethodPost, "/deploy", strings.NewReader(`{"name":"n1","image":"nginx"}`))
	req.Header.Set("X-Ushadow-Node-Secret", "wrong")
	w := httptest.NewRecorder()

	s.authenticated(s.handleDeploy)(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandleDeploy_ReturnsContainerStatus(t *testing.T) {
	rt := &fakeRuntime{deployStatus: dockerrt.Status{ID: "c1", State: "running", Running: true, Ports: map[string]int{"80": 8080}}}
	s := New(rt, "ushadow-net", "secret1")
	req := httptest.NewRequest(http.MethodPost, "/deploy", strings.NewReader(`{"name":"n1","image":"nginx"}`))
	req.Header.Set("X-Ushadow-Node-Secret", "secret1")
	w := httptest.NewRecorder()

	s.authenticated(s.handleDeploy)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"container_id":"c1"`) {
		t.Errorf("body = %s, missing container_id", w.Body.String())
	}
}

func TestHandleStop_PropagatesRuntimeError(t *testing.T) {
	rt := &fakeRuntime{stopErr: context.DeadlineExceeded}
	s := New(rt, "ushadow-net", "secret1")
	req := httptest.NewRequest(http.MethodPost, "/stop/n1", nil)
	req.Header.Set("X-Ushadow-Node-Secret", "secret1")
	w := httptest.NewRecorder()

	s.authenticated(s.handleStop)(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestHandleLogs_DefaultsTailWhenQueryParamMissing(t *testing.T) {
	rt := &fakeRuntime{logs: "line1\nline2\n"}
	s := New(rt, "ushadow-net", "secret1")
	req := httptest.NewRequest(http.MethodGet, "/logs/n1", nil)
	req.Header.Set("X-Ushadow-Node-Secret", "secret1")
	w := httptest.NewRecorder()

	s.authenticated(s.handleLogs)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "line1") {
		t.Errorf("body = %s, missing log contents", w.Body.String())
	}
	if rt.lastTail != 200 {
		t.Errorf("tail = %d, want default 200", rt.lastTail)
	}
}
