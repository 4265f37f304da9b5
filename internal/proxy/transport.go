package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport drives the out-of-process overlay agent (spec §4.8):
// commands are idempotent (add-or-replace, remove-if-exists) and
// serialised over a known local transport — here, loopback HTTP to
// the agent's admin API, the same context-aware-http.Client-with-
// timeout idiom every other outbound call in this module uses.
type Transport interface {
	Upsert(ctx context.Context, route Route) error
	Delete(ctx context.Context, pathPrefix string) error
	List(ctx context.Context) ([]Route, error)
}

// HTTPTransport is the default Transport, talking to the overlay
// agent's loopback admin API.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport builds an HTTPTransport against the agent's admin
// API at baseURL (e.g. "http://127.0.0.1:9901").
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Second}}
}

// Upsert adds route, or replaces it if a route with the same
// PathPrefix already exists.
func (t *HTTPTransport) Upsert(ctx context.Context, route Route) error {
	data, err := json.Marshal(route)
	if err != nil {
		return err
	}
	return t.do(ctx, http.MethodPut, "/routes", bytes.NewReader(data))
}

// Delete removes the route at pathPrefix; a no-op if none exists.
func (t *HTTPTransport) Delete(ctx context.Context, pathPrefix string) error {
	return t.do(ctx, http.MethodDelete, "/routes?path="+pathPrefix, nil)
}

// List returns every route the agent currently holds.
func (t *HTTPTransport) List(ctx context.Context) ([]Route, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/routes", nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing overlay agent routes: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("overlay agent returned %d: %s", resp.StatusCode, string(data))
	}
	var routes []Route
	if err := json.NewDecoder(resp.Body).Decode(&routes); err != nil {
		return nil, fmt.Errorf("decoding overlay agent routes: %w", err)
	}
	return routes, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling overlay agent: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("overlay agent returned %d: %s", resp.StatusCode, string(data))
	}
	return nil
}
