// Package proxy implements the Overlay Proxy Controller (spec §4.8):
// the dynamic reverse-proxy configuration that keeps every running
// user-facing deployment reachable under a stable external hostname,
// path-based, plus the three routes it always owns.
package proxy

// Route is a (path-prefix -> upstream) pair. Invariant (spec §3): for
// every running deployment whose service is user-facing, a Route
// exists; for every stopped deployment, none does.
type Route struct {
	PathPrefix string `json:"path_prefix"`
	Upstream   string `json:"upstream"`
	ServiceID  string `json:"service_id,omitempty"` // empty for the always-owned static routes
}

// staticRoutes are the three routes the controller always owns,
// independent of any deployment.
var staticRoutes = []Route{
	{PathPrefix: "/api", Upstream: "backend"},
	{PathPrefix: "/auth", Upstream: "backend"},
	{PathPrefix: "/", Upstream: "frontend"},
}
