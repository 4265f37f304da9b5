// Package nodeagent implements the per-u-node HTTP daemon (spec
// §4.6): a thin, authenticated wrapper around internal/dockerrt that
// the control plane's Remote-Docker backend dispatches to, plus the
// agent-side heartbeat loop that reports liveness back to the Node
// Manager.
package nodeagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ushadow-io/ushadow/core/utils"
	"github.com/ushadow-io/ushadow/internal/dockerrt"
)

// ContainerRuntime is the subset of *dockerrt.Runtime the agent's
// HTTP handlers need, narrowed to a package-local interface so tests
// can substitute a fake instead of a live Docker daemon.
type ContainerRuntime interface {
	Deploy(ctx context.Context, name string, spec dockerrt.Spec) (dockerrt.Status, error)
	Status(ctx context.Context, nameOrID string) (dockerrt.Status, error)
	Stop(ctx context.Context, nameOrID string) error
	Remove(ctx context.Context, nameOrID string) error
	Logs(ctx context.Context, nameOrID string, tail int) (string, error)
}

// Server is the Node Agent's local HTTP surface: /deploy, /status/{name},
// /stop/{name}, /remove/{name}, /logs/{name}.
type Server struct {
	runtime     ContainerRuntime
	networkName string
	secret      string
	logger      *utils.Logger
	httpServer  *http.Server
}

// New builds a Server over runtime, requiring secret on every request
// via the X-Ushadow-Node-Secret header.
func New(runtime ContainerRuntime, networkName, secret string) *Server {
	return &Server{
		runtime:     runtime,
		networkName: networkName,
		secret:      secret,
		logger:      utils.NewLogger("node-agent"),
	}
}

type deployRequest struct {
	Name    string            `json:"name"`
	Image   string            `json:"image"`
	Command []string          `json:"command,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Ports   []string          `json:"ports,omitempty"`
	Volumes []string          `json:"volumes,omitempty"`
}

type statusResponse struct {
	ContainerID string `json:"container_id"`
	State       string `json:"state"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Message     string `json:"message,omitempty"`
}

// Start serves the agent's HTTP surface on port until the process
// exits; it blocks, so callers run it in a goroutine.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/deploy", s.authenticated(s.handleDeploy))
	mux.HandleFunc("/status/", s.authenticated(s.handleStatus))
	mux.HandleFunc("/stop/", s.authenticated(s.handleStop))
	mux.HandleFunc("/remove/", s.authenticated(s.handleRemove))
	mux.HandleFunc("/logs/", s.authenticated(s.handleLogs))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.logger.Info("node agent listening on :%d", port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("node agent server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the agent server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Ushadow-Node-Secret") != s.secret {
			http.Error(w, "invalid node secret", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	status, err := s.runtime.Deploy(r.Context(), req.Name, dockerrt.Spec{
		Image:       req.Image,
		Command:     req.Command,
		Env:         req.Env,
		Ports:       req.Ports,
		Volumes:     req.Volumes,
		NetworkName: s.networkName,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, toStatusResponse(status, r.Host))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/status/")
	status, err := s.runtime.Status(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, toStatusResponse(status, r.Host))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/stop/")
	if err := s.runtime.Stop(r.Context(), name); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/remove/")
	if err := s.runtime.Remove(r.Context(), name); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/logs/")
	name, tail := splitLogsPath(name, r.URL.Query().Get("tail"))
	logs, err := s.runtime.Logs(r.Context(), name, tail)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"logs": logs})
}

func splitLogsPath(name, tailParam string) (string, int) {
	tail := 200
	if n, err := strconv.Atoi(tailParam); err == nil && n > 0 {
		tail = n
	}
	return name, tail
}

func toStatusResponse(status dockerrt.Status, host string) statusResponse {
	hostOnly := host
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		hostOnly = host[:idx]
	}
	port := 0
	for _, p := range status.Ports {
		port = p
		break
	}
	return statusResponse{
		ContainerID: status.ID,
		State:       status.State,
		Host:        hostOnly,
		Port:        port,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
