// Package health implements liveness/readiness HTTP probes shared by the
// control-plane and node-agent daemons.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ushadow-io/ushadow/core/utils"
)

// Checker tracks independent liveness and readiness states and serves
// them over HTTP for orchestrators (or a human) to probe.
type Checker struct {
	healthy    atomic.Bool
	ready      atomic.Bool
	startTime  time.Time
	logger     *utils.Logger
	httpServer *http.Server
}

// Response is the JSON body returned by both probe endpoints.
type Response struct {
	Status  string `json:"status"`
	Uptime  int64  `json:"uptime_seconds"`
	Message string `json:"message,omitempty"`
}

// NewChecker returns a Checker that starts out unhealthy/not-ready;
// callers flip both flags once startup completes.
func NewChecker(componentPrefix string) *Checker {
	c := &Checker{
		startTime: time.Now(),
		logger:    utils.NewLogger(componentPrefix + "-health"),
	}
	return c
}

// SetHealthy updates the liveness flag.
func (c *Checker) SetHealthy(v bool) { c.healthy.Store(v) }

// SetReady updates the readiness flag.
func (c *Checker) SetReady(v bool) { c.ready.Store(v) }

// IsHealthy reports the current liveness flag.
func (c *Checker) IsHealthy() bool { return c.healthy.Load() }

// IsReady reports the current readiness flag.
func (c *Checker) IsReady() bool { return c.ready.Load() }

// Start serves /health(z) and /ready(z) on port until Stop is called.
// It blocks, so callers run it in a goroutine.
func (c *Checker) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", c.handle(c.IsHealthy))
	mux.HandleFunc("/healthz", c.handle(c.IsHealthy))
	mux.HandleFunc("/ready", c.handle(c.IsReady))
	mux.HandleFunc("/readyz", c.handle(c.IsReady))

	c.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	c.logger.Info("probe server listening on :%d", port)
	if err := c.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the probe server down.
func (c *Checker) Stop() error {
	if c.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("health server shutdown: %w", err)
	}
	return nil
}

func (c *Checker) handle(state func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(c.startTime).Seconds())
		resp := Response{Status: "healthy", Uptime: uptime}
		code := http.StatusOK
		if !state() {
			resp.Status = "unhealthy"
			resp.Message = "not ready"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(resp)
	}
}
