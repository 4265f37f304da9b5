package nodeagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ushadow-io/ushadow/core/utils"
)

// heartbeatPayload mirrors node.Heartbeat's JSON shape without
// importing internal/node, keeping the agent binary's dependency
// footprint to the things it actually runs: Docker and HTTP, not the
// control plane's persistence layer.
type heartbeatPayload struct {
	NodeID          string             `json:"node_id"`
	Status          string             `json:"status"`
	ServicesRunning []string           `json:"services_running"`
	Capabilities    []string           `json:"capabilities"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

// HeartbeatSender periodically POSTs this node's liveness to the
// control plane's /api/nodes/heartbeat endpoint (spec §4.5).
type HeartbeatSender struct {
	controlPlaneURL string
	nodeID          string
	capabilities    []string
	secret          string
	interval        time.Duration
	client          *http.Client
	logger          *utils.Logger
	runningFn       func() []string
}

// NewHeartbeatSender builds a sender that reports runningFn()'s
// result as the node's currently running services on each tick.
func NewHeartbeatSender(controlPlaneURL, nodeID, secret string, capabilities []string, interval time.Duration, runningFn func() []string) *HeartbeatSender {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HeartbeatSender{
		controlPlaneURL: controlPlaneURL,
		nodeID:          nodeID,
		capabilities:    capabilities,
		secret:          secret,
		interval:        interval,
		client:          &http.Client{Timeout: 10 * time.Second},
		logger:          utils.NewLogger("node-agent-heartbeat"),
		runningFn:       runningFn,
	}
}

// Run sends heartbeats every interval until ctx is canceled.
func (h *HeartbeatSender) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.sendOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sendOnce(ctx)
		}
	}
}

func (h *HeartbeatSender) sendOnce(ctx context.Context) {
	payload := heartbeatPayload{
		NodeID:          h.nodeID,
		Status:          "online",
		ServicesRunning: h.runningFn(),
		Capabilities:    h.capabilities,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encoding heartbeat: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.controlPlaneURL+"/api/nodes/heartbeat", bytes.NewReader(data))
	if err != nil {
		h.logger.Error("building heartbeat request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ushadow-Node-Secret", h.secret)

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("heartbeat failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		h.logger.Warn("heartbeat rejected: %s", fmt.Sprintf("%d", resp.StatusCode))
	}
}
