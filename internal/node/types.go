// Package node implements the Node Manager (spec §4.5): u-node join
// tokens, heartbeat-based liveness tracking, and the deployment-target
// eligibility view the Deployment Engine consults.
package node

import "time"

// Status is a u-node's liveness classification.
type Status string

const (
	StatusOnline Status = "online"
	StatusStale  Status = "stale"
	StatusLost   Status = "lost"
)

// UNode is one joined worker node.
type UNode struct {
	ID            string            `json:"id" bson:"_id"`
	Hostname      string            `json:"hostname" bson:"hostname"`
	OverlayIP     string            `json:"overlay_ip" bson:"overlay_ip"`
	Capabilities  []string          `json:"capabilities" bson:"capabilities"`
	Status        Status            `json:"status" bson:"status"`
	LastHeartbeat time.Time         `json:"last_heartbeat" bson:"last_heartbeat"`
	ServicesRunning []string        `json:"services_running,omitempty" bson:"services_running,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty" bson:"metrics,omitempty"`
	JoinedAt      time.Time         `json:"joined_at" bson:"joined_at"`
	Version       int               `json:"-" bson:"version"`
}

// JoinToken authorizes a prospective u-node to register.
type JoinToken struct {
	Token     string    `json:"token" bson:"_id"`
	Role      string    `json:"role" bson:"role"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	MaxUses   int       `json:"max_uses" bson:"max_uses"`
	Uses      int       `json:"uses" bson:"uses"`
}

func (t JoinToken) expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func (t JoinToken) exhausted() bool {
	return t.MaxUses > 0 && t.Uses >= t.MaxUses
}

// JoinRequest is what a prospective u-node POSTs to /api/nodes/join.
type JoinRequest struct {
	Token        string
	Hostname     string
	OverlayIP    string
	Capabilities []string
}

// Heartbeat is what an agent POSTs every heartbeat_interval seconds.
type Heartbeat struct {
	NodeID          string             `json:"node_id"`
	Status          string             `json:"status"`
	ServicesRunning []string           `json:"services_running"`
	Capabilities    []string           `json:"capabilities"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}
