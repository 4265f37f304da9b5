package node

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ushadow-io/ushadow/core/metrics"
	"github.com/ushadow-io/ushadow/core/utils"
)

// staleAfter and lostAfter are multiples of the heartbeat interval
// after which a u-node is considered stale/lost, per spec §4.5.
const (
	staleAfter = 3
	lostAfter  = 10
)

// DefaultHeartbeatInterval is the agent's heartbeat cadence absent an
// operator override.
const DefaultHeartbeatInterval = 15 * time.Second

// NodeRepository is the persistence boundary for UNode records.
type NodeRepository interface {
	Insert(ctx context.Context, n UNode) error
	Get(ctx context.Context, id string) (UNode, error)
	List(ctx context.Context) ([]UNode, error)
	Update(ctx context.Context, n UNode, mutate func(*UNode)) (UNode, error)
	Delete(ctx context.Context, id string) error
}

// TokenRepository is the persistence boundary for JoinTokens.
type TokenRepository interface {
	Insert(ctx context.Context, t JoinToken) error
	Get(ctx context.Context, token string) (JoinToken, error)
	IncrementUses(ctx context.Context, token string) error
}

// ConfigGetter exposes the Configuration Store's node_secret setting.
type ConfigGetter interface {
	GetString(path, def string) string
}

// Manager is the Node Manager.
type Manager struct {
	nodes    NodeRepository
	tokens   TokenRepository
	store    ConfigGetter
	interval time.Duration
	metrics  *metrics.Collector
	logger   *utils.Logger
}

// New builds a Manager with the given heartbeat interval (pass 0 for
// DefaultHeartbeatInterval).
func New(nodes NodeRepository, tokens TokenRepository, store ConfigGetter, interval time.Duration, m *metrics.Collector) *Manager {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Manager{nodes: nodes, tokens: tokens, store: store, interval: interval, metrics: m, logger: utils.NewLogger("node-manager")}
}

// CreateJoinToken mints a new JoinToken valid for ttl with maxUses
// redemptions (0 means unlimited).
func (m *Manager) CreateJoinToken(ctx context.Context, role string, ttl time.Duration, maxUses int) (JoinToken, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return JoinToken{}, fmt.Errorf("generating join token: %w", err)
	}
	t := JoinToken{
		Token:     hex.EncodeToString(raw),
		Role:      role,
		ExpiresAt: time.Now().Add(ttl),
		MaxUses:   maxUses,
	}
	if err := m.tokens.Insert(ctx, t); err != nil {
		return JoinToken{}, fmt.Errorf("persisting join token: %w", err)
	}
	return t, nil
}

// Join validates req.Token and registers a new UNode, per spec §4.5's
// join protocol step 3.
func (m *Manager) Join(ctx context.Context, req JoinRequest) (UNode, error) {
	token, err := m.tokens.Get(ctx, req.Token)
	if err != nil {
		return UNode{}, fmt.Errorf("invalid join token: %w", err)
	}
	now := time.Now()
	if token.expired(now) {
		return UNode{}, fmt.Errorf("join token expired")
	}
	if token.exhausted() {
		return UNode{}, fmt.Errorf("join token exhausted")
	}

	hostname := req.Hostname
	if token.Role != "" {
		hostname = fmt.Sprintf("%s-%s", token.Role, req.Hostname)
	}

	n := UNode{
		ID:            hostname,
		Hostname:      hostname,
		OverlayIP:     req.OverlayIP,
		Capabilities:  req.Capabilities,
		Status:        StatusOnline,
		LastHeartbeat: now,
		JoinedAt:      now,
	}
	if err := m.nodes.Insert(ctx, n); err != nil {
		return UNode{}, fmt.Errorf("persisting u-node: %w", err)
	}
	if err := m.tokens.IncrementUses(ctx, req.Token); err != nil {
		m.logger.Warn("failed to increment join token uses: %v", err)
	}
	m.logger.Info("u-node joined: %s (%s)", n.ID, n.OverlayIP)
	return n, nil
}

// Heartbeat applies an idempotent, last-writer-wins update to a
// u-node's last_heartbeat and reported state, per spec §4.5/§5.
func (m *Manager) Heartbeat(ctx context.Context, hb Heartbeat) error {
	n, err := m.nodes.Get(ctx, hb.NodeID)
	if err != nil {
		return fmt.Errorf("unknown u-node %s: %w", hb.NodeID, err)
	}
	_, err = m.nodes.Update(ctx, n, func(dst *UNode) {
		dst.LastHeartbeat = time.Now()
		dst.Status = StatusOnline
		dst.ServicesRunning = hb.ServicesRunning
		dst.Capabilities = hb.Capabilities
		dst.Metrics = hb.Metrics
	})
	if err != nil {
		return fmt.Errorf("recording heartbeat for %s: %w", hb.NodeID, err)
	}
	m.metrics.HeartbeatsReceived.Inc()
	return nil
}

// EffectiveStatus computes a u-node's liveness classification from
// its recorded last heartbeat, since staleness is a function of wall
// clock time rather than a stored field.
func (m *Manager) EffectiveStatus(n UNode) Status {
	age := time.Since(n.LastHeartbeat)
	switch {
	case age > lostAfter*m.interval:
		return StatusLost
	case age > staleAfter*m.interval:
		return StatusStale
	default:
		return StatusOnline
	}
}

// ListNodes returns every u-node with its status recomputed against
// the current time.
func (m *Manager) ListNodes(ctx context.Context) ([]UNode, error) {
	nodes, err := m.nodes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing u-nodes: %w", err)
	}
	for i := range nodes {
		nodes[i].Status = m.EffectiveStatus(nodes[i])
	}
	return nodes, nil
}

// GetNode fetches one u-node with its status recomputed.
func (m *Manager) GetNode(ctx context.Context, id string) (UNode, error) {
	n, err := m.nodes.Get(ctx, id)
	if err != nil {
		return UNode{}, fmt.Errorf("u-node not found: %w", err)
	}
	n.Status = m.EffectiveStatus(n)
	return n, nil
}

// RemoveNode deletes a u-node's record.
func (m *Manager) RemoveNode(ctx context.Context, id string) error {
	if err := m.nodes.Delete(ctx, id); err != nil {
		return fmt.Errorf("removing u-node %s: %w", id, err)
	}
	return nil
}

// AvailableTargets returns u-nodes eligible as deployment targets:
// neither stale nor lost, per spec §4.5.
func (m *Manager) AvailableTargets(ctx context.Context) ([]UNode, error) {
	nodes, err := m.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Status == StatusOnline {
			out = append(out, n)
		}
	}
	return out, nil
}

// SharedSecret returns the node_secret key from the Configuration
// Store, used to authenticate agent requests (spec §4.5).
func (m *Manager) SharedSecret() string {
	return m.store.GetString("node_secret", "")
}

// AgentBaseURL resolves a u-node id to its agent's HTTP base URL,
// satisfying deployment.NodeAddressResolver.
func (m *Manager) AgentBaseURL(nodeID string) (string, error) {
	n, err := m.nodes.Get(context.Background(), nodeID)
	if err != nil {
		return "", fmt.Errorf("resolving u-node %s: %w", nodeID, err)
	}
	return fmt.Sprintf("http://%s:7777", n.OverlayIP), nil
}
