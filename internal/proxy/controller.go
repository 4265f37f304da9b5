package proxy

import (
	"context"
	"fmt"
	"sync"

	"github.com/ushadow-io/ushadow/core/metrics"
	"github.com/ushadow-io/ushadow/core/utils"
)

// RunningDeployment is the minimal view of a deployment the
// controller needs to reconstruct its route set on startup.
type RunningDeployment struct {
	ServiceID string
	Host      string
	Port      int
}

// DeploymentLister lets Reconcile walk every currently-running
// deployment without internal/proxy importing internal/deployment.
type DeploymentLister interface {
	RunningDeployments(ctx context.Context) ([]RunningDeployment, error)
}

// Controller is the Overlay Proxy Controller. It satisfies
// internal/deployment's ProxyController interface directly.
type Controller struct {
	transport Transport
	metrics   *metrics.Collector
	logger    *utils.Logger

	mu     sync.Mutex
	active map[string]Route // serviceID -> its route
}

// New builds a Controller over transport.
func New(transport Transport, m *metrics.Collector) *Controller {
	return &Controller{transport: transport, metrics: m, logger: utils.NewLogger("proxy-controller"), active: map[string]Route{}}
}

// EnsureStaticRoutes installs the three always-owned routes
// (/api, /auth, /). Idempotent; call on startup before Reconcile.
func (c *Controller) EnsureStaticRoutes(ctx context.Context) error {
	for _, r := range staticRoutes {
		if err := c.transport.Upsert(ctx, r); err != nil {
			return fmt.Errorf("installing static route %s: %w", r.PathPrefix, err)
		}
	}
	return nil
}

// AddRoute adds or replaces the per-deployment route for serviceID,
// satisfying deployment.ProxyController.
func (c *Controller) AddRoute(serviceID, host string, port int) error {
	route := Route{
		PathPrefix: "/" + serviceID,
		Upstream:   fmt.Sprintf("%s:%d", host, port),
		ServiceID:  serviceID,
	}
	if err := c.transport.Upsert(context.Background(), route); err != nil {
		return fmt.Errorf("adding route for %s: %w", serviceID, err)
	}
	c.mu.Lock()
	c.active[serviceID] = route
	c.metrics.ProxyRoutesActive.Set(float64(len(c.active)))
	c.mu.Unlock()
	c.logger.Info("route added: /%s -> %s", serviceID, route.Upstream)
	return nil
}

// RemoveRoute withdraws serviceID's route, satisfying
// deployment.ProxyController. A no-op if no route exists for it.
func (c *Controller) RemoveRoute(serviceID string) error {
	if err := c.transport.Delete(context.Background(), "/"+serviceID); err != nil {
		return fmt.Errorf("removing route for %s: %w", serviceID, err)
	}
	c.mu.Lock()
	delete(c.active, serviceID)
	c.metrics.ProxyRoutesActive.Set(float64(len(c.active)))
	c.mu.Unlock()
	c.logger.Info("route removed: /%s", serviceID)
	return nil
}

// Reconcile walks every running deployment lister reports, issues the
// complete route set, then removes any route the agent reports that
// the engine does not recognise (spec §4.8's startup reconciliation).
func (c *Controller) Reconcile(ctx context.Context, lister DeploymentLister) error {
	if err := c.EnsureStaticRoutes(ctx); err != nil {
		return err
	}

	running, err := lister.RunningDeployments(ctx)
	if err != nil {
		return fmt.Errorf("listing running deployments for reconciliation: %w", err)
	}

	recognised := map[string]bool{}
	for _, r := range staticRoutes {
		recognised[r.PathPrefix] = true
	}
	for _, d := range running {
		if err := c.AddRoute(d.ServiceID, d.Host, d.Port); err != nil {
			c.logger.Warn("failed to reconcile route for %s: %v", d.ServiceID, err)
			continue
		}
		recognised["/"+d.ServiceID] = true
	}

	agentRoutes, err := c.transport.List(ctx)
	if err != nil {
		return fmt.Errorf("listing overlay agent routes for reconciliation: %w", err)
	}
	for _, r := range agentRoutes {
		if recognised[r.PathPrefix] {
			continue
		}
		if err := c.transport.Delete(ctx, r.PathPrefix); err != nil {
			c.logger.Warn("failed to remove unrecognised route %s: %v", r.PathPrefix, err)
			continue
		}
		c.logger.Info("removed unrecognised route %s during reconciliation", r.PathPrefix)
	}
	return nil
}
