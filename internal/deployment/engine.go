package deployment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ushadow-io/ushadow/core/cache"
	"github.com/ushadow-io/ushadow/core/metrics"
	"github.com/ushadow-io/ushadow/core/utils"
	"github.com/ushadow-io/ushadow/internal/apierr"
	"github.com/ushadow-io/ushadow/internal/capability"
	"github.com/ushadow-io/ushadow/internal/registry"
)

// Repository is the persistence boundary the Engine needs; satisfied
// structurally by internal/store.DeploymentStore, kept as an
// interface here so the engine's tests don't require a live Mongo
// connection.
type Repository interface {
	Insert(ctx context.Context, d Deployment) error
	Get(ctx context.Context, id string) (Deployment, error)
	List(ctx context.Context, state State) ([]Deployment, error)
	Update(ctx context.Context, d Deployment, mutate func(*Deployment)) (Deployment, error)
	Delete(ctx context.Context, id string) error
}

// ProxyController is the narrow slice of the Overlay Proxy Controller
// the Engine drives: add a route once a deployment is running,
// withdraw it once stopped or removed.
type ProxyController interface {
	AddRoute(serviceID, host string, port int) error
	RemoveRoute(serviceID string) error
}

// ServiceRegistry is the slice of the Registry the Engine needs.
type ServiceRegistry interface {
	Get(id string) (registry.ServiceDefinition, bool)
	EnvMappingsFor(capability string) []registry.EnvMap
}

// CapabilityResolver is the slice of the Capability Resolver the
// Engine needs.
type CapabilityResolver interface {
	Resolve(enabledServiceIDs []string) (capability.Resolution, error)
}

// ConfigGetter is the slice of the Configuration Store the Engine
// needs for explicit-mapping env materialization.
type ConfigGetter interface {
	Get(path string, def any) any
}

// Engine is the Deployment Engine: the top-level state machine from
// spec §4.4.
type Engine struct {
	registry   ServiceRegistry
	resolver   CapabilityResolver
	store      ConfigGetter
	repo       Repository
	backends   map[TargetKind]Backend
	proxy      ProxyController
	statusCache *cache.TTLCache
	metrics    *metrics.Collector
	logger     *utils.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds an Engine. backends must at minimum contain an entry for
// every TargetKind the deployment set actually uses; a missing entry
// surfaces as an unconfigured error at Deploy time rather than
// a constructor panic, since not every installation runs Kubernetes
// or has any u-nodes joined yet.
func New(reg ServiceRegistry, resolver CapabilityResolver, store ConfigGetter, repo Repository, backends map[TargetKind]Backend, proxy ProxyController, m *metrics.Collector) *Engine {
	return &Engine{
		registry:    reg,
		resolver:    resolver,
		store:       store,
		repo:        repo,
		backends:    backends,
		proxy:       proxy,
		statusCache: cache.New(),
		metrics:     m,
		logger:      utils.NewLogger("deployment-engine"),
		locks:       map[string]*sync.Mutex{},
	}
}

// lockFor returns the per-deployment-id mutex, creating it on first
// use, enforcing spec §4.4's "at most one in-flight lifecycle
// operation per deployment id".
func (e *Engine) lockFor(id string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	m, ok := e.locks[id]
	if !ok {
		m = &sync.Mutex{}
		e.locks[id] = m
	}
	return m
}

// Deploy implements spec §4.4's deploy operation end to end.
func (e *Engine) Deploy(ctx context.Context, req DeployRequest) (Deployment, error) {
	def, ok := e.registry.Get(req.ServiceID)
	if !ok {
		return Deployment{}, apierr.New(apierr.Validation, fmt.Sprintf("service not found: %s", req.ServiceID))
	}

	resolution, err := e.resolver.Resolve([]string{req.ServiceID})
	if err != nil {
		return Deployment{}, apierr.Wrap(apierr.Internal, "resolving capabilities", err)
	}
	if !resolution.AllConfigured {
		return Deployment{}, (&ErrUnconfigured{Resolution: resolution}).wrap()
	}

	resolvedEnv := e.materializeEnv(def, resolution)

	backend, ok := e.backends[req.Target.Kind]
	if !ok {
		return Deployment{}, apierr.New(apierr.Unconfigured, fmt.Sprintf("no backend configured for target kind %s", req.Target.Kind))
	}

	id := uuid.NewString()
	containerName := containerNameFor(def.ID, id)

	now := time.Now()
	d := Deployment{
		ID:        id,
		ServiceID: def.ID,
		Target:    req.Target,
		State:     StateDeploying,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.repo.Insert(ctx, d); err != nil {
		return Deployment{}, apierr.Wrap(apierr.Internal, "persisting deployment record", err)
	}

	resolvedDef := ResolvedServiceDefinition{ServiceDefinition: def, ResolvedEnv: resolvedEnv, Name: containerName}

	status, err := backend.Deploy(ctx, containerName, resolvedDef, req.Target)
	if err != nil {
		e.metrics.DeploymentsFailed.Inc()
		failed, _ := e.repo.Update(ctx, d, func(dep *Deployment) {
			dep.State = StateFailed
			dep.Error = err.Error()
			dep.UpdatedAt = time.Now()
		})
		return failed, apierr.Wrap(apierr.BackendFailed, "backend deploy failed", err)
	}

	e.metrics.DeploymentsStarted.Inc()
	updated, err := e.repo.Update(ctx, d, func(dep *Deployment) {
		dep.State = status.State
		dep.ContainerID = status.ContainerID
		dep.PrimaryPort = status.PrimaryPort
		if status.PrimaryHost != "" && status.PrimaryPort != 0 {
			dep.AccessURL = fmt.Sprintf("http://%s:%d", status.PrimaryHost, status.PrimaryPort)
		}
		dep.UpdatedAt = time.Now()
	})
	if err != nil {
		return updated, apierr.Wrap(apierr.Internal, "persisting deploy result", err)
	}

	if updated.State == StateRunning && updated.PrimaryPort != 0 {
		if err := e.proxy.AddRoute(updated.ServiceID, status.PrimaryHost, status.PrimaryPort); err != nil {
			e.logger.Warn("failed to add proxy route for %s: %v", updated.ID, err)
		}
	}

	return updated, nil
}

// Status delegates to the backend, normalizing its state and
// rate-limiting refreshes to at most once per second per deployment,
// per spec §4.4.
func (e *Engine) Status(ctx context.Context, id string) (Deployment, error) {
	d, err := e.repo.Get(ctx, id)
	if err != nil {
		return Deployment{}, apierr.Wrap(apierr.Validation, "deployment not found", err)
	}

	if cached, ok := e.statusCache.Get(id); ok {
		return cached.(Deployment), nil
	}

	backend, ok := e.backends[d.Target.Kind]
	if !ok {
		return d, apierr.New(apierr.Unconfigured, fmt.Sprintf("no backend configured for target kind %s", d.Target.Kind))
	}

	containerName := containerNameFor(d.ServiceID, d.ID)
	status, err := backend.Status(ctx, containerName, d.Target)
	if err != nil {
		return d, apierr.Wrap(apierr.BackendUnavailable, "backend status check failed", err)
	}

	updated, err := e.repo.Update(ctx, d, func(dep *Deployment) {
		dep.State = status.State
		dep.UpdatedAt = time.Now()
	})
	if err != nil {
		return d, apierr.Wrap(apierr.Internal, "persisting status refresh", err)
	}

	e.statusCache.Set(id, updated, time.Second)
	return updated, nil
}

// Stop transitions a Deployment through stopping -> stopped/failed,
// withdrawing its ProxyRoute on success.
func (e *Engine) Stop(ctx context.Context, id string) (Deployment, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	d, err := e.repo.Get(ctx, id)
	if err != nil {
		return Deployment{}, apierr.Wrap(apierr.Validation, "deployment not found", err)
	}
	backend, ok := e.backends[d.Target.Kind]
	if !ok {
		return d, apierr.New(apierr.Unconfigured, fmt.Sprintf("no backend configured for target kind %s", d.Target.Kind))
	}

	stopping, err := e.repo.Update(ctx, d, func(dep *Deployment) {
		dep.State = StateStopping
		dep.UpdatedAt = time.Now()
	})
	if err != nil {
		return d, apierr.Wrap(apierr.Internal, "persisting stopping state", err)
	}
	d = stopping

	containerName := containerNameFor(d.ServiceID, d.ID)
	stopErr := backend.Stop(ctx, containerName, d.Target)

	newState := StateStopped
	if stopErr != nil {
		newState = StateFailed
	}
	updated, err := e.repo.Update(ctx, d, func(dep *Deployment) {
		dep.State = newState
		if stopErr != nil {
			dep.Error = stopErr.Error()
		}
		dep.UpdatedAt = time.Now()
	})
	if err != nil {
		return updated, apierr.Wrap(apierr.Internal, "persisting stop result", err)
	}

	if err := e.proxy.RemoveRoute(d.ServiceID); err != nil {
		e.logger.Warn("failed to withdraw proxy route for %s: %v", d.ID, err)
	}
	if stopErr != nil {
		return updated, apierr.Wrap(apierr.BackendFailed, "backend stop failed", stopErr)
	}
	return updated, nil
}

// Remove asserts a non-running terminal state (forcing a stop first
// otherwise), deletes backend resources, withdraws the ProxyRoute,
// and marks the Deployment removed.
func (e *Engine) Remove(ctx context.Context, id string) error {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	d, err := e.repo.Get(ctx, id)
	if err != nil {
		return apierr.Wrap(apierr.Validation, "deployment not found", err)
	}

	if d.State == StateRunning {
		lock.Unlock()
		if _, err := e.Stop(ctx, id); err != nil {
			lock.Lock()
			return apierr.Wrap(apierr.BackendFailed, "forced stop before remove failed", err)
		}
		lock.Lock()
		d, err = e.repo.Get(ctx, id)
		if err != nil {
			return apierr.Wrap(apierr.Validation, "deployment not found", err)
		}
	}

	backend, ok := e.backends[d.Target.Kind]
	if !ok {
		return apierr.New(apierr.Unconfigured, fmt.Sprintf("no backend configured for target kind %s", d.Target.Kind))
	}

	containerName := containerNameFor(d.ServiceID, d.ID)
	if err := backend.Remove(ctx, containerName, d.Target); err != nil {
		return apierr.Wrap(apierr.BackendFailed, "backend remove failed", err)
	}

	if err := e.proxy.RemoveRoute(d.ServiceID); err != nil {
		e.logger.Warn("failed to withdraw proxy route for %s: %v", d.ID, err)
	}

	if _, err := e.repo.Update(ctx, d, func(dep *Deployment) {
		dep.State = StateRemoved
		dep.UpdatedAt = time.Now()
	}); err != nil {
		return apierr.Wrap(apierr.Internal, "persisting removal", err)
	}
	e.metrics.DeploymentsRemoved.Inc()
	e.statusCache.Delete(id)
	return nil
}

// Logs tails backend logs for a Deployment.
func (e *Engine) Logs(ctx context.Context, id string, tail int) (string, error) {
	d, err := e.repo.Get(ctx, id)
	if err != nil {
		return "", apierr.Wrap(apierr.Validation, "deployment not found", err)
	}
	backend, ok := e.backends[d.Target.Kind]
	if !ok {
		return "", apierr.New(apierr.Unconfigured, fmt.Sprintf("no backend configured for target kind %s", d.Target.Kind))
	}
	containerName := containerNameFor(d.ServiceID, d.ID)
	logs, err := backend.Logs(ctx, containerName, d.Target, tail)
	if err != nil {
		return "", apierr.Wrap(apierr.BackendUnavailable, "fetching logs failed", err)
	}
	return logs, nil
}

// materializeEnv implements spec §4.4 step 3: for every declared
// variable, pick the highest-priority source — consumer-chosen
// provider EnvMap > Configuration Store explicit mapping > literal in
// definition > default.
func (e *Engine) materializeEnv(def registry.ServiceDefinition, resolution capability.Resolution) map[string]string {
	providerValues := map[string]string{}
	for _, cap := range def.Requires {
		for _, env := range e.registry.EnvMappingsFor(cap) {
			if v, ok := e.store.Get(env.SettingsPath, "").(string); ok && v != "" {
				providerValues[env.EnvVar] = v
			} else if env.Default != "" {
				providerValues[env.EnvVar] = env.Default
			}
		}
	}

	resolved := make(map[string]string, len(def.Env))
	for _, decl := range def.Env {
		if v, ok := providerValues[decl.Key]; ok && v != "" {
			resolved[decl.Key] = v
			continue
		}
		if v, ok := e.store.Get("service_env."+def.ID+"."+decl.Key, "").(string); ok && v != "" {
			resolved[decl.Key] = v
			continue
		}
		if decl.Value != "" {
			resolved[decl.Key] = decl.Value
			continue
		}
		resolved[decl.Key] = decl.Default
	}
	return resolved
}

func containerNameFor(serviceID, deploymentID string) string {
	suffix := deploymentID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	name := "ushadow-" + sanitizeName(serviceID) + "-" + suffix
	return name
}

func sanitizeName(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+32)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

func (e *ErrUnconfigured) wrap() *apierr.Error {
	return apierr.New(apierr.Unconfigured, "service capabilities are not fully configured").WithExtra(e.Resolution)
}
