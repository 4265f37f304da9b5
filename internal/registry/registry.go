package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ushadow-io/ushadow/core/utils"
)

// Registry is the Service & Provider Registry. One Registry is built
// per control-plane process and reloaded on demand — it never polls
// the filesystem, matching the teacher's load-once-then-invalidate
// Configuration Store idiom.
type Registry struct {
	mu sync.RWMutex

	servicesDir  string
	providersDir string
	logger       *utils.Logger

	services        map[string]ServiceDefinition
	providersByCap  map[string][]Provider
}

// New builds an empty Registry rooted at servicesDir/providersDir and
// performs the initial Reload. A malformed file anywhere under either
// tree is a hard error, matching the Configuration Store's
// load-fails-loud behavior at startup.
func New(servicesDir, providersDir string) (*Registry, error) {
	r := &Registry{
		servicesDir:  servicesDir,
		providersDir: providersDir,
		logger:       utils.NewLogger("registry"),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebuilds both indexes from scratch. Per the cache invariant
// in spec §4.2, no stale partial state is ever exposed: the new maps
// are only swapped in once both directory trees have been fully
// parsed without error.
func (r *Registry) Reload() error {
	services, err := loadServicesTree(r.servicesDir)
	if err != nil {
		return fmt.Errorf("loading services tree: %w", err)
	}
	providersByCap, err := loadProvidersTree(r.providersDir)
	if err != nil {
		return fmt.Errorf("loading providers tree: %w", err)
	}

	r.mu.Lock()
	r.services = services
	r.providersByCap = providersByCap
	r.mu.Unlock()

	r.logger.Info("reload complete: %d services, %d capabilities", len(services), len(providersByCap))
	return nil
}

func loadServicesTree(dir string) (map[string]ServiceDefinition, error) {
	services := map[string]ServiceDefinition{}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return services, nil
	}
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isComposeFile(path) {
			return nil
		}
		defs, err := loadComposeFile(path)
		if err != nil {
			return err
		}
		for _, d := range defs {
			services[d.ID] = d
		}
		return nil
	})
	return services, err
}

func isComposeFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

func loadProvidersTree(dir string) (map[string][]Provider, error) {
	byCap := map[string][]Provider{}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return byCap, nil
	}
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isComposeFile(path) {
			return nil
		}
		p, err := loadProviderFile(path)
		if err != nil {
			return err
		}
		byCap[p.Capability] = append(byCap[p.Capability], p)
		return nil
	})
	return byCap, err
}

// AllServices returns every known ServiceDefinition.
func (r *Registry) AllServices() []ServiceDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceDefinition, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get looks up one ServiceDefinition by id.
func (r *Registry) Get(id string) (ServiceDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[id]
	return s, ok
}

// ProvidersFor returns every Provider declared for capability, in no
// particular order; callers wanting preference order use
// DefaultProvidersFor.
func (r *Registry) ProvidersFor(capability string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providersByCap[capability]))
	copy(out, r.providersByCap[capability])
	return out
}

// DefaultProvidersFor returns capability's providers ordered by
// preference: providers flagged is_default sort first; ties are then
// broken by (configured-first, cloud-first, name), per spec §4.2.
// isConfigured lets the Capability Resolver (the only caller that
// knows about the Configuration Store) supply configured-ness without
// the Registry importing config itself.
func (r *Registry) DefaultProvidersFor(capability string, isConfigured func(providerID string) bool) []Provider {
	providers := r.ProvidersFor(capability)
	if isConfigured == nil {
		isConfigured = func(string) bool { return false }
	}
	sort.SliceStable(providers, func(i, j int) bool {
		a, b := providers[i], providers[j]
		if a.IsDefault != b.IsDefault {
			return a.IsDefault
		}
		ac, bc := isConfigured(a.ID), isConfigured(b.ID)
		if ac != bc {
			return ac
		}
		aCloud, bCloud := a.Mode == ProviderCloud, b.Mode == ProviderCloud
		if aCloud != bCloud {
			return aCloud
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return providers
}

// EnvMappingsFor flattens every EnvMap entry across every provider
// registered for capability.
func (r *Registry) EnvMappingsFor(capability string) []EnvMap {
	providers := r.ProvidersFor(capability)
	var out []EnvMap
	for _, p := range providers {
		out = append(out, p.EnvMaps...)
	}
	return out
}

// Capabilities returns every capability name with at least one
// registered provider.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providersByCap))
	for cap := range r.providersByCap {
		out = append(out, cap)
	}
	sort.Strings(out)
	return out
}
