package capability

import (
	"fmt"
	"sort"

	"github.com/ushadow-io/ushadow/internal/registry"
)

// ConfigGetter is the slice of the Configuration Store the resolver
// needs: resolving a dotted settings path to its current value. A
// narrow interface keeps this package testable without constructing a
// full on-disk config.Store.
type ConfigGetter interface {
	Get(path string, def any) any
}

// ServiceLookup is the slice of the Registry the resolver needs.
type ServiceLookup interface {
	Get(id string) (registry.ServiceDefinition, bool)
	DefaultProvidersFor(capability string, isConfigured func(providerID string) bool) []registry.Provider
}

// Resolver is the Capability Resolver.
type Resolver struct {
	reg             ServiceLookup
	store           ConfigGetter
	infrastructure  map[string]string // image -> service id
}

// New builds a Resolver. infrastructure maps well-known local-provider
// images to the ServiceDefinition id that should be implicitly pulled
// in when that provider is selected (see LoadInfrastructureMap); pass
// nil when no infrastructure manifest is configured.
func New(reg ServiceLookup, store ConfigGetter, infrastructure map[string]string) *Resolver {
	if infrastructure == nil {
		infrastructure = map[string]string{}
	}
	return &Resolver{reg: reg, store: store, infrastructure: infrastructure}
}

// Resolve implements the algorithm in spec §4.3 for the given set of
// user-enabled service ids.
func (r *Resolver) Resolve(enabledServiceIDs []string) (Resolution, error) {
	services := make([]registry.ServiceDefinition, 0, len(enabledServiceIDs))
	requiredCaps := map[string]bool{}
	for _, id := range enabledServiceIDs {
		def, ok := r.reg.Get(id)
		if !ok {
			return Resolution{}, fmt.Errorf("service not found: %s", id)
		}
		services = append(services, def)
		for _, cap := range def.Requires {
			requiredCaps[cap] = true
		}
	}

	capIDs := make([]string, 0, len(requiredCaps))
	for cap := range requiredCaps {
		capIDs = append(capIDs, cap)
	}
	sort.Strings(capIDs)

	allConfigured := true
	infraSet := map[string]bool{}
	result := make([]RequiredCapability, 0, len(capIDs))

	for _, cap := range capIDs {
		provider, err := r.selectProvider(cap)
		if err != nil {
			return Resolution{}, err
		}
		missing := r.missingKeys(provider)
		configured := len(missing) == 0
		if !configured {
			allConfigured = false
		}
		result = append(result, RequiredCapability{
			ID:           cap,
			ProviderID:   provider.ID,
			ProviderMode: provider.Mode,
			Configured:   configured,
			MissingKeys:  missing,
		})

		if provider.Mode == registry.ProviderLocal && provider.Image != "" {
			if svcID, ok := r.infrastructure[provider.Image]; ok {
				infraSet[svcID] = true
			}
		}
	}

	for _, svc := range services {
		for _, dep := range svc.DependsOn.Required {
			infraSet[dep] = true
		}
		for _, dep := range svc.DependsOn.Optional {
			if r.optionalDependencyTriggered(svc.ID, dep) {
				infraSet[dep] = true
			}
		}
	}

	infra := make([]string, 0, len(infraSet))
	for id := range infraSet {
		infra = append(infra, id)
	}
	sort.Strings(infra)

	serviceIDs := make([]string, 0, len(services))
	for _, s := range services {
		serviceIDs = append(serviceIDs, s.ID)
	}
	sort.Strings(serviceIDs)

	return Resolution{
		RequiredCapabilities:  result,
		Services:              serviceIDs,
		AllConfigured:         allConfigured,
		ImpliedInfrastructure: infra,
	}, nil
}

// selectProvider implements step 2: a user-chosen provider from the
// Configuration Store wins; otherwise the first provider flagged
// is_default, else the first provider at all (DefaultProvidersFor
// already orders candidates this way).
func (r *Resolver) selectProvider(cap string) (registry.Provider, error) {
	chosenID, _ := r.store.Get(fmt.Sprintf("service_preferences.%s.provider", cap), "").(string)
	providers := r.reg.DefaultProvidersFor(cap, func(providerID string) bool {
		return len(r.missingKeysForID(cap, providerID)) == 0
	})
	if len(providers) == 0 {
		return registry.Provider{}, fmt.Errorf("no provider registered for capability %s", cap)
	}
	if chosenID != "" {
		for _, p := range providers {
			if p.ID == chosenID {
				return p, nil
			}
		}
	}
	return providers[0], nil
}

func (r *Resolver) missingKeysForID(cap, providerID string) []MissingKey {
	for _, p := range r.reg.DefaultProvidersFor(cap, nil) {
		if p.ID == providerID {
			return r.missingKeys(p)
		}
	}
	return nil
}

// missingKeys implements step 3: a key is configured iff its
// settings_path resolves to a non-empty value or the provider declares
// a non-empty default for it. EnvMap carries no optional flag, so a
// key with neither a value nor a default is always reported missing.
func (r *Resolver) missingKeys(provider registry.Provider) []MissingKey {
	var missing []MissingKey
	for _, env := range provider.EnvMaps {
		value := r.store.Get(env.SettingsPath, nil)
		configured := false
		switch v := value.(type) {
		case nil:
			configured = false
		case string:
			configured = v != ""
		default:
			configured = true
		}
		if !configured && env.Default != "" {
			configured = true
		}
		if configured {
			continue
		}
		missing = append(missing, MissingKey{
			Key:   env.EnvVar,
			Label: env.Label,
			Path:  env.SettingsPath,
			Type:  keyType(env),
			Link:  env.Link,
		})
	}
	return missing
}

func keyType(env registry.EnvMap) string {
	if env.Secret {
		return "secret"
	}
	return "string"
}

// optionalDependencyTriggered decides whether an optional
// depends_on entry is pulled in, per spec §4.3's "optional
// dependencies are added only when their triggering option is set".
// The triggering option is the boolean configuration flag
// features.<serviceID>.<dependency>.enabled; this convention is not
// spelled out further by the distilled spec, so it is recorded as a
// resolved Open Question in the design ledger.
func (r *Resolver) optionalDependencyTriggered(serviceID, dependency string) bool {
	path := fmt.Sprintf("features.%s.%s.enabled", serviceID, dependency)
	v := r.store.Get(path, false)
	enabled, _ := v.(bool)
	return enabled
}
