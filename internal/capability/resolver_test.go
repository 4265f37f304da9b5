package capability

import (
	"testing"

	"github.com/ushadow-io/ushadow/internal/registry"
)

type fakeConfig struct {
	values map[string]any
}

func (f fakeConfig) Get(path string, def any) any {
	if v, ok := f.values[path]; ok {
		return v
	}
	return def
}

type fakeRegistry struct {
	services  map[string]registry.ServiceDefinition
	providers map[string][]registry.Provider
}

func (f fakeRegistry) Get(id string) (registry.ServiceDefinition, bool) {
	s, ok := f.services[id]
	return s, ok
}

func (f fakeRegistry) DefaultProvidersFor(cap string, isConfigured func(string) bool) []registry.Provider {
	return f.providers[cap]
}

func TestResolve_ConfiguredProviderHasNoMissingKeys(t *testing.T) {
	reg := fakeRegistry{
		services: map[string]registry.ServiceDefinition{
			"app:web": {ID: "app:web", Requires: []string{"llm"}},
		},
		providers: map[string][]registry.Provider{
			"llm": {
				{ID: "openai", Capability: "llm", Mode: registry.ProviderCloud, IsDefault: true, EnvMaps: []registry.EnvMap{
					{EnvVar: "OPENAI_API_KEY", SettingsPath: "llm.openai.api_key", Secret: true, Label: "OpenAI API key"},
				}},
			},
		},
	}
	store := fakeConfig{values: map[string]any{
		"llm.openai.api_key": "sk-configured",
	}}

	r := New(reg, store, nil)
	resolution, err := r.Resolve([]string{"app:web"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !resolution.AllConfigured {
		t.Fatalf("expected AllConfigured, got %+v", resolution)
	}
	if len(resolution.RequiredCapabilities) != 1 || resolution.RequiredCapabilities[0].ProviderID != "openai" {
		t.Fatalf("unexpected required capabilities: %+v", resolution.RequiredCapabilities)
	}
}

func TestResolve_MissingKeyBlocksAllConfigured(t *testing.T) {
	reg := fakeRegistry{
		services: map[string]registry.ServiceDefinition{
			"app:web": {ID: "app:web", Requires: []string{"llm"}},
		},
		providers: map[string][]registry.Provider{
			"llm": {
				{ID: "openai", Capability: "llm", Mode: registry.ProviderCloud, IsDefault: true, EnvMaps: []registry.EnvMap{
					{EnvVar: "OPENAI_API_KEY", SettingsPath: "llm.openai.api_key", Secret: true},
				}},
			},
		},
	}
	store := fakeConfig{values: map[string]any{}}

	r := New(reg, store, nil)
	resolution, err := r.Resolve([]string{"app:web"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolution.AllConfigured {
		t.Fatal("expected AllConfigured == false when a key is missing")
	}
	if len(resolution.RequiredCapabilities[0].MissingKeys) != 1 {
		t.Fatalf("expected 1 missing key, got %+v", resolution.RequiredCapabilities[0].MissingKeys)
	}
}

func TestResolve_SelectedProviderInfersInfrastructure(t *testing.T) {
	reg := fakeRegistry{
		services: map[string]registry.ServiceDefinition{
			"app:web": {ID: "app:web", Requires: []string{"llm"}},
		},
		providers: map[string][]registry.Provider{
			"llm": {
				{ID: "ollama", Capability: "llm", Mode: registry.ProviderLocal, IsDefault: true, Image: "ollama/ollama"},
			},
		},
	}
	store := fakeConfig{values: map[string]any{}}
	infra := map[string]string{"ollama/ollama": "infra:ollama"}

	r := New(reg, store, infra)
	resolution, err := r.Resolve([]string{"app:web"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolution.ImpliedInfrastructure) != 1 || resolution.ImpliedInfrastructure[0] != "infra:ollama" {
		t.Fatalf("expected implied infrastructure [infra:ollama], got %v", resolution.ImpliedInfrastructure)
	}
}

func TestResolve_UnknownServiceIsAnError(t *testing.T) {
	reg := fakeRegistry{services: map[string]registry.ServiceDefinition{}}
	store := fakeConfig{values: map[string]any{}}
	r := New(reg, store, nil)
	if _, err := r.Resolve([]string{"nope:nope"}); err == nil {
		t.Fatal("expected error for unknown service id")
	}
}
