package capability

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// InfrastructureEntry binds one well-known container image to the
// service id that provides it, so a selected local provider can be
// mapped back onto a concrete deployable ServiceDefinition during
// implicit infrastructure expansion (spec §4.3 step 4).
//
// This manifest is a supplemented feature: the original system
// (original_source/ushadow/backend/src/services/infrastructure_registry.py)
// hardcoded this mapping in Python; here it is an explicit YAML file
// so operators can extend it without a rebuild.
type InfrastructureEntry struct {
	Image     string `yaml:"image"`
	ServiceID string `yaml:"service_id"`
}

// InfrastructureMap loads config/infrastructure.yaml; a missing file
// resolves to an empty map rather than an error, since implicit
// infrastructure expansion is optional functionality layered on top
// of the core algorithm.
func LoadInfrastructureMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading infrastructure manifest %s: %w", path, err)
	}
	var entries []InfrastructureEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing infrastructure manifest %s: %w", path, err)
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Image] = e.ServiceID
	}
	return out, nil
}
