package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// providerFile is the on-disk shape of one provider definition, one
// YAML document per file under the providers directory.
type providerFile struct {
	ID         string   `yaml:"id"`
	Capability string   `yaml:"capability"`
	Mode       string   `yaml:"mode"`
	Name       string   `yaml:"name"`
	IsDefault  bool     `yaml:"is_default"`
	Image      string   `yaml:"image"`
	EnvMap     []EnvMap `yaml:"env_map"`
}

func loadProviderFile(path string) (Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Provider{}, err
	}
	var pf providerFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return Provider{}, fmt.Errorf("parsing provider file %s: %w", path, err)
	}
	if pf.ID == "" || pf.Capability == "" {
		return Provider{}, fmt.Errorf("provider file %s missing id or capability", path)
	}
	mode := ProviderMode(pf.Mode)
	if mode != ProviderCloud && mode != ProviderLocal {
		return Provider{}, fmt.Errorf("provider file %s has invalid mode %q", path, pf.Mode)
	}
	return Provider{
		ID:         pf.ID,
		Capability: pf.Capability,
		Mode:       mode,
		Name:       pf.Name,
		IsDefault:  pf.IsDefault,
		Image:      pf.Image,
		EnvMaps:    pf.EnvMap,
	}, nil
}
