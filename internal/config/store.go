// Package config implements the Configuration Store (spec §4.1): a
// merged, interpolated view over four layers — defaults, secrets,
// overrides, and the process environment — with typed getters, atomic
// updates, and automatic secret routing.
//
// Modeled on the teacher's core/config package: the same env-var
// helpers (GetEnv/GetEnvInt/GetEnvBool) and the same "load once,
// validate, cache" shape, generalized from a single Kubernetes Secret
// read to a four-layer on-disk merge with a writer lock instead of an
// informer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ushadow-io/ushadow/core/utils"
	"gopkg.in/yaml.v3"
)

// Layer identifies which of the four configuration sources a key's
// value came from or should be written to.
type Layer string

const (
	LayerDefaults Layer = "defaults"
	LayerSecrets  Layer = "secrets"
	LayerOverrides Layer = "overrides"
	LayerProcessEnv Layer = "process-environment"
)

// precedence lists layers from lowest to highest priority; Get walks
// it in reverse (process-environment wins, then overrides, then
// secrets, then defaults), matching spec §4.1.
var precedence = []Layer{LayerDefaults, LayerSecrets, LayerOverrides, LayerProcessEnv}

// Store is the Configuration Store. One Store is constructed at
// startup and shared by every component that reads configuration;
// there is no package-level singleton.
type Store struct {
	mu sync.RWMutex

	dir string

	defaults  map[string]any
	secrets   map[string]any
	overrides map[string]any

	// merged is the post-interpolation cache; nil means "needs rebuild".
	merged map[string]any

	envMapping EnvMapping
	logger     *utils.Logger
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithEnvMapping overrides the default bidirectional env-name mapping.
func WithEnvMapping(m EnvMapping) Option {
	return func(s *Store) { s.envMapping = m }
}

// Open loads (or initializes) the three on-disk layers under dir and
// returns a ready-to-use Store. A malformed layer file is a hard
// error at open time, per spec §4.1's startup failure semantics.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:        dir,
		envMapping: DefaultEnvMapping(),
		logger:     utils.NewLogger("config-store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.defaults, err = loadLayerFile(filepath.Join(dir, "config.defaults.yaml")); err != nil {
		return nil, fmt.Errorf("loading defaults layer: %w", err)
	}
	if s.secrets, err = loadLayerFile(filepath.Join(dir, "secrets.yaml")); err != nil {
		return nil, fmt.Errorf("loading secrets layer: %w", err)
	}
	if s.overrides, err = loadLayerFile(filepath.Join(dir, "config.overrides.yaml")); err != nil {
		return nil, fmt.Errorf("loading overrides layer: %w", err)
	}

	if err := s.migrateSecretFromEnv("AUTH_SECRET_KEY", "security.auth_secret_key"); err != nil {
		return nil, fmt.Errorf("migrating AUTH_SECRET_KEY: %w", err)
	}

	s.logger.Info("configuration store opened at %s (%d default keys)", dir, len(flatten(s.defaults)))
	return s, nil
}

// loadLayerFile reads a YAML layer file, returning an empty map when
// the file is absent (a fresh install has no overrides/secrets yet).
func loadLayerFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// Get resolves path across layers (process-environment > overrides >
// secrets > defaults), applies ${a.b:-default} interpolation, and
// falls back to def when nothing resolves.
func (s *Store) Get(path string, def any) any {
	s.mu.Lock()
	if s.merged == nil {
		s.rebuildLocked()
	}
	merged := s.merged
	s.mu.Unlock()

	if v, ok := lookupDotted(merged, path); ok {
		return v
	}
	return def
}

// GetString is Get with a string default and string coercion.
func (s *Store) GetString(path, def string) string {
	v := s.Get(path, def)
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", v)
}

// rebuildLocked recomputes the merged+interpolated view. Callers must
// hold s.mu for writing.
func (s *Store) rebuildLocked() {
	merged := map[string]any{}
	for _, layer := range precedence {
		var src map[string]any
		switch layer {
		case LayerDefaults:
			src = s.defaults
		case LayerSecrets:
			src = s.secrets
		case LayerOverrides:
			src = s.overrides
		case LayerProcessEnv:
			src = s.envMapping.Snapshot(flatten(mergeAll(s.defaults, s.secrets, s.overrides)))
		}
		deepMerge(merged, src)
	}
	interpolateAll(merged)
	s.merged = merged
}

// invalidate drops the merge cache; the next Get rebuilds it. Called
// after every write and by Refresh.
func (s *Store) invalidate() {
	s.mu.Lock()
	s.merged = nil
	s.mu.Unlock()
}

// Refresh forces the merge cache to be rebuilt on next access, for
// parity with the Registry's explicit reload-on-demand model — the
// Configuration Store never polls the filesystem either.
func (s *Store) Refresh() {
	s.invalidate()
}

func mergeAll(layers ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, l := range layers {
		deepMerge(out, l)
	}
	return out
}
