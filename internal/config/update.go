package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Update applies patch (a dotted-path -> value map) to the store,
// routing each key to the secrets layer or the overrides layer per
// isSecretKey, persisting both layers atomically, and invalidating the
// merge cache. Either write fully succeeds or the store is left with
// its previous on-disk state — spec §4.1 requires no partial writes.
func (s *Store) Update(patch map[string]any) error {
	s.mu.Lock()
	secretsCopy := cloneMap(s.secrets)
	overridesCopy := cloneMap(s.overrides)
	for path, value := range patch {
		if isSecretKey(path) {
			setDotted(secretsCopy, path, value)
		} else {
			setDotted(overridesCopy, path, value)
		}
	}
	s.mu.Unlock()

	if err := writeLayerFile(filepath.Join(s.dir, "secrets.yaml"), secretsCopy); err != nil {
		return fmt.Errorf("persisting secrets layer: %w", err)
	}
	if err := writeLayerFile(filepath.Join(s.dir, "config.overrides.yaml"), overridesCopy); err != nil {
		s.mu.Lock()
		previousSecrets := cloneMap(s.secrets)
		s.mu.Unlock()
		_ = writeLayerFile(filepath.Join(s.dir, "secrets.yaml"), previousSecrets)
		return fmt.Errorf("persisting overrides layer: %w", err)
	}

	s.mu.Lock()
	s.secrets = secretsCopy
	s.overrides = overridesCopy
	s.merged = nil
	s.mu.Unlock()

	s.logger.Info("applied configuration update (%d keys)", len(patch))
	return nil
}

// migrateSecretFromEnv is the secrets layer's write-once migration
// from the environment: if envKey is set on first boot and
// settingsPath has no value in the secrets layer yet, the value is
// written into secrets.yaml once so every later boot reads it from
// disk even if the environment variable is subsequently removed.
// Called only from Open, before any concurrent access is possible.
func (s *Store) migrateSecretFromEnv(envKey, settingsPath string) error {
	value := os.Getenv(envKey)
	if value == "" {
		return nil
	}
	if _, ok := lookupDotted(s.secrets, settingsPath); ok {
		return nil
	}

	secretsCopy := cloneMap(s.secrets)
	setDotted(secretsCopy, settingsPath, value)
	if err := writeLayerFile(filepath.Join(s.dir, "secrets.yaml"), secretsCopy); err != nil {
		return err
	}
	s.secrets = secretsCopy
	s.logger.Info("migrated %s from the environment into the secrets layer", envKey)
	return nil
}

// Reset clears the overrides layer, and the secrets layer too when
// includeSecrets is true, restoring pure-defaults behavior for the
// affected keys.
func (s *Store) Reset(includeSecrets bool) error {
	if err := writeLayerFile(filepath.Join(s.dir, "config.overrides.yaml"), map[string]any{}); err != nil {
		return fmt.Errorf("resetting overrides layer: %w", err)
	}
	if includeSecrets {
		if err := writeLayerFile(filepath.Join(s.dir, "secrets.yaml"), map[string]any{}); err != nil {
			return fmt.Errorf("resetting secrets layer: %w", err)
		}
	}

	s.mu.Lock()
	s.overrides = map[string]any{}
	if includeSecrets {
		s.secrets = map[string]any{}
	}
	s.merged = nil
	s.mu.Unlock()

	s.logger.Warn("configuration reset (secrets included: %v)", includeSecrets)
	return nil
}

// Effective returns the fully merged, interpolated configuration with
// every secret-classified leaf masked — the shape returned by the
// settings-inspection HTTP endpoint.
func (s *Store) Effective() map[string]any {
	s.mu.Lock()
	if s.merged == nil {
		s.rebuildLocked()
	}
	merged := s.merged
	s.mu.Unlock()
	return MaskSecrets(merged)
}

// writeLayerFile persists m as YAML using a write-temp-then-rename
// sequence so a crash mid-write never leaves a truncated layer file on
// disk.
func writeLayerFile(path string, m map[string]any) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if child, ok := v.(map[string]any); ok {
			out[k] = cloneMap(child)
		} else {
			out[k] = v
		}
	}
	return out
}
