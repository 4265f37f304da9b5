package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestOpen_MergesLayersInPrecedenceOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.defaults.yaml", "keycloak:\n  realm: default-realm\n  port: 8080\n")
	writeFile(t, dir, "config.overrides.yaml", "keycloak:\n  realm: override-realm\n")

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got := s.GetString("keycloak.realm", ""); got != "override-realm" {
		t.Errorf("keycloak.realm = %q, want override-realm", got)
	}
	if got := s.Get("keycloak.port", 0); got != 8080 {
		t.Errorf("keycloak.port = %v, want 8080", got)
	}
}

func TestOpen_MissingLayerFilesAreNotAnError(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open on empty dir: %v", err)
	}
	if got := s.GetString("anything.missing", "fallback"); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}
}

func TestUpdate_RoutesSecretKeysToSecretsLayer(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Update(map[string]any{
		"keycloak.client_secret": "hunter2",
		"proxy.port":             "9090",
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	s.mu.RLock()
	_, inSecrets := lookupDotted(s.secrets, "keycloak.client_secret")
	_, inOverrides := lookupDotted(s.overrides, "proxy.port")
	s.mu.RUnlock()

	if !inSecrets {
		t.Error("keycloak.client_secret should have been routed to the secrets layer")
	}
	if !inOverrides {
		t.Error("proxy.port should have been routed to the overrides layer")
	}

	if got := s.GetString("keycloak.client_secret", ""); got != "hunter2" {
		t.Errorf("Get after Update = %q, want hunter2", got)
	}
}

func TestEffective_MasksSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "secrets.yaml", "keycloak:\n  client_secret: hunter2\n")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	eff := s.Effective()
	keycloak, ok := eff["keycloak"].(map[string]any)
	if !ok {
		t.Fatalf("expected keycloak section in effective config, got %#v", eff)
	}
	if keycloak["client_secret"] != "****ter2" {
		t.Errorf("client_secret = %v, want ****ter2", keycloak["client_secret"])
	}
}

func TestEffective_EmptySecretLeftUnmasked(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "secrets.yaml", "keycloak:\n  client_secret: \"\"\n")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	eff := s.Effective()
	keycloak := eff["keycloak"].(map[string]any)
	if keycloak["client_secret"] != "" {
		t.Errorf("client_secret = %v, want empty string left unmasked", keycloak["client_secret"])
	}
}

func TestIsSecretKey_MatchesFullDottedPathNotJustLeaf(t *testing.T) {
	if !isSecretKey("api_keys.openai") {
		t.Error("api_keys.openai should be classified as secret via the api_keys segment")
	}
	if isSecretKey("proxy.port") {
		t.Error("proxy.port should not be classified as secret")
	}
}

func TestReset_ClearsOverridesButKeepsSecretsByDefault(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Update(map[string]any{
		"proxy.port":             "9090",
		"keycloak.client_secret": "hunter2",
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Reset(false); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if got := s.Get("proxy.port", "unset"); got != "unset" {
		t.Errorf("proxy.port after reset = %v, want unset", got)
	}
	if got := s.GetString("keycloak.client_secret", ""); got != "hunter2" {
		t.Errorf("keycloak.client_secret after partial reset = %q, want hunter2", got)
	}
}

func TestInterpolation_ResolvesReferenceWithDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.defaults.yaml",
		"base_url: http://localhost:8080\ncallback_url: \"${base_url}/callback\"\nmissing_with_default: \"${nope.nope:-fallback-value}\"\n")

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.GetString("callback_url", ""); got != "http://localhost:8080/callback" {
		t.Errorf("callback_url = %q", got)
	}
	if got := s.GetString("missing_with_default", ""); got != "fallback-value" {
		t.Errorf("missing_with_default = %q", got)
	}
}

func TestOpen_MigratesAuthSecretKeyFromEnvOnce(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AUTH_SECRET_KEY", "from-the-environment")

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.GetString("security.auth_secret_key", ""); got != "from-the-environment" {
		t.Errorf("security.auth_secret_key = %q, want from-the-environment", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, "secrets.yaml"))
	if err != nil {
		t.Fatalf("reading secrets.yaml: %v", err)
	}
	if !strings.Contains(string(data), "from-the-environment") {
		t.Errorf("secrets.yaml = %q, want it to contain the migrated value", data)
	}

	t.Setenv("AUTH_SECRET_KEY", "a-different-value")
	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	if got := s2.GetString("security.auth_secret_key", ""); got != "from-the-environment" {
		t.Errorf("security.auth_secret_key after re-open = %q, want the original migrated value kept (write-once)", got)
	}
}

func TestEnvMapping_PathForAndEnvNameForRoundTrip(t *testing.T) {
	m := DefaultEnvMapping()
	path, ok := m.PathFor("KC_REALM")
	if !ok || path != "keycloak.realm" {
		t.Fatalf("PathFor(KC_REALM) = %q, %v", path, ok)
	}
	if got := m.EnvNameFor("keycloak.realm"); got != "KC_REALM" {
		t.Errorf("EnvNameFor(keycloak.realm) = %q, want KC_REALM", got)
	}
}
