package config

import (
	"os"
	"strconv"
	"strings"
)

// GetEnv returns the process environment variable key, or def if unset
// or empty.
// Carried over from the teacher's core/config/env.go helpers, used
// throughout the codebase for the handful of settings that are read
// directly rather than through a Store (e.g. bind addresses, log
// level, data directories at startup before a Store exists).
func GetEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// GetEnvInt is GetEnv with integer parsing; a malformed value falls
// back to def rather than failing startup.
func GetEnvInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetEnvBool is GetEnv with boolean parsing ("1", "true", "yes", "on"
// are true and "0", "false", "no", "off" are false, case-insensitively;
// anything else falls back to def).
func GetEnvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// PrefixAlias maps a legacy environment-variable prefix (e.g. "KC_")
// onto a configuration path prefix (e.g. "keycloak"), so KC_REALM
// resolves to keycloak.realm without every component needing to know
// both forms exist.
type PrefixAlias struct {
	EnvPrefix  string
	PathPrefix string
}

// EnvMapping is the bidirectional translation between process
// environment variable names and dotted configuration paths.
type EnvMapping struct {
	aliases []PrefixAlias
}

// DefaultEnvMapping returns the mapping used when no explicit override
// is supplied to Open. Env vars of the form USHADOW_A_B map to a.b;
// additionally a handful of well-known prefixes alias onto the
// configuration tree used by externally-branded subsystems.
func DefaultEnvMapping() EnvMapping {
	return EnvMapping{
		aliases: []PrefixAlias{
			{EnvPrefix: "KC_", PathPrefix: "keycloak"},
			{EnvPrefix: "MONGO_", PathPrefix: "mongo"},
			{EnvPrefix: "DO_", PathPrefix: "cloud.digitalocean"},
			{EnvPrefix: "HETZNER_", PathPrefix: "cloud.hetzner"},
		},
	}
}

// PathFor translates an environment variable name to the dotted
// configuration path it shadows, e.g. "KC_REALM" -> "keycloak.realm",
// "USHADOW_PROXY_PORT" -> "proxy.port". Returns ok=false for variables
// this mapping doesn't recognize at all.
func (m EnvMapping) PathFor(envName string) (string, bool) {
	for _, a := range m.aliases {
		if strings.HasPrefix(envName, a.EnvPrefix) {
			rest := strings.ToLower(strings.TrimPrefix(envName, a.EnvPrefix))
			rest = strings.ReplaceAll(rest, "_", ".")
			return a.PathPrefix + "." + rest, true
		}
	}
	const globalPrefix = "USHADOW_"
	if strings.HasPrefix(envName, globalPrefix) {
		rest := strings.ToLower(strings.TrimPrefix(envName, globalPrefix))
		rest = strings.ReplaceAll(rest, "_", ".")
		return rest, true
	}
	return "", false
}

// EnvNameFor is the inverse of PathFor: it renders the canonical
// environment variable name a dotted path would be overridden by, used
// when documenting effective configuration to an operator.
func (m EnvMapping) EnvNameFor(path string) string {
	for _, a := range m.aliases {
		prefix := a.PathPrefix + "."
		if strings.HasPrefix(path, prefix) {
			rest := strings.ToUpper(strings.TrimPrefix(path, prefix))
			rest = strings.ReplaceAll(rest, ".", "_")
			return a.EnvPrefix + rest
		}
	}
	rest := strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
	return "USHADOW_" + rest
}

// Snapshot reads every process environment variable that maps onto a
// known configuration path, layered on top of known so unrelated
// process env vars (PATH, HOME, ...) never leak into the merged view.
func (m EnvMapping) Snapshot(known map[string]any) map[string]any {
	out := map[string]any{}
	for _, kv := range os.Environ() {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		name, value := kv[:eq], kv[eq+1:]
		path, ok := m.PathFor(name)
		if !ok {
			continue
		}
		if _, known := known[path]; !known && !m.hasAliasPrefix(name) {
			continue
		}
		setDotted(out, path, value)
	}
	return out
}

func (m EnvMapping) hasAliasPrefix(envName string) bool {
	for _, a := range m.aliases {
		if strings.HasPrefix(envName, a.EnvPrefix) {
			return true
		}
	}
	return false
}
