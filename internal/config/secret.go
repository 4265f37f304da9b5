package config

import "strings"

// secretSubstrings classifies a key as secret-bearing if any of these
// appears in it, case-insensitively — the classifier used to route
// Update() writes to the secrets layer automatically rather than
// trusting callers to say so.
var secretSubstrings = []string{
	"key", "secret", "password", "token", "credential", "auth", "pass",
}

// isSecretKey reports whether any segment of path's full dotted path
// looks like it holds sensitive material. Checking the whole path
// (not just the leaf) is what routes a key like "api_keys.openai" to
// the secrets layer: its leaf "openai" matches nothing, but "api_keys"
// does.
func isSecretKey(path string) bool {
	lower := strings.ToLower(path)
	for _, sub := range secretSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

const maskedPrefix = "****"

// MaskSecrets returns a deep copy of m with every secret-classified
// leaf masked to "****" plus its last 4 characters, for safe inclusion
// in API responses and logs.
func MaskSecrets(m map[string]any) map[string]any {
	return maskMap(m, "")
}

func maskMap(m map[string]any, prefix string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			out[k] = maskMap(val, path)
		default:
			if isSecretKey(path) {
				out[k] = maskValue(v)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

// maskValue masks s to "****" plus its last 4 characters (e.g.
// "sk-SECRET" -> "****CRET"). An empty in-memory value is left
// unmasked since there is nothing to redact, and a non-string value
// can't be masked at all.
func maskValue(v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return v
	}
	if len(s) < 4 {
		return maskedPrefix + s
	}
	return maskedPrefix + s[len(s)-4:]
}
