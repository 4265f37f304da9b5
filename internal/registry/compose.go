package registry

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// composeFile is the subset of Compose schema the registry cares
// about; unknown keys are ignored rather than rejected, since the
// registry is a consumer, not a validator, of the Compose format.
type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image       string              `yaml:"image"`
	Command     any                 `yaml:"command"`
	Environment any                 `yaml:"environment"`
	Ports       []string            `yaml:"ports"`
	Volumes     []string            `yaml:"volumes"`
	DependsOn   any                 `yaml:"depends_on"`
	HealthCheck *composeHealthCheck `yaml:"healthcheck"`
	Restart     string              `yaml:"restart"`
	XUshadow    map[string]any      `yaml:"x-ushadow"`
}

type composeHealthCheck struct {
	Test     any    `yaml:"test"`
	Interval string `yaml:"interval"`
	Timeout  string `yaml:"timeout"`
	Retries  int    `yaml:"retries"`
}

// loadComposeFile parses one Compose-style YAML file into its
// ServiceDefinitions, keyed per spec §4.2's
// "<basename without -compose>:<service>" rule.
func loadComposeFile(path string) ([]ServiceDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var overrideEnv map[string]string
	envSidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".env"
	if envData, err := os.ReadFile(envSidecar); err == nil {
		overrideEnv = parseDotEnv(envData)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimSuffix(base, "-compose")

	defs, err := ParseComposeBytes(base, data, overrideEnv)
	if err != nil {
		return nil, fmt.Errorf("parsing compose file %s: %w", path, err)
	}
	for i := range defs {
		defs[i].File = path
	}
	return defs, nil
}

// ParseComposeBytes parses raw Compose-style YAML into
// ServiceDefinitions keyed "<base>:<service>", without touching disk.
// internal/registry uses it for local files via loadComposeFile;
// internal/githubimport uses it directly against content fetched from
// a repository.
func ParseComposeBytes(base string, data []byte, overrideEnv map[string]string) ([]ServiceDefinition, error) {
	var cf composeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing compose content: %w", err)
	}

	defs := make([]ServiceDefinition, 0, len(cf.Services))
	for name, svc := range cf.Services {
		def := ServiceDefinition{
			ID:      base + ":" + name,
			Name:    name,
			Image:   svc.Image,
			Ports:   svc.Ports,
			Volumes: svc.Volumes,
		}
		def.Command = parseCommand(svc.Command)
		def.Env = classifyEnv(svc.Environment, overrideEnv)
		def.DependsOn = parseDependsOn(svc.DependsOn)
		def.HealthCheck = parseHealthCheck(svc.HealthCheck)
		def.RestartPolicy = svc.Restart

		if svc.XUshadow != nil {
			def.Imported = true
			def.Metadata = svc.XUshadow
			def.Requires = stringListFrom(svc.XUshadow["requires"])
			def.Provides = stringListFrom(svc.XUshadow["provides"])
		}

		defs = append(defs, def)
	}
	return defs, nil
}

func parseCommand(v any) []string {
	switch val := v.(type) {
	case string:
		return strings.Fields(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return nil
	}
}

// stringListFrom reads a []any of strings out of an x-ushadow block
// value, used identically for both the "requires" and "provides" keys.
func stringListFrom(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var httpURLPattern = regexp.MustCompile(`https?://[^\s"']+`)

// parseHealthCheck normalizes a Compose healthcheck block, extracting
// an HTTP path from the test command's curl/wget URL when present so
// the Kubernetes backend's HTTPGet probes have a path to target.
// Returns nil when the service declares no healthcheck.
func parseHealthCheck(hc *composeHealthCheck) *HealthCheck {
	if hc == nil {
		return nil
	}
	out := &HealthCheck{
		Interval: hc.Interval,
		Timeout:  hc.Timeout,
		Retries:  hc.Retries,
	}
	switch test := hc.Test.(type) {
	case string:
		out.Test = strings.Fields(test)
	case []any:
		for _, item := range test {
			out.Test = append(out.Test, fmt.Sprintf("%v", item))
		}
	}
	for _, token := range out.Test {
		if match := httpURLPattern.FindString(token); match != "" {
			if parsed, err := url.Parse(match); err == nil && parsed.Path != "" {
				out.Path = parsed.Path
				break
			}
		}
	}
	return out
}

func parseDependsOn(v any) DependsOn {
	var d DependsOn
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				d.Required = append(d.Required, s)
			}
		}
	case map[string]any:
		for name, cond := range val {
			optional := false
			if m, ok := cond.(map[string]any); ok {
				if required, ok := m["required"].(bool); ok && !required {
					optional = true
				}
			}
			if optional {
				d.Optional = append(d.Optional, name)
			} else {
				d.Required = append(d.Required, name)
			}
		}
	}
	return d
}

// classifyEnv normalizes both the array ("- KEY=value") and mapping
// ("KEY: value") Compose environment forms into classified
// declarations, per spec §4.2's three-way KEY=${VAR:-default} /
// KEY=literal / bare-KEY classification. overrideEnv (from a sidecar
// .env file) takes precedence for the declaration's concrete Value.
func classifyEnv(v any, overrideEnv map[string]string) []EnvVarDecl {
	raw := map[string]string{}
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if eq := strings.IndexByte(s, '='); eq >= 0 {
				raw[s[:eq]] = s[eq+1:]
			} else {
				raw[s] = ""
			}
		}
	case map[string]any:
		for k, v := range val {
			raw[k] = fmt.Sprintf("%v", v)
		}
	}

	decls := make([]EnvVarDecl, 0, len(raw))
	for key, value := range raw {
		decl := EnvVarDecl{Key: key}
		if ref, def, ok := parseVarRef(value); ok {
			decl.Default = def
			if def != "" || strings.Contains(value, ":-") {
				decl.Kind = EnvOptional
			} else {
				decl.Kind = EnvRequired
			}
			_ = ref
		} else if value == "" {
			decl.Kind = EnvRequired
		} else {
			decl.Kind = EnvHardcoded
			decl.Value = value
		}
		if ov, ok := overrideEnv[key]; ok {
			decl.Value = ov
		}
		decls = append(decls, decl)
	}
	return decls
}

// parseVarRef recognizes "${VAR}" and "${VAR:-default}" forms inside
// an env value, returning the referenced name, default, and ok=true.
func parseVarRef(value string) (name, def string, ok bool) {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return "", "", false
	}
	inner := value[2 : len(value)-1]
	if idx := strings.Index(inner, ":-"); idx >= 0 {
		return inner[:idx], inner[idx+2:], true
	}
	return inner, "", true
}

// parseDotEnv parses a minimal .env sidecar (KEY=value per line,
// "#"-prefixed comments and blank lines ignored).
func parseDotEnv(data []byte) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		value = strings.Trim(value, `"'`)
		out[key] = value
	}
	return out
}
