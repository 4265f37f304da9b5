package registry

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// RenderCompose re-serializes a ServiceDefinition back to Compose YAML
// with its environment declarations resolved against resolvedEnv. It
// is a read-only diagnostic surface — supplementing the distilled
// spec with the original system's compose-generation feature — used
// by operators to inspect exactly what a deployment backend would run
// without actually deploying anything.
func RenderCompose(def ServiceDefinition, resolvedEnv map[string]string) (string, error) {
	env := make(map[string]string, len(def.Env))
	keys := make([]string, 0, len(def.Env))
	for _, e := range def.Env {
		value := e.Value
		if v, ok := resolvedEnv[e.Key]; ok {
			value = v
		} else if value == "" {
			value = e.Default
		}
		env[e.Key] = value
		keys = append(keys, e.Key)
	}
	sort.Strings(keys)
	envList := make([]string, 0, len(keys))
	for _, k := range keys {
		envList = append(envList, fmt.Sprintf("%s=%s", k, env[k]))
	}

	svc := map[string]any{
		"image": def.Image,
	}
	if len(def.Command) > 0 {
		svc["command"] = def.Command
	}
	if len(envList) > 0 {
		svc["environment"] = envList
	}
	if len(def.Ports) > 0 {
		svc["ports"] = def.Ports
	}
	if len(def.Volumes) > 0 {
		svc["volumes"] = def.Volumes
	}
	if len(def.DependsOn.Required) > 0 {
		svc["depends_on"] = def.DependsOn.Required
	}

	doc := map[string]any{
		"services": map[string]any{
			def.Name: svc,
		},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("rendering compose for %s: %w", def.ID, err)
	}
	return string(out), nil
}
