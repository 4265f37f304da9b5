package githubimport

import (
	"context"
	"path"
	"strings"

	"github.com/ushadow-io/ushadow/internal/registry"
)

// maxScanDepth bounds the directory walk so a pathological repository
// (or a symlink cycle surfaced by the Contents API) cannot turn one
// scan request into an unbounded number of GitHub API calls.
const maxScanDepth = 3

// isComposeCandidate matches .yaml/.yml files whose name contains
// "compose" (compose.yaml, docker-compose.yml, ...). This is narrower
// than internal/registry's isComposeFile, which accepts any YAML file.
func isComposeCandidate(p string) bool {
	base := strings.ToLower(path.Base(p))
	if !strings.HasSuffix(base, ".yaml") && !strings.HasSuffix(base, ".yml") {
		return false
	}
	return strings.Contains(base, "compose")
}

// Scan walks a repository tree (at ref) up to maxScanDepth looking for
// Compose-style YAML files, without parsing any of them.
func Scan(ctx context.Context, client RepoContent, owner, repo, ref string) ([]ScanResult, error) {
	var results []ScanResult
	if err := scanDir(ctx, client, owner, repo, ref, "", 0, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func scanDir(ctx context.Context, client RepoContent, owner, repo, ref, dir string, depth int, out *[]ScanResult) error {
	if depth > maxScanDepth {
		return nil
	}
	entries, err := client.ListDir(ctx, owner, repo, dir, ref)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir {
			if err := scanDir(ctx, client, owner, repo, ref, e.Path, depth+1, out); err != nil {
				return err
			}
			continue
		}
		if isComposeCandidate(e.Path) {
			*out = append(*out, ScanResult{Path: e.Path})
		}
	}
	return nil
}

// Parse fetches one scanned Compose file (and its ".env" sidecar, if
// present) and parses it into service candidates via the same
// registry.ParseComposeBytes logic the local Compose tree uses.
func Parse(ctx context.Context, client RepoContent, owner, repo, ref, filePath string) ([]ParsedService, error) {
	data, err := client.GetFile(ctx, owner, repo, filePath, ref)
	if err != nil {
		return nil, err
	}

	var overrideEnv map[string]string
	envPath := strings.TrimSuffix(filePath, path.Ext(filePath)) + ".env"
	if envData, err := client.GetFile(ctx, owner, repo, envPath, ref); err == nil {
		overrideEnv = parseEnvPreview(envData)
	}

	base := strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
	base = strings.TrimSuffix(base, "-compose")

	defs, err := registry.ParseComposeBytes(base, data, overrideEnv)
	if err != nil {
		return nil, err
	}

	out := make([]ParsedService, 0, len(defs))
	for _, d := range defs {
		preview := map[string]string{}
		for _, e := range d.Env {
			preview[e.Key] = e.Value
		}
		out = append(out, ParsedService{
			ServiceID:  d.ID,
			Name:       d.Name,
			Image:      d.Image,
			SourcePath: filePath,
			EnvPreview: preview,
		})
	}
	return out, nil
}

// parseEnvPreview is a minimal KEY=value line parser, matching
// internal/registry's own sidecar .env handling.
func parseEnvPreview(data []byte) map[string]string {
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
		out[strings.TrimSpace(line[:eq])] = strings.Trim(strings.TrimSpace(line[eq+1:]), `"'`)
	}
	return out
}
