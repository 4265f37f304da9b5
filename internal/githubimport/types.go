// Package githubimport implements the GitHub-import surface (spec
// §6): scanning a repository for Compose-style service definitions,
// parsing them into ServiceDefinitions, and registering the accepted
// ones as user-services the Registry picks up on its next reload.
package githubimport

import "time"

// ScanResult is one Compose-like file githubimport.Scan found in a
// repository, before it has been parsed.
type ScanResult struct {
	Path string // repo-relative path, e.g. "deploy/docker-compose.yml"
}

// ParsedService is one service candidate extracted from a scanned
// Compose file, ready for the operator to review before registering.
type ParsedService struct {
	ServiceID   string            `json:"service_id"`
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	SourcePath  string            `json:"source_path"`
	EnvPreview  map[string]string `json:"env_preview"`
}

// ImportedService is a service that has been registered as a
// user-service: its Compose file was written under
// config/user-services and the Registry has picked it up.
type ImportedService struct {
	ID         string    `json:"id"`
	Repo       string    `json:"repo"`
	Ref        string    `json:"ref"`
	SourcePath string    `json:"source_path"`
	FilePath   string    `json:"file_path"` // where it was persisted under user-services
	ImportedAt time.Time `json:"imported_at"`
}
