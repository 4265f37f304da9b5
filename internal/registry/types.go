// Package registry implements the Service & Provider Registry (spec
// §4.2): discovery and caching of ServiceDefinitions from a directory
// tree of Compose-style YAML files, and Provider/Capability
// definitions from a sibling directory. The registry is reload-on-
// demand; it never polls the filesystem, mirroring the teacher's
// Configuration Store, which is likewise loaded once and invalidated
// explicitly rather than watched on a timer outside of Kubernetes.
package registry

// EnvKind classifies one environment-variable declaration found inside
// a Compose service's environment block.
type EnvKind string

const (
	// EnvRequired is a bare ${VAR} reference with no default: the
	// consumer cannot start without it being supplied.
	EnvRequired EnvKind = "required"
	// EnvOptional is a ${VAR:-default} reference: a default exists.
	EnvOptional EnvKind = "optional"
	// EnvHardcoded is a literal KEY=value with no ${...} at all.
	EnvHardcoded EnvKind = "hardcoded"
)

// EnvVarDecl is one classified environment-variable declaration on a
// ServiceDefinition's container.
type EnvVarDecl struct {
	Key     string  `json:"key"`
	Kind    EnvKind `json:"kind"`
	Default string  `json:"default,omitempty"`
	Value   string  `json:"value,omitempty"`
}

// DependsOn groups a service's required and optional peer-service
// dependencies, per spec §4.3's implicit-infrastructure expansion.
type DependsOn struct {
	Required []string `json:"required,omitempty"`
	Optional []string `json:"optional,omitempty"`
}

// HealthCheck is a ServiceDefinition's Compose-declared healthcheck,
// carried through to the Kubernetes backend's readiness/liveness
// probes. The Docker-based backends (local Docker and the Node Agent)
// do not pass it on to the container.
type HealthCheck struct {
	Test     []string `json:"test,omitempty"`
	// Path is the HTTP path extracted from Test when it curls/wgets a
	// URL, the form the Kubernetes backend's HTTPGet probes need.
	Path     string `json:"path,omitempty"`
	Interval string `json:"interval,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
	Retries  int    `json:"retries,omitempty"`
}

// ServiceDefinition is a deployable unit derived from one top-level
// entry of a Compose-style YAML file, keyed by
// "<file basename without '-compose'>:<service name>".
type ServiceDefinition struct {
	ID      string `json:"id"`
	File    string `json:"file"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	Command []string `json:"command,omitempty"`

	Env       []EnvVarDecl `json:"env"`
	Ports     []string     `json:"ports,omitempty"`
	Volumes   []string     `json:"volumes,omitempty"`
	DependsOn DependsOn    `json:"depends_on"`

	// HealthCheck is the Compose-declared healthcheck, when present.
	HealthCheck *HealthCheck `json:"health_check,omitempty"`
	// RestartPolicy is the Compose-declared restart policy (e.g.
	// "unless-stopped", "on-failure", "always"); empty when the
	// Compose file doesn't declare one.
	RestartPolicy string `json:"restart_policy,omitempty"`

	// Requires lists the abstract capabilities (llm, transcription, ...)
	// this service needs satisfied before it can run.
	Requires []string `json:"requires,omitempty"`
	// Provides lists the capabilities this service itself satisfies
	// when deployed, the dual of Requires.
	Provides []string `json:"provides,omitempty"`

	// Imported marks a service that arrived via the GitHub-import
	// surface rather than shipping with the registry's built-in
	// Compose tree; it is otherwise indistinguishable from a built-in
	// service, per spec §4.2.
	Imported bool `json:"imported,omitempty"`
	// Metadata holds the optional x-ushadow block verbatim.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EnvMap is one binding a Provider exposes to consumer services: the
// env var name the consumer sees, the Configuration Store path it is
// sourced from, and its presentation/sensitivity metadata.
type EnvMap struct {
	EnvVar      string `json:"env_var"`
	SettingsPath string `json:"settings_path"`
	Secret      bool   `json:"secret"`
	Label       string `json:"label,omitempty"`
	Default     string `json:"default,omitempty"`
	Link        string `json:"link,omitempty"`
}

// ProviderMode distinguishes a cloud-hosted provider (no local
// container) from a locally-deployed one (runs as a ServiceDefinition).
type ProviderMode string

const (
	ProviderCloud ProviderMode = "cloud"
	ProviderLocal ProviderMode = "local"
)

// Provider is one implementation of a Capability.
type Provider struct {
	ID         string       `json:"id"`
	Capability string       `json:"capability"`
	Mode       ProviderMode `json:"mode"`
	Name       string       `json:"name,omitempty"`
	IsDefault  bool         `json:"is_default,omitempty"`
	// Image is the local-service image this provider is backed by,
	// when Mode == ProviderLocal; used for implicit infrastructure
	// expansion in the Capability Resolver.
	Image   string   `json:"image,omitempty"`
	EnvMaps []EnvMap `json:"env_map"`
}
