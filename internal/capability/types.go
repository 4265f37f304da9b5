// Package capability implements the Capability Resolver (spec §4.3):
// given a set of user-enabled service ids, it decides which provider
// satisfies each required capability, determines which configuration
// keys are missing, and computes the implied infrastructure set.
//
// Grounded on the teacher's request-handling style in
// cmd/proxy/server.go, where a request triggers a chain of read-only
// lookups against already-loaded state and returns one aggregate
// result struct rather than streaming partial results.
package capability

import "github.com/ushadow-io/ushadow/internal/registry"

// MissingKey is one configuration key a selected provider needs that
// is not currently satisfied, shaped for direct rendering by a setup
// wizard.
type MissingKey struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Path  string `json:"path"`
	Type  string `json:"type"`
	Link  string `json:"link,omitempty"`
}

// RequiredCapability is the resolution outcome for one capability in
// the enabled services' union of requirements.
type RequiredCapability struct {
	ID           string       `json:"id"`
	ProviderID   string       `json:"provider_id"`
	ProviderMode registry.ProviderMode `json:"provider_mode"`
	Configured   bool         `json:"configured"`
	MissingKeys  []MissingKey `json:"missing_keys"`
}

// Resolution is the full output of Resolve, consumed by the setup
// wizard and the Deployment Engine (which refuses to deploy when
// AllConfigured is false).
type Resolution struct {
	RequiredCapabilities  []RequiredCapability `json:"required_capabilities"`
	Services              []string             `json:"services"`
	AllConfigured         bool                 `json:"all_configured"`
	ImpliedInfrastructure []string             `json:"implied_infrastructure"`
}
