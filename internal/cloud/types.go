// Package cloud implements the cloud-provider VM drivers behind
// remote-docker u-nodes (spec §4.7): a shared CloudProvider interface,
// a Hetzner and a DigitalOcean implementation, and usage accounting
// that sums per-instance lifetime intervals against an hourly rate.
package cloud

import "time"

// ProviderName identifies which cloud driver an instance belongs to.
type ProviderName string

const (
	ProviderHetzner      ProviderName = "hetzner"
	ProviderDigitalOcean ProviderName = "digitalocean"
)

// Region is one deployable location a provider offers.
type Region struct {
	ID        string
	Name      string
	Available bool
}

// Size is one instance size/type a provider offers, normalized to
// vCPU count, memory in GiB, and disk in GiB so get_recommended_size
// can compare across providers.
type Size struct {
	ID           string
	VCPUs        int
	MemoryGiB    float64
	DiskGiB      float64
	HourlyPrice  float64
	MonthlyPrice float64
	Regions      []string
}

// InstanceStatus mirrors a provider's VM lifecycle state, normalized
// to the handful of states spec §4.7 cares about.
type InstanceStatus string

const (
	InstanceProvisioning InstanceStatus = "provisioning"
	InstanceRunning      InstanceStatus = "running"
	InstanceStopped      InstanceStatus = "stopped"
	InstanceTerminated   InstanceStatus = "terminated"
)

// Instance is a CloudInstance (spec §3): a VM created by a cloud
// driver, optionally linked to the UNode it becomes once the Node
// Agent bootstrap script completes and the node joins.
type Instance struct {
	ID         string
	Provider   ProviderName
	Region     string
	Size       string
	PublicIP   string
	PrivateIP  string
	Status     InstanceStatus
	LinkedNode string // UNode.ID of the linked node; nothing in this module sets it
	CreatedAt  time.Time
}

// SSHKey is an SSH public key registered with a provider for
// injection into provisioned instances.
type SSHKey struct {
	ID        string
	Name      string
	PublicKey string
}

// UsageRecord is one open-or-closed billing interval for an instance,
// used to compute monthly cost by summing interval-length × rate.
type UsageRecord struct {
	InstanceID string
	Provider   ProviderName
	HourlyRate float64
	StartedAt  time.Time
	EndedAt    *time.Time // nil while the instance is still running
}
