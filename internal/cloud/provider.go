package cloud

import "context"

// CreateRequest is the common shape every driver's Create accepts:
// the region/size ids come from that driver's own ListRegions/
// ListSizes, and UserData carries the Node Agent bootstrap script.
type CreateRequest struct {
	Name      string
	Region    string
	Size      string
	SSHKeyIDs []string
	UserData  string
}

// CloudProvider is the abstract driver interface spec §4.7 requires:
// every cloud backend (Hetzner, DigitalOcean, ...) implements it
// identically so the Deployment Engine and Node Manager never branch
// on provider identity.
type CloudProvider interface {
	Name() ProviderName

	ListRegions(ctx context.Context) ([]Region, error)
	ListSizes(ctx context.Context) ([]Size, error)

	CreateSSHKey(ctx context.Context, name, publicKey string) (SSHKey, error)
	ListSSHKeys(ctx context.Context) ([]SSHKey, error)
	DeleteSSHKey(ctx context.Context, id string) error

	Create(ctx context.Context, req CreateRequest) (Instance, error)
	Get(ctx context.Context, id string) (Instance, error)
	List(ctx context.Context) ([]Instance, error)
	Delete(ctx context.Context, id string) error
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Reboot(ctx context.Context, id string) error
	WaitForReady(ctx context.Context, id string) (Instance, error)
}

// GetRecommendedSize picks the cheapest size meeting the spec §4.7
// floor (>=1 vCPU, >=1 GiB memory, >=20 GiB disk) available in
// region. Sizes not offered in region are skipped.
func GetRecommendedSize(sizes []Size, region string) (Size, bool) {
	const (
		minVCPUs  = 1
		minMemory = 1.0
		minDisk   = 20.0
	)

	var best Size
	found := false
	for _, s := range sizes {
		if !offersRegion(s, region) {
			continue
		}
		if s.VCPUs < minVCPUs || s.MemoryGiB < minMemory || s.DiskGiB < minDisk {
			continue
		}
		if !found || s.HourlyPrice < best.HourlyPrice {
			best = s
			found = true
		}
	}
	return best, found
}

func offersRegion(s Size, region string) bool {
	if region == "" {
		return true
	}
	for _, r := range s.Regions {
		if r == region {
			return true
		}
	}
	return false
}
