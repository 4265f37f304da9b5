package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/godo"
	"golang.org/x/oauth2"

	"github.com/ushadow-io/ushadow/core/utils"
)

// tokenSource adapts a static API token to oauth2.TokenSource, the
// authentication shape godo.NewClient expects.
type tokenSource struct{ token string }

func (t *tokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: t.token}, nil
}

// DigitalOcean is the CloudProvider driver backed by
// github.com/digitalocean/godo.
type DigitalOcean struct {
	client *godo.Client
	logger *utils.Logger
}

// NewDigitalOcean builds a DigitalOcean driver authenticated with
// apiToken.
func NewDigitalOcean(apiToken string) *DigitalOcean {
	oauthClient := oauth2.NewClient(context.Background(), &tokenSource{token: apiToken})
	return &DigitalOcean{client: godo.NewClient(oauthClient), logger: utils.NewLogger("cloud-digitalocean")}
}

func (d *DigitalOcean) Name() ProviderName { return ProviderDigitalOcean }

func (d *DigitalOcean) ListRegions(ctx context.Context) ([]Region, error) {
	regions, _, err := d.client.Regions.List(ctx, &godo.ListOptions{PerPage: 200})
	if err != nil {
		return nil, fmt.Errorf("listing digitalocean regions: %w", err)
	}
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		out = append(out, Region{ID: r.Slug, Name: r.Name, Available: r.Available})
	}
	return out, nil
}

func (d *DigitalOcean) ListSizes(ctx context.Context) ([]Size, error) {
	sizes, _, err := d.client.Sizes.List(ctx, &godo.ListOptions{PerPage: 200})
	if err != nil {
		return nil, fmt.Errorf("listing digitalocean sizes: %w", err)
	}
	out := make([]Size, 0, len(sizes))
	for _, s := range sizes {
		out = append(out, Size{
			ID:           s.Slug,
			VCPUs:        s.Vcpus,
			MemoryGiB:    float64(s.Memory) / 1024,
			DiskGiB:      float64(s.Disk),
			HourlyPrice:  s.PriceHourly,
			MonthlyPrice: s.PriceMonthly,
			Regions:      s.Regions,
		})
	}
	return out, nil
}

func (d *DigitalOcean) CreateSSHKey(ctx context.Context, name, publicKey string) (SSHKey, error) {
	key, _, err := d.client.Keys.Create(ctx, &godo.KeyCreateRequest{Name: name, PublicKey: publicKey})
	if err != nil {
		return SSHKey{}, fmt.Errorf("registering digitalocean ssh key: %w", err)
	}
	return SSHKey{ID: fmt.Sprintf("%d", key.ID), Name: key.Name, PublicKey: key.PublicKey}, nil
}

func (d *DigitalOcean) ListSSHKeys(ctx context.Context) ([]SSHKey, error) {
	keys, _, err := d.client.Keys.List(ctx, &godo.ListOptions{PerPage: 200})
	if err != nil {
		return nil, fmt.Errorf("listing digitalocean ssh keys: %w", err)
	}
	out := make([]SSHKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, SSHKey{ID: fmt.Sprintf("%d", k.ID), Name: k.Name, PublicKey: k.PublicKey})
	}
	return out, nil
}

func (d *DigitalOcean) DeleteSSHKey(ctx context.Context, id string) error {
	if _, err := d.client.Keys.DeleteByID(ctx, atoi(id)); err != nil {
		return fmt.Errorf("deleting digitalocean ssh key %s: %w", id, err)
	}
	return nil
}

func (d *DigitalOcean) Create(ctx context.Context, req CreateRequest) (Instance, error) {
	sshKeys := make([]godo.DropletCreateSSHKey, 0, len(req.SSHKeyIDs))
	for _, id := range req.SSHKeyIDs {
		sshKeys = append(sshKeys, godo.DropletCreateSSHKey{ID: atoi(id)})
	}
	droplet, _, err := d.client.Droplets.Create(ctx, &godo.DropletCreateRequest{
		Name:     req.Name,
		Region:   req.Region,
		Size:     req.Size,
		Image:    godo.DropletCreateImage{Slug: "ubuntu-22-04-x64"},
		SSHKeys:  sshKeys,
		UserData: req.UserData,
	})
	if err != nil {
		return Instance{}, fmt.Errorf("creating digitalocean droplet %s: %w", req.Name, err)
	}
	return fromDroplet(droplet), nil
}

func (d *DigitalOcean) Get(ctx context.Context, id string) (Instance, error) {
	droplet, _, err := d.client.Droplets.Get(ctx, atoi(id))
	if err != nil {
		return Instance{}, fmt.Errorf("fetching digitalocean droplet %s: %w", id, err)
	}
	return fromDroplet(droplet), nil
}

func (d *DigitalOcean) List(ctx context.Context) ([]Instance, error) {
	droplets, _, err := d.client.Droplets.List(ctx, &godo.ListOptions{PerPage: 200})
	if err != nil {
		return nil, fmt.Errorf("listing digitalocean droplets: %w", err)
	}
	out := make([]Instance, 0, len(droplets))
	for i := range droplets {
		out = append(out, fromDroplet(&droplets[i]))
	}
	return out, nil
}

func (d *DigitalOcean) Delete(ctx context.Context, id string) error {
	if _, err := d.client.Droplets.Delete(ctx, atoi(id)); err != nil {
		return fmt.Errorf("deleting digitalocean droplet %s: %w", id, err)
	}
	return nil
}

func (d *DigitalOcean) Start(ctx context.Context, id string) error {
	if _, _, err := d.client.DropletActions.PowerOn(ctx, atoi(id)); err != nil {
		return fmt.Errorf("starting digitalocean droplet %s: %w", id, err)
	}
	return nil
}

func (d *DigitalOcean) Stop(ctx context.Context, id string) error {
	if _, _, err := d.client.DropletActions.PowerOff(ctx, atoi(id)); err != nil {
		return fmt.Errorf("stopping digitalocean droplet %s: %w", id, err)
	}
	return nil
}

func (d *DigitalOcean) Reboot(ctx context.Context, id string) error {
	if _, _, err := d.client.DropletActions.Reboot(ctx, atoi(id)); err != nil {
		return fmt.Errorf("rebooting digitalocean droplet %s: %w", id, err)
	}
	return nil
}

// WaitForReady polls until the droplet reports status "active" with a
// public IP assigned, or ctx is canceled.
func (d *DigitalOcean) WaitForReady(ctx context.Context, id string) (Instance, error) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		inst, err := d.Get(ctx, id)
		if err != nil {
			return Instance{}, err
		}
		if inst.Status == InstanceRunning && inst.PublicIP != "" {
			return inst, nil
		}
		select {
		case <-ctx.Done():
			return Instance{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func fromDroplet(droplet *godo.Droplet) Instance {
	inst := Instance{
		ID:       fmt.Sprintf("%d", droplet.ID),
		Provider: ProviderDigitalOcean,
		Status:   doStatus(droplet.Status),
	}
	if droplet.Region != nil {
		inst.Region = droplet.Region.Slug
	}
	if droplet.Size != nil {
		inst.Size = droplet.Size.Slug
	}
	if droplet.Networks != nil {
		for _, n := range droplet.Networks.V4 {
			if n.Type == "public" {
				inst.PublicIP = n.IPAddress
			} else {
				inst.PrivateIP = n.IPAddress
			}
		}
	}
	return inst
}

func doStatus(s string) InstanceStatus {
	switch s {
	case "active":
		return InstanceRunning
	case "off":
		return InstanceStopped
	case "archive":
		return InstanceTerminated
	default:
		return InstanceProvisioning
	}
}

func atoi(s string) int {
	var n int
	fmt.Sscanf(s, "%d", &n)
	return n
}
