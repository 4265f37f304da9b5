package cloud

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/ushadow-io/ushadow/core/utils"
)

// Hetzner is the CloudProvider driver backed by
// github.com/hetznercloud/hcloud-go/v2.
type Hetzner struct {
	client *hcloud.Client
	logger *utils.Logger
}

// NewHetzner builds a Hetzner driver authenticated with apiToken.
func NewHetzner(apiToken string) *Hetzner {
	return &Hetzner{client: hcloud.NewClient(hcloud.WithToken(apiToken)), logger: utils.NewLogger("cloud-hetzner")}
}

func (h *Hetzner) Name() ProviderName { return ProviderHetzner }

func (h *Hetzner) ListRegions(ctx context.Context) ([]Region, error) {
	locations, err := h.client.Location.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing hetzner locations: %w", err)
	}
	out := make([]Region, 0, len(locations))
	for _, l := range locations {
		out = append(out, Region{ID: l.Name, Name: l.Description, Available: true})
	}
	return out, nil
}

func (h *Hetzner) ListSizes(ctx context.Context) ([]Size, error) {
	serverTypes, err := h.client.ServerType.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing hetzner server types: %w", err)
	}
	out := make([]Size, 0, len(serverTypes))
	for _, st := range serverTypes {
		size := Size{
			ID:        st.Name,
			VCPUs:     st.Cores,
			MemoryGiB: st.Memory,
			DiskGiB:   float64(st.Disk),
		}
		for _, pricing := range st.Pricings {
			size.Regions = append(size.Regions, pricing.Location.Name)
			if hourly, err := strconv.ParseFloat(pricing.Hourly.Gross, 64); err == nil && (size.HourlyPrice == 0 || hourly < size.HourlyPrice) {
				size.HourlyPrice = hourly
			}
			if monthly, err := strconv.ParseFloat(pricing.Monthly.Gross, 64); err == nil && (size.MonthlyPrice == 0 || monthly < size.MonthlyPrice) {
				size.MonthlyPrice = monthly
			}
		}
		out = append(out, size)
	}
	return out, nil
}

func (h *Hetzner) CreateSSHKey(ctx context.Context, name, publicKey string) (SSHKey, error) {
	key, _, err := h.client.SSHKey.Create(ctx, hcloud.SSHKeyCreateOpts{Name: name, PublicKey: publicKey})
	if err != nil {
		return SSHKey{}, fmt.Errorf("registering hetzner ssh key: %w", err)
	}
	return SSHKey{ID: strconv.FormatInt(key.ID, 10), Name: key.Name, PublicKey: key.PublicKey}, nil
}

func (h *Hetzner) ListSSHKeys(ctx context.Context) ([]SSHKey, error) {
	keys, err := h.client.SSHKey.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing hetzner ssh keys: %w", err)
	}
	out := make([]SSHKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, SSHKey{ID: strconv.FormatInt(k.ID, 10), Name: k.Name, PublicKey: k.PublicKey})
	}
	return out, nil
}

func (h *Hetzner) DeleteSSHKey(ctx context.Context, id string) error {
	key := &hcloud.SSHKey{ID: atoi64(id)}
	if _, err := h.client.SSHKey.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting hetzner ssh key %s: %w", id, err)
	}
	return nil
}

func (h *Hetzner) Create(ctx context.Context, req CreateRequest) (Instance, error) {
	sshKeys := make([]*hcloud.SSHKey, 0, len(req.SSHKeyIDs))
	for _, id := range req.SSHKeyIDs {
		sshKeys = append(sshKeys, &hcloud.SSHKey{ID: atoi64(id)})
	}
	result, _, err := h.client.Server.Create(ctx, hcloud.ServerCreateOpts{
		Name:       req.Name,
		ServerType: &hcloud.ServerType{Name: req.Size},
		Image:      &hcloud.Image{Name: "ubuntu-22.04"},
		Location:   &hcloud.Location{Name: req.Region},
		SSHKeys:    sshKeys,
		UserData:   req.UserData,
	})
	if err != nil {
		return Instance{}, fmt.Errorf("creating hetzner server %s: %w", req.Name, err)
	}
	return fromHetznerServer(result.Server), nil
}

func (h *Hetzner) Get(ctx context.Context, id string) (Instance, error) {
	server, _, err := h.client.Server.GetByID(ctx, atoi64(id))
	if err != nil {
		return Instance{}, fmt.Errorf("fetching hetzner server %s: %w", id, err)
	}
	if server == nil {
		return Instance{}, fmt.Errorf("hetzner server %s not found", id)
	}
	return fromHetznerServer(server), nil
}

func (h *Hetzner) List(ctx context.Context) ([]Instance, error) {
	servers, err := h.client.Server.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing hetzner servers: %w", err)
	}
	out := make([]Instance, 0, len(servers))
	for _, s := range servers {
		out = append(out, fromHetznerServer(s))
	}
	return out, nil
}

func (h *Hetzner) Delete(ctx context.Context, id string) error {
	server := &hcloud.Server{ID: atoi64(id)}
	if _, _, err := h.client.Server.DeleteWithResult(ctx, server); err != nil {
		return fmt.Errorf("deleting hetzner server %s: %w", id, err)
	}
	return nil
}

func (h *Hetzner) Start(ctx context.Context, id string) error {
	server := &hcloud.Server{ID: atoi64(id)}
	if _, _, err := h.client.Server.Poweron(ctx, server); err != nil {
		return fmt.Errorf("starting hetzner server %s: %w", id, err)
	}
	return nil
}

func (h *Hetzner) Stop(ctx context.Context, id string) error {
	server := &hcloud.Server{ID: atoi64(id)}
	if _, _, err := h.client.Server.Poweroff(ctx, server); err != nil {
		return fmt.Errorf("stopping hetzner server %s: %w", id, err)
	}
	return nil
}

func (h *Hetzner) Reboot(ctx context.Context, id string) error {
	server := &hcloud.Server{ID: atoi64(id)}
	if _, _, err := h.client.Server.Reboot(ctx, server); err != nil {
		return fmt.Errorf("rebooting hetzner server %s: %w", id, err)
	}
	return nil
}

// WaitForReady polls until the server reports status "running" with
// a public IPv4 assigned, or ctx is canceled.
func (h *Hetzner) WaitForReady(ctx context.Context, id string) (Instance, error) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		inst, err := h.Get(ctx, id)
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

func fromHetznerServer(server *hcloud.Server) Instance {
	inst := Instance{
		ID:       strconv.FormatInt(server.ID, 10),
		Provider: ProviderHetzner,
		Status:   hetznerStatus(server.Status),
	}
	if server.Datacenter != nil && server.Datacenter.Location != nil {
		inst.Region = server.Datacenter.Location.Name
	}
	if server.ServerType != nil {
		inst.Size = server.ServerType.Name
	}
	if server.PublicNet.IPv4.IP != nil {
		inst.PublicIP = server.PublicNet.IPv4.IP.String()
	}
	inst.CreatedAt = server.Created
	return inst
}

func hetznerStatus(s hcloud.ServerStatus) InstanceStatus {
	switch s {
	case hcloud.ServerStatusRunning:
		return InstanceRunning
	case hcloud.ServerStatusOff:
		return InstanceStopped
	case hcloud.ServerStatusDeleting:
		return InstanceTerminated
	default:
		return InstanceProvisioning
	}
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
