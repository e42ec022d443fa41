// Package provision owns the instance lifecycle: create, stop, delete,
// list, inspect. Creation embeds the boot-time actions (engine install,
// guard install, SSH key injection) but returning success means only that
// the control plane accepted the request and the instance is booting.
// Readiness is a separate concern, polled separately.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avkline/enginevm/internal/domain"
	"github.com/avkline/enginevm/internal/gce"
)

// CreateOptions carries the client-side material embedded into the
// instance at creation time.
type CreateOptions struct {
	// SSHUser and AuthorizedKey grant the management key access.
	SSHUser       string
	AuthorizedKey string

	// InstallCommand is the opaque boot-time engine installation step.
	InstallCommand string

	// GuardURL is where the boot script downloads the guard binary from.
	// Required when the spec sets a max lifetime.
	GuardURL string
}

// Provisioner drives the control plane. All mutation goes through the
// control plane's serialized accept/ack protocol; no local locking.
type Provisioner struct {
	client *gce.Client
	logger *slog.Logger
}

func New(client *gce.Client, logger *slog.Logger) *Provisioner {
	return &Provisioner{client: client, logger: logger}
}

// Create validates and submits the spec. Fails with AlreadyExistsError,
// QuotaExceededError or InvalidSpecError without creating anything. On
// success the instance is consuming billable resources from this moment on,
// whether or not the workload ever becomes ready.
func (p *Provisioner) Create(ctx context.Context, spec domain.InstanceSpec, opts CreateOptions) (*domain.Instance, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.MaxLifetime > 0 && opts.GuardURL == "" {
		return nil, domain.InvalidSpecError{Reason: "a guard URL is required when a max lifetime is set"}
	}

	inst := buildInstance(spec, opts)
	if err := p.client.Insert(ctx, spec.Project, spec.Zone, inst); err != nil {
		return nil, err
	}

	p.logger.Warn("instance created, billable resources are now running",
		"instance", spec.Name,
		"zone", spec.Zone,
		"machine_type", spec.MachineType,
		"model", string(spec.Model),
		"max_lifetime", spec.MaxLifetime.String(),
	)

	created, err := p.client.Get(ctx, spec.Project, spec.Zone, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("inspect created instance: %w", err)
	}
	out := toDomain(created, spec.Project, spec.Zone)
	return &out, nil
}

// Stop halts the instance. Stopping an absent instance succeeds.
func (p *Provisioner) Stop(ctx context.Context, project, zone, name string) error {
	return p.client.Stop(ctx, project, zone, name)
}

// Delete removes the instance. Deleting an absent instance succeeds.
func (p *Provisioner) Delete(ctx context.Context, project, zone, name string) error {
	return p.client.Delete(ctx, project, zone, name)
}

// Get returns the instance's control-plane view; an absent instance is
// reported with StateAbsent rather than an error.
func (p *Provisioner) Get(ctx context.Context, project, zone, name string) (*domain.Instance, error) {
	inst, err := p.client.Get(ctx, project, zone, name)
	if err != nil {
		var notFound domain.NotFoundError
		if errors.As(err, &notFound) {
			return &domain.Instance{Name: name, Project: project, Zone: zone, State: domain.StateAbsent}, nil
		}
		return nil, err
	}
	out := toDomain(inst, project, zone)
	return &out, nil
}

// List returns a read-only snapshot of the zone's instances, optionally
// narrowed by a compute filter expression. No ordering guarantee beyond the
// control plane's own.
func (p *Provisioner) List(ctx context.Context, project, zone, filter string) ([]domain.Instance, error) {
	items, err := p.client.List(ctx, project, zone, filter)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Instance, 0, len(items))
	for i := range items {
		out = append(out, toDomain(&items[i], project, zone))
	}
	return out, nil
}

func buildInstance(spec domain.InstanceSpec, opts CreateOptions) *gce.Instance {
	inst := &gce.Instance{
		Name:        spec.Name,
		MachineType: fmt.Sprintf("zones/%s/machineTypes/%s", spec.Zone, spec.MachineType),
		Disks: []gce.AttachedDisk{{
			Boot:       true,
			AutoDelete: true,
			InitializeParams: &gce.InitializeParams{
				SourceImage: spec.Image,
			},
		}},
		NetworkInterfaces: []gce.NetworkInterface{{
			Network: "global/networks/default",
			AccessConfigs: []gce.AccessConfig{{
				Type: "ONE_TO_ONE_NAT",
				Name: "External NAT",
			}},
		}},
	}

	sched := &gce.Scheduling{}
	if spec.Model == domain.ModelSpot {
		sched.ProvisioningModel = "SPOT"
		sched.InstanceTerminationAction = "DELETE"
	}
	if spec.Accelerator != nil {
		inst.GuestAccelerators = []gce.AcceleratorConfig{{
			AcceleratorType:  fmt.Sprintf("zones/%s/acceleratorTypes/%s", spec.Zone, spec.Accelerator.Type),
			AcceleratorCount: spec.Accelerator.Count,
		}}
		// Accelerator instances cannot live-migrate.
		sched.OnHostMaintenance = "TERMINATE"
		f := false
		sched.AutomaticRestart = &f
	}
	inst.Scheduling = sched

	items := []gce.MetadataItem{
		metaItem("ssh-keys", opts.SSHUser+":"+opts.AuthorizedKey),
		metaItem("startup-script", renderStartupScript(spec, opts)),
	}
	if spec.MaxLifetime > 0 {
		items = append(items, metaItem("enginevm-lifetime", spec.MaxLifetime.String()))
	}
	inst.Metadata = &gce.Metadata{Items: items}

	return inst
}

func metaItem(key, value string) gce.MetadataItem {
	v := value
	return gce.MetadataItem{Key: key, Value: &v}
}

func toDomain(inst *gce.Instance, project, zone string) domain.Instance {
	created, _ := time.Parse(time.RFC3339, inst.CreationTimestamp)
	return domain.Instance{
		Name:        inst.Name,
		Project:     project,
		Zone:        zone,
		MachineType: inst.MachineType,
		State:       domain.StateFromStatus(inst.Status),
		CreatedAt:   created,
		ExternalIP:  inst.ExternalIP(),
	}
}
