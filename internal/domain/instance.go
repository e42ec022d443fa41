package domain

import (
	"time"
)

// ProvisioningModel is the billing/availability class of an instance.
type ProvisioningModel string

const (
	ModelStandard ProvisioningModel = "STANDARD"
	ModelSpot     ProvisioningModel = "SPOT"
)

// AcceleratorSpec describes an optional GPU attachment.
type AcceleratorSpec struct {
	// Type is the zonal accelerator type name, e.g. "nvidia-tesla-t4".
	Type string

	// Count is the number of accelerators to attach.
	Count int
}

// InstanceSpec is the immutable description of an instance to create.
// It carries no behavior; validation happens once, before submission.
type InstanceSpec struct {
	// Name must be unique within (Project, Zone).
	Name string

	// Project is the cloud project ID.
	Project string

	// Zone is the compute zone, e.g. "europe-west2-a".
	Zone string

	// MachineType is the zonal machine type name, e.g. "n2-standard-8".
	MachineType string

	// Accelerator optionally attaches GPUs to the instance.
	Accelerator *AcceleratorSpec

	// Image is the boot image reference, e.g.
	// "projects/debian-cloud/global/images/family/debian-12".
	Image string

	// Model selects standard or spot capacity.
	Model ProvisioningModel

	// MaxLifetime, when non-zero, arms the on-instance self-termination
	// guard with this duration.
	MaxLifetime time.Duration
}

// Validate reports an InvalidSpecError describing the first problem found,
// or nil if the spec is submittable.
func (s InstanceSpec) Validate() error {
	switch {
	case s.Name == "":
		return InvalidSpecError{Reason: "instance name is required"}
	case s.Project == "":
		return InvalidSpecError{Reason: "project is required"}
	case s.Zone == "":
		return InvalidSpecError{Reason: "zone is required"}
	case s.MachineType == "":
		return InvalidSpecError{Reason: "machine type is required"}
	case s.Image == "":
		return InvalidSpecError{Reason: "boot image is required"}
	case s.MaxLifetime < 0:
		return InvalidSpecError{Reason: "max lifetime must not be negative"}
	}
	if s.Accelerator != nil {
		if s.Accelerator.Type == "" {
			return InvalidSpecError{Reason: "accelerator type is required when an accelerator is set"}
		}
		if s.Accelerator.Count <= 0 {
			return InvalidSpecError{Reason: "accelerator count must be positive"}
		}
	}
	switch s.Model {
	case ModelStandard, ModelSpot:
	default:
		return InvalidSpecError{Reason: "provisioning model must be STANDARD or SPOT"}
	}
	return nil
}

// InstanceState is the lifecycle state of an instance as reported by the
// control plane. Transitions are driven only by control-plane responses,
// never inferred locally.
type InstanceState string

const (
	StateProvisioning InstanceState = "PROVISIONING"
	StateRunning      InstanceState = "RUNNING"
	StateStopping     InstanceState = "STOPPING"
	StateStopped      InstanceState = "STOPPED"
	StateDeleting     InstanceState = "DELETING"
	StateAbsent       InstanceState = "ABSENT"
)

// StateFromStatus maps a Compute Engine instance status onto the lifecycle
// states this system distinguishes.
// Ref: https://cloud.google.com/compute/docs/instances/instance-lifecycle
func StateFromStatus(status string) InstanceState {
	switch status {
	case "PROVISIONING", "STAGING":
		return StateProvisioning
	case "RUNNING":
		return StateRunning
	case "STOPPING", "PENDING_STOP", "SUSPENDING":
		return StateStopping
	case "STOPPED", "TERMINATED", "SUSPENDED":
		return StateStopped
	default:
		return InstanceState(status)
	}
}

// Instance is the control-plane view of a provisioned instance.
type Instance struct {
	Name        string
	Project     string
	Zone        string
	MachineType string
	State       InstanceState
	CreatedAt   time.Time
	ExternalIP  string
}
