package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() InstanceSpec {
	return InstanceSpec{
		Name:        "sf-test",
		Project:     "chess-lab",
		Zone:        "europe-west2-a",
		MachineType: "n2-standard-8",
		Image:       "projects/debian-cloud/global/images/family/debian-12",
		Model:       ModelSpot,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validSpec().Validate())

	tests := []struct {
		name   string
		mutate func(*InstanceSpec)
		reason string
	}{
		{"missing name", func(s *InstanceSpec) { s.Name = "" }, "name"},
		{"missing project", func(s *InstanceSpec) { s.Project = "" }, "project"},
		{"missing zone", func(s *InstanceSpec) { s.Zone = "" }, "zone"},
		{"missing machine type", func(s *InstanceSpec) { s.MachineType = "" }, "machine type"},
		{"missing image", func(s *InstanceSpec) { s.Image = "" }, "image"},
		{"negative lifetime", func(s *InstanceSpec) { s.MaxLifetime = -time.Hour }, "lifetime"},
		{"accelerator without type", func(s *InstanceSpec) { s.Accelerator = &AcceleratorSpec{Count: 1} }, "accelerator type"},
		{"accelerator zero count", func(s *InstanceSpec) { s.Accelerator = &AcceleratorSpec{Type: "nvidia-tesla-t4"} }, "count"},
		{"unknown model", func(s *InstanceSpec) { s.Model = "PREEMPTIBLE" }, "STANDARD or SPOT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)

			err := spec.Validate()
			var invalid InvalidSpecError
			require.ErrorAs(t, err, &invalid)
			assert.Contains(t, invalid.Reason, tt.reason)
		})
	}
}

func TestValidateAcceptsAccelerator(t *testing.T) {
	spec := validSpec()
	spec.Accelerator = &AcceleratorSpec{Type: "nvidia-tesla-t4", Count: 2}
	spec.MaxLifetime = 4 * time.Hour

	require.NoError(t, spec.Validate())
}

func TestStateFromStatus(t *testing.T) {
	tests := []struct {
		status string
		want   InstanceState
	}{
		{"PROVISIONING", StateProvisioning},
		{"STAGING", StateProvisioning},
		{"RUNNING", StateRunning},
		{"STOPPING", StateStopping},
		{"PENDING_STOP", StateStopping},
		{"SUSPENDING", StateStopping},
		{"STOPPED", StateStopped},
		{"TERMINATED", StateStopped},
		{"SUSPENDED", StateStopped},
		{"REPAIRING", InstanceState("REPAIRING")},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StateFromStatus(tt.status), tt.status)
	}
}
