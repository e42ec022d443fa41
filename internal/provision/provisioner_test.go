package provision_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avkline/enginevm/internal/domain"
	"github.com/avkline/enginevm/internal/gce"
	"github.com/avkline/enginevm/internal/gce/gcetest"
	"github.com/avkline/enginevm/internal/provision"
)

const (
	project = "chess-lab"
	zone    = "europe-west2-a"
)

func newTestProvisioner(t *testing.T) (*provision.Provisioner, *gcetest.Server) {
	t.Helper()
	srv := gcetest.NewServer()
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := gce.NewClient(srv.URL(), gce.StaticTokenSource("test-token"), logger)
	return provision.New(client, logger), srv
}

func testSpec(name string) domain.InstanceSpec {
	return domain.InstanceSpec{
		Name:        name,
		Project:     project,
		Zone:        zone,
		MachineType: "n2-standard-8",
		Image:       "projects/debian-cloud/global/images/family/debian-12",
		Model:       domain.ModelSpot,
	}
}

func testOptions() provision.CreateOptions {
	return provision.CreateOptions{
		SSHUser:        "engine",
		AuthorizedKey:  "ssh-ed25519 AAAA enginevm-management",
		InstallCommand: "curl -fsSL https://example.test/install-engine.sh | bash",
		GuardURL:       "https://example.test/enginevm-guard",
	}
}

func TestCreateReturnsRunningInstance(t *testing.T) {
	prov, _ := newTestProvisioner(t)

	inst, err := prov.Create(context.Background(), testSpec("sf-test"), testOptions())
	require.NoError(t, err)

	assert.Equal(t, "sf-test", inst.Name)
	assert.Equal(t, domain.StateRunning, inst.State)
	assert.Equal(t, "203.0.113.10", inst.ExternalIP)
	assert.Equal(t, project, inst.Project)
	assert.Equal(t, zone, inst.Zone)
}

func TestCreateEmbedsBootActions(t *testing.T) {
	prov, srv := newTestProvisioner(t)

	spec := testSpec("sf-test")
	spec.MaxLifetime = 4 * time.Hour
	_, err := prov.Create(context.Background(), spec, testOptions())
	require.NoError(t, err)

	stored := srv.Instance(project, zone, "sf-test")
	require.NotNil(t, stored)

	assert.Equal(t, "engine:ssh-ed25519 AAAA enginevm-management", stored.MetadataValue("ssh-keys"))
	assert.Equal(t, "4h0m0s", stored.MetadataValue("enginevm-lifetime"))

	script := stored.MetadataValue("startup-script")
	assert.Contains(t, script, "#!/bin/bash")
	assert.Contains(t, script, "curl -fsSL https://example.test/install-engine.sh | bash")
	assert.Contains(t, script, "https://example.test/enginevm-guard")
	assert.Contains(t, script, "ENGINEVM_LIFETIME=4h0m0s")

	require.NotNil(t, stored.Scheduling)
	assert.Equal(t, "SPOT", stored.Scheduling.ProvisioningModel)
	assert.Equal(t, "DELETE", stored.Scheduling.InstanceTerminationAction)
}

func TestCreateWithoutLifetimeSkipsGuard(t *testing.T) {
	prov, srv := newTestProvisioner(t)

	_, err := prov.Create(context.Background(), testSpec("sf-test"), testOptions())
	require.NoError(t, err)

	stored := srv.Instance(project, zone, "sf-test")
	require.NotNil(t, stored)
	assert.Empty(t, stored.MetadataValue("enginevm-lifetime"))
	assert.NotContains(t, stored.MetadataValue("startup-script"), "enginevm-guard")
}

func TestCreateWithAccelerator(t *testing.T) {
	prov, srv := newTestProvisioner(t)

	spec := testSpec("sf-test")
	spec.Accelerator = &domain.AcceleratorSpec{Type: "nvidia-tesla-t4", Count: 2}
	_, err := prov.Create(context.Background(), spec, testOptions())
	require.NoError(t, err)

	stored := srv.Instance(project, zone, "sf-test")
	require.NotNil(t, stored)
	require.Len(t, stored.GuestAccelerators, 1)
	assert.Equal(t, "zones/"+zone+"/acceleratorTypes/nvidia-tesla-t4", stored.GuestAccelerators[0].AcceleratorType)
	assert.Equal(t, 2, stored.GuestAccelerators[0].AcceleratorCount)

	// GPU instances cannot live-migrate.
	require.NotNil(t, stored.Scheduling)
	assert.Equal(t, "TERMINATE", stored.Scheduling.OnHostMaintenance)
}

func TestCreateDuplicateDoesNotCreateSecondResource(t *testing.T) {
	prov, srv := newTestProvisioner(t)
	ctx := context.Background()

	_, err := prov.Create(ctx, testSpec("sf-test"), testOptions())
	require.NoError(t, err)

	_, err = prov.Create(ctx, testSpec("sf-test"), testOptions())
	var exists domain.AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, 1, srv.InstanceCount())
}

func TestCreateInvalidSpecFailsBeforeAnyResource(t *testing.T) {
	prov, srv := newTestProvisioner(t)

	spec := testSpec("")
	_, err := prov.Create(context.Background(), spec, testOptions())

	var invalid domain.InvalidSpecError
	require.ErrorAs(t, err, &invalid)
	assert.Zero(t, srv.InstanceCount())
}

func TestCreateLifetimeRequiresGuardURL(t *testing.T) {
	prov, srv := newTestProvisioner(t)

	spec := testSpec("sf-test")
	spec.MaxLifetime = time.Hour
	opts := testOptions()
	opts.GuardURL = ""

	_, err := prov.Create(context.Background(), spec, opts)
	var invalid domain.InvalidSpecError
	require.ErrorAs(t, err, &invalid)
	assert.Zero(t, srv.InstanceCount())
}

func TestDeleteAbsentSucceeds(t *testing.T) {
	prov, _ := newTestProvisioner(t)

	require.NoError(t, prov.Delete(context.Background(), project, zone, "never-created"))
}

func TestGetAbsentReportsState(t *testing.T) {
	prov, _ := newTestProvisioner(t)

	inst, err := prov.Get(context.Background(), project, zone, "nope")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAbsent, inst.State)
	assert.Equal(t, "nope", inst.Name)
}

func TestListSnapshot(t *testing.T) {
	prov, _ := newTestProvisioner(t)
	ctx := context.Background()

	_, err := prov.Create(ctx, testSpec("sf-a"), testOptions())
	require.NoError(t, err)
	_, err = prov.Create(ctx, testSpec("sf-b"), testOptions())
	require.NoError(t, err)

	instances, err := prov.List(ctx, project, zone, "")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	for _, inst := range instances {
		assert.Equal(t, domain.StateRunning, inst.State)
		assert.NotEmpty(t, inst.ExternalIP)
	}
}
