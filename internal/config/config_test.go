package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avkline/enginevm/internal/domain"
)

// setBaseEnv sets the two required variables and clears every optional one,
// isolating each test from the developer's shell.
func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENGINEVM_PROJECT", "chess-lab")
	t.Setenv("ENGINEVM_ZONE", "europe-west2-a")
	for _, key := range []string{
		"ENGINEVM_INSTANCE", "ENGINEVM_MACHINE_TYPE", "ENGINEVM_ACCELERATOR",
		"ENGINEVM_IMAGE", "ENGINEVM_MODEL", "ENGINEVM_MAX_LIFETIME",
		"ENGINEVM_GUARD_URL", "ENGINEVM_INSTALL_CMD", "ENGINEVM_ENGINE_COMMAND",
		"ENGINEVM_PROBE_COMMAND", "ENGINEVM_POLL_INTERVAL", "ENGINEVM_PROBE_ATTEMPTS",
		"ENGINEVM_SSH_USER", "ENGINEVM_KEY_DIR", "ENGINEVM_DATA_DIR",
		"ENGINEVM_API_BASE", "ENGINEVM_DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadRequiresProjectAndZone(t *testing.T) {
	setBaseEnv(t)

	t.Setenv("ENGINEVM_PROJECT", "")
	_, err := Load()
	require.ErrorContains(t, err, "ENGINEVM_PROJECT")

	t.Setenv("ENGINEVM_PROJECT", "chess-lab")
	t.Setenv("ENGINEVM_ZONE", "")
	_, err = Load()
	require.ErrorContains(t, err, "ENGINEVM_ZONE")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)
	// The default 4h lifetime needs a guard URL.
	t.Setenv("ENGINEVM_GUARD_URL", "https://example.test/enginevm-guard")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "chess-lab", cfg.Project)
	assert.Equal(t, "europe-west2-a", cfg.Zone)
	assert.Equal(t, "enginevm", cfg.InstanceName)
	assert.Equal(t, "n2-standard-8", cfg.MachineType)
	assert.Nil(t, cfg.Accelerator)
	assert.Equal(t, domain.ModelSpot, cfg.Model)
	assert.Equal(t, 4*time.Hour, cfg.MaxLifetime)
	assert.Equal(t, "/opt/engine/stockfish", cfg.EngineCommand)
	assert.Equal(t, "test -x /opt/engine/stockfish", cfg.ProbeCommand)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 60, cfg.ProbeAttempts)
	assert.Equal(t, "engine", cfg.SSHUser)
	assert.Equal(t, DefaultAPIBase, cfg.APIBase)
	assert.False(t, cfg.Debug)
}

func TestLoadLifetimeRequiresGuardURL(t *testing.T) {
	setBaseEnv(t)

	_, err := Load()
	require.ErrorContains(t, err, "ENGINEVM_GUARD_URL")

	// Disabling the guard entirely is fine.
	t.Setenv("ENGINEVM_MAX_LIFETIME", "0s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.MaxLifetime)
}

func TestLoadAccelerator(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENGINEVM_MAX_LIFETIME", "0s")

	t.Setenv("ENGINEVM_ACCELERATOR", "nvidia-tesla-t4:2")
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Accelerator)
	assert.Equal(t, "nvidia-tesla-t4", cfg.Accelerator.Type)
	assert.Equal(t, 2, cfg.Accelerator.Count)

	// Count defaults to 1.
	t.Setenv("ENGINEVM_ACCELERATOR", "nvidia-l4")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Accelerator.Count)

	for _, bad := range []string{":2", "nvidia-l4:0", "nvidia-l4:x"} {
		t.Setenv("ENGINEVM_ACCELERATOR", bad)
		_, err = Load()
		require.Error(t, err, "accelerator %q", bad)
	}
}

func TestLoadRejectsUnknownModel(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENGINEVM_MAX_LIFETIME", "0s")
	t.Setenv("ENGINEVM_MODEL", "PREEMPTIBLE")

	_, err := Load()
	require.ErrorContains(t, err, "ENGINEVM_MODEL")
}

func TestLoadRejectsNegativeLifetime(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENGINEVM_MAX_LIFETIME", "-1h")

	_, err := Load()
	require.ErrorContains(t, err, "ENGINEVM_MAX_LIFETIME")
}

func TestLoadProbeCommandFollowsEngineCommand(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENGINEVM_MAX_LIFETIME", "0s")
	t.Setenv("ENGINEVM_ENGINE_COMMAND", "/usr/local/bin/lc0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "test -x /usr/local/bin/lc0", cfg.ProbeCommand)

	t.Setenv("ENGINEVM_PROBE_COMMAND", "pgrep lc0")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "pgrep lc0", cfg.ProbeCommand)
}

func TestLoadRelayOverride(t *testing.T) {
	t.Setenv("ENGINEVM_DATA_DIR", "/tmp/enginevm-test")
	t.Setenv("ENGINEVM_TARGET_HOST", "")
	t.Setenv("ENGINEVM_TARGET_USER", "")
	t.Setenv("ENGINEVM_TARGET_KEY", "")
	t.Setenv("ENGINEVM_ENGINE_COMMAND", "")
	t.Setenv("ENGINEVM_CONNECT_TIMEOUT", "")
	t.Setenv("ENGINEVM_DEBUG", "")

	cfg, err := LoadRelay()
	require.NoError(t, err)
	assert.False(t, cfg.Overridden())
	assert.Equal(t, "/tmp/enginevm-test", cfg.DataDir)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)

	// A partial override is not an override.
	t.Setenv("ENGINEVM_TARGET_HOST", "203.0.113.10")
	cfg, err = LoadRelay()
	require.NoError(t, err)
	assert.False(t, cfg.Overridden())

	t.Setenv("ENGINEVM_TARGET_USER", "engine")
	t.Setenv("ENGINEVM_TARGET_KEY", "/tmp/key")
	cfg, err = LoadRelay()
	require.NoError(t, err)
	assert.True(t, cfg.Overridden())
}

func TestLoadGuard(t *testing.T) {
	t.Setenv("ENGINEVM_LIFETIME", "")
	t.Setenv("ENGINEVM_API_BASE", "")
	t.Setenv("ENGINEVM_METADATA_BASE", "")
	t.Setenv("ENGINEVM_DELETE_RETRIES", "")
	t.Setenv("ENGINEVM_LOG_DIR", "")

	cfg, err := LoadGuard()
	require.NoError(t, err)
	assert.Zero(t, cfg.Lifetime)
	assert.Equal(t, DefaultAPIBase, cfg.APIBase)
	assert.Equal(t, 5, cfg.DeleteRetries)
	assert.Equal(t, 30*time.Second, cfg.DeleteRetryWait)

	t.Setenv("ENGINEVM_LIFETIME", "2h30m")
	t.Setenv("ENGINEVM_DELETE_RETRIES", "10")
	cfg, err = LoadGuard()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour+30*time.Minute, cfg.Lifetime)
	assert.Equal(t, 10, cfg.DeleteRetries)

	t.Setenv("ENGINEVM_LIFETIME", "-5m")
	_, err = LoadGuard()
	require.Error(t, err)
}
