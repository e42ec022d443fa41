package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/avkline/enginevm/internal/domain"
)

// Build-time variables injected via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// DefaultAPIBase is the Compute Engine v1 REST endpoint.
const DefaultAPIBase = "https://compute.googleapis.com/compute/v1"

// Config holds everything the operator CLI needs, loaded once from
// environment variables. Components receive it by reference and never read
// process-wide state themselves.
type Config struct {
	// Project is the cloud project instances are created in.
	Project string

	// Zone is the compute zone, e.g. "europe-west2-a".
	Zone string

	// InstanceName is the name of the engine instance.
	InstanceName string

	// MachineType is the machine shape, e.g. "n2-standard-8".
	MachineType string

	// Accelerator optionally attaches GPUs, given as "type:count".
	Accelerator *domain.AcceleratorSpec

	// Image is the boot image reference.
	Image string

	// Model is STANDARD or SPOT.
	Model domain.ProvisioningModel

	// MaxLifetime arms the self-termination guard. Zero disables it.
	MaxLifetime time.Duration

	// GuardURL is where the instance downloads the guard binary from at
	// boot. Required when MaxLifetime is set.
	GuardURL string

	// InstallCommand is the opaque boot-time command that installs the
	// engine on the instance. Its content is configuration, not logic.
	InstallCommand string

	// EngineCommand is the in-instance command the relay executes.
	EngineCommand string

	// ProbeCommand is the cheap remote command used to test readiness.
	ProbeCommand string

	// PollInterval is the fixed delay between readiness probes.
	PollInterval time.Duration

	// ProbeAttempts bounds the readiness poll.
	ProbeAttempts int

	// SSHUser is the remote account commands run as.
	SSHUser string

	// KeyDir holds the management SSH key pair.
	KeyDir string

	// DataDir holds local state, notably the relay target file.
	DataDir string

	// APIBase is the control-plane endpoint. Overridden in tests.
	APIBase string

	// Debug enables verbose logging.
	Debug bool
}

// Load reads the CLI configuration from environment variables, applying
// defaults for anything not explicitly set. Returns an error if required
// values are missing or malformed.
func Load() (*Config, error) {
	home, _ := os.UserHomeDir()

	cfg := &Config{
		InstanceName:  "enginevm",
		MachineType:   "n2-standard-8",
		Image:         "projects/debian-cloud/global/images/family/debian-12",
		Model:         domain.ModelSpot,
		MaxLifetime:   4 * time.Hour,
		EngineCommand: "/opt/engine/stockfish",
		PollInterval:  5 * time.Second,
		ProbeAttempts: 60,
		SSHUser:       "engine",
		KeyDir:        filepath.Join(home, ".enginevm", "ssh"),
		DataDir:       filepath.Join(home, ".enginevm"),
		APIBase:       DefaultAPIBase,
	}

	cfg.Project = strings.TrimSpace(os.Getenv("ENGINEVM_PROJECT"))
	if cfg.Project == "" {
		return nil, fmt.Errorf("ENGINEVM_PROJECT is required")
	}

	cfg.Zone = strings.TrimSpace(os.Getenv("ENGINEVM_ZONE"))
	if cfg.Zone == "" {
		return nil, fmt.Errorf("ENGINEVM_ZONE is required")
	}

	if v := os.Getenv("ENGINEVM_INSTANCE"); v != "" {
		cfg.InstanceName = v
	}

	if v := os.Getenv("ENGINEVM_MACHINE_TYPE"); v != "" {
		cfg.MachineType = v
	}

	if v := os.Getenv("ENGINEVM_ACCELERATOR"); v != "" {
		accel, err := parseAccelerator(v)
		if err != nil {
			return nil, err
		}
		cfg.Accelerator = accel
	}

	if v := os.Getenv("ENGINEVM_IMAGE"); v != "" {
		cfg.Image = v
	}

	if v := os.Getenv("ENGINEVM_MODEL"); v != "" {
		switch domain.ProvisioningModel(v) {
		case domain.ModelStandard, domain.ModelSpot:
			cfg.Model = domain.ProvisioningModel(v)
		default:
			return nil, fmt.Errorf("ENGINEVM_MODEL must be STANDARD or SPOT, got %q", v)
		}
	}

	if v := os.Getenv("ENGINEVM_MAX_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("ENGINEVM_MAX_LIFETIME: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("ENGINEVM_MAX_LIFETIME must not be negative")
		}
		cfg.MaxLifetime = d
	}

	cfg.GuardURL = os.Getenv("ENGINEVM_GUARD_URL")
	if cfg.MaxLifetime > 0 && cfg.GuardURL == "" {
		return nil, fmt.Errorf("ENGINEVM_GUARD_URL is required when a max lifetime is set")
	}

	cfg.InstallCommand = os.Getenv("ENGINEVM_INSTALL_CMD")

	if v := os.Getenv("ENGINEVM_ENGINE_COMMAND"); v != "" {
		cfg.EngineCommand = v
	}

	cfg.ProbeCommand = os.Getenv("ENGINEVM_PROBE_COMMAND")
	if cfg.ProbeCommand == "" {
		cfg.ProbeCommand = "test -x " + cfg.EngineCommand
	}

	if v := os.Getenv("ENGINEVM_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("ENGINEVM_POLL_INTERVAL: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("ENGINEVM_POLL_INTERVAL must be positive")
		}
		cfg.PollInterval = d
	}

	if v := os.Getenv("ENGINEVM_PROBE_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("ENGINEVM_PROBE_ATTEMPTS must be a positive integer, got %q", v)
		}
		cfg.ProbeAttempts = n
	}

	if v := os.Getenv("ENGINEVM_SSH_USER"); v != "" {
		cfg.SSHUser = v
	}

	if v := os.Getenv("ENGINEVM_KEY_DIR"); v != "" {
		cfg.KeyDir = v
	}

	if v := os.Getenv("ENGINEVM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("ENGINEVM_API_BASE"); v != "" {
		cfg.APIBase = v
	}

	cfg.Debug = os.Getenv("ENGINEVM_DEBUG") == "true"

	return cfg, nil
}

// RelayConfig holds the relay's fixed target. The relay takes no arguments;
// everything here comes from the environment or from the target file the CLI
// wrote at create time.
type RelayConfig struct {
	// DataDir is where the target file lives.
	DataDir string

	// Host, User, KeyPath and Command override the target file when all of
	// Host/User/KeyPath are set.
	Host    string
	User    string
	KeyPath string
	Command string

	// ConnectTimeout bounds the single connection attempt.
	ConnectTimeout time.Duration

	Debug bool
}

// Overridden reports whether the environment fully specifies the target,
// making the target file unnecessary.
func (c *RelayConfig) Overridden() bool {
	return c.Host != "" && c.User != "" && c.KeyPath != ""
}

// LoadRelay reads the relay configuration from environment variables.
func LoadRelay() (*RelayConfig, error) {
	home, _ := os.UserHomeDir()

	cfg := &RelayConfig{
		DataDir:        filepath.Join(home, ".enginevm"),
		ConnectTimeout: 10 * time.Second,
	}

	if v := os.Getenv("ENGINEVM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	cfg.Host = os.Getenv("ENGINEVM_TARGET_HOST")
	cfg.User = os.Getenv("ENGINEVM_TARGET_USER")
	cfg.KeyPath = os.Getenv("ENGINEVM_TARGET_KEY")
	cfg.Command = os.Getenv("ENGINEVM_ENGINE_COMMAND")

	if v := os.Getenv("ENGINEVM_CONNECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("ENGINEVM_CONNECT_TIMEOUT: %w", err)
		}
		cfg.ConnectTimeout = d
	}

	cfg.Debug = os.Getenv("ENGINEVM_DEBUG") == "true"

	return cfg, nil
}

// GuardConfig holds the self-termination guard's configuration. The guard
// runs on the instance itself; its identity comes from the metadata server,
// not from here.
type GuardConfig struct {
	// Lifetime is the time from guard start to self-deletion. When zero the
	// guard falls back to the instance's "enginevm-lifetime" metadata
	// attribute.
	Lifetime time.Duration

	// APIBase is the control-plane endpoint. Overridden in tests.
	APIBase string

	// MetadataBase is the metadata server endpoint. Overridden in tests.
	MetadataBase string

	// DeleteRetries bounds retry attempts for the delete-self request.
	DeleteRetries int

	// DeleteRetryWait is the delay between delete retries.
	DeleteRetryWait time.Duration

	// LogDir is the directory for the guard's log file.
	LogDir string
}

// LoadGuard reads the guard configuration from environment variables.
func LoadGuard() (*GuardConfig, error) {
	cfg := &GuardConfig{
		APIBase:         DefaultAPIBase,
		DeleteRetries:   5,
		DeleteRetryWait: 30 * time.Second,
		LogDir:          "/var/log/enginevm",
	}

	if v := os.Getenv("ENGINEVM_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("ENGINEVM_LIFETIME: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("ENGINEVM_LIFETIME must not be negative")
		}
		cfg.Lifetime = d
	}

	if v := os.Getenv("ENGINEVM_API_BASE"); v != "" {
		cfg.APIBase = v
	}

	if v := os.Getenv("ENGINEVM_METADATA_BASE"); v != "" {
		cfg.MetadataBase = v
	}

	if v := os.Getenv("ENGINEVM_DELETE_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("ENGINEVM_DELETE_RETRIES must be a positive integer, got %q", v)
		}
		cfg.DeleteRetries = n
	}

	if v := os.Getenv("ENGINEVM_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}

	return cfg, nil
}

// parseAccelerator parses "type" or "type:count" into an AcceleratorSpec.
func parseAccelerator(v string) (*domain.AcceleratorSpec, error) {
	accel := &domain.AcceleratorSpec{Count: 1}

	parts := strings.SplitN(v, ":", 2)
	accel.Type = strings.TrimSpace(parts[0])
	if accel.Type == "" {
		return nil, fmt.Errorf("ENGINEVM_ACCELERATOR: accelerator type is empty")
	}
	if len(parts) == 2 {
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("ENGINEVM_ACCELERATOR: count must be a positive integer, got %q", parts[1])
		}
		accel.Count = n
	}
	return accel, nil
}

// NewFileLogger creates a structured JSON logger writing to a log file,
// used by the on-instance guard where stdout is not attached to anything.
func NewFileLogger(logDir, name string, debug bool) (*slog.Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	logPath := filepath.Join(logDir, name+".log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", logPath, err)
	}

	return slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level(debug)})), nil
}

// NewStderrLogger creates a text logger on the given writer, used by the CLI
// and the relay. The relay's stdout belongs to the engine protocol and must
// stay clean, so its logs go to stderr only.
func NewStderrLogger(w io.Writer, debug bool) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level(debug)}))
}

func level(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
