// The guard runs on the instance itself, not on the client. Once armed it
// cannot be cancelled or extended remotely: it sleeps out its configured
// lifetime and then deletes the instance it is running on, using only the
// identity and credentials the metadata server gives it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/avkline/enginevm/internal/config"
	"github.com/avkline/enginevm/internal/gce"
	"github.com/avkline/enginevm/internal/guard"
	"github.com/avkline/enginevm/internal/metadata"
)

func main() {
	cfg, err := config.LoadGuard()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewFileLogger(cfg.LogDir, "guard", false)
	if err != nil {
		// No log dir is not a reason to leave the instance unguarded.
		logger = config.NewStderrLogger(os.Stderr, false)
		logger.Warn("falling back to stderr logging", "err", err)
	}

	logger.Info("starting enginevm-guard",
		"version", config.Version,
		"build_time", config.BuildTime,
	)

	ctx := context.Background()
	meta := metadata.NewClient(cfg.MetadataBase)

	lifetime, err := resolveLifetime(ctx, cfg, meta, logger)
	if err != nil {
		logger.Error("cannot resolve lifetime", "err", err)
		os.Exit(1)
	}
	if lifetime == 0 {
		logger.Info("no lifetime configured, guard not needed")
		return
	}

	client := gce.NewClient(cfg.APIBase, gce.NewMetadataTokenSource(meta), logger)
	g := guard.New(client, meta, lifetime, cfg.DeleteRetries, cfg.DeleteRetryWait, logger)

	// Deliberately no signal handling for cancellation: the guard is a
	// one-way safety valve. Killing the process is the only way out, and
	// only from inside the instance.
	if err := g.Run(ctx); err != nil {
		logger.Error("guard exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("guard done, instance deletion acknowledged")
}

// resolveLifetime takes the lifetime from the environment, falling back to
// the instance attribute the provisioner set, so the guard also works when
// started generically.
func resolveLifetime(ctx context.Context, cfg *config.GuardConfig, meta *metadata.Client, logger *slog.Logger) (time.Duration, error) {
	if cfg.Lifetime > 0 {
		return cfg.Lifetime, nil
	}

	v, err := meta.InstanceAttribute(ctx, "enginevm-lifetime")
	if err != nil {
		// The attribute is only set when a lifetime was configured.
		logger.Debug("no lifetime attribute", "err", err)
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse enginevm-lifetime attribute %q: %w", v, err)
	}
	return d, nil
}
