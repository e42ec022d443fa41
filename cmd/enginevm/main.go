package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avkline/enginevm/internal/config"
	"github.com/avkline/enginevm/internal/gce"
	"github.com/avkline/enginevm/internal/provision"
	"github.com/avkline/enginevm/internal/storage"
)

// app bundles the wired components every subcommand needs. Configuration is
// loaded exactly once, here, and passed down by reference.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	prov   *provision.Provisioner
	store  *storage.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger := config.NewStderrLogger(os.Stderr, cfg.Debug)

	store, err := storage.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	client := gce.NewClient(cfg.APIBase, gce.NewGcloudTokenSource(), logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		prov:   provision.New(client, logger),
		store:  store,
	}, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	rootCmd := &cobra.Command{
		Use:   "enginevm",
		Short: "Provision and manage cloud-hosted UCI engine instances",
		Long: `enginevm provisions short-lived compute instances running a UCI engine,
waits for the engine to become ready, and manages teardown. The companion
relay binary makes the remote engine look like a local executable.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newCreateCmd(),
		newStopCmd(),
		newDeleteCmd(),
		newListCmd(),
		newStatusCmd(),
		newWaitCmd(),
		newShellCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("enginevm %s (built %s)\n", config.Version, config.BuildTime)
		},
	}
}
