// The relay is the "engine binary" a chess GUI actually launches: it takes
// no arguments, bridges its own stdin/stdout to the remote engine over SSH,
// and exits with the remote engine's exit code. Its target comes from the
// environment or from the target file `enginevm create` wrote.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/avkline/enginevm/internal/config"
	"github.com/avkline/enginevm/internal/relay"
	"github.com/avkline/enginevm/internal/remote"
	"github.com/avkline/enginevm/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Stdout belongs to the engine protocol; everything else goes to stderr.
	cfg, err := config.LoadRelay()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return relay.ExitTransportFailure
	}
	logger := config.NewStderrLogger(os.Stderr, cfg.Debug)

	target, command, err := resolveTarget(cfg)
	if err != nil {
		logger.Error("cannot resolve relay target", "err", err)
		return relay.ExitTransportFailure
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	exec := remote.NewExecutor(target, cfg.ConnectTimeout)
	return relay.New(logger).Run(ctx, sessionStarter{exec}, command, os.Stdin, os.Stdout, os.Stderr)
}

// resolveTarget prefers a fully specified environment override, otherwise
// reads the target file written at create time.
func resolveTarget(cfg *config.RelayConfig) (remote.Target, string, error) {
	if cfg.Overridden() {
		if cfg.Command == "" {
			return remote.Target{}, "", fmt.Errorf("ENGINEVM_ENGINE_COMMAND is required with a target override")
		}
		return remote.Target{Host: cfg.Host, User: cfg.User, KeyPath: cfg.KeyPath}, cfg.Command, nil
	}

	store, err := storage.NewStore(cfg.DataDir)
	if err != nil {
		return remote.Target{}, "", err
	}
	t, err := store.Target()
	if err != nil {
		return remote.Target{}, "", err
	}

	command := t.EngineCommand
	if cfg.Command != "" {
		command = cfg.Command
	}
	return remote.Target{Host: t.Host, User: t.User, KeyPath: t.KeyPath}, command, nil
}

// sessionStarter adapts the executor's concrete session to the relay's
// interface.
type sessionStarter struct {
	exec *remote.Executor
}

func (s sessionStarter) Start(ctx context.Context, command string) (relay.Session, error) {
	sess, err := s.exec.Start(ctx, command)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
