package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/avkline/enginevm/internal/domain"
	"github.com/avkline/enginevm/internal/provision"
	"github.com/avkline/enginevm/internal/readiness"
	"github.com/avkline/enginevm/internal/remote"
	"github.com/avkline/enginevm/internal/sshkey"
	"github.com/avkline/enginevm/internal/storage"
)

func newCreateCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the engine instance and record the relay target",
		Long: `create submits the configured instance spec to the control plane. Success
means the instance is accepted, booting, and billing. Pass --wait to
block until the engine answers its readiness probe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			keys, err := sshkey.Ensure(a.cfg.KeyDir)
			if err != nil {
				return fmt.Errorf("prepare management key: %w", err)
			}
			authorizedKey, err := keys.AuthorizedKey()
			if err != nil {
				return err
			}

			spec := domain.InstanceSpec{
				Name:        a.cfg.InstanceName,
				Project:     a.cfg.Project,
				Zone:        a.cfg.Zone,
				MachineType: a.cfg.MachineType,
				Accelerator: a.cfg.Accelerator,
				Image:       a.cfg.Image,
				Model:       a.cfg.Model,
				MaxLifetime: a.cfg.MaxLifetime,
			}

			inst, err := a.prov.Create(ctx, spec, provision.CreateOptions{
				SSHUser:        a.cfg.SSHUser,
				AuthorizedKey:  authorizedKey,
				InstallCommand: a.cfg.InstallCommand,
				GuardURL:       a.cfg.GuardURL,
			})
			if err != nil {
				var exists domain.AlreadyExistsError
				if errors.As(err, &exists) {
					return fmt.Errorf("%w (delete it first, or pick another ENGINEVM_INSTANCE)", err)
				}
				return err
			}

			target := &storage.Target{
				Project:       inst.Project,
				Zone:          inst.Zone,
				Instance:      inst.Name,
				Host:          inst.ExternalIP,
				User:          a.cfg.SSHUser,
				KeyPath:       keys.PrivateKeyPath,
				EngineCommand: a.cfg.EngineCommand,
				CreatedAt:     time.Now(),
			}
			if err := a.store.SaveTarget(target); err != nil {
				return err
			}

			fmt.Printf("instance %s created in %s (%s), external IP %s\n",
				inst.Name, inst.Zone, inst.State, inst.ExternalIP)
			if a.cfg.MaxLifetime > 0 {
				fmt.Printf("self-termination guard armed: the instance deletes itself after %s\n",
					a.cfg.MaxLifetime)
			} else {
				fmt.Println("warning: no max lifetime configured, remember to delete the instance")
			}

			if !wait {
				fmt.Println("run `enginevm wait` to block until the engine is ready")
				return nil
			}
			return waitForReadiness(cmd, a, target)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "block until the engine answers its readiness probe")
	return cmd
}

// waitForReadiness polls the configured probe command over SSH until the
// engine answers or the attempt budget runs out.
func waitForReadiness(cmd *cobra.Command, a *app, target *storage.Target) error {
	exec := remote.NewExecutor(remote.Target{
		Host:    target.Host,
		User:    target.User,
		KeyPath: target.KeyPath,
	}, 0)

	probe := readiness.ProbeFunc(func(ctx context.Context) error {
		code, _, err := exec.Run(ctx, a.cfg.ProbeCommand)
		if err != nil {
			return err
		}
		if code != 0 {
			return fmt.Errorf("probe exited %d", code)
		}
		return nil
	})

	s := spinner.New(spinner.CharSets[9], 200*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Waiting for %s to become ready ...", target.Instance)
	s.Start()
	err := readiness.NewPoller(a.logger).WaitReady(cmd.Context(), probe, a.cfg.PollInterval, a.cfg.ProbeAttempts)
	s.Stop()

	if err != nil {
		if errors.Is(err, readiness.ErrTimedOut) {
			return fmt.Errorf("engine did not become ready within %d probes at %s intervals (the instance keeps running and billing)",
				a.cfg.ProbeAttempts, a.cfg.PollInterval)
		}
		return err
	}

	fmt.Println("engine is ready; the relay binary will now connect to it")
	return nil
}
