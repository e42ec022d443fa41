package main

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/avkline/enginevm/internal/remote"
)

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ssh",
		Short: "Open a diagnostic shell on the engine instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			target, err := a.store.Target()
			if err != nil {
				return err
			}

			sshArgs := remote.ShellArgs(remote.Target{
				Host:    target.Host,
				User:    target.User,
				KeyPath: target.KeyPath,
			})

			c := exec.CommandContext(cmd.Context(), "ssh", sshArgs...)
			c.Stdin = os.Stdin
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			if err := c.Run(); err != nil {
				if exitErr, ok := err.(*exec.ExitError); ok {
					os.Exit(exitErr.ExitCode())
				}
				return err
			}
			return nil
		},
	}
}
