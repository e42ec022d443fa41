package main

import (
	"github.com/spf13/cobra"
)

func newWaitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wait",
		Short: "Block until the remote engine answers its readiness probe",
		Long: `wait repeatedly runs the configured probe command on the instance until it
exits zero. Connection refusals and non-zero exits both just mean "not yet";
only exhausting the probe budget is reported, as a timeout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			target, err := a.store.Target()
			if err != nil {
				return err
			}
			return waitForReadiness(cmd, a, target)
		},
	}
}
