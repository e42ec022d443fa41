package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/avkline/enginevm/internal/domain"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the engine instance (keeps its disk, stops most billing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			if err := a.prov.Stop(cmd.Context(), a.cfg.Project, a.cfg.Zone, a.cfg.InstanceName); err != nil {
				return err
			}
			fmt.Printf("stop requested for %s\n", a.cfg.InstanceName)
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the engine instance",
		Long: `delete removes the instance. Deleting an instance that is already gone is
not an error, so this is always safe to run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			if err := a.prov.Delete(cmd.Context(), a.cfg.Project, a.cfg.Zone, a.cfg.InstanceName); err != nil {
				return err
			}
			if err := a.store.ClearTarget(); err != nil {
				a.logger.Warn("failed to clear relay target", "err", err)
			}
			fmt.Printf("delete requested for %s\n", a.cfg.InstanceName)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List instances in the configured project and zone",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			instances, err := a.prov.List(cmd.Context(), a.cfg.Project, a.cfg.Zone, filter)
			if err != nil {
				return err
			}
			if len(instances) == 0 {
				fmt.Println("no instances found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATE\tEXTERNAL IP\tAGE")
			for _, inst := range instances {
				age := "-"
				if !inst.CreatedAt.IsZero() {
					age = humanize.Time(inst.CreatedAt)
				}
				ip := inst.ExternalIP
				if ip == "" {
					ip = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", inst.Name, inst.State, ip, age)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "control-plane filter expression, e.g. 'name = \"enginevm\"'")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the engine instance's control-plane state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			inst, err := a.prov.Get(cmd.Context(), a.cfg.Project, a.cfg.Zone, a.cfg.InstanceName)
			if err != nil {
				return err
			}

			fmt.Printf("instance:    %s\n", inst.Name)
			fmt.Printf("zone:        %s\n", inst.Zone)
			fmt.Printf("state:       %s\n", inst.State)
			if inst.State == domain.StateAbsent {
				return nil
			}
			if inst.ExternalIP != "" {
				fmt.Printf("external ip: %s\n", inst.ExternalIP)
			}
			if !inst.CreatedAt.IsZero() {
				fmt.Printf("created:     %s (%s)\n", inst.CreatedAt.Format("2006-01-02 15:04:05 MST"), humanize.Time(inst.CreatedAt))
			}
			return nil
		},
	}
}
