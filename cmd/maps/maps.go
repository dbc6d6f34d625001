// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package maps

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/stratastor/mpathd/config"
	"github.com/stratastor/mpathd/pkg/httpclient"
	"github.com/stratastor/mpathd/pkg/multipath"
	"gopkg.in/yaml.v3"
)

const requestTimeout = 10 * time.Second

func NewMapsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maps",
		Short: "Inspect multipath maps and their event waiters",
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newWaiterCmd())
	cmd.AddCommand(newSyncCmd())
	return cmd
}

func client() *httpclient.APIClient {
	return httpclient.NewAPIClient(config.GetConfig().Server.Port)
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List monitored maps",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			list, err := client().ListMaps(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ALIAS\tDEV\tEVENT\tPATHS\tWAITER")
			for _, m := range list.Maps {
				fmt.Fprintf(w, "%s\t%d:%d\t%d\t%d/%d\t%s\n",
					m.Alias, m.Major, m.Minor, m.EventNr,
					m.ActivePaths, m.TotalPaths, waiterState(m))
			}
			w.Flush()
			fmt.Printf("\n%d maps, %d active waiters\n", list.Count, list.ActiveWaiters)
			return nil
		},
	}
}

func waiterState(m multipath.MapView) string {
	if m.Waiter == nil {
		return "-"
	}
	return fmt.Sprintf("running (seq %d)", m.Waiter.EventNr)
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <alias>",
		Short: "Show one map with its path groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			m, err := client().GetMap(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(m)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func newWaiterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waiter",
		Short: "Start or stop the event waiter of a map",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start <alias>",
		Short: "Start monitoring a map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			m, err := client().StartWaiter(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: waiter %s\n", m.Alias, waiterState(*m))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop <alias>",
		Short: "Stop monitoring a map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			m, err := client().StopWaiter(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: waiter stopped\n", m.Alias)
			return nil
		},
	})

	return cmd
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Resynchronize the device table with the kernel",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			res, err := client().TriggerDiscovery(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("added: %v\nremoved: %v\ntotal: %d\n", res.Added, res.Removed, res.Total)
			return nil
		},
	}
}
