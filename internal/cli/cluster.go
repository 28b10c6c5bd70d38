package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davidthor/platctl/pkg/cluster"
)

func newClusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Inspect and drive a single cluster",
		Long: `Run the cluster reconciler's operations directly. start waits until the
cluster is running; stop requests termination and returns immediately.`,
	}

	cmd.AddCommand(newClusterGetCmd())
	cmd.AddCommand(newClusterFindCmd())
	cmd.AddCommand(newClusterStartCmd())
	cmd.AddCommand(newClusterStopCmd())
	cmd.AddCommand(newClusterPinCmd())

	return cmd
}

func newClusterGetCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "get <cluster-id>",
		Short: "Show a cluster's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutputFormat(outputFormat); err != nil {
				return err
			}
			c, err := newComponents()
			if err != nil {
				return err
			}
			h, err := c.Reconciler.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printCluster(cmd, h, outputFormat)
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", outputTable, "Output format (table, json)")
	return cmd
}

func newClusterFindCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "find <name>",
		Short: "Find a cluster by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutputFormat(outputFormat); err != nil {
				return err
			}
			c, err := newComponents()
			if err != nil {
				return err
			}
			h, err := c.Reconciler.Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printCluster(cmd, h, outputFormat)
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", outputTable, "Output format (table, json)")
	return cmd
}

func newClusterStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <cluster-id>",
		Short: "Start a cluster and wait until it is running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newComponents()
			if err != nil {
				return err
			}
			h, err := c.Reconciler.EnsureRunning(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cluster %s is %s\n", h.ID, h.State)
			return nil
		},
	}
}

func newClusterStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <cluster-id>",
		Short: "Request termination of a running cluster",
		Long: `Request termination of a running cluster. The command does not wait for the
cluster to finish terminating; a cluster that is not running is left alone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newComponents()
			if err != nil {
				return err
			}
			h, err := c.Reconciler.EnsureStopped(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if h.State == cluster.StateRunning {
				fmt.Fprintf(cmd.OutOrStdout(), "Termination of cluster %s requested\n", h.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Cluster %s is %s, nothing to stop\n", h.ID, h.State)
			}
			return nil
		},
	}
}

func newClusterPinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <cluster-id>",
		Short: "Pin a cluster so it is kept after termination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newComponents()
			if err != nil {
				return err
			}
			if err := c.Reconciler.Pin(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cluster %s pinned\n", args[0])
			return nil
		},
	}
}

func printCluster(cmd *cobra.Command, h *cluster.Handle, format string) error {
	if format == outputJSON {
		return printJSON(cmd.OutOrStdout(), h)
	}
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tRAW STATE\tMESSAGE")
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", h.ID, h.Name, h.State, h.RawState, h.StateMessage)
	return tw.Flush()
}
