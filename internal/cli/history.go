package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/davidthor/platctl/pkg/deploy"
	"github.com/davidthor/platctl/pkg/journal"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded workflow runs",
		Long:  `Inspect the run journal written by platctl deploy.`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDeleteCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var (
		kind         string
		name         string
		limit        int
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recorded runs, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutputFormat(outputFormat); err != nil {
				return err
			}
			j, err := createJournal(cmd)
			if err != nil {
				return err
			}
			runs, err := j.ListRuns(cmd.Context(), journal.Filter{Kind: deploy.Kind(kind), Name: name, Limit: limit})
			if err != nil {
				return err
			}

			if outputFormat == outputJSON {
				return printJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tKIND\tNAME\tSTATUS\tSTARTED\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID[:min(8, len(r.ID))], r.Kind, r.Name, r.Status,
					r.StartedAt.Local().Format(time.DateTime),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only runs of this request kind")
	cmd.Flags().StringVar(&name, "name", "", "Only runs of this request name")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 for all)")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", outputTable, "Output format (table, json)")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run's tasks and outputs",
		Long:  `Show one run's tasks and outputs. A unique prefix of the run id is enough.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutputFormat(outputFormat); err != nil {
				return err
			}
			j, err := createJournal(cmd)
			if err != nil {
				return err
			}
			run, err := j.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outputFormat == outputJSON {
				return printJSON(cmd.OutOrStdout(), run)
			}
			printRun(cmd, run)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", outputTable, "Output format (table, json)")
	return cmd
}

func newHistoryDeleteCmd() *cobra.Command {
	var autoApprove bool

	cmd := &cobra.Command{
		Use:     "delete <run-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a recorded run",
		Long:    `Delete one run record from the journal. A unique prefix of the run id is enough.`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := createJournal(cmd)
			if err != nil {
				return err
			}
			run, err := j.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !autoApprove && isInteractive() {
				q := fmt.Sprintf("Delete run %s (%s, %s)?", run.ID, run.Name, run.Status)
				if !confirm(cmd.InOrStdin(), out, q) {
					fmt.Fprintln(out, "Delete cancelled")
					return nil
				}
			}

			if err := j.DeleteRun(cmd.Context(), run.ID); err != nil {
				return err
			}
			fmt.Fprintf(out, "Deleted run %s\n", run.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip confirmation prompt")
	return cmd
}

func printRun(cmd *cobra.Command, run *journal.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Request:  %s (%s)\n", run.Name, run.Kind)
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "Finished: %s\n", run.FinishedAt.Local().Format(time.RFC3339))
	if run.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", run.Error)
	}

	fmt.Fprintln(out, "\nTasks:")
	tw := newTable(out)
	for _, t := range run.Tasks {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", t.Name, t.Status, t.Duration.Round(time.Millisecond), t.Error)
	}
	_ = tw.Flush()

	if len(run.Outputs) > 0 {
		fmt.Fprintln(out, "\nOutputs:")
		keys := make([]string, 0, len(run.Outputs))
		for k := range run.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s = %s\n", k, run.Outputs[k])
		}
	}
}
