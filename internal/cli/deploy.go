package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/davidthor/platctl/pkg/deploy"
	"github.com/davidthor/platctl/pkg/journal"
	"github.com/davidthor/platctl/pkg/tasks"
	"github.com/davidthor/platctl/pkg/workflow"
)

func newDeployCmd() *cobra.Command {
	var (
		file        string
		dryRun      bool
		autoApprove bool
		noJournal   bool
		metricsFile string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "deploy -f <request>",
		Short: "Run the workflow for a request file",
		Long: `Load a request (YAML, JSON or HCL), compose the workflow for its kind and run
it task by task. The first failing task stops the run; tasks that already
completed are not rolled back, and re-running the request is safe.

HCL requests can read environment variables through the env object, for
example principal { kind = "email" value = env.ANALYST }.`,
		Example: `  platctl deploy -f cluster.yaml
  platctl deploy -f storage.hcl --dry-run
  platctl deploy -f identity.json --auto-approve --metrics-file /var/lib/node_exporter/platctl.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			req, err := deploy.NewLoader().Load(file)
			if err != nil {
				return err
			}

			var components tasks.Components
			if !dryRun {
				if components, err = newComponents(); err != nil {
					return err
				}
			}
			set, err := tasks.NewTaskSet(components)
			if err != nil {
				return err
			}
			wf, err := workflow.Compose(req.Kind, set)
			if err != nil {
				return err
			}

			progress := NewTaskProgress(out)
			progress.PrintPlan(req.Name, wf)
			if dryRun {
				return nil
			}

			if !autoApprove && isInteractive() {
				if !confirm(cmd.InOrStdin(), out, "Proceed?") {
					fmt.Fprintln(out, "Deployment cancelled.")
					return nil
				}
			}

			var journ journal.Manager
			if !noJournal {
				if journ, err = createJournal(cmd); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			metrics := workflow.NewMetrics()
			runner := workflow.NewRunner(workflow.Options{
				Observer: progress,
				Metrics:  metrics,
				Logger:   slog.Default(),
			})

			started := time.Now()
			result, runErr := runner.Run(ctx, wf, req)
			progress.PrintSummary(result, req.Outputs)

			if journ != nil {
				run := journal.NewRun(req, result, runErr, started)
				// a cancelled context must not stop the record being written
				if err := journ.SaveRun(context.WithoutCancel(ctx), run); err != nil {
					slog.Warn("failed to record run", "error", err)
				} else {
					fmt.Fprintf(out, "\nRun %s recorded (platctl history show %s)\n", run.ID, run.ID[:8])
				}
			}

			if metricsFile != "" {
				if err := metrics.WriteTextfile(metricsFile); err != nil {
					slog.Warn("failed to write metrics", "path", metricsFile, "error", err)
				}
			}

			return runErr
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Request file (.yaml, .yml, .json or .hcl)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the composed workflow without running it")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "Do not record the run in the journal")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics for the run to this file")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this long (0 disables)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
