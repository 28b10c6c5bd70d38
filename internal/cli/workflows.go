package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davidthor/platctl/pkg/workflow"
)

func newWorkflowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workflows",
		Short: "Print the task list of every request kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for i, kind := range workflow.Kinds() {
				names, err := workflow.Definition(kind)
				if err != nil {
					return err
				}
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "%s:\n", kind)
				for n, name := range names {
					fmt.Fprintf(out, "  %d. %s\n", n+1, name)
				}
			}
			return nil
		},
	}
}
