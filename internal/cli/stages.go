package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jengzang/respatch/internal/analysis"
)

// StagesCmd returns the stages command
func StagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the pipeline stages in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, s := range analysis.Stages() {
				fmt.Fprintf(out, "%d  %-18s %s\n", s.Order, s.Name, s.Description)
			}
			return nil
		},
	}
}
