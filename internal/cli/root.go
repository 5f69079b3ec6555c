package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

// RootCmd returns the respatch command with every subcommand attached
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "respatch",
		Short:   "Residence patches from animal tracking data",
		Version: Version,
		Long: `respatch turns high-frequency tracking fixes into residence patches:
spatially bounded, temporally contiguous stops aligned to tidal cycles.`,
		SilenceUsage: true,
	}

	root.AddCommand(RunCmd())
	root.AddCommand(StagesCmd())
	root.AddCommand(ServeCmd())

	return root
}
