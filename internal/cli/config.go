// Package cli implements the respatch commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/jengzang/respatch/internal/config"
	"github.com/jengzang/respatch/internal/logging"
)

// configFlag registers the --config flag shared by every command
func configFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", "", "config file (default $RESPATCH_CONFIG or ./respatch.yaml)")
}

// loadConfig loads the configuration and configures the global logger
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.LoggerConfig())
	return cfg, nil
}
