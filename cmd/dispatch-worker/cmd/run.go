package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/dispatch/internal/worker"
	"github.com/G-Research/dispatch/internal/worker/configuration"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Registers with the master and works through its jobs",
		RunE:  runWorker,
	}
	cmd.Flags().String("master", "", "Address of the master, overrides the configured one")
	return cmd
}

func runWorker(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return worker.Run(config)
}

func applyFlags(cmd *cobra.Command, config *configuration.Configuration) {
	if cmd.Flags().Changed("master") {
		config.MasterUrl, _ = cmd.Flags().GetString("master")
	}
}
