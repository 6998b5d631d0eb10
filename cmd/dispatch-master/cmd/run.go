package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/dispatch/internal/scheduler"
	"github.com/G-Research/dispatch/internal/scheduler/configuration"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the master",
		RunE:  runMaster,
	}
	cmd.Flags().String("queue", "", "Name of the queue, overrides the configured one")
	cmd.Flags().Bool("quiet", false, "Do not log every job assignment")
	return cmd
}

func runMaster(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return scheduler.Run(config)
}

func applyFlags(cmd *cobra.Command, config *configuration.Configuration) {
	if cmd.Flags().Changed("queue") {
		config.Queue, _ = cmd.Flags().GetString("queue")
	}
	if cmd.Flags().Changed("quiet") {
		config.QuietAssignments, _ = cmd.Flags().GetBool("quiet")
	}
}
