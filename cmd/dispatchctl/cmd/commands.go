package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/dispatch/internal/dispatchctl"
)

func workersCmd(a *dispatchctl.App) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List the workers registered with the master",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Workers()
		},
	}
}

func statusCmd(a *dispatchctl.App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the progress of the master's queue",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Status()
		},
	}
}

func remainingCmd(a *dispatchctl.App) *cobra.Command {
	return &cobra.Command{
		Use:   "remaining",
		Short: "Print the number of jobs not yet done",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Remaining()
		},
	}
}
