package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/dispatch/internal/dispatchctl"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dispatchctl",
		SilenceUsage: true,
		Short:        "dispatchctl queries a running dispatch master.",
	}

	cmd.PersistentFlags().String("url", "localhost:50051", "address of the dispatch master")
	cmd.PersistentFlags().Duration("timeout", 10*time.Second, "deadline for connecting to and querying the master")
	cmd.PersistentFlags().String("config", "", "config file (default is $HOME/.dispatchctl.yaml)")
	_ = viper.BindPFlag("url", cmd.PersistentFlags().Lookup("url"))
	_ = viper.BindPFlag("timeout", cmd.PersistentFlags().Lookup("timeout"))

	cmd.AddCommand(
		workersCmd(dispatchctl.New()),
		statusCmd(dispatchctl.New()),
		remainingCmd(dispatchctl.New()),
	)

	return cmd
}

func initParams(cmd *cobra.Command, params *dispatchctl.Params) error {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if err := dispatchctl.LoadCommandlineArgsFromConfigFile(configFile); err != nil {
		return err
	}
	params.MasterUrl = viper.GetString("url")
	params.Timeout = viper.GetDuration("timeout")
	if params.WithClient == nil {
		params.WithClient = dispatchctl.Connect(params.MasterUrl, params.Timeout)
	}
	return nil
}
