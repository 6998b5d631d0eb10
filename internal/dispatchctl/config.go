package dispatchctl

import (
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// LoadCommandlineArgsFromConfigFile merges cfgFile, or ~/.dispatchctl.yaml when cfgFile is empty,
// into the global viper instance. A missing default file is not an error.
func LoadCommandlineArgsFromConfigFile(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.Wrap(err, "[LoadCommandlineArgsFromConfigFile] error getting user home directory")
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".dispatchctl")
	}

	viper.SetEnvPrefix("DISPATCHCTL")
	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrapf(err, "[LoadCommandlineArgsFromConfigFile] error reading config file %s", viper.ConfigFileUsed())
	}
	return nil
}
