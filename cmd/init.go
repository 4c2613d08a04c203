package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/flowsym/lint"
)

// initCmd: flowsym init
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file listing every rule with its default severity",
	Run: func(cmd *cobra.Command, args []string) {
		path, err := initConfigurationFile(cfgFile)
		if err != nil {
			logger.Error("Error initializing config file", zap.Error(err))
			return
		}
		fmt.Printf("Configuration file created/updated: %s\n", path)
	},
}

func initConfigurationFile(configurationPath string) (string, error) {
	if configurationPath == "" {
		configurationPath = lint.DefaultConfigurationFile
	}
	return configurationPath, lint.WriteConfig(configurationPath, lint.DefaultConfig())
}
