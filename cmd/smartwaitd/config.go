package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openclaw/smartwaitd/internal/config"
)

const defaultConfigPath = "./config.toml"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Validate and inspect smartwaitd configuration.`,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file and check for errors.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		configPath := defaultConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}

		if errs := cfg.Validate(); len(errs) > 0 {
			fmt.Println("Configuration validation failed:")
			for i, e := range errs {
				fmt.Printf("  %d. %v\n", i+1, e)
			}
			os.Exit(1)
		}

		fmt.Printf("Configuration %s is valid\n", configPath)
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
