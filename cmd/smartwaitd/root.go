package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smartwaitd",
	Short: "smartwaitd - visual smart-wait daemon for autonomous agents",
	Long: `smartwaitd watches screens so an agent doesn't have to. Register a
natural-language condition plus a timeout, go do other work, and the daemon
polls the display, asks a vision model whether the condition holds, and wakes
the agent exactly once when it does (or when time runs out).`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(waitCmd)
}
