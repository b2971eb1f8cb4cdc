package main

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgPath string
	devMode bool
)

var rootCmd = &cobra.Command{
	Use:   "tcross",
	Short: "T-Cross Assistant: safe question answering about the VW T-Cross",
	Long: `tcross answers questions about the Volkswagen T-Cross. Every message goes
through rate limiting, validation and prompt protection before it reaches
the configured model provider.

Examples:
  tcross serve                      HTTP API (and the Telegram bot when configured)
  tcross chat                       Interactive chat in the terminal
  tcross index manual/*.txt         Build the manual index used for context`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "developer mode (console logs, unredacted message logging)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(indexCmd)
}
