package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates and configures the root command
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "taskhost",
		Short:         "Processor host",
		Long:          `Runs continuous, scheduled and queue-driven background processors declared in config.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ./config/config.yaml or ./config.yaml)")

	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newValidateCmd(&configPath))
	rootCmd.AddCommand(newEnqueueCmd(&configPath))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
