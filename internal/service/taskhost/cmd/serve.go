package main

import (
	"fmt"

	"taskhost/internal/pkg/config"
	"taskhost/internal/service/taskhost"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// newServeCmd creates the serve command
func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the processor host and the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, *configPath)
		},
	}
}

// runServer starts the host and blocks until a shutdown signal
func runServer(cmd *cobra.Command, configPath string) error {
	var cfg *config.Config
	app := fx.New(
		taskhost.App(configPath),
		fx.NopLogger,
		fx.Populate(&cfg),
	)

	if err := startApp(app, "taskhost"); err != nil {
		return err
	}

	if cfg.Server.Enabled {
		fmt.Fprintf(cmd.OutOrStdout(), "taskhost started; status API on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "taskhost started")
	}
	<-app.Done()

	return stopApp(app, "taskhost")
}
