package main

import (
	"context"
	"fmt"
	"time"

	"taskhost/internal/pkg/queue"
	"taskhost/internal/service/taskhost"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// newEnqueueCmd creates the enqueue command
func newEnqueueCmd(configPath *string) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "enqueue <queue> <body>",
		Short: "Put a message on a configured queue",
		Long: `Put a message on a configured queue. Only queues with a shared backend
(redis) are visible to a running host; memory queues live in this process only.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var queues *queue.Registry
			app := fx.New(
				taskhost.QueueApp(*configPath),
				fx.NopLogger,
				fx.Populate(&queues),
			)
			if err := startApp(app, "enqueue"); err != nil {
				return err
			}
			defer func() { _ = stopApp(app, "enqueue") }()

			q, err := queues.Resolve(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			msg, err := q.Put(ctx, args[1], ttl)
			if err != nil {
				return fmt.Errorf("failed to enqueue: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "enqueued message %s on %s\n", msg.ID, q.Name())
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "message time to live (0 keeps it until processed)")

	return cmd
}
