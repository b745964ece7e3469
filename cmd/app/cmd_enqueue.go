package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"NewsSignal/internal/di"
	"NewsSignal/internal/usecase"
	"NewsSignal/pkg/config"
	"NewsSignal/pkg/queue"
)

func newEnqueueCmd() *cobra.Command {
	var f oneShotFlags
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Push statements onto the Redis intake queue",
		Long: `Push a batch of statements onto the Redis queue a running server
decides from, then print the message id and the queue depth.

Example usage:
  newssignal enqueue --text "Fed signals rate cut" --source Reuters`,
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := f.statements(cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			if !cfg.Redis.Enabled {
				return fmt.Errorf("enqueue needs redis.enabled")
			}
			rc, cleanup, err := di.ProvideRedisCache(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			q := queue.New(rc.Client(), queue.Config{}, queue.WithKeyPrefix(cfg.Queue.Prefix))
			id, err := q.Enqueue(cmd.Context(), usecase.DecideJobType, batch)
			if err != nil {
				return err
			}
			pending, retry, dead, err := q.Depth(cmd.Context())
			if err != nil {
				return err
			}
			return f.write(cmd.OutOrStdout(), map[string]any{
				"id":      id,
				"pending": pending,
				"retry":   retry,
				"dead":    dead,
			})
		},
	}
	f.register(cmd)
	return cmd
}
