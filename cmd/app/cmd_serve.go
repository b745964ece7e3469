package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"NewsSignal/internal/di"
	"NewsSignal/pkg/config"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, consumers and schedulers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}

			app, cleanup, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			defer cleanup()

			// Run blocks until SIGINT/SIGTERM.
			return app.Run(context.Background())
		},
	}
}
