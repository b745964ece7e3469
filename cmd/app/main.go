package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "newssignal",
		Short: "Financial news signal engine",
		Long: `NewsSignal scores financial news statements for market relevance,
sentiment and disruption, and turns them into BUY/SELL/HOLD/NEUTRAL decisions
with debounced notifications.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	root.AddCommand(newServeCmd(), newAnalyzeCmd(), newDecideCmd(), newEnqueueCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
