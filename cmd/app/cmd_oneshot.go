package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"NewsSignal/internal/di"
	"NewsSignal/internal/domain/models"
	"NewsSignal/internal/usecase"
	"NewsSignal/pkg/config"
)

type oneShotFlags struct {
	input  string
	text   string
	source string
	pretty bool
}

func (f *oneShotFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "-", "JSON input file, - for stdin")
	cmd.Flags().StringVar(&f.text, "text", "", "statement text (skips --input)")
	cmd.Flags().StringVar(&f.source, "source", "", "statement source, used with --text")
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "indent JSON output")
}

func (f *oneShotFlags) statements(stdin io.Reader) ([]models.StatementInput, error) {
	if f.text != "" {
		return []models.StatementInput{{Source: f.source, Text: f.text, Timestamp: time.Now().UTC()}}, nil
	}
	var (
		b   []byte
		err error
	)
	if f.input == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(f.input)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	batch, err := usecase.DecodeStatements(b)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("no statements in input")
	}
	return batch, nil
}

func (f *oneShotFlags) write(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if f.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// loadEngine keeps logs off stdout so the JSON result stays parseable.
func loadEngine() (*usecase.DecisionEngine, func(), error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config load failed: %w", err)
	}
	if cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}
	return di.InitializeEngine(cfg)
}

func newAnalyzeCmd() *cobra.Command {
	var f oneShotFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Score statements without deciding",
		Long: `Print the relevance, sentiment and disruption breakdown of each statement.
Nothing is recorded.

Example usage:
  newssignal analyze --text "Fed signals rate cut" --source Reuters
  newssignal analyze -i statements.json --pretty`,
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := f.statements(cmd.InOrStdin())
			if err != nil {
				return err
			}
			engine, cleanup, err := loadEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			out := make([]models.AnalyzeResult, 0, len(batch))
			for _, in := range batch {
				res, err := engine.Analyze(cmd.Context(), in)
				if err != nil {
					return err
				}
				out = append(out, res)
			}
			return f.write(cmd.OutOrStdout(), out)
		},
	}
	f.register(cmd)
	return cmd
}

func newDecideCmd() *cobra.Command {
	var f oneShotFlags
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Decide a batch of statements and print the records",
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := f.statements(cmd.InOrStdin())
			if err != nil {
				return err
			}
			engine, cleanup, err := loadEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			recs, err := engine.Decide(cmd.Context(), batch)
			if err != nil {
				return err
			}
			return f.write(cmd.OutOrStdout(), recs)
		},
	}
	f.register(cmd)
	return cmd
}
