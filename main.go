// Command docstore compiles document operations into Oracle NoSQL SQL and
// runs them against a store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/asaidimu/go-docstore/core/persistence"
	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose    bool
	configPath string
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "docstore",
	Short:         "Document operations over Oracle NoSQL JSON collections",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("DOCSTORE_CONFIG"), "YAML options file (env DOCSTORE_CONFIG)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}

// loadOptions reads --config over the defaults.
func loadOptions() (persistence.Options, error) {
	if configPath == "" {
		return persistence.DefaultOptions(), nil
	}
	opts, err := persistence.LoadOptions(configPath)
	if err != nil {
		return persistence.Options{}, err
	}
	logger.Debug("Loaded options", zap.String("path", configPath))
	return opts, nil
}

// parseFlagJSON parses an optional JSON flag value; empty yields nil.
func parseFlagJSON(name, value string) (any, error) {
	if value == "" {
		return nil, nil
	}
	v, err := schema.ParseJSON([]byte(value))
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}

// parseFilter treats an empty --filter as the empty document.
func parseFilter(value string) (any, error) {
	if value == "" {
		return schema.D{}, nil
	}
	return parseFlagJSON("filter", value)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
