// Package main implements the trunkgate CLI for checking and driving the
// development cycle of a repository.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/config"
	"github.com/clintrovert/trunkgate/internal/logging"
)

var (
	configPath string
	outputJSON bool
	verbose    bool

	version = "dev"
)

// errGateFailed makes the process exit non-zero after a failing gate was
// already reported.
var errGateFailed = errors.New("gate failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errGateFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trunkgate",
	Short: "Enforce the trunk-based development cycle",
	Long: `trunkgate checks every step of the development cycle of an issue
(sync, branch, commit, verify, pr, review, merge, cleanup) against a fixed
policy and only lets a task advance when the gate of its phase passes.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the config file (default .trunkgate.yaml)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log adapter calls")
}

// loadConfig loads the configuration for commands that act on a repository.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// loadPolicy loads only what pure validation needs. Without a config file the
// default policy applies.
func loadPolicy() (*config.Config, *zap.Logger, error) {
	if configPath == "" {
		if _, err := os.Stat(config.DefaultFile); errors.Is(err, os.ErrNotExist) {
			cfg := config.Default()
			logger, err := newLogger(cfg)
			return cfg, logger, err
		}
	}
	return loadConfig()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return logging.New(cfg.Log.Level, true)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
