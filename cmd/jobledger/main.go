package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caevv/jobledger/internal/logging"
)

var (
	// Version information (set via ldflags at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	// Global logger
	logger *slog.Logger
)

func main() {
	logger = logging.NewWithWriter(os.Stderr, "info")
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "jobledger",
	Short: "An execution ledger for background jobs",
	Long: `Jobledger records the execution history of job runs: when each run
started and ended, its arguments and its failure, kept in bounded per-class
running and finished lists plus a global linear history.

Features:
  - bbolt, JSON file, in-memory or Redis storage
  - Per-class retention, stale-run sweeping and key repair
  - Time-boxed, resumable search over recorded runs
  - Scheduled command runner with recorded runs and retry
  - JSON HTTP API`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "jobledger.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			logger = logging.NewWithWriter(os.Stderr, "debug")
			slog.SetDefault(logger)
			logger.Debug("debug logging enabled")
		}
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(classCmd)
	rootCmd.AddCommand(classesCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(tuiCmd)
}

// setupSignalHandler returns a context canceled by the first SIGINT or
// SIGTERM. A second signal exits immediately.
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		logger.Info("shutting down", "signal", sig.String())
		cancel()

		sig = <-sigs
		logger.Warn("forced exit", "signal", sig.String())
		os.Exit(130)
	}()

	return ctx
}
