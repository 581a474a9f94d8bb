package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/caevv/jobledger/internal/config"
	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/logging"
	"github.com/caevv/jobledger/internal/search"
	"github.com/caevv/jobledger/internal/store"
)

// app is the wiring every command shares: configuration, store, ledger and
// the runner that executes configured classes.
type app struct {
	cfg    *config.Config
	store  store.Store
	ledger *ledger.Ledger
	runner *Runner
	logger *slog.Logger
}

// openApp loads the configuration named by the --config flag and opens the
// store it describes. Callers must Close the result.
func openApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	debug, _ := cmd.Flags().GetBool("debug")
	if !debug {
		appLogger, err := logging.NewFromConfig(cfg.Logging.Format, cfg.Logging.Level, cfg.Logging.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = appLogger
		slog.SetDefault(appLogger)
	}

	return newApp(cfg, logger)
}

// newApp opens the store of cfg and builds the ledger and runner over it.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.NewStore(cfg.Store.Driver, cfg.Store.Location())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if cfg.Store.Namespace != "" {
		st = store.WithNamespace(st, cfg.Store.Namespace)
	}

	logger.Debug("store initialized",
		"driver", cfg.Store.Driver,
		"location", logging.RedactURL(cfg.Store.Location()),
		"namespace", cfg.Store.Namespace)

	opts := cfg.LedgerOptions()
	opts.Logger = logger
	l := ledger.New(st, opts)

	return &app{
		cfg:    cfg,
		store:  st,
		ledger: l,
		runner: NewRunner(l, cfg.Classes, logger),
		logger: logger,
	}, nil
}

// searcher returns a searcher bounded by the configured search timeout.
func (a *app) searcher() *search.Searcher {
	return search.New(a.ledger, search.Options{
		Timeout: a.cfg.Defaults.SearchTimeout,
		Logger:  a.logger,
	})
}

// Close waits for retried runs and closes the store.
func (a *app) Close() {
	a.runner.Wait()
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
}
