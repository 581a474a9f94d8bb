package main

import (
	"fmt"
	"os"

	"github.com/caevv/jobledger/internal/config"
	"github.com/caevv/jobledger/internal/logging"
	"github.com/caevv/jobledger/internal/scheduler"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate jobledger configuration file",
	Long: `Validate the syntax and semantics of a jobledger configuration file.

This command loads and validates the configuration file without opening
the store. It checks for:
  - Valid YAML syntax
  - A supported store driver and location
  - Valid time zone and non-negative retention settings
  - Valid class and cleaner schedules
  - Unique class names

Example:
  jobledger validate --config ./jobledger.yaml`,
	RunE: validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	logger.Info("validating configuration", "path", configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	for i, class := range cfg.Classes {
		logger.Debug(fmt.Sprintf("class %d", i+1),
			"name", class.Name,
			"schedule", class.Schedule,
			"command", class.Command,
			"history_len", class.HistoryLen,
			"purge_age", class.PurgeAge)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n✓ Configuration is valid: %s\n", configPath)
	fmt.Fprintf(out, "  Classes: %d\n", len(cfg.Classes))
	fmt.Fprintf(out, "  Store: %s (%s)\n", cfg.Store.Driver, logging.RedactURL(cfg.Store.Location()))
	fmt.Fprintf(out, "  Timezone: %s\n", cfg.Defaults.Timezone)
	fmt.Fprintf(out, "  History: %d runs per list, purge after %s\n", cfg.Defaults.HistoryLen, cfg.Defaults.PurgeAge)

	loc := cfg.Location()
	for _, class := range cfg.Classes {
		if class.Schedule == "" {
			continue
		}
		next, err := scheduler.NextRun(class.Schedule, timeNow().In(loc))
		if err != nil {
			return fmt.Errorf("class %s: %w", class.Name, err)
		}
		fmt.Fprintf(out, "  %s next runs at %s\n", class.Name, next.Format("2006-01-02 15:04:05 MST"))
	}

	return nil
}
