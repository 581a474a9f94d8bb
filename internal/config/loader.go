package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/scheduler"
	"github.com/caevv/jobledger/internal/store"
)

// Default values for optional fields.
const (
	DefaultStorePath     = "./jobledger.db"
	DefaultRedisURL      = "redis://localhost:6379/0"
	DefaultSweepSchedule = "@hourly"
	DefaultFixupSchedule = "@daily"
)

// LoadConfig loads and validates a jobledger configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Store section
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "bbolt"
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Store.Driver == "redis" && cfg.Store.URL == "" {
		cfg.Store.URL = DefaultRedisURL
	}

	// Defaults section
	d := &cfg.Defaults
	if d.Timezone == "" {
		d.Timezone = "Local"
	}
	if d.HistoryLen == 0 {
		d.HistoryLen = ledger.DefaultHistoryLen
	}
	if d.PurgeAge == 0 {
		d.PurgeAge = ledger.DefaultPurgeAge
	}
	if d.PageSize == 0 {
		d.PageSize = ledger.DefaultPageSize
	}
	if d.MaxLinearJobs == 0 {
		d.MaxLinearJobs = ledger.DefaultMaxLinearJobs
	}
	if d.LinearPageSize == 0 {
		d.LinearPageSize = ledger.DefaultPageSize
	}
	if d.ClassListPageSize == 0 {
		d.ClassListPageSize = ledger.DefaultPageSize
	}
	if d.SearchTimeout == 0 {
		d.SearchTimeout = ledger.DefaultSearchTimeout
	}

	// Cleaner section
	if cfg.Cleaner.SweepSchedule == "" {
		cfg.Cleaner.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.Cleaner.FixupSchedule == "" {
		cfg.Cleaner.FixupSchedule = DefaultFixupSchedule
	}

	// Logging section
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	// Class-level defaults
	for i := range cfg.Classes {
		class := &cfg.Classes[i]
		if class.Command != "" && class.Workdir == "" {
			class.Workdir = "."
		}
		if class.Env == nil && class.Command != "" {
			class.Env = make(map[string]string)
		}
	}
}

// validate checks the configuration for errors and inconsistencies.
func validate(cfg *Config) error {
	// Validate store
	if !slices.Contains(store.SupportedDrivers, cfg.Store.Driver) {
		return fmt.Errorf("invalid store driver: %s (must be one of %s)",
			cfg.Store.Driver, strings.Join(store.SupportedDrivers, ", "))
	}
	if cfg.Store.Driver == "redis" && !strings.HasPrefix(cfg.Store.URL, "redis://") && !strings.HasPrefix(cfg.Store.URL, "rediss://") {
		return fmt.Errorf("store.url must be a redis:// or rediss:// URL")
	}

	// Validate defaults
	d := cfg.Defaults
	if _, err := time.LoadLocation(d.Timezone); err != nil {
		return fmt.Errorf("invalid defaults.timezone %q: %w", d.Timezone, err)
	}
	if d.HistoryLen < 0 {
		return fmt.Errorf("defaults.history_len must be non-negative")
	}
	if d.PurgeAge < 0 {
		return fmt.Errorf("defaults.purge_age must be non-negative")
	}
	if d.PageSize < 0 || d.LinearPageSize < 0 || d.ClassListPageSize < 0 {
		return fmt.Errorf("defaults page sizes must be non-negative")
	}
	if d.SearchTimeout < 0 {
		return fmt.Errorf("defaults.search_timeout must be non-negative")
	}

	// Validate cleaner schedules
	for name, expr := range map[string]string{
		"cleaner.sweep_schedule": cfg.Cleaner.SweepSchedule,
		"cleaner.fixup_schedule": cfg.Cleaner.FixupSchedule,
	} {
		if expr == "" || scheduler.Disabled(expr) {
			continue
		}
		if err := scheduler.ValidateSchedule(expr); err != nil {
			return fmt.Errorf("%s is invalid: %w", name, err)
		}
	}

	// Validate logging
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s (must be 'json' or 'text')", cfg.Logging.Format)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", cfg.Logging.Level)
	}

	// Validate classes
	names := make(map[string]bool)
	for i, class := range cfg.Classes {
		if err := validateClass(class); err != nil {
			if class.Name == "" {
				return fmt.Errorf("class at index %d: %w", i, err)
			}
			return fmt.Errorf("class %s: %w", class.Name, err)
		}
		if names[class.Name] {
			return fmt.Errorf("duplicate class name: %s", class.Name)
		}
		names[class.Name] = true
	}

	return nil
}

// validateClass checks a single class definition.
func validateClass(class Class) error {
	if class.Name == "" {
		return fmt.Errorf("missing a name")
	}
	if strings.TrimSpace(class.Name) != class.Name {
		return fmt.Errorf("name has leading or trailing whitespace")
	}
	if class.HistoryLen < 0 {
		return fmt.Errorf("negative history_len")
	}
	if class.PurgeAge < 0 {
		return fmt.Errorf("negative purge_age")
	}
	if class.PageSize < 0 {
		return fmt.Errorf("negative page_size")
	}
	if class.TimeoutSec < 0 {
		return fmt.Errorf("negative timeout_sec")
	}
	if class.Schedule != "" {
		if class.Command == "" {
			return fmt.Errorf("has a schedule but no command")
		}
		if err := scheduler.ValidateSchedule(class.Schedule); err != nil {
			return fmt.Errorf("invalid schedule: %w", err)
		}
	}
	return nil
}
