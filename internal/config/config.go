package config

import "time"

// Config represents the top-level configuration structure for jobledger.
type Config struct {
	Store    Store    `yaml:"store"`
	Defaults Defaults `yaml:"defaults"`
	Cleaner  Cleaner  `yaml:"cleaner"`
	Logging  Logging  `yaml:"logging"`
	Classes  []Class  `yaml:"classes"`
}

// Store configuration for the history backend.
type Store struct {
	Driver    string `yaml:"driver"`    // "bbolt", "json", "memory" or "redis"
	Path      string `yaml:"path"`      // file path for bbolt and json
	URL       string `yaml:"url"`       // redis:// URL for redis
	Namespace string `yaml:"namespace"` // optional key prefix
}

// Location returns the path or URL the configured driver opens.
func (s Store) Location() string {
	if s.Driver == "redis" {
		return s.URL
	}
	return s.Path
}

// Defaults holds values applied to every class that does not override them,
// plus the ledger-wide settings.
type Defaults struct {
	Timezone          string        `yaml:"timezone"`
	HistoryLen        int           `yaml:"history_len"`
	PurgeAge          time.Duration `yaml:"purge_age"`
	PageSize          int           `yaml:"page_size"`
	MaxLinearJobs     int           `yaml:"max_linear_jobs"` // negative: linear list uses history_len
	LinearPageSize    int           `yaml:"linear_page_size"`
	ClassListPageSize int           `yaml:"class_list_page_size"`
	SearchTimeout     time.Duration `yaml:"search_timeout"`
}

// Cleaner configures scheduled maintenance. A schedule of "off" disables
// that task.
type Cleaner struct {
	SweepSchedule string `yaml:"sweep_schedule"` // cancel stale running jobs of every class
	FixupSchedule string `yaml:"fixup_schedule"` // repair orphan keys and the linear index
	PurgeInvalid  bool   `yaml:"purge_invalid"`  // also purge classes no longer configured
}

// Logging configuration.
type Logging struct {
	Format string `yaml:"format"` // "json" or "text"
	Level  string `yaml:"level"`
	Output string `yaml:"output"` // "stderr", "stdout", "discard" or a file path
}

// Class is a job class known to the ledger. The overrides replace the
// defaults when non-zero; the remaining fields describe how the runner
// executes the class.
type Class struct {
	Name                     string        `yaml:"name"`
	HistoryLen               int           `yaml:"history_len,omitempty"`
	PurgeAge                 time.Duration `yaml:"purge_age,omitempty"`
	PageSize                 int           `yaml:"page_size,omitempty"`
	ExcludeFromLinearHistory bool          `yaml:"exclude_from_linear_history,omitempty"`

	Command    string            `yaml:"command,omitempty"`
	Args       []string          `yaml:"args,omitempty"`
	Schedule   string            `yaml:"schedule,omitempty"` // cron expression or interval; empty runs on demand only
	TimeoutSec int               `yaml:"timeout_sec,omitempty"`
	Workdir    string            `yaml:"workdir,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
}
