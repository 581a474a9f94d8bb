package config

import (
	"time"

	"github.com/caevv/jobledger/internal/ledger"
)

// Class returns the class named name.
func (c *Config) Class(name string) (*Class, bool) {
	for i := range c.Classes {
		if c.Classes[i].Name == name {
			return &c.Classes[i], true
		}
	}
	return nil, false
}

// ClassDefaults returns the ledger configuration for classes that are not
// listed, and the base every listed class overrides.
func (c *Config) ClassDefaults() ledger.ClassConfig {
	return ledger.ClassConfig{
		HistoryLen: c.Defaults.HistoryLen,
		PurgeAge:   c.Defaults.PurgeAge,
		PageSize:   c.Defaults.PageSize,
	}
}

// LedgerSettings returns the ledger-wide settings.
func (c *Config) LedgerSettings() ledger.Settings {
	return ledger.Settings{
		MaxLinearJobs:     c.Defaults.MaxLinearJobs,
		LinearPageSize:    c.Defaults.LinearPageSize,
		ClassListPageSize: c.Defaults.ClassListPageSize,
	}
}

// Resolver resolves exactly the listed classes, filling unset overrides from
// the defaults.
func (c *Config) Resolver() ledger.ClassResolver {
	classes := make(ledger.MapResolver, len(c.Classes))
	for _, class := range c.Classes {
		classes[class.Name] = class.LedgerConfig(c.ClassDefaults())
	}
	return classes
}

// LedgerOptions returns ledger options for the resolver, defaults and
// settings of c.
func (c *Config) LedgerOptions() ledger.Options {
	defaults := c.ClassDefaults()
	settings := c.LedgerSettings()
	return ledger.Options{
		Resolver: c.Resolver(),
		Defaults: &defaults,
		Settings: &settings,
	}
}

// LedgerConfig merges the class overrides onto base.
func (class Class) LedgerConfig(base ledger.ClassConfig) ledger.ClassConfig {
	cfg := base
	if class.HistoryLen > 0 {
		cfg.HistoryLen = class.HistoryLen
	}
	if class.PurgeAge > 0 {
		cfg.PurgeAge = class.PurgeAge
	}
	if class.PageSize > 0 {
		cfg.PageSize = class.PageSize
	}
	cfg.ExcludeFromLinearHistory = class.ExcludeFromLinearHistory
	return cfg
}

// Timeout returns the class execution timeout, zero for none.
func (class Class) Timeout() time.Duration {
	return time.Duration(class.TimeoutSec) * time.Second
}

// Location returns the configured scheduler time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Defaults.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
