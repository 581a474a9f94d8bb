package ledger

import "time"

// Defaults applied when a class cannot be resolved or leaves a value unset.
const (
	DefaultHistoryLen    = 200
	DefaultPageSize      = 25
	DefaultPurgeAge      = 24 * time.Hour
	DefaultMaxLinearJobs = 500
	DefaultSearchTimeout = 10 * time.Second
)

// ClassConfig holds the per-class tunables of the ledger.
type ClassConfig struct {
	// HistoryLen caps the running and finished lists of the class.
	HistoryLen int
	// PurgeAge is how long a run may stay in the running list before a
	// sweep cancels it.
	PurgeAge time.Duration
	// PageSize is the default page size for the class's lists.
	PageSize int
	// ExcludeFromLinearHistory keeps the class's runs out of the linear list.
	ExcludeFromLinearHistory bool
}

// DefaultClassConfig returns the configuration used for unresolvable classes.
func DefaultClassConfig() ClassConfig {
	return ClassConfig{
		HistoryLen: DefaultHistoryLen,
		PurgeAge:   DefaultPurgeAge,
		PageSize:   DefaultPageSize,
	}
}

// normalized clamps c into its valid range, filling an unset purge age
// from fallback.
func (c ClassConfig) normalized(fallback ClassConfig) ClassConfig {
	if c.HistoryLen < 0 {
		c.HistoryLen = 0
	}
	if c.PageSize < 1 {
		c.PageSize = 1
	}
	if c.PurgeAge <= 0 {
		c.PurgeAge = fallback.PurgeAge
	}
	return c
}

// ClassResolver looks up the configuration of a job class. ok is false when
// the class is unknown, for example because its code has been removed.
type ClassResolver interface {
	Resolve(className string) (cfg ClassConfig, ok bool)
}

// ResolverFunc adapts a function to ClassResolver.
type ResolverFunc func(className string) (ClassConfig, bool)

func (f ResolverFunc) Resolve(className string) (ClassConfig, bool) {
	return f(className)
}

// MapResolver resolves exactly the classes present in the map.
type MapResolver map[string]ClassConfig

func (m MapResolver) Resolve(className string) (ClassConfig, bool) {
	cfg, ok := m[className]
	return cfg, ok
}

// Settings are the ledger-wide tunables.
type Settings struct {
	// MaxLinearJobs caps the linear list. A negative value removes the
	// override and the linear list falls back to the default history length.
	MaxLinearJobs int
	// LinearPageSize is the default page size of the linear list.
	LinearPageSize int
	// ClassListPageSize is the default page size of class summaries.
	ClassListPageSize int
}

// DefaultSettings returns the stock ledger settings.
func DefaultSettings() Settings {
	return Settings{
		MaxLinearJobs:     DefaultMaxLinearJobs,
		LinearPageSize:    DefaultPageSize,
		ClassListPageSize: DefaultPageSize,
	}
}

func (s Settings) normalized() Settings {
	if s.LinearPageSize < 1 {
		s.LinearPageSize = 1
	}
	if s.ClassListPageSize < 1 {
		s.ClassListPageSize = 1
	}
	return s
}
