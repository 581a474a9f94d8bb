// Package ledger records the execution history of job runs.
//
// For every (class, run) pair the ledger keeps start and end times, encoded
// arguments and failure detail, together with bounded per-class running and
// finished lists, a global linear list spanning every class, and per-class
// counters. All state lives in a store.Store; the ledger itself holds no
// mutable state and takes no locks, so any number of processes may record
// runs against the same store concurrently.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/caevv/jobledger/internal/logging"
	"github.com/caevv/jobledger/internal/store"
)

var (
	// ErrDuplicateRun is returned by Start when the run already has a
	// recorded start time.
	ErrDuplicateRun = errors.New("run already started")

	// ErrNoEnqueuer is returned by Retry when the ledger has no way to
	// resubmit work.
	ErrNoEnqueuer = errors.New("no enqueuer configured")
)

// Enqueuer resubmits a unit of work to the host job runtime.
type Enqueuer interface {
	Enqueue(ctx context.Context, className string, args []any) error
}

// Options configures a Ledger. Every field is optional.
type Options struct {
	// Resolver supplies per-class configuration. Without one every class is
	// unresolvable and uses Defaults.
	Resolver ClassResolver
	// Defaults is the configuration for classes that do not resolve.
	Defaults *ClassConfig
	Settings *Settings
	Codec    ArgsCodec
	Enqueuer Enqueuer
	Logger   *slog.Logger
	// Now is the clock used for start, end and staleness times.
	Now func() time.Time
}

// Ledger is the entry point to recorded job history.
type Ledger struct {
	store    store.Store
	resolver ClassResolver
	defaults ClassConfig
	settings Settings
	codec    ArgsCodec
	enqueuer Enqueuer
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a ledger over st.
func New(st store.Store, opts Options) *Ledger {
	l := &Ledger{
		store:    st,
		resolver: opts.Resolver,
		defaults: DefaultClassConfig(),
		settings: DefaultSettings(),
		codec:    opts.Codec,
		enqueuer: opts.Enqueuer,
		logger:   logging.OrDefault(opts.Logger),
		now:      opts.Now,
	}
	if opts.Defaults != nil {
		l.defaults = opts.Defaults.normalized(DefaultClassConfig())
	}
	if opts.Settings != nil {
		l.settings = opts.Settings.normalized()
	}
	if l.codec == nil {
		l.codec = JSONCodec{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// SetEnqueuer installs the primitive used by Retry.
func (l *Ledger) SetEnqueuer(e Enqueuer) {
	l.enqueuer = e
}

// Store returns the backing store.
func (l *Ledger) Store() store.Store { return l.store }

// Logger returns the ledger's logger.
func (l *Ledger) Logger() *slog.Logger { return l.logger }

// Codec returns the argument codec.
func (l *Ledger) Codec() ArgsCodec { return l.codec }

// Settings returns the ledger-wide settings.
func (l *Ledger) Settings() Settings { return l.settings }

// Now returns the current time from the ledger's clock.
func (l *Ledger) Now() time.Time { return l.now() }

// ClassConfig returns the configuration of className, falling back to the
// defaults when the class cannot be resolved.
func (l *Ledger) ClassConfig(className string) ClassConfig {
	cfg, _ := l.resolve(className)
	return cfg
}

// ClassNameValid reports whether className still resolves.
func (l *Ledger) ClassNameValid(className string) bool {
	_, ok := l.resolve(className)
	return ok
}

func (l *Ledger) resolve(className string) (ClassConfig, bool) {
	if l.resolver != nil && className != "" {
		if cfg, ok := l.resolver.Resolve(className); ok {
			return cfg.normalized(l.defaults), true
		}
	}
	return l.defaults, false
}

// JobClasses returns every class name in the registry, sorted.
func (l *Ledger) JobClasses(ctx context.Context) ([]string, error) {
	classes, err := l.store.SMembers(ctx, historyKey)
	if err != nil {
		return nil, fmt.Errorf("list job classes: %w", err)
	}
	sort.Strings(classes)
	return classes, nil
}

// EmptyArgs returns the encoding of an empty argument list.
func (l *Ledger) EmptyArgs() string {
	encoded, err := l.codec.Encode(nil)
	if err != nil {
		return ""
	}
	return encoded
}

// readCounter reads an integer key, treating a missing key as zero.
func (l *Ledger) readCounter(ctx context.Context, key string) (int64, error) {
	v, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
