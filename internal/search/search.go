// Package search scans recorded job history for runs and class names that
// match a term. A scan is time boxed: when its deadline passes it stops and
// returns a Cursor, and a later call with that cursor picks up where it left
// off.
package search

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/logging"
)

// DefaultTimeout bounds a single search call.
const DefaultTimeout = 10 * time.Second

// Search types.
const (
	TypeAll           = "search_all"
	TypeJob           = "search_job"
	TypeLinearHistory = "search_linear_history"
)

// Job groups a cursor can point into.
const (
	GroupRunning  = "running_jobs"
	GroupFinished = "finished_jobs"
	GroupLinear   = "linear_jobs"
)

// Setting keys used by Settings and ParseSettings.
const (
	KeySearchType      = "search_type"
	KeyJobClassName    = "job_class_name"
	KeySearchFor       = "search_for"
	KeyRegexSearch     = "regex_search"
	KeyCaseInsensitive = "case_insensitive"
	KeyLastClassName   = "last_class_name"
	KeyLastJobID       = "last_job_id"
	KeyLastJobGroup    = "last_job_group"
)

// ErrInvalidSearchType is returned for a query whose type is not one of
// TypeAll, TypeJob or TypeLinearHistory.
var ErrInvalidSearchType = errors.New("invalid search_type")

// Query describes what to look for.
type Query struct {
	Type string
	// ClassName scopes a TypeJob search.
	ClassName string
	// Term is matched against encoded run arguments and, for TypeAll, class
	// names. An empty term matches only runs recorded with no arguments.
	Term            string
	Regex           bool
	CaseInsensitive bool
}

// Validate checks the query type and, for regex queries, the pattern.
func (q Query) Validate() error {
	switch q.Type {
	case TypeAll, TypeJob, TypeLinearHistory:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSearchType, q.Type)
	}
	_, err := newMatcher(q, "")
	return err
}

// Cursor is the position a resumed search continues after. The zero value
// starts from the beginning.
type Cursor struct {
	LastClassName string `json:"last_class_name,omitempty"`
	LastJobGroup  string `json:"last_job_group,omitempty"`
	LastJobID     string `json:"last_job_id,omitempty"`
}

// Done reports whether the cursor marks a finished search.
func (c Cursor) Done() bool {
	return c.LastClassName == "" && c.LastJobID == ""
}

// Result is the output of one search call.
type Result struct {
	// ClassResults holds matching class names, in sorted order.
	ClassResults []string `json:"class_results"`
	// RunResults holds matching runs in scan order.
	RunResults []*ledger.Record `json:"run_results"`
	// Cursor resumes the search when MoreRecords is true.
	Cursor Cursor `json:"cursor"`
}

// MoreRecords reports whether the search stopped before covering everything.
func (r *Result) MoreRecords() bool {
	return !r.Cursor.Done()
}

// Options configures a Searcher. Every field is optional.
type Options struct {
	// Timeout bounds each Run call; zero or negative uses DefaultTimeout.
	Timeout time.Duration
	Now     func() time.Time
	Logger  *slog.Logger
}

// Searcher runs searches over a ledger.
type Searcher struct {
	l       *ledger.Ledger
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// New returns a searcher over l.
func New(l *ledger.Ledger, opts Options) *Searcher {
	s := &Searcher{
		l:       l,
		timeout: opts.Timeout,
		now:     opts.Now,
		logger:  logging.OrDefault(opts.Logger).With("component", "search"),
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.now == nil {
		s.now = l.Now
	}
	return s
}

// Timeout returns the per-call time budget.
func (s *Searcher) Timeout() time.Duration { return s.timeout }

// Settings serializes a query and cursor for a continuation link. Blank
// values are omitted. Without all, the term and its flags are left out too.
func Settings(q Query, cur Cursor, all bool) url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	flag := func(key string, on bool) {
		if on {
			v.Set(key, strconv.FormatBool(on))
		}
	}

	set(KeySearchType, q.Type)
	set(KeyJobClassName, q.ClassName)
	if all {
		set(KeySearchFor, q.Term)
		flag(KeyRegexSearch, q.Regex)
		flag(KeyCaseInsensitive, q.CaseInsensitive)
	}
	set(KeyLastClassName, cur.LastClassName)
	set(KeyLastJobID, cur.LastJobID)
	set(KeyLastJobGroup, cur.LastJobGroup)
	return v
}

// RetrySettings is Settings without the cursor, for restarting a search.
func RetrySettings(q Query, all bool) url.Values {
	return Settings(q, Cursor{}, all)
}

// ParseSettings reads a query and cursor written by Settings.
func ParseSettings(v url.Values) (Query, Cursor, error) {
	q := Query{
		Type:            v.Get(KeySearchType),
		ClassName:       v.Get(KeyJobClassName),
		Term:            v.Get(KeySearchFor),
		Regex:           parseFlag(v.Get(KeyRegexSearch)),
		CaseInsensitive: parseFlag(v.Get(KeyCaseInsensitive)),
	}
	cur := Cursor{
		LastClassName: v.Get(KeyLastClassName),
		LastJobGroup:  v.Get(KeyLastJobGroup),
		LastJobID:     v.Get(KeyLastJobID),
	}
	if err := q.Validate(); err != nil {
		return Query{}, Cursor{}, err
	}
	return q, cur, nil
}

func parseFlag(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
