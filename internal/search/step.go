package search

import (
	"context"
	"slices"
	"time"

	"github.com/caevv/jobledger/internal/ledger"
)

// Run performs one search call bounded by the searcher's timeout.
func (s *Searcher) Run(ctx context.Context, q Query, cur Cursor) (*Result, error) {
	return s.Step(ctx, q, cur, s.now().Add(s.timeout))
}

// Step continues the search described by q from cur until everything has been
// scanned or deadline has passed. The deadline is checked after each class
// name or run is examined, so every call makes progress. Results cover only
// this call; callers resuming from the returned cursor accumulate them.
//
// A run that moves from the running list to the finished list between two
// calls can be reported twice.
func (s *Searcher) Step(ctx context.Context, q Query, cur Cursor, deadline time.Time) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	match, err := newMatcher(q, s.l.EmptyArgs())
	if err != nil {
		return nil, err
	}

	sc := &scan{
		s:        s,
		q:        q,
		match:    match,
		deadline: deadline,
		cur:      cur,
		res:      &Result{},
	}
	switch q.Type {
	case TypeAll:
		err = sc.searchAll(ctx)
	case TypeJob:
		err = sc.searchJobClass(ctx, s.l.Class(q.ClassName))
	case TypeLinearHistory:
		err = sc.searchLinearHistory(ctx)
	}
	if err != nil {
		return nil, err
	}

	sc.res.Cursor = sc.cur
	s.logger.Debug("search step",
		"type", q.Type,
		"class_results", len(sc.res.ClassResults),
		"run_results", len(sc.res.RunResults),
		"more_records", sc.res.MoreRecords())
	return sc.res, nil
}

// Collect runs the search to completion, resuming from each returned cursor,
// and returns the accumulated results.
func (s *Searcher) Collect(ctx context.Context, q Query) (*Result, error) {
	total := &Result{}
	cur := Cursor{}
	for {
		res, err := s.Run(ctx, q, cur)
		if err != nil {
			return nil, err
		}
		total.ClassResults = append(total.ClassResults, res.ClassResults...)
		total.RunResults = append(total.RunResults, res.RunResults...)
		if !res.MoreRecords() {
			return total, nil
		}
		cur = res.Cursor
	}
}

// scan holds the state of one Step call.
type scan struct {
	s        *Searcher
	q        Query
	match    matcher
	deadline time.Time
	cur      Cursor
	res      *Result
}

func (sc *scan) expired() bool {
	return sc.s.now().After(sc.deadline)
}

func (sc *scan) searchAll(ctx context.Context) error {
	classes, err := sc.s.l.JobClasses(ctx)
	if err != nil {
		return err
	}

	if sc.cur.LastClassName == "" || sc.cur.LastJobID == "" {
		sc.searchClassNames(classes)
	}
	if sc.expired() && sc.cur.LastClassName != "" && sc.cur.LastJobID == "" {
		return nil
	}
	return sc.searchAllClassJobs(ctx, classes)
}

func (sc *scan) searchClassNames(classes []string) {
	remaining := sc.remainingClasses(classes)
	for _, className := range remaining {
		if sc.q.Term != "" && sc.match(className) {
			sc.res.ClassResults = append(sc.res.ClassResults, className)
		}
		sc.cur.LastClassName = className
		if sc.expired() {
			break
		}
	}
	if len(remaining) == 0 || !sc.expired() {
		sc.cur.LastClassName = ""
	}
}

func (sc *scan) searchAllClassJobs(ctx context.Context, classes []string) error {
	remaining := sc.remainingClasses(classes)
	for _, className := range remaining {
		if err := sc.searchJobClass(ctx, sc.s.l.Class(className)); err != nil {
			return err
		}
		sc.cur.LastClassName = className
		if sc.expired() && sc.cur.LastJobID != "" {
			break
		}
	}
	if len(remaining) == 0 || !sc.expired() || sc.cur.LastJobID == "" {
		sc.cur.LastClassName = ""
	}
	return nil
}

// remainingClasses drops the classes already covered by the cursor. The
// cursor class itself is kept while one of its runs is still the position.
func (sc *scan) remainingClasses(classes []string) []string {
	if sc.cur.LastClassName == "" {
		return classes
	}
	idx := slices.Index(classes, sc.cur.LastClassName)
	if idx < 0 {
		idx = len(classes)
	}
	if sc.cur.LastJobID == "" {
		idx++
	}
	if idx >= len(classes) {
		return nil
	}
	return classes[idx:]
}

func (sc *scan) searchJobClass(ctx context.Context, class *ledger.ClassHistory) error {
	if sc.cur.LastJobGroup == "" || sc.cur.LastJobGroup == GroupRunning {
		if err := sc.searchClassJobs(ctx, class.RunningJobs(), GroupRunning); err != nil {
			return err
		}
		if sc.expired() && sc.cur.LastJobID != "" {
			return nil
		}
	}
	return sc.searchClassJobs(ctx, class.FinishedJobs(), GroupFinished)
}

func (sc *scan) searchLinearHistory(ctx context.Context) error {
	return sc.searchClassJobs(ctx, sc.s.l.LinearJobs(), GroupLinear)
}

func (sc *scan) searchClassJobs(ctx context.Context, list *ledger.HistoryList, group string) error {
	if sc.cur.LastJobGroup != "" && sc.cur.LastJobGroup != group {
		return nil
	}

	jobs, err := list.Jobs(ctx, 0, -1)
	if err != nil {
		return err
	}
	jobs = sc.remainingJobs(jobs, group)
	sc.cur.LastJobGroup = group

	for _, job := range jobs {
		rec, err := job.Load(ctx)
		if err != nil {
			return err
		}
		if rec.Exists() && sc.match(rec.EncodedArgs) {
			sc.res.RunResults = append(sc.res.RunResults, rec)
		}
		sc.cur.LastJobID = job.JobID
		if sc.expired() {
			break
		}
	}

	if len(jobs) > 0 && sc.expired() {
		return nil
	}
	sc.cur.LastJobID = ""
	sc.cur.LastJobGroup = ""
	return nil
}

// remainingJobs drops the runs up to and including the cursor run. A cursor
// run that has left the list means the whole list was covered.
func (sc *scan) remainingJobs(jobs []*ledger.Job, group string) []*ledger.Job {
	if sc.cur.LastJobID == "" || sc.cur.LastJobGroup != group {
		return jobs
	}
	idx := slices.IndexFunc(jobs, func(j *ledger.Job) bool { return j.JobID == sc.cur.LastJobID })
	if idx < 0 {
		idx = len(jobs)
	}
	idx++
	if idx >= len(jobs) {
		return nil
	}
	return jobs[idx:]
}
