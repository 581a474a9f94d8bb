package ledger

import (
	"cmp"
	"context"
	"slices"
	"time"
)

// Sort keys accepted by JobSummaries.
const (
	SortClassName         = "class_name"
	SortRunningJobs       = "running_jobs"
	SortFinishedJobs      = "finished_jobs"
	SortTotalFinishedJobs = "total_finished_jobs"
	SortTotalRunJobs      = "total_run_jobs"
	SortMaxConcurrentJobs = "max_concurrent_jobs"
	SortStartTime         = "start_time"
	SortDuration          = "duration"
	SortSuccess           = "success"
)

// ClassSummary is computed on demand for one class.
type ClassSummary struct {
	ClassName         string  `json:"class_name"`
	ClassNameValid    bool    `json:"class_name_valid"`
	RunningJobs       int64   `json:"running_jobs"`
	FinishedJobs      int64   `json:"finished_jobs"`
	TotalRunJobs      int64   `json:"total_run_jobs"`
	TotalFinishedJobs int64   `json:"total_finished_jobs"`
	MaxConcurrentJobs int64   `json:"max_concurrent_jobs"`
	TotalFailedJobs   int64   `json:"total_failed_jobs"`
	LastRun           *Record `json:"last_run,omitempty"`
}

// JobClassSummary builds the summary of className. The latest run comes from
// the running list if it has one, else from the finished list.
func (l *Ledger) JobClassSummary(ctx context.Context, className string) (*ClassSummary, error) {
	class := l.Class(className)
	running := class.RunningJobs()
	finished := class.FinishedJobs()

	s := &ClassSummary{
		ClassName:      className,
		ClassNameValid: class.ClassNameValid(),
	}

	var err error
	if s.RunningJobs, err = running.NumJobs(ctx); err != nil {
		return nil, err
	}
	if s.FinishedJobs, err = finished.NumJobs(ctx); err != nil {
		return nil, err
	}
	if s.TotalRunJobs, err = running.Total(ctx); err != nil {
		return nil, err
	}
	if s.TotalFinishedJobs, err = finished.Total(ctx); err != nil {
		return nil, err
	}
	if s.MaxConcurrentJobs, err = class.MaxConcurrentJobs(ctx); err != nil {
		return nil, err
	}
	if s.TotalFailedJobs, err = class.TotalFailedJobs(ctx); err != nil {
		return nil, err
	}

	latest, err := running.LatestJob(ctx)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		if latest, err = finished.LatestJob(ctx); err != nil {
			return nil, err
		}
	}
	if latest != nil {
		if s.LastRun, err = latest.Load(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// JobSummaries returns one page of class summaries sorted by sortKey. order
// "desc" reverses the sort. A pageSize below 1 uses the class list page
// size; a page past the end returns the first page.
func (l *Ledger) JobSummaries(ctx context.Context, sortKey, order string, pageNum, pageSize int) ([]*ClassSummary, error) {
	classes, err := l.JobClasses(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]*ClassSummary, 0, len(classes))
	for _, className := range classes {
		s, err := l.JobClassSummary(ctx, className)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	now := l.now()
	slices.SortStableFunc(summaries, func(a, b *ClassSummary) int {
		return compareSummaries(a, b, sortKey, now)
	})
	if order == "desc" {
		slices.Reverse(summaries)
	}

	if pageSize < 1 {
		pageSize = l.settings.ClassListPageSize
	}
	start := (ServedPage(pageNum, pageSize, int64(len(summaries))) - 1) * pageSize
	end := min(start+pageSize, len(summaries))
	return summaries[start:end], nil
}

func compareSummaries(a, b *ClassSummary, sortKey string, now time.Time) int {
	switch sortKey {
	case SortRunningJobs:
		return cmp.Compare(a.RunningJobs, b.RunningJobs)
	case SortFinishedJobs:
		return cmp.Compare(a.FinishedJobs, b.FinishedJobs)
	case SortTotalFinishedJobs:
		return cmp.Compare(a.TotalFinishedJobs, b.TotalFinishedJobs)
	case SortTotalRunJobs:
		return cmp.Compare(a.TotalRunJobs, b.TotalRunJobs)
	case SortMaxConcurrentJobs, "max_running_jobs":
		return cmp.Compare(a.MaxConcurrentJobs, b.MaxConcurrentJobs)
	case SortStartTime:
		return lastRunStart(a).Compare(lastRunStart(b))
	case SortDuration:
		return cmp.Compare(lastRunDuration(a, now), lastRunDuration(b, now))
	case SortSuccess:
		return cmp.Compare(lastRunSucceeded(a), lastRunSucceeded(b))
	default:
		return cmp.Compare(a.ClassName, b.ClassName)
	}
}

func lastRunStart(s *ClassSummary) time.Time {
	if s.LastRun == nil {
		return time.Time{}
	}
	return s.LastRun.StartTime
}

func lastRunDuration(s *ClassSummary, now time.Time) time.Duration {
	if s.LastRun == nil {
		return 0
	}
	return s.LastRun.Duration(now)
}

func lastRunSucceeded(s *ClassSummary) int {
	if s.LastRun != nil && s.LastRun.Succeeded() {
		return 1
	}
	return 0
}

// OrderParam returns the order a sort link for sortOption should request:
// clicking the current sort flips its order, any other column starts
// ascending.
func OrderParam(sortOption, currentSort, currentOrder string) string {
	if currentOrder == "" {
		currentOrder = "asc"
	}
	if sortOption != currentSort {
		return "asc"
	}
	if currentOrder == "asc" {
		return "desc"
	}
	return "asc"
}
