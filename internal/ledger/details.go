package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ClassHistory groups the lists and counters of one job class.
type ClassHistory struct {
	ClassName string

	l *Ledger
}

// Class returns the history of className.
func (l *Ledger) Class(className string) *ClassHistory {
	return &ClassHistory{ClassName: className, l: l}
}

func (c *ClassHistory) RunningJobs() *HistoryList  { return c.l.RunningJobs(c.ClassName) }
func (c *ClassHistory) FinishedJobs() *HistoryList { return c.l.FinishedJobs(c.ClassName) }
func (c *ClassHistory) LinearJobs() *HistoryList   { return c.l.LinearJobs() }

// Config returns the resolved configuration of the class.
func (c *ClassHistory) Config() ClassConfig { return c.l.ClassConfig(c.ClassName) }

// ClassNameValid reports whether the class still resolves.
func (c *ClassHistory) ClassNameValid() bool { return c.l.ClassNameValid(c.ClassName) }

// PageSize returns the class's default page size.
func (c *ClassHistory) PageSize() int { return c.Config().PageSize }

// MaxConcurrentJobs returns the largest number of runs seen running at once.
func (c *ClassHistory) MaxConcurrentJobs(ctx context.Context) (int64, error) {
	return c.l.readCounter(ctx, maxJobsKey(c.ClassName))
}

// TotalFailedJobs returns how many runs of the class failed or were canceled.
func (c *ClassHistory) TotalFailedJobs(ctx context.Context) (int64, error) {
	return c.l.readCounter(ctx, totalFailedKey(c.ClassName))
}

// CleanOldRunningJobs cancels every running entry that has no start time or
// started longer ago than the class purge age. Runs missing a start time
// are stamped first so the canceled record is complete. It returns the
// number of runs canceled; a failure on one run does not stop the others.
func (c *ClassHistory) CleanOldRunningJobs(ctx context.Context) (int, error) {
	tooOld := c.l.now().Add(-c.Config().PurgeAge)

	jobs, err := c.RunningJobs().Jobs(ctx, 0, -1)
	if err != nil {
		return 0, err
	}

	var (
		canceled int
		errs     []error
	)
	for _, job := range jobs {
		rec, err := job.Load(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rec.Started() && !rec.StartTime.Before(tooOld) {
			continue
		}

		logger := c.l.logger.With("class", job.ClassName, "job_id", job.JobID)
		if !rec.Started() {
			logger.Warn("canceling running job", "reason", "no start time recorded")
			if err := job.stamp(ctx, fieldStartTime); err != nil {
				errs = append(errs, err)
				continue
			}
		} else {
			logger.Warn("canceling running job", "reason", "older than purge age",
				"start_time", rec.StartTime, "purge_age", c.Config().PurgeAge)
		}

		if err := job.Cancel(ctx); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", job.JobID, err))
			continue
		}
		canceled++
	}
	return canceled, errors.Join(errs...)
}
