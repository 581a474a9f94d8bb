package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CancelMessage is the error recorded for canceled and abandoned runs.
const CancelMessage = "Unknown - Job failed to signal ending after the configured purge time or was canceled manually."

const timeFormat = time.RFC3339Nano

// Job is a handle on one recorded run. It holds no cached state; every
// accessor reads the store.
type Job struct {
	ClassName string
	JobID     string

	l *Ledger
}

// Record is a snapshot of a run's stored fields.
type Record struct {
	ClassName   string    `json:"class_name"`
	JobID       string    `json:"job_id"`
	StartTime   time.Time `json:"start_time,omitzero"`
	EndTime     time.Time `json:"end_time,omitzero"`
	EncodedArgs string    `json:"args"`
	Error       string    `json:"error,omitempty"`
}

// Exists reports whether anything at all was recorded for the run.
func (r *Record) Exists() bool {
	return !r.StartTime.IsZero() || !r.EndTime.IsZero() || r.EncodedArgs != "" || r.Error != ""
}

// Started reports whether a start time was recorded.
func (r *Record) Started() bool { return !r.StartTime.IsZero() }

// Finished reports whether an end time was recorded.
func (r *Record) Finished() bool { return !r.EndTime.IsZero() }

// Succeeded reports whether the run finished without an error.
func (r *Record) Succeeded() bool { return r.Finished() && r.Error == "" }

// Duration returns how long the run took, or has taken so far as of now.
func (r *Record) Duration(now time.Time) time.Duration {
	if r.StartTime.IsZero() {
		return 0
	}
	end := r.EndTime
	if end.IsZero() {
		end = now
	}
	return end.Sub(r.StartTime)
}

// Job returns a handle on run jobID of className.
func (l *Ledger) Job(className, jobID string) *Job {
	return &Job{ClassName: className, JobID: jobID, l: l}
}

func (j *Job) key() string { return jobKey(j.ClassName, j.JobID) }

// Load reads the run's stored fields. A run that was never recorded, or has
// been purged, loads as an empty record.
func (j *Job) Load(ctx context.Context) (*Record, error) {
	fields, err := j.l.store.HGetAll(ctx, j.key())
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", j.key(), err)
	}
	return &Record{
		ClassName:   j.ClassName,
		JobID:       j.JobID,
		StartTime:   parseTime(fields[fieldStartTime]),
		EndTime:     parseTime(fields[fieldEndTime]),
		EncodedArgs: fields[fieldArgs],
		Error:       fields[fieldError],
	}, nil
}

// Args decodes the run's recorded arguments.
func (j *Job) Args(ctx context.Context) ([]any, error) {
	encoded, _, err := j.l.store.HGet(ctx, j.key(), fieldArgs)
	if err != nil {
		return nil, fmt.Errorf("read args of %s: %w", j.key(), err)
	}
	return j.l.codec.Decode(encoded)
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (j *Job) stamp(ctx context.Context, field string) error {
	if err := j.l.store.HSet(ctx, j.key(), field, j.l.now().UTC().Format(timeFormat)); err != nil {
		return fmt.Errorf("record %s of %s: %w", field, j.key(), err)
	}
	return nil
}

// Start records the beginning of the run: it joins the running list and,
// unless the class opts out, the linear list. The class's high-water mark is
// raised when needed, and a stale-running sweep runs when the running list
// has outgrown the class history length.
func (j *Job) Start(ctx context.Context, args []any) error {
	_, started, err := j.l.store.HGet(ctx, j.key(), fieldStartTime)
	if err != nil {
		return fmt.Errorf("check run %s: %w", j.key(), err)
	}
	if started {
		return fmt.Errorf("%w: %s %s", ErrDuplicateRun, j.ClassName, j.JobID)
	}

	encoded, err := j.l.codec.Encode(args)
	if err != nil {
		return err
	}

	cfg := j.l.ClassConfig(j.ClassName)
	numJobs, err := j.l.RunningJobs(j.ClassName).Add(ctx, j.JobID, j.ClassName)
	if err != nil {
		return err
	}
	if !cfg.ExcludeFromLinearHistory {
		if _, err := j.l.LinearJobs().Add(ctx, j.JobID, j.ClassName); err != nil {
			return err
		}
	}

	if err := j.stamp(ctx, fieldStartTime); err != nil {
		return err
	}
	if err := j.l.store.HSet(ctx, j.key(), fieldArgs, encoded); err != nil {
		return fmt.Errorf("record args of %s: %w", j.key(), err)
	}

	return j.recordNumJobs(ctx, numJobs, cfg)
}

func (j *Job) recordNumJobs(ctx context.Context, numJobs int64, cfg ClassConfig) error {
	class := j.l.Class(j.ClassName)
	highWater, err := class.MaxConcurrentJobs(ctx)
	if err != nil {
		return err
	}
	if highWater < numJobs {
		if err := j.l.store.Set(ctx, maxJobsKey(j.ClassName), fmt.Sprint(numJobs)); err != nil {
			return fmt.Errorf("raise high-water mark of %s: %w", j.ClassName, err)
		}
	}

	if numJobs <= int64(cfg.HistoryLen) {
		return nil
	}
	_, err = class.CleanOldRunningJobs(ctx)
	return err
}

// Finish records the end of the run and moves it from the running list to
// the finished list.
func (j *Job) Finish(ctx context.Context) error {
	if err := j.stamp(ctx, fieldEndTime); err != nil {
		return err
	}
	if _, err := j.l.FinishedJobs(j.ClassName).Add(ctx, j.JobID, j.ClassName); err != nil {
		return err
	}
	return j.l.RunningJobs(j.ClassName).Remove(ctx, j.JobID)
}

// Fail records runErr against the run, counts it as a failure and finishes
// the run.
func (j *Job) Fail(ctx context.Context, runErr error) error {
	msg := "unknown error"
	if runErr != nil {
		msg = runErr.Error()
	}
	return j.failWith(ctx, msg)
}

// Cancel marks the run as abandoned and finishes it.
func (j *Job) Cancel(ctx context.Context) error {
	return j.failWith(ctx, CancelMessage)
}

// CancelWithReason cancels the run, appending reason to the cancel message.
func (j *Job) CancelWithReason(ctx context.Context, reason string) error {
	return j.failWith(ctx, CancelMessage+reason)
}

func (j *Job) failWith(ctx context.Context, msg string) error {
	if err := j.l.store.HSet(ctx, j.key(), fieldError, msg); err != nil {
		return fmt.Errorf("record error of %s: %w", j.key(), err)
	}
	if _, err := j.l.store.Incr(ctx, totalFailedKey(j.ClassName)); err != nil {
		return fmt.Errorf("count failure of %s: %w", j.ClassName, err)
	}
	return j.Finish(ctx)
}

// Retry resubmits the run's original arguments to the enqueuer. It does
// nothing when the class no longer resolves.
func (j *Job) Retry(ctx context.Context) error {
	if !j.l.ClassNameValid(j.ClassName) {
		j.l.logger.Info("not retrying run of unknown class", "class", j.ClassName, "job_id", j.JobID)
		return nil
	}
	if j.l.enqueuer == nil {
		return ErrNoEnqueuer
	}
	args, err := j.Args(ctx)
	if err != nil {
		return err
	}
	if err := j.l.enqueuer.Enqueue(ctx, j.ClassName, args); err != nil {
		return fmt.Errorf("enqueue %s: %w", j.ClassName, err)
	}
	return nil
}

// Purge deletes the run. An unfinished run is canceled first so the class
// counters stay honest.
func (j *Job) Purge(ctx context.Context) error {
	rec, err := j.Load(ctx)
	if err != nil {
		return err
	}
	if rec.Exists() && !rec.Finished() {
		if err := j.Cancel(ctx); err != nil {
			return err
		}
	}

	var errs []error
	for _, list := range j.lists() {
		if err := list.Remove(ctx, j.JobID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := j.l.store.Del(ctx, j.key()); err != nil {
		errs = append(errs, fmt.Errorf("delete %s: %w", j.key(), err))
	}
	return errors.Join(errs...)
}

// SafePurge deletes the run's record only when no list references it.
func (j *Job) SafePurge(ctx context.Context) error {
	for _, list := range j.lists() {
		found, err := list.Contains(ctx, j.JobID)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
	}
	if err := j.l.store.Del(ctx, j.key()); err != nil {
		return fmt.Errorf("delete %s: %w", j.key(), err)
	}
	return nil
}

func (j *Job) lists() []*HistoryList {
	return []*HistoryList{
		j.l.RunningJobs(j.ClassName),
		j.l.FinishedJobs(j.ClassName),
		j.l.LinearJobs(),
	}
}
