package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/caevv/jobledger/internal/logging"
)

// NotSignaledReason is appended to the cancel message of a tracked run that
// ended without being finished or failed.
const NotSignaledReason = " Job did not signal completion on finish."

// JobExecution is the set of hooks a host runtime calls around one unit of
// work.
type JobExecution interface {
	Start(ctx context.Context, args []any) error
	Finish(ctx context.Context) error
	Fail(ctx context.Context, err error) error
}

var _ JobExecution = (*Job)(nil)

// NewRunID returns a fresh identifier for a run.
func NewRunID() string {
	return uuid.NewString()
}

// Track records one execution of fn as a run of className. The run is
// started with args, finished when fn returns nil and failed with fn's error
// otherwise. A panic in fn fails the run and is re-raised. A run left
// neither finished nor failed is canceled. Bookkeeping ignores cancellation
// of ctx so a timed-out run is still recorded; fn receives ctx carrying a
// logger tagged with the run.
func (l *Ledger) Track(ctx context.Context, className string, args []any, fn func(ctx context.Context) error) (string, error) {
	job := l.Job(className, NewRunID())
	logger := logging.ForRun(l.logger, className, job.JobID)
	bookkeeping := context.WithoutCancel(ctx)

	if err := job.Start(bookkeeping, args); err != nil {
		return job.JobID, fmt.Errorf("start run: %w", err)
	}
	logger.Debug("run started")

	defer l.settle(bookkeeping, job, logger)
	defer func() {
		if r := recover(); r != nil {
			if err := job.Fail(bookkeeping, fmt.Errorf("panic: %v", r)); err != nil {
				logger.Error("failed to record panicked run", "error", err)
			}
			panic(r)
		}
	}()

	if err := fn(logging.WithContext(ctx, logger)); err != nil {
		logger.Info("run failed", "error", err)
		if ferr := job.Fail(bookkeeping, err); ferr != nil {
			logger.Error("failed to record run failure", "error", ferr)
		}
		return job.JobID, err
	}

	if err := job.Finish(bookkeeping); err != nil {
		return job.JobID, fmt.Errorf("finish run: %w", err)
	}
	logger.Debug("run finished")
	return job.JobID, nil
}

// settle cancels a run that ended without being finished or failed. A run
// whose record was already evicted is left alone.
func (l *Ledger) settle(ctx context.Context, job *Job, logger *slog.Logger) {
	rec, err := job.Load(ctx)
	if err != nil {
		logger.Error("failed to load run", "error", err)
		return
	}
	if !rec.Exists() || rec.Finished() || rec.Error != "" {
		return
	}
	logger.Warn("canceling run", "reason", "did not signal completion")
	if err := job.CancelWithReason(ctx, NotSignaledReason); err != nil {
		logger.Error("failed to cancel run", "error", err)
	}
}
