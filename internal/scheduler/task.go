package scheduler

import (
	"context"
	"time"
)

// TaskFunc is the unit of work a scheduled task performs. It should respect
// context cancellation for graceful shutdown.
type TaskFunc func(ctx context.Context) error

// Task is a named unit of work fired on a schedule.
type Task struct {
	// Name identifies the task. Names are unique within a scheduler.
	Name string
	// Schedule is a cron expression, descriptor or "every <n><unit>" interval.
	Schedule string
	// Timeout bounds one execution. Zero means no timeout.
	Timeout time.Duration
	Run     TaskFunc
}

// TaskStats returns statistics for a scheduled task.
type TaskStats struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	LastRun  time.Time `json:"last_run"`
	NextRun  time.Time `json:"next_run"`
	RunCount int64     `json:"run_count"`
	Failures int64     `json:"failures"`
	LastErr  string    `json:"last_error,omitempty"`
}
