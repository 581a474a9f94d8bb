// Package scheduler fires named tasks on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps robfig/cron and manages task lifecycle with context support.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	loc    *time.Location
	tasks  map[string]*scheduledTask
	mu     sync.RWMutex
	wg     sync.WaitGroup
}

// scheduledTask tracks a task and its cron entry.
type scheduledTask struct {
	task     Task
	entryID  cron.EntryID
	lastRun  time.Time
	nextRun  time.Time
	runCount int64
	failures int64
	lastErr  string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation evaluates schedules in loc instead of the local time zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// New creates a new Scheduler instance with context support.
// The context is used for graceful shutdown and task cancellation.
func New(ctx context.Context, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	schedCtx, cancel := context.WithCancel(ctx)

	s := &Scheduler{
		ctx:    schedCtx,
		cancel: cancel,
		logger: logger,
		loc:    time.Local,
		tasks:  make(map[string]*scheduledTask),
	}
	for _, opt := range opts {
		opt(s)
	}

	cronLogger := &cronSlogAdapter{logger: logger}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		),
	)

	return s
}

// AddTask schedules task according to its schedule expression.
// Returns an error if the name already exists or if the schedule is invalid.
func (s *Scheduler) AddTask(task Task) error {
	if task.Name == "" {
		return fmt.Errorf("task name cannot be empty")
	}
	if task.Run == nil {
		return fmt.Errorf("task %q has no run function", task.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.Name]; exists {
		return fmt.Errorf("task %q already exists", task.Name)
	}

	schedule, err := ParseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("failed to parse schedule for task %q: %w", task.Name, err)
	}

	entryID := s.cron.Schedule(schedule, s.wrapTask(task))
	next := schedule.Next(time.Now().In(s.loc))

	s.tasks[task.Name] = &scheduledTask{
		task:    task,
		entryID: entryID,
		nextRun: next,
	}

	s.logger.Info("task added to scheduler",
		slog.String("task", task.Name),
		slog.String("schedule", task.Schedule),
		slog.Time("next_run", next),
	)

	return nil
}

// wrapTask wraps a Task in a cron.Job that respects context cancellation.
func (s *Scheduler) wrapTask(task Task) cron.FuncJob {
	return func() {
		s.mu.Lock()
		st, exists := s.tasks[task.Name]
		if !exists {
			s.mu.Unlock()
			return
		}
		st.lastRun = time.Now()
		st.runCount++
		s.mu.Unlock()

		s.wg.Add(1)
		defer s.wg.Done()

		taskCtx := s.ctx
		if task.Timeout > 0 {
			var cancel context.CancelFunc
			taskCtx, cancel = context.WithTimeout(s.ctx, task.Timeout)
			defer cancel()
		}

		s.logger.Debug("starting task", slog.String("task", task.Name))

		startTime := time.Now()
		err := task.Run(taskCtx)
		duration := time.Since(startTime)

		if err != nil {
			s.logger.Error("task failed",
				slog.String("task", task.Name),
				slog.String("error", err.Error()),
				slog.Duration("duration", duration),
			)
		} else {
			s.logger.Info("task completed",
				slog.String("task", task.Name),
				slog.Duration("duration", duration),
			)
		}

		s.mu.Lock()
		if st, exists := s.tasks[task.Name]; exists {
			if err != nil {
				st.failures++
				st.lastErr = err.Error()
			} else {
				st.lastErr = ""
			}
			if entry := s.cron.Entry(st.entryID); entry.ID != 0 {
				st.nextRun = entry.Next
			}
		}
		s.mu.Unlock()
	}
}

// Start begins the scheduler. Tasks start running according to their schedules.
func (s *Scheduler) Start() error {
	s.mu.RLock()
	taskCount := len(s.tasks)
	s.mu.RUnlock()

	if taskCount == 0 {
		s.logger.Warn("starting scheduler with no tasks")
	}

	s.logger.Info("starting scheduler",
		slog.Int("task_count", taskCount),
		slog.String("location", s.loc.String()),
	)
	s.cron.Start()

	return nil
}

// Stop cancels running tasks, stops the cron loop and waits for in-flight
// executions to return.
func (s *Scheduler) Stop() error {
	s.logger.Info("stopping scheduler")

	s.cancel()

	<-s.cron.Stop().Done()
	s.wg.Wait()

	s.logger.Info("all tasks stopped")
	return nil
}

// Task returns the scheduled task with the given name.
func (s *Scheduler) Task(name string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.tasks[name]
	if !exists {
		return Task{}, false
	}
	return st.task, true
}

// Tasks returns every scheduled task, sorted by name.
func (s *Scheduler) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]Task, 0, len(s.tasks))
	for _, st := range s.tasks {
		tasks = append(tasks, st.task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks
}

// Stats returns statistics for the task with the given name.
func (s *Scheduler) Stats(name string) (*TaskStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.tasks[name]
	if !exists {
		return nil, false
	}

	nextRun := st.nextRun
	if entry := s.cron.Entry(st.entryID); entry.ID != 0 && !entry.Next.IsZero() {
		nextRun = entry.Next
	}

	return &TaskStats{
		Name:     name,
		Schedule: st.task.Schedule,
		LastRun:  st.lastRun,
		NextRun:  nextRun,
		RunCount: st.runCount,
		Failures: st.failures,
		LastErr:  st.lastErr,
	}, true
}

// AllStats returns statistics for every task, sorted by name.
func (s *Scheduler) AllStats() []*TaskStats {
	tasks := s.Tasks()
	stats := make([]*TaskStats, 0, len(tasks))
	for _, task := range tasks {
		if st, ok := s.Stats(task.Name); ok {
			stats = append(stats, st)
		}
	}
	return stats
}

// cronSlogAdapter adapts slog.Logger to cron.Logger interface.
type cronSlogAdapter struct {
	logger *slog.Logger
}

func (a *cronSlogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a *cronSlogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := make([]any, 0, len(keysAndValues)+1)
	attrs = append(attrs, slog.String("error", err.Error()))
	attrs = append(attrs, keysAndValues...)
	a.logger.Error(msg, attrs...)
}
