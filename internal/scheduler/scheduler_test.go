package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// mockTask counts executions of a task function.
type mockTask struct {
	runCount atomic.Int32
	runErr   error
	runDelay time.Duration
	sawErr      atomic.Bool
	sawDeadline atomic.Bool
}

func (m *mockTask) Run(ctx context.Context) error {
	m.runCount.Add(1)

	if m.runDelay > 0 {
		select {
		case <-time.After(m.runDelay):
		case <-ctx.Done():
			m.sawErr.Store(true)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				m.sawDeadline.Store(true)
			}
			return ctx.Err()
		}
	}

	return m.runErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewScheduler(t *testing.T) {
	sched := New(context.Background(), nil)
	if sched == nil {
		t.Fatal("New() returned nil")
	}
	if sched.cron == nil {
		t.Error("scheduler cron is nil")
	}
	if sched.tasks == nil {
		t.Error("scheduler tasks map is nil")
	}
	if sched.loc != time.Local {
		t.Errorf("default location = %v, want Local", sched.loc)
	}

	utc := New(context.Background(), nil, WithLocation(time.UTC))
	if utc.loc != time.UTC {
		t.Errorf("location = %v, want UTC", utc.loc)
	}
}

func TestScheduler_AddTask(t *testing.T) {
	noop := (&mockTask{}).Run

	tests := []struct {
		name      string
		task      Task
		wantErr   bool
		errString string
	}{
		{
			name:    "valid task with cron schedule",
			task:    Task{Name: "sweep", Schedule: "*/5 * * * *", Run: noop},
			wantErr: false,
		},
		{
			name:    "valid task with @hourly",
			task:    Task{Name: "hourly", Schedule: "@hourly", Run: noop},
			wantErr: false,
		},
		{
			name:    "valid task with @every",
			task:    Task{Name: "interval", Schedule: "@every 5m", Run: noop},
			wantErr: false,
		},
		{
			name:    "valid task with human interval",
			task:    Task{Name: "human", Schedule: "every 2h", Run: noop},
			wantErr: false,
		},
		{
			name:      "empty name",
			task:      Task{Schedule: "@hourly", Run: noop},
			wantErr:   true,
			errString: "task name cannot be empty",
		},
		{
			name:      "nil run function",
			task:      Task{Name: "nil-run", Schedule: "@hourly"},
			wantErr:   true,
			errString: "no run function",
		},
		{
			name:    "invalid schedule",
			task:    Task{Name: "bad-schedule", Schedule: "invalid cron", Run: noop},
			wantErr: true,
		},
		{
			name:      "duplicate name",
			task:      Task{Name: "sweep", Schedule: "@daily", Run: noop},
			wantErr:   true,
			errString: "already exists",
		},
	}

	sched := New(context.Background(), quietLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sched.AddTask(tt.task)

			if tt.wantErr {
				if err == nil {
					t.Errorf("AddTask() error = nil, wantErr %v", tt.wantErr)
					return
				}
				if tt.errString != "" && !strings.Contains(err.Error(), tt.errString) {
					t.Errorf("AddTask() error = %v, want error containing %q", err, tt.errString)
				}
			} else if err != nil {
				t.Errorf("AddTask() unexpected error = %v", err)
			}
		})
	}
}

func TestScheduler_TaskLookup(t *testing.T) {
	sched := New(context.Background(), quietLogger())

	for _, name := range []string{"fixup", "sweep", "ReportJob"} {
		if err := sched.AddTask(Task{Name: name, Schedule: "@hourly", Run: (&mockTask{}).Run}); err != nil {
			t.Fatalf("AddTask() error = %v", err)
		}
	}

	got, exists := sched.Task("sweep")
	if !exists {
		t.Fatal("Task() task not found")
	}
	if got.Schedule != "@hourly" {
		t.Errorf("Task() schedule = %q", got.Schedule)
	}
	if _, exists := sched.Task("non-existent"); exists {
		t.Error("Task() found non-existent task")
	}

	tasks := sched.Tasks()
	var names []string
	for _, task := range tasks {
		names = append(names, task.Name)
	}
	if strings.Join(names, ",") != "ReportJob,fixup,sweep" {
		t.Errorf("Tasks() = %v, want sorted names", names)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := New(ctx, quietLogger())

	task := &mockTask{}
	if err := sched.AddTask(Task{Name: "start-stop", Schedule: "@every 1s", Run: task.Run}); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}

	if err := sched.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(2500 * time.Millisecond)

	if err := sched.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	runCount := task.runCount.Load()
	if runCount == 0 {
		t.Error("task did not run")
	}
	t.Logf("task ran %d times", runCount)
}

func TestScheduler_StopCancelsRunningTask(t *testing.T) {
	sched := New(context.Background(), quietLogger())

	task := &mockTask{runDelay: time.Minute}
	if err := sched.AddTask(Task{Name: "slow", Schedule: "@every 1s", Run: task.Run}); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(1200 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = sched.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}

	if task.runCount.Load() == 0 {
		t.Fatal("expected at least one task run")
	}
	if !task.sawErr.Load() {
		t.Error("running task was not canceled")
	}
}

func TestScheduler_Stats(t *testing.T) {
	sched := New(context.Background(), quietLogger())

	task := &mockTask{runErr: errors.New("store unavailable")}
	if err := sched.AddTask(Task{Name: "stats", Schedule: "@every 1s", Run: task.Run}); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}

	stats, exists := sched.Stats("stats")
	if !exists {
		t.Fatal("Stats() task not found")
	}
	if stats.RunCount != 0 {
		t.Errorf("initial run count = %d, want 0", stats.RunCount)
	}
	if stats.NextRun.IsZero() {
		t.Error("NextRun should be set before start")
	}

	if err := sched.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(2500 * time.Millisecond)
	if err := sched.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	stats, exists = sched.Stats("stats")
	if !exists {
		t.Fatal("Stats() task not found")
	}
	if stats.RunCount == 0 {
		t.Error("run count should be > 0 after running")
	}
	if stats.Failures != stats.RunCount {
		t.Errorf("failures = %d, want %d", stats.Failures, stats.RunCount)
	}
	if stats.LastErr != "store unavailable" {
		t.Errorf("last error = %q", stats.LastErr)
	}
	if stats.LastRun.IsZero() {
		t.Error("LastRun should not be zero")
	}

	if _, exists := sched.Stats("non-existent"); exists {
		t.Error("Stats() found non-existent task")
	}
	if all := sched.AllStats(); len(all) != 1 {
		t.Errorf("AllStats() returned %d entries, want 1", len(all))
	}
}

func TestScheduler_TaskTimeout(t *testing.T) {
	sched := New(context.Background(), quietLogger())

	task := &mockTask{runDelay: 10 * time.Second}
	if err := sched.AddTask(Task{Name: "timeout", Schedule: "@every 1s", Timeout: 200 * time.Millisecond, Run: task.Run}); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(1600 * time.Millisecond)

	if err := sched.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if task.runCount.Load() == 0 {
		t.Fatal("task should have run")
	}
	if !task.sawDeadline.Load() {
		t.Error("task did not hit its timeout")
	}
}
