package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caevv/jobledger/internal/config"
	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/scheduler"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testApp builds an app over a store in a temp dir with the given classes.
func testApp(t *testing.T, driver string, classes ...config.Class) *app {
	t.Helper()

	cfg := config.NewDefaultConfig()
	cfg.Defaults.Timezone = "UTC"
	cfg.Store.Driver = driver
	cfg.Store.Path = filepath.Join(t.TempDir(), "history."+driver)
	cfg.Classes = classes

	logger = quietLogger()
	a, err := newApp(cfg, logger)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func loadRun(t *testing.T, a *app, className, jobID string) *ledger.Record {
	t.Helper()
	rec, err := a.ledger.Job(className, jobID).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !rec.Exists() {
		t.Fatalf("run %s of %s not recorded", jobID, className)
	}
	return rec
}

func TestIntegration_ExecuteRecordsRun(t *testing.T) {
	a := testApp(t, "json", config.Class{
		Name:       "EchoJob",
		Command:    "/bin/echo",
		Args:       []string{"hello"},
		TimeoutSec: 5,
	})

	jobID, err := a.runner.Execute(context.Background(), "EchoJob", []any{"world", 3})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	rec := loadRun(t, a, "EchoJob", jobID)
	if !rec.Succeeded() {
		t.Errorf("run should have succeeded: %+v", rec)
	}
	if rec.EncodedArgs != `["world",3]` {
		t.Errorf("EncodedArgs = %s", rec.EncodedArgs)
	}

	ok, err := a.ledger.FinishedJobs("EchoJob").Contains(context.Background(), jobID)
	if err != nil || !ok {
		t.Errorf("finished list Contains() = %v, %v", ok, err)
	}
	ok, err = a.ledger.LinearJobs().Contains(context.Background(), jobID)
	if err != nil || !ok {
		t.Errorf("linear list Contains() = %v, %v", ok, err)
	}
	if n, _ := a.ledger.RunningJobs("EchoJob").NumJobs(context.Background()); n != 0 {
		t.Errorf("running list holds %d runs, want 0", n)
	}
}

func TestIntegration_FailingCommand(t *testing.T) {
	a := testApp(t, "bbolt", config.Class{
		Name:    "FailingJob",
		Command: "/bin/sh",
		Args:    []string{"-c", "echo broken >&2; exit 3"},
	})

	jobID, err := a.runner.Execute(context.Background(), "FailingJob", nil)
	if err == nil {
		t.Fatal("Execute() error = nil, want failure")
	}

	rec := loadRun(t, a, "FailingJob", jobID)
	if rec.Succeeded() {
		t.Error("run should have failed")
	}
	if !strings.Contains(rec.Error, "exited with code 3") || !strings.Contains(rec.Error, "broken") {
		t.Errorf("Error = %q", rec.Error)
	}

	summary, err := a.ledger.JobClassSummary(context.Background(), "FailingJob")
	if err != nil {
		t.Fatalf("JobClassSummary() error = %v", err)
	}
	if summary.TotalFailedJobs != 1 || summary.TotalFinishedJobs != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestIntegration_UnknownClass(t *testing.T) {
	a := testApp(t, "json", config.Class{Name: "RecordOnlyJob"})

	tests := []struct {
		name  string
		class string
	}{
		{"not configured", "MissingJob"},
		{"no command", "RecordOnlyJob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobID, err := a.runner.Execute(context.Background(), tt.class, nil)
			if err == nil {
				t.Fatal("Execute() error = nil")
			}
			if jobID != "" {
				t.Errorf("jobID = %q, want none recorded", jobID)
			}
		})
	}
}

func TestIntegration_TimeoutRecordsFailure(t *testing.T) {
	a := testApp(t, "json", config.Class{
		Name:       "SlowJob",
		Command:    "/bin/sleep",
		Args:       []string{"5"},
		TimeoutSec: 1,
	})

	start := time.Now()
	jobID, err := a.runner.Execute(context.Background(), "SlowJob", nil)
	if err == nil {
		t.Fatal("Execute() error = nil, want timeout")
	}
	if time.Since(start) > 4*time.Second {
		t.Error("command was not killed at its timeout")
	}

	rec := loadRun(t, a, "SlowJob", jobID)
	if !rec.Finished() || rec.Error == "" {
		t.Errorf("run should be recorded as failed: %+v", rec)
	}
}

func TestIntegration_RetryReplaysArgs(t *testing.T) {
	a := testApp(t, "json", config.Class{Name: "EchoJob", Command: "/bin/echo"})
	ctx := context.Background()

	jobID, err := a.runner.Execute(ctx, "EchoJob", []any{"invoice", "42"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if err := a.ledger.Job("EchoJob", jobID).Retry(ctx); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	a.runner.Wait()

	ids, err := a.ledger.FinishedJobs("EchoJob").JobIDs(ctx, 0, -1)
	if err != nil {
		t.Fatalf("JobIDs() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("finished runs = %d, want 2", len(ids))
	}
	if ids[1] != jobID {
		t.Errorf("oldest run = %s, want %s", ids[1], jobID)
	}
	retried := loadRun(t, a, "EchoJob", ids[0])
	if retried.EncodedArgs != `["invoice","42"]` {
		t.Errorf("retried args = %s", retried.EncodedArgs)
	}
}

func TestIntegration_ScheduledClasses(t *testing.T) {
	a := testApp(t, "bbolt",
		config.Class{Name: "JobOne", Command: "/bin/echo", Schedule: "@every 1s", TimeoutSec: 5},
		config.Class{Name: "JobTwo", Command: "/bin/echo", Schedule: "@every 1s", TimeoutSec: 5},
		config.Class{Name: "OnDemandJob", Command: "/bin/echo"},
	)
	a.cfg.Cleaner.SweepSchedule = scheduler.Off
	a.cfg.Cleaner.FixupSchedule = scheduler.Off

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	sched := scheduler.New(ctx, logger, scheduler.WithLocation(time.UTC))
	if err := addTasks(sched, a); err != nil {
		t.Fatalf("addTasks() error = %v", err)
	}
	if got := len(sched.Tasks()); got != 2 {
		t.Fatalf("scheduled tasks = %d, want 2", got)
	}

	if err := sched.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(2500 * time.Millisecond)
	if err := sched.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	for _, class := range []string{"JobOne", "JobTwo"} {
		n, err := a.ledger.FinishedJobs(class).NumJobs(context.Background())
		if err != nil {
			t.Fatalf("NumJobs() error = %v", err)
		}
		if n == 0 {
			t.Errorf("class %s did not run", class)
		}
	}

	classes, err := a.ledger.JobClasses(context.Background())
	if err != nil {
		t.Fatalf("JobClasses() error = %v", err)
	}
	for _, class := range classes {
		if class == "OnDemandJob" {
			t.Error("unscheduled class should not have run")
		}
	}
}

func TestMaintenanceTasks(t *testing.T) {
	a := testApp(t, "json")

	tests := []struct {
		name    string
		cleaner config.Cleaner
		want    []string
	}{
		{
			name:    "both enabled",
			cleaner: config.Cleaner{SweepSchedule: "@hourly", FixupSchedule: "@daily"},
			want:    []string{sweepTaskName, fixupTaskName},
		},
		{
			name:    "sweep off",
			cleaner: config.Cleaner{SweepSchedule: "off", FixupSchedule: "@daily"},
			want:    []string{fixupTaskName},
		},
		{
			name:    "both off",
			cleaner: config.Cleaner{SweepSchedule: "OFF", FixupSchedule: ""},
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := maintenanceTasks(tt.cleaner, a.ledger, logger)
			var names []string
			for _, task := range tasks {
				names = append(names, task.Name)
			}
			if strings.Join(names, ",") != strings.Join(tt.want, ",") {
				t.Errorf("tasks = %v, want %v", names, tt.want)
			}
		})
	}
}

func TestMaintenanceSweepCancelsStaleRuns(t *testing.T) {
	a := testApp(t, "json", config.Class{Name: "StuckJob", PurgeAge: time.Millisecond})
	ctx := context.Background()

	job := a.ledger.Job("StuckJob", ledger.NewRunID())
	if err := job.Start(ctx, nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	tasks := maintenanceTasks(config.Cleaner{SweepSchedule: "@hourly"}, a.ledger, logger)
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
	if err := tasks[0].Run(ctx); err != nil {
		t.Fatalf("sweep error = %v", err)
	}

	rec := loadRun(t, a, "StuckJob", job.JobID)
	if !strings.HasPrefix(rec.Error, ledger.CancelMessage) {
		t.Errorf("Error = %q, want cancel message", rec.Error)
	}
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "jobledger.yaml")

	cfg := config.NewDefaultConfig()
	cfg.Store.Driver = "json"
	cfg.Store.Path = filepath.Join(dir, "history.json")
	cfg.Logging.Output = "discard"
	if err := config.SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	run := func(t *testing.T, args ...string) (string, error) {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(append(args, "--config", configPath))
		err := rootCmd.Execute()
		return out.String(), err
	}
	logger = quietLogger()

	steps := []struct {
		args    []string
		wantErr bool
		want    string
	}{
		{[]string{"class", "add", "EchoJob", "--command", "/bin/echo"}, false, "Class 'EchoJob' added"},
		{[]string{"class", "add", "ScheduledJob", "--command", "", "--schedule", "@daily"}, true, ""},
		{[]string{"class", "list"}, false, "EchoJob"},
		{[]string{"class", "update", "EchoJob", "--history-len", "50", "--purge-age", "2h"}, false, "Class 'EchoJob' updated"},
		{[]string{"class", "show", "EchoJob"}, false, "History length:    50"},
		{[]string{"class", "show", "EchoJob"}, false, "Purge age:         2h0m0s"},
		{[]string{"class", "update", "EchoJob", "--schedule", "every 5 fortnights"}, true, ""},
		{[]string{"class", "update", "MissingJob", "--history-len", "5"}, true, ""},
		{[]string{"class", "show", "MissingJob"}, true, ""},
		{[]string{"validate"}, false, "Configuration is valid"},
		{[]string{"run", "EchoJob", "invoice-17"}, false, "EchoJob "},
		{[]string{"classes"}, false, "EchoJob"},
		{[]string{"runs", "EchoJob"}, false, "invoice-17"},
		{[]string{"runs"}, false, "linear list"},
		{[]string{"search", "invoice"}, false, "invoice-17"},
		{[]string{"search", "--type", "job"}, true, ""},
		{[]string{"clean", "fixup"}, false, "Repaired"},
		{[]string{"clean", "purge-all"}, true, ""},
		{[]string{"class", "remove", "EchoJob"}, false, "removed"},
		{[]string{"clean", "purge-invalid"}, false, "Purged EchoJob"},
		{[]string{"classes"}, false, "No classes recorded"},
	}
	for _, step := range steps {
		name := strings.Join(step.args, " ")
		t.Run(name, func(t *testing.T) {
			out, err := run(t, step.args...)
			if step.wantErr {
				if err == nil {
					t.Errorf("expected error, got output %q", out)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out, step.want) {
				t.Errorf("output = %q, want it to contain %q", out, step.want)
			}
		})
	}
}
