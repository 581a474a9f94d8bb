package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/caevv/jobledger/internal/config"
	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/logging"
	"github.com/caevv/jobledger/internal/scheduler"
)

const (
	defaultTimeout = 10 * time.Minute
	maxErrorOutput = 2000
)

// ErrUnknownClass is returned for a class that is not configured.
var ErrUnknownClass = errors.New("unknown class")

// Runner executes configured classes as commands and records every run in
// the ledger. It is the ledger's enqueuer, so retried runs execute here too.
type Runner struct {
	ledger  *ledger.Ledger
	classes map[string]config.Class
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewRunner creates a runner for classes and installs it as l's enqueuer.
func NewRunner(l *ledger.Ledger, classes []config.Class, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		ledger:  l,
		classes: make(map[string]config.Class, len(classes)),
		logger:  logger,
	}
	for _, class := range classes {
		r.classes[class.Name] = class
	}
	l.SetEnqueuer(r)
	return r
}

// Execute runs className once with args appended to its configured
// arguments, recording the run. It returns the run's job id.
func (r *Runner) Execute(ctx context.Context, className string, args []any) (string, error) {
	class, ok := r.classes[className]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownClass, className)
	}
	if class.Command == "" {
		return "", fmt.Errorf("class %s has no command", className)
	}

	return r.ledger.Track(ctx, className, args, func(ctx context.Context) error {
		runLogger := logging.FromContext(ctx)
		runLogger.Info("starting command", "command", class.Command)

		startTime := time.Now()
		exitCode, stdout, stderr, err := r.executeCommand(ctx, class, args)
		duration := time.Since(startTime)

		if err != nil {
			runLogger.Error("command failed",
				"exit_code", exitCode,
				"duration", duration,
				"error", err)
			if exitCode > 0 {
				return fmt.Errorf("command exited with code %d: %s", exitCode, tailOutput(stderr, maxErrorOutput))
			}
			return err
		}

		runLogger.Info("command succeeded",
			"duration", duration,
			"stdout_bytes", len(stdout))
		return nil
	})
}

// Enqueue executes className in the background. The run outlives ctx's
// cancellation; Wait blocks until every enqueued run has returned.
func (r *Runner) Enqueue(ctx context.Context, className string, args []any) error {
	if _, ok := r.classes[className]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClass, className)
	}

	runCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.Execute(runCtx, className, args); err != nil {
			r.logger.Warn("enqueued run failed", "class", className, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every enqueued run has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Task returns the scheduler task that executes class on its schedule.
func (r *Runner) Task(class config.Class) scheduler.Task {
	return scheduler.Task{
		Name:     class.Name,
		Schedule: class.Schedule,
		Timeout:  class.Timeout(),
		Run: func(ctx context.Context) error {
			_, err := r.Execute(ctx, class.Name, nil)
			return err
		},
	}
}

// executeCommand runs the class command and captures output
func (r *Runner) executeCommand(ctx context.Context, class config.Class, args []any) (int, string, string, error) {
	timeout := class.Timeout()
	if timeout == 0 {
		timeout = defaultTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append([]string{}, class.Args...)
	for _, arg := range args {
		argv = append(argv, commandArg(arg))
	}

	cmd := exec.CommandContext(cmdCtx, class.Command, argv...)

	if class.Workdir != "" {
		cmd.Dir = class.Workdir
	}

	cmd.Env = os.Environ()
	for k, v := range class.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return exitCode, stdout.String(), stderr.String(), err
}

// commandArg renders one recorded argument as a command-line argument.
// Strings pass through; anything else is written as JSON.
func commandArg(arg any) string {
	if s, ok := arg.(string); ok {
		return s
	}
	data, err := json.Marshal(arg)
	if err != nil {
		return fmt.Sprint(arg)
	}
	return string(data)
}

// tailOutput returns the last maxChars characters of output
func tailOutput(output string, maxChars int) string {
	if len(output) <= maxChars {
		return output
	}
	return "..." + output[len(output)-maxChars:]
}
