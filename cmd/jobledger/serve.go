package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/caevv/jobledger/internal/scheduler"
	"github.com/caevv/jobledger/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled classes and maintenance behind the HTTP API",
	Long: `Start the scheduler and the JSON HTTP API.

Every configured class with a schedule is executed on that schedule and
recorded in the ledger. The cleaner sweeps stale running jobs and repairs
keys on its own schedules. The API serves class summaries, history lists,
run details and search, and accepts retry, cancel and purge requests.

Example:
  jobledger serve --config ./jobledger.yaml --addr :8080`,
	RunE: runServer,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", ":8080", "HTTP server address (host:port)")
	serveCmd.Flags().Bool("no-api", false, "Run the scheduler without the HTTP API")
}

func runServer(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	noAPI, _ := cmd.Flags().GetBool("no-api")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("configuration loaded successfully",
		"classes", len(a.cfg.Classes),
		"timezone", a.cfg.Defaults.Timezone,
		"store_driver", a.cfg.Store.Driver)

	ctx := setupSignalHandler()

	sched := scheduler.New(ctx, logger, scheduler.WithLocation(a.cfg.Location()))
	if err := addTasks(sched, a); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("scheduler error: %w", err)
		}
		<-gCtx.Done()
		return nil
	})

	var srv *server.Server
	if !noAPI {
		srv = server.New(addr, a.ledger, a.searcher(), sched, logger)
		g.Go(func() error {
			if err := srv.Start(gCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down gracefully...")

		if err := sched.Stop(); err != nil {
			logger.Error("error stopping scheduler", "error", err)
		}
		if srv != nil {
			if err := srv.Stop(context.Background()); err != nil {
				logger.Error("error stopping server", "error", err)
			}
		}
		return nil
	})

	logger.Info("jobledger serve mode started",
		"scheduled_tasks", len(sched.Tasks()),
		"api", !noAPI,
		"addr", addr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("error during execution", "error", err)
		return err
	}

	logger.Info("jobledger stopped")
	return nil
}

// addTasks schedules every class with a schedule plus the cleaner's
// maintenance tasks.
func addTasks(sched *scheduler.Scheduler, a *app) error {
	for _, class := range a.cfg.Classes {
		if class.Schedule == "" {
			continue
		}
		if err := sched.AddTask(a.runner.Task(class)); err != nil {
			return fmt.Errorf("failed to schedule class %s: %w", class.Name, err)
		}
	}
	for _, task := range maintenanceTasks(a.cfg.Cleaner, a.ledger, logger) {
		if err := sched.AddTask(task); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", task.Name, err)
		}
	}
	return nil
}
