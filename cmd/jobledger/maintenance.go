package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/caevv/jobledger/internal/config"
	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/scheduler"
)

// Maintenance task names. The colon keeps them apart from class names.
const (
	sweepTaskName = "cleaner:sweep"
	fixupTaskName = "cleaner:fixup"
)

// maintenanceTasks returns the cleaner tasks enabled by cfg.
func maintenanceTasks(cfg config.Cleaner, l *ledger.Ledger, logger *slog.Logger) []scheduler.Task {
	cleaner := ledger.NewCleaner(l)

	var tasks []scheduler.Task
	if cfg.SweepSchedule != "" && !scheduler.Disabled(cfg.SweepSchedule) {
		tasks = append(tasks, scheduler.Task{
			Name:     sweepTaskName,
			Schedule: cfg.SweepSchedule,
			Run: func(ctx context.Context) error {
				n, err := cleaner.CleanAllOldRunningJobs(ctx)
				logger.Info("swept stale running jobs", "canceled", n)
				return err
			},
		})
	}
	if cfg.FixupSchedule != "" && !scheduler.Disabled(cfg.FixupSchedule) {
		purgeInvalid := cfg.PurgeInvalid
		tasks = append(tasks, scheduler.Task{
			Name:     fixupTaskName,
			Schedule: cfg.FixupSchedule,
			Run: func(ctx context.Context) error {
				var errs []error
				n, err := cleaner.FixupAllKeys(ctx)
				if err != nil {
					errs = append(errs, err)
				}
				logger.Info("repaired keys", "removed", n)

				if purgeInvalid {
					purged, err := cleaner.PurgeInvalidJobs(ctx)
					if err != nil {
						errs = append(errs, err)
					}
					logger.Info("purged invalid classes", "classes", purged)
				}
				return errors.Join(errs...)
			},
		})
	}
	return tasks
}
