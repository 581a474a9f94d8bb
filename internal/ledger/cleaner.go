package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
)

// Cleaner repairs drift between the lists, records and counters of a
// ledger. Every operation is best effort: a failure on one key is logged and
// the pass continues, and the joined errors are returned at the end. Each
// deletion is logged with its reason before it runs.
type Cleaner struct {
	l      *Ledger
	logger *slog.Logger
}

// NewCleaner returns a cleaner for l.
func NewCleaner(l *Ledger) *Cleaner {
	return &Cleaner{l: l, logger: l.logger.With("component", "cleaner")}
}

// SweepStaleRunning cancels the running entries of className that have no
// start time or are older than the class purge age.
func (c *Cleaner) SweepStaleRunning(ctx context.Context, className string) (int, error) {
	return c.l.Class(className).CleanOldRunningJobs(ctx)
}

// CleanAllOldRunningJobs sweeps every known class.
func (c *Cleaner) CleanAllOldRunningJobs(ctx context.Context) (int, error) {
	classes, err := c.jobClasses(ctx)
	if err != nil {
		return 0, err
	}

	var (
		total int
		errs  []error
	)
	for _, className := range classes {
		n, err := c.SweepStaleRunning(ctx, className)
		total += n
		if err != nil {
			c.logger.Error("sweep failed", "class", className, "error", err)
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// RepairOrphanKeys deletes every key under the namespace of className that
// is neither a support key nor the record of a run referenced by the
// class's running, finished or linear list. Keys of other classes whose
// names extend this one past a dot are left alone.
func (c *Cleaner) RepairOrphanKeys(ctx context.Context, className string) (int, error) {
	keys, err := c.classKeys(ctx, className)
	if err != nil {
		return 0, err
	}

	known := make(map[string]bool)
	for _, key := range supportKeys(className) {
		known[key] = true
	}
	for _, list := range []*HistoryList{
		c.l.RunningJobs(className),
		c.l.FinishedJobs(className),
		c.l.LinearJobs(),
	} {
		ids, err := list.JobIDs(ctx, 0, -1)
		if err != nil {
			return 0, err
		}
		for _, id := range ids {
			known[jobKey(className, id)] = true
		}
	}

	var (
		deleted int
		errs    []error
	)
	for _, key := range keys {
		if known[key] {
			continue
		}
		if err := c.del(ctx, key, "stranded job key"); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

// classKeys returns the keys under "job_history.<class>." that belong to
// className rather than to a longer class name sharing the prefix.
func (c *Cleaner) classKeys(ctx context.Context, className string) ([]string, error) {
	prefix := baseKey(className) + "."
	keys, err := c.l.store.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("scan keys of %s: %w", className, err)
	}

	classes, err := c.jobClasses(ctx)
	if err != nil {
		return nil, err
	}
	var nested []string
	for _, other := range classes {
		if other != className && strings.HasPrefix(other, className+".") {
			nested = append(nested, baseKey(other)+".")
		}
	}

	owned := keys[:0]
	for _, key := range keys {
		if !slices.ContainsFunc(nested, func(p string) bool { return strings.HasPrefix(key, p) }) {
			owned = append(owned, key)
		}
	}
	return owned, nil
}

// RepairLinearIndex drops side-map entries for ids no longer in the linear
// list.
func (c *Cleaner) RepairLinearIndex(ctx context.Context) (int, error) {
	linear := c.l.LinearJobs()
	classes, err := c.l.store.HGetAll(ctx, linear.classesKey())
	if err != nil {
		return 0, fmt.Errorf("read linear classes: %w", err)
	}
	ids, err := linear.JobIDs(ctx, 0, -1)
	if err != nil {
		return 0, err
	}

	var (
		removed int
		errs    []error
	)
	for jobID := range classes {
		if slices.Contains(ids, jobID) {
			continue
		}
		c.logger.Warn("deleting linear class entry", "reason", "job missing from linear list", "job_id", jobID)
		if err := c.l.store.HDel(ctx, linear.classesKey(), jobID); err != nil {
			errs = append(errs, fmt.Errorf("untag %s: %w", jobID, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// FixupAllKeys repairs orphan keys of every class and then the linear index.
func (c *Cleaner) FixupAllKeys(ctx context.Context) (int, error) {
	classes, err := c.jobClasses(ctx)
	if err != nil {
		return 0, err
	}

	var (
		total int
		errs  []error
	)
	for _, className := range classes {
		n, err := c.RepairOrphanKeys(ctx, className)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	n, err := c.RepairLinearIndex(ctx)
	total += n
	if err != nil {
		errs = append(errs, err)
	}
	return total, errors.Join(errs...)
}

// SimilarName reports whether another known class name starts with
// className, in which case a prefix scan for className would also match
// that class's keys.
func (c *Cleaner) SimilarName(ctx context.Context, className string) (bool, error) {
	classes, err := c.jobClasses(ctx)
	if err != nil {
		return false, err
	}
	for _, other := range classes {
		if other != className && strings.HasPrefix(other, className) {
			return true, nil
		}
	}
	return false, nil
}

// PurgeClass purges every run of className, deletes every key under its
// namespace and drops it from the registry. It refuses, returning false,
// when SimilarName reports a collision.
func (c *Cleaner) PurgeClass(ctx context.Context, className string) (bool, error) {
	similar, err := c.SimilarName(ctx, className)
	if err != nil {
		return false, err
	}
	if similar {
		c.logger.Warn("refusing to purge class", "class", className,
			"reason", "another class name starts with this name")
		return false, nil
	}

	var errs []error
	for _, list := range []*HistoryList{c.l.RunningJobs(className), c.l.FinishedJobs(className)} {
		jobs, err := list.Jobs(ctx, 0, -1)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, job := range jobs {
			c.logger.Warn("purging job", "reason", "class purge", "class", className, "job_id", job.JobID)
			if err := job.Purge(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}

	keys, err := c.l.store.Keys(ctx, baseKey(className))
	if err != nil {
		errs = append(errs, fmt.Errorf("scan keys of %s: %w", className, err))
	}
	for _, key := range keys {
		if err := c.del(ctx, key, "purging job key"); err != nil {
			errs = append(errs, err)
		}
	}

	c.logger.Warn("removing class from registry", "reason", "class purge", "class", className)
	if err := c.l.store.SRem(ctx, historyKey, className); err != nil {
		errs = append(errs, fmt.Errorf("unregister %s: %w", className, err))
	}
	return true, errors.Join(errs...)
}

// PurgeAllJobs purges every class, longest names first so the similar-name
// guard never blocks, then deletes the registry and any key left over.
func (c *Cleaner) PurgeAllJobs(ctx context.Context) error {
	classes, err := c.jobClasses(ctx)
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(classes)))

	var errs []error
	for _, className := range classes {
		if _, err := c.PurgeClass(ctx, className); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.del(ctx, historyKey, "purging job history registry"); err != nil {
		errs = append(errs, err)
	}

	keys, err := c.l.store.Keys(ctx, "")
	if err != nil {
		errs = append(errs, fmt.Errorf("scan remaining keys: %w", err))
	}
	for _, key := range keys {
		if err := c.del(ctx, key, "purging unknown key"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PurgeInvalidJobs purges every class that no longer resolves.
func (c *Cleaner) PurgeInvalidJobs(ctx context.Context) ([]string, error) {
	classes, err := c.jobClasses(ctx)
	if err != nil {
		return nil, err
	}

	var (
		purged []string
		errs   []error
	)
	for _, className := range classes {
		if c.l.ClassNameValid(className) {
			continue
		}
		ok, err := c.PurgeClass(ctx, className)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			purged = append(purged, className)
		}
	}
	return purged, errors.Join(errs...)
}

// PurgeLinearHistory empties the linear list, deleting records no other
// list still references.
func (c *Cleaner) PurgeLinearHistory(ctx context.Context) error {
	linear := c.l.LinearJobs()
	jobs, err := linear.Jobs(ctx, 0, -1)
	if err != nil {
		return err
	}

	var errs []error
	for _, job := range jobs {
		if err := linear.Remove(ctx, job.JobID); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := job.SafePurge(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, key := range []string{linear.key(), linear.classesKey()} {
		if err := c.del(ctx, key, "purging linear history"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Cleaner) jobClasses(ctx context.Context) ([]string, error) {
	return c.l.JobClasses(ctx)
}

func (c *Cleaner) del(ctx context.Context, key, reason string) error {
	c.logger.Warn("deleting key", "reason", reason, "key", key)
	if err := c.l.store.Del(ctx, key); err != nil {
		c.logger.Error("delete failed", "key", key, "error", err)
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
