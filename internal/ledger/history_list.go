package ledger

import (
	"context"
	"fmt"
	"slices"
)

// HistoryList is a capped list of run ids, newest first, with a counter of
// every id ever added. Each class has a running and a finished list; the
// linear list has an empty scope and spans every class, remembering the
// owning class of each id in a side map.
type HistoryList struct {
	l     *Ledger
	scope string
	kind  ListKind
	// capacity overrides the class history length when set.
	capacity *int
}

// RunningJobs returns the running list of className.
func (l *Ledger) RunningJobs(className string) *HistoryList {
	return &HistoryList{l: l, scope: className, kind: Running}
}

// FinishedJobs returns the finished list of className.
func (l *Ledger) FinishedJobs(className string) *HistoryList {
	return &HistoryList{l: l, scope: className, kind: Finished}
}

// LinearJobs returns the global linear list.
func (l *Ledger) LinearJobs() *HistoryList {
	list := &HistoryList{l: l, scope: "", kind: Linear}
	if limit := l.settings.MaxLinearJobs; limit >= 0 {
		list.capacity = &limit
	}
	return list
}

// Scope returns the class name the list belongs to, empty for the linear list.
func (h *HistoryList) Scope() string { return h.scope }

// Kind returns which list this is.
func (h *HistoryList) Kind() ListKind { return h.kind }

// Capacity returns the maximum number of ids the list keeps.
func (h *HistoryList) Capacity() int {
	if h.capacity != nil {
		if *h.capacity < 0 {
			return 0
		}
		return *h.capacity
	}
	return h.l.ClassConfig(h.scope).HistoryLen
}

// PageSize returns the default page size of the list.
func (h *HistoryList) PageSize() int {
	if h.kind == Linear {
		return h.l.settings.LinearPageSize
	}
	return h.l.ClassConfig(h.scope).PageSize
}

func (h *HistoryList) key() string        { return listKey(h.scope, h.kind) }
func (h *HistoryList) totalKey() string   { return listTotalKey(h.scope, h.kind) }
func (h *HistoryList) classesKey() string { return listClassesKey(h.scope, h.kind) }
func (h *HistoryList) tagged() bool       { return h.scope == "" }

// Add pushes jobID to the front of the list and returns the length right
// after the push. Any earlier occurrence of jobID is removed first. When the
// list is then over capacity the oldest ids are evicted and safe-purged
// until it fits.
func (h *HistoryList) Add(ctx context.Context, jobID, owningClass string) (int64, error) {
	st := h.l.store

	if h.scope != "" {
		if err := st.SAdd(ctx, historyKey, h.scope); err != nil {
			return 0, fmt.Errorf("register class %s: %w", h.scope, err)
		}
	}

	if _, err := st.LRem(ctx, h.key(), jobID); err != nil {
		return 0, fmt.Errorf("dedupe %s in %s: %w", jobID, h.key(), err)
	}
	count, err := st.LPush(ctx, h.key(), jobID)
	if err != nil {
		return 0, fmt.Errorf("push %s to %s: %w", jobID, h.key(), err)
	}

	if owningClass != h.scope {
		if err := st.HSet(ctx, h.classesKey(), jobID, owningClass); err != nil {
			return count, fmt.Errorf("tag %s with class: %w", jobID, err)
		}
	}

	if _, err := st.Incr(ctx, h.totalKey()); err != nil {
		return count, fmt.Errorf("increment %s: %w", h.totalKey(), err)
	}

	if err := h.evict(ctx, count); err != nil {
		return count, err
	}
	return count, nil
}

// evict pops the oldest ids while the list is over capacity.
func (h *HistoryList) evict(ctx context.Context, count int64) error {
	capacity := int64(h.Capacity())
	st := h.l.store

	for ; count > capacity; count-- {
		jobID, ok, err := st.RPop(ctx, h.key())
		if err != nil {
			return fmt.Errorf("evict from %s: %w", h.key(), err)
		}
		if !ok {
			return nil
		}

		owner, err := h.ownerOf(ctx, jobID)
		if err != nil {
			return err
		}
		if h.tagged() {
			if err := st.HDel(ctx, h.classesKey(), jobID); err != nil {
				return fmt.Errorf("untag %s: %w", jobID, err)
			}
		}
		if err := h.l.Job(owner, jobID).SafePurge(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ownerOf returns the class a listed id belongs to.
func (h *HistoryList) ownerOf(ctx context.Context, jobID string) (string, error) {
	if !h.tagged() {
		return h.scope, nil
	}
	owner, ok, err := h.l.store.HGet(ctx, h.classesKey(), jobID)
	if err != nil {
		return "", fmt.Errorf("read class of %s: %w", jobID, err)
	}
	if !ok {
		return h.scope, nil
	}
	return owner, nil
}

// Remove removes jobID from anywhere in the list.
func (h *HistoryList) Remove(ctx context.Context, jobID string) error {
	if _, err := h.l.store.LRem(ctx, h.key(), jobID); err != nil {
		return fmt.Errorf("remove %s from %s: %w", jobID, h.key(), err)
	}
	if h.tagged() {
		if err := h.l.store.HDel(ctx, h.classesKey(), jobID); err != nil {
			return fmt.Errorf("untag %s: %w", jobID, err)
		}
	}
	return nil
}

// JobIDs returns ids start..stop inclusive; -1 means the end of the list.
func (h *HistoryList) JobIDs(ctx context.Context, start, stop int64) ([]string, error) {
	ids, err := h.l.store.LRange(ctx, h.key(), start, stop)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", h.key(), err)
	}
	return ids, nil
}

// Contains reports whether jobID is in the list.
func (h *HistoryList) Contains(ctx context.Context, jobID string) (bool, error) {
	ids, err := h.JobIDs(ctx, 0, -1)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, jobID), nil
}

// Jobs returns handles for the runs start..stop inclusive.
func (h *HistoryList) Jobs(ctx context.Context, start, stop int64) ([]*Job, error) {
	ids, err := h.JobIDs(ctx, start, stop)
	if err != nil {
		return nil, err
	}

	var classes map[string]string
	if h.tagged() && len(ids) > 0 {
		classes, err = h.l.store.HGetAll(ctx, h.classesKey())
		if err != nil {
			return nil, fmt.Errorf("read classes of %s: %w", h.key(), err)
		}
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		className := h.scope
		if owner, ok := classes[id]; ok {
			className = owner
		}
		jobs = append(jobs, h.l.Job(className, id))
	}
	return jobs, nil
}

// PagedJobs returns page pageNum (1-indexed) of the list. A pageSize below 1
// uses the list's default; a page outside the list returns the first page.
func (h *HistoryList) PagedJobs(ctx context.Context, pageNum, pageSize int) ([]*Job, error) {
	if pageSize < 1 {
		pageSize = h.PageSize()
	}
	n, err := h.NumJobs(ctx)
	if err != nil {
		return nil, err
	}

	start := int64(ServedPage(pageNum, pageSize, n)-1) * int64(pageSize)
	return h.Jobs(ctx, start, start+int64(pageSize)-1)
}

// ServedPage returns the page a paged read of n items serves for pageNum:
// pageNum itself when it holds items, else the first page.
func ServedPage(pageNum, pageSize int, n int64) int {
	if pageSize < 1 || pageNum < 1 {
		return 1
	}
	pages := (n + int64(pageSize) - 1) / int64(pageSize)
	if int64(pageNum) > pages {
		return 1
	}
	return pageNum
}

// NumJobs returns the current length of the list.
func (h *HistoryList) NumJobs(ctx context.Context) (int64, error) {
	n, err := h.l.store.LLen(ctx, h.key())
	if err != nil {
		return 0, fmt.Errorf("length of %s: %w", h.key(), err)
	}
	return n, nil
}

// Total returns how many ids were ever added to the list.
func (h *HistoryList) Total(ctx context.Context) (int64, error) {
	return h.l.readCounter(ctx, h.totalKey())
}

// LatestJob returns the most recently added run, or nil if the list is empty.
func (h *HistoryList) LatestJob(ctx context.Context) (*Job, error) {
	jobs, err := h.Jobs(ctx, 0, 0)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}
