package server

import (
	"context"
	"time"

	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/scheduler"
)

// Tasks exposes scheduler state to the API.
type Tasks interface {
	AllStats() []*scheduler.TaskStats
}

var _ Tasks = (*scheduler.Scheduler)(nil)

// runStatus classifies a recorded run.
func runStatus(rec *ledger.Record) string {
	switch {
	case !rec.Exists():
		return StatusMissing
	case rec.Error != "":
		return StatusFailed
	case rec.Finished():
		return StatusSucceeded
	default:
		return StatusRunning
	}
}

// newRunView converts a record into its API form. Arguments that fail to
// decode are reported raw only.
func (s *Server) newRunView(rec *ledger.Record) RunView {
	view := RunView{
		ClassName:  rec.ClassName,
		JobID:      rec.JobID,
		Status:     runStatus(rec),
		DurationMS: rec.Duration(s.ledger.Now()).Milliseconds(),
		RawArgs:    rec.EncodedArgs,
		Error:      rec.Error,
	}
	if rec.Started() {
		view.StartTime = timePtr(rec.StartTime)
	}
	if rec.Finished() {
		view.EndTime = timePtr(rec.EndTime)
	}
	if rec.EncodedArgs != "" {
		if args, err := s.ledger.Codec().Decode(rec.EncodedArgs); err == nil {
			view.Args = args
		}
	}
	return view
}

func (s *Server) runViews(records []*ledger.Record) []RunView {
	views := make([]RunView, 0, len(records))
	for _, rec := range records {
		views = append(views, s.newRunView(rec))
	}
	return views
}

// loadRuns loads every job handle, skipping runs whose record is gone.
func loadRuns(ctx context.Context, jobs []*ledger.Job) ([]*ledger.Record, error) {
	records := make([]*ledger.Record, 0, len(jobs))
	for _, job := range jobs {
		rec, err := job.Load(ctx)
		if err != nil {
			return nil, err
		}
		if !rec.Exists() {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func newClassConfigView(cfg ledger.ClassConfig) ClassConfigView {
	return ClassConfigView{
		HistoryLen:               cfg.HistoryLen,
		PurgeAge:                 cfg.PurgeAge.String(),
		PageSize:                 cfg.PageSize,
		ExcludeFromLinearHistory: cfg.ExcludeFromLinearHistory,
	}
}

func timePtr(t time.Time) *time.Time { return &t }
