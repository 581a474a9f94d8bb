package ledger

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/caevv/jobledger/internal/store"
)

type recordingEnqueuer struct {
	calls []enqueueCall
	err   error
}

type enqueueCall struct {
	className string
	args      []any
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, className string, args []any) error {
	r.calls = append(r.calls, enqueueCall{className: className, args: args})
	return r.err
}

func TestJob_StartRecordsRun(t *testing.T) {
	backends(t, func(t *testing.T, st store.Store) {
		env := newEnv(t, st)
		ctx := context.Background()

		started := env.clock.Now()
		job := env.start(t, "BasicJob", "run-1", "report", 42)

		rec := env.load(t, job)
		if !rec.StartTime.Equal(started) {
			t.Errorf("StartTime = %v, want %v", rec.StartTime, started)
		}
		if rec.EncodedArgs != `["report",42]` {
			t.Errorf("EncodedArgs = %s", rec.EncodedArgs)
		}
		if rec.Finished() || rec.Succeeded() {
			t.Error("freshly started run reports finished")
		}

		env.clock.Advance(90 * time.Second)
		if got := rec.Duration(env.clock.Now()); got != 90*time.Second {
			t.Errorf("Duration() of running job = %v, want 90s", got)
		}

		if got := ids(t, env.ledger.RunningJobs("BasicJob")); !reflect.DeepEqual(got, []string{"run-1"}) {
			t.Errorf("running ids = %v", got)
		}
		if got := ids(t, env.ledger.LinearJobs()); !reflect.DeepEqual(got, []string{"run-1"}) {
			t.Errorf("linear ids = %v", got)
		}

		args, err := job.Args(ctx)
		if err != nil {
			t.Fatalf("Args() error = %v", err)
		}
		if len(args) != 2 || args[0] != "report" || args[1] != float64(42) {
			t.Errorf("Args() = %v", args)
		}
	})
}

func TestJob_StartDuplicate(t *testing.T) {
	env := newEnv(t, store.NewMemoryStore())
	job := env.start(t, "BasicJob", "run-1")

	err := job.Start(context.Background(), nil)
	if !errors.Is(err, ErrDuplicateRun) {
		t.Errorf("second Start() error = %v, want ErrDuplicateRun", err)
	}
}

func TestJob_StartExcludedFromLinearHistory(t *testing.T) {
	env := newEnv(t, store.NewMemoryStore(), withClasses(MapResolver{
		"QuietJob": {HistoryLen: 10, ExcludeFromLinearHistory: true},
	}))

	env.start(t, "QuietJob", "q1")
	env.start(t, "LoudJob", "l1")

	if got := ids(t, env.ledger.LinearJobs()); !reflect.DeepEqual(got, []string{"l1"}) {
		t.Errorf("linear ids = %v, want [l1]", got)
	}
}

func TestJob_Finish(t *testing.T) {
	backends(t, func(t *testing.T, st store.Store) {
		env := newEnv(t, st)
		job := env.start(t, "BasicJob", "run-1")
		env.clock.Advance(5 * time.Second)

		if err := job.Finish(context.Background()); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}

		rec := env.load(t, job)
		if !rec.Finished() || !rec.Succeeded() {
			t.Errorf("Finished() = %v, Succeeded() = %v; want true, true", rec.Finished(), rec.Succeeded())
		}
		env.clock.Advance(time.Hour)
		if got := rec.Duration(env.clock.Now()); got != 5*time.Second {
			t.Errorf("Duration() = %v, want 5s", got)
		}

		if got := ids(t, env.ledger.RunningJobs("BasicJob")); len(got) != 0 {
			t.Errorf("running ids = %v, want empty", got)
		}
		if got := ids(t, env.ledger.FinishedJobs("BasicJob")); !reflect.DeepEqual(got, []string{"run-1"}) {
			t.Errorf("finished ids = %v", got)
		}
	})
}

func TestJob_Fail(t *testing.T) {
	env := newEnv(t, store.NewMemoryStore())
	job := env.start(t, "FailingJob", "run-1")

	if err := job.Fail(context.Background(), errors.New("boom")); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	rec := env.load(t, job)
	if rec.Error != "boom" || !rec.Finished() || rec.Succeeded() {
		t.Errorf("record after Fail() = %+v", rec)
	}
	if got := counter(t, env.ledger.Class("FailingJob").TotalFailedJobs); got != 1 {
		t.Errorf("TotalFailedJobs() = %d, want 1", got)
	}
}

func TestJob_Cancel(t *testing.T) {
	backends(t, func(t *testing.T, st store.Store) {
		env := newEnv(t, st)
		class := env.ledger.Class("BasicJob")
		env.runFinished(t, "BasicJob", "ok")
		job := env.start(t, "BasicJob", "run-1")

		before := counter(t, class.TotalFailedJobs)
		if err := job.Cancel(context.Background()); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}

		rec := env.load(t, job)
		if !rec.Finished() {
			t.Error("Finished() after Cancel() = false")
		}
		if rec.Succeeded() {
			t.Error("Succeeded() after Cancel() = true")
		}
		if rec.Error != CancelMessage {
			t.Errorf("Error = %q", rec.Error)
		}
		if got := counter(t, class.TotalFailedJobs); got != before+1 {
			t.Errorf("TotalFailedJobs() = %d, want %d", got, before+1)
		}
	})
}

func TestJob_HighWaterMark(t *testing.T) {
	env := newEnv(t, store.NewMemoryStore())
	ctx := context.Background()
	class := env.ledger.Class("BasicJob")

	var running []*Job
	for _, id := range jobIDs(3) {
		running = append(running, env.start(t, "BasicJob", id))
	}
	if got := counter(t, class.MaxConcurrentJobs); got != 3 {
		t.Fatalf("MaxConcurrentJobs() = %d, want 3", got)
	}

	for _, job := range running {
		if err := job.Finish(ctx); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
	}
	env.start(t, "BasicJob", "later")

	if got := counter(t, class.MaxConcurrentJobs); got != 3 {
		t.Errorf("MaxConcurrentJobs() after finishes = %d, want 3", got)
	}
}

func TestJob_StartSweepsWhenOverRetention(t *testing.T) {
	env := newEnv(t, store.NewMemoryStore(), withClasses(MapResolver{
		"BusyJob": {HistoryLen: 2, PurgeAge: time.Hour},
	}))

	env.start(t, "BusyJob", "first")
	second := env.start(t, "BusyJob", "second")
	env.clock.Advance(2 * time.Hour)
	third := env.start(t, "BusyJob", "third")

	rec := env.load(t, second)
	if !rec.Finished() || rec.Error != CancelMessage {
		t.Errorf("stale run not canceled by sweep: %+v", rec)
	}
	if env.load(t, third).Finished() {
		t.Error("fresh run canceled by sweep")
	}
	if got := ids(t, env.ledger.RunningJobs("BusyJob")); !reflect.DeepEqual(got, []string{"third"}) {
		t.Errorf("running ids = %v, want [third]", got)
	}
}

func TestJob_Retry(t *testing.T) {
	ctx := context.Background()

	t.Run("valid class", func(t *testing.T) {
		enq := &recordingEnqueuer{}
		env := newEnv(t, store.NewMemoryStore(), withClasses(MapResolver{"BasicJob": DefaultClassConfig()}))
		env.ledger.SetEnqueuer(enq)
		job := env.runFinished(t, "BasicJob", "run-1", "a", "b")

		if err := job.Retry(ctx); err != nil {
			t.Fatalf("Retry() error = %v", err)
		}
		want := []enqueueCall{{className: "BasicJob", args: []any{"a", "b"}}}
		if !reflect.DeepEqual(enq.calls, want) {
			t.Errorf("enqueued = %+v, want %+v", enq.calls, want)
		}
	})

	t.Run("unresolvable class", func(t *testing.T) {
		enq := &recordingEnqueuer{}
		env := newEnv(t, store.NewMemoryStore())
		env.ledger.SetEnqueuer(enq)
		job := env.runFinished(t, "DeletedJob", "run-1")

		if err := job.Retry(ctx); err != nil {
			t.Fatalf("Retry() error = %v", err)
		}
		if len(enq.calls) != 0 {
			t.Errorf("Retry() of unresolvable class enqueued %+v", enq.calls)
		}
	})

	t.Run("no enqueuer", func(t *testing.T) {
		env := newEnv(t, store.NewMemoryStore(), withClasses(MapResolver{"BasicJob": DefaultClassConfig()}))
		job := env.runFinished(t, "BasicJob", "run-1")

		if err := job.Retry(ctx); !errors.Is(err, ErrNoEnqueuer) {
			t.Errorf("Retry() error = %v, want ErrNoEnqueuer", err)
		}
	})

	t.Run("enqueue failure", func(t *testing.T) {
		env := newEnv(t, store.NewMemoryStore(), withClasses(MapResolver{"BasicJob": DefaultClassConfig()}))
		env.ledger.SetEnqueuer(&recordingEnqueuer{err: errors.New("queue down")})
		job := env.runFinished(t, "BasicJob", "run-1")

		if err := job.Retry(ctx); err == nil {
			t.Error("Retry() should surface enqueue failure")
		}
	})
}

func TestJob_Purge(t *testing.T) {
	backends(t, func(t *testing.T, st store.Store) {
		env := newEnv(t, st)
		ctx := context.Background()
		class := env.ledger.Class("BasicJob")

		job := env.start(t, "BasicJob", "run-1")
		if err := job.Purge(ctx); err != nil {
			t.Fatalf("Purge() error = %v", err)
		}

		if env.load(t, job).Exists() {
			t.Error("record survived Purge()")
		}
		for _, list := range []*HistoryList{class.RunningJobs(), class.FinishedJobs(), env.ledger.LinearJobs()} {
			if slices.Contains(ids(t, list), "run-1") {
				t.Errorf("%s list still holds purged run", list.Kind())
			}
		}
		if got := counter(t, class.TotalFailedJobs); got != 1 {
			t.Errorf("TotalFailedJobs() = %d, want 1 from canceling the unfinished run", got)
		}
	})
}

func TestJob_SafePurge(t *testing.T) {
	env := newEnv(t, store.NewMemoryStore())
	ctx := context.Background()
	job := env.runFinished(t, "BasicJob", "run-1")

	if err := job.SafePurge(ctx); err != nil {
		t.Fatalf("SafePurge() error = %v", err)
	}
	if !env.load(t, job).Exists() {
		t.Fatal("SafePurge() deleted a record still listed")
	}

	for _, list := range []*HistoryList{env.ledger.FinishedJobs("BasicJob"), env.ledger.LinearJobs()} {
		if err := list.Remove(ctx, "run-1"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
	}
	if err := job.SafePurge(ctx); err != nil {
		t.Fatalf("SafePurge() error = %v", err)
	}
	if env.load(t, job).Exists() {
		t.Error("SafePurge() kept a record no list references")
	}
}
