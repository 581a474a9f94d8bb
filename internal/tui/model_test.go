package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/search"
	"github.com/caevv/jobledger/internal/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// tickingClock advances by one millisecond every time it is read, so each
// search call stops after examining a single item.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []string
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, className string, _ []any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, className)
	return nil
}

type fixture struct {
	ledger   *ledger.Ledger
	clock    *testClock
	enqueuer *recordingEnqueuer
	logger   *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	enqueuer := &recordingEnqueuer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(store.NewMemoryStore(), ledger.Options{
		Resolver: ledger.MapResolver{
			"AlphaJob":  {HistoryLen: 20, PurgeAge: time.Hour, PageSize: 2},
			"BetaJob":   {HistoryLen: 20, PurgeAge: time.Hour, PageSize: 2},
			"GammaJob":  {HistoryLen: 20, PurgeAge: time.Hour, PageSize: 2},
			"ReportJob": {HistoryLen: 20, PurgeAge: time.Hour, PageSize: 2},
		},
		Settings: &ledger.Settings{MaxLinearJobs: 50, LinearPageSize: 3, ClassListPageSize: 2},
		Enqueuer: enqueuer,
		Logger:   logger,
		Now:      clock.Now,
	})
	return &fixture{ledger: l, clock: clock, enqueuer: enqueuer, logger: logger}
}

func (f *fixture) record(t *testing.T, className, jobID string, args []any, outcome string) {
	t.Helper()
	ctx := context.Background()

	job := f.ledger.Job(className, jobID)
	if err := job.Start(ctx, args); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.clock.Advance(time.Second)

	switch outcome {
	case "finish":
		if err := job.Finish(ctx); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
	case "fail":
		if err := job.Fail(ctx, errors.New("disk full")); err != nil {
			t.Fatalf("Fail() error = %v", err)
		}
	}
}

func (f *fixture) model() Model {
	return New(f.ledger, search.New(f.ledger, search.Options{Logger: f.logger}), f.logger)
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+t":
		return tea.KeyMsg{Type: tea.KeyCtrlT}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// press feeds keys to the model one at a time.
func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(keyMsg(k))
		var ok bool
		if m, ok = next.(Model); !ok {
			t.Fatalf("Update() returned %T", next)
		}
	}
	return m
}

func classNames(m Model) []string {
	var out []string
	for _, s := range m.classes {
		out = append(out, s.ClassName)
	}
	return out
}

func runIDs(recs []*ledger.Record) []string {
	var out []string
	for _, rec := range recs {
		out = append(out, rec.JobID)
	}
	return out
}

// seedClasses records:
//
//	AlphaJob  1 running, 1 finished
//	BetaJob   2 finished
//	GammaJob  2 running
func seedClasses(t *testing.T, f *fixture) {
	t.Helper()
	f.record(t, "AlphaJob", "a1", nil, "finish")
	f.record(t, "AlphaJob", "a2", nil, "running")
	f.record(t, "BetaJob", "b1", nil, "finish")
	f.record(t, "BetaJob", "b2", nil, "fail")
	f.record(t, "GammaJob", "g1", nil, "running")
	f.record(t, "GammaJob", "g2", nil, "running")
}

func TestModel_ClassListSorting(t *testing.T) {
	f := newFixture(t)
	seedClasses(t, f)
	m := f.model()

	tests := []struct {
		name      string
		keys      []string
		wantSort  string
		wantOrder string
		wantPage1 []string
	}{
		{"initial", nil, ledger.SortClassName, "asc", []string{"AlphaJob", "BetaJob"}},
		{"flip order", []string{"o"}, ledger.SortClassName, "desc", []string{"GammaJob", "BetaJob"}},
		{"next column starts ascending", []string{"s"}, ledger.SortRunningJobs, "asc", []string{"BetaJob", "AlphaJob"}},
		{"next column flipped", []string{"s", "o"}, ledger.SortRunningJobs, "desc", []string{"GammaJob", "AlphaJob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := press(t, m, tt.keys...)
			if got.sortKey != tt.wantSort || got.order != tt.wantOrder {
				t.Errorf("sort = %s %s, want %s %s", got.sortKey, got.order, tt.wantSort, tt.wantOrder)
			}
			if names := classNames(got); !reflect.DeepEqual(names, tt.wantPage1) {
				t.Errorf("classes = %v, want %v", names, tt.wantPage1)
			}
		})
	}
}

func TestModel_ClassListPaging(t *testing.T) {
	f := newFixture(t)
	seedClasses(t, f)
	m := f.model()

	m = press(t, m, "n")
	if m.classPage != 2 || !reflect.DeepEqual(classNames(m), []string{"GammaJob"}) {
		t.Errorf("page %d = %v, want page 2 with GammaJob", m.classPage, classNames(m))
	}
	m = press(t, m, "n")
	if m.classPage != 1 || !reflect.DeepEqual(classNames(m), []string{"AlphaJob", "BetaJob"}) {
		t.Errorf("paging past the end served page %d = %v, want the first page", m.classPage, classNames(m))
	}
	m = press(t, m, "p")
	if m.classPage != 1 {
		t.Errorf("prev from the first page = %d, want 1", m.classPage)
	}
}

func TestModel_ClassRuns(t *testing.T) {
	f := newFixture(t)
	f.record(t, "ReportJob", "r1", nil, "finish")
	f.record(t, "ReportJob", "r2", nil, "fail")
	f.record(t, "ReportJob", "r3", nil, "finish")
	f.record(t, "ReportJob", "r4", nil, "running")
	m := f.model()

	m = press(t, m, "enter")
	if m.viewMode != ViewRuns || m.className != "ReportJob" || m.listKind != ledger.Finished {
		t.Fatalf("view = %v class = %q list = %s, want finished runs of ReportJob", m.viewMode, m.className, m.listKind)
	}
	if ids := runIDs(m.runs); !reflect.DeepEqual(ids, []string{"r3", "r2"}) || m.numRuns != 3 {
		t.Errorf("finished page 1 = %v of %d", ids, m.numRuns)
	}

	m = press(t, m, "n")
	if ids := runIDs(m.runs); !reflect.DeepEqual(ids, []string{"r1"}) {
		t.Errorf("finished page 2 = %v, want [r1]", ids)
	}

	m = press(t, m, "tab")
	if m.listKind != ledger.Running || m.runPage != 1 {
		t.Errorf("tab: list = %s page = %d", m.listKind, m.runPage)
	}
	if ids := runIDs(m.runs); !reflect.DeepEqual(ids, []string{"r4"}) {
		t.Errorf("running = %v, want [r4]", ids)
	}

	m = press(t, m, "enter")
	if m.viewMode != ViewRun || m.run == nil || m.run.JobID != "r4" {
		t.Fatalf("enter did not open run r4: view = %v", m.viewMode)
	}
	if out := m.View(); !strings.Contains(out, "r4") || !strings.Contains(out, "running") {
		t.Errorf("run view missing run details:\n%s", out)
	}

	m = press(t, m, "esc", "esc")
	if m.viewMode != ViewClasses {
		t.Errorf("esc twice from a run = %v, want the class list", m.viewMode)
	}
}

func TestModel_LinearHistory(t *testing.T) {
	f := newFixture(t)
	seedClasses(t, f)
	m := f.model()

	m = press(t, m, "l")
	if m.viewMode != ViewRuns || m.className != "" {
		t.Fatalf("view = %v class = %q, want the linear list", m.viewMode, m.className)
	}
	if ids := runIDs(m.runs); !reflect.DeepEqual(ids, []string{"g2", "g1", "b2"}) || m.numRuns != 6 {
		t.Errorf("linear page 1 = %v of %d", ids, m.numRuns)
	}
	if m.keys.Toggle.Enabled() {
		t.Error("running/finished toggle should be disabled on the linear list")
	}
}

func TestModel_RunActions(t *testing.T) {
	f := newFixture(t)
	f.record(t, "ReportJob", "r1", []any{"daily"}, "finish")
	f.record(t, "ReportJob", "r2", nil, "running")
	ctx := context.Background()

	t.Run("cancel", func(t *testing.T) {
		m := press(t, f.model(), "enter", "tab", "c")
		rec, err := f.ledger.Job("ReportJob", "r2").Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !rec.Finished() || rec.Error != ledger.CancelMessage {
			t.Errorf("r2 after cancel = %+v", rec)
		}
		if len(m.runs) != 0 {
			t.Errorf("running list after cancel = %v, want empty", runIDs(m.runs))
		}
	})

	t.Run("cancel finished run", func(t *testing.T) {
		m := press(t, f.model(), "enter", "c")
		if !strings.Contains(m.notice, "already finished") {
			t.Errorf("notice = %q", m.notice)
		}
	})

	t.Run("retry", func(t *testing.T) {
		press(t, f.model(), "enter", "G", "R")
		if !reflect.DeepEqual(f.enqueuer.calls, []string{"ReportJob"}) {
			t.Errorf("enqueued = %v, want [ReportJob]", f.enqueuer.calls)
		}
	})

	t.Run("purge", func(t *testing.T) {
		m := press(t, f.model(), "enter", "x")
		if ids := runIDs(m.runs); !reflect.DeepEqual(ids, []string{"r1"}) {
			t.Errorf("finished after purging r2 = %v, want [r1]", ids)
		}
		rec, err := f.ledger.Job("ReportJob", "r2").Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if rec.Exists() {
			t.Errorf("r2 still recorded: %+v", rec)
		}
	})
}

func TestModel_RetryUnknownClass(t *testing.T) {
	f := newFixture(t)
	f.record(t, "RetiredJob", "x1", nil, "fail")

	m := press(t, f.model(), "enter", "R")
	if !strings.Contains(m.errorMessage, "no longer configured") {
		t.Errorf("error = %q", m.errorMessage)
	}
	if len(f.enqueuer.calls) != 0 {
		t.Errorf("enqueued = %v, want nothing", f.enqueuer.calls)
	}
}

func TestModel_PurgeClass(t *testing.T) {
	f := newFixture(t)
	seedClasses(t, f)

	m := press(t, f.model(), "j", "X")
	if names := classNames(m); !reflect.DeepEqual(names, []string{"AlphaJob", "GammaJob"}) {
		t.Errorf("classes after purging BetaJob = %v", names)
	}
	if !strings.Contains(m.notice, "BetaJob") {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestModel_SearchScope(t *testing.T) {
	f := newFixture(t)
	seedClasses(t, f)

	tests := []struct {
		name      string
		keys      []string
		wantType  string
		wantClass string
	}{
		{"class list", []string{"/"}, search.TypeAll, ""},
		{"class runs", []string{"enter", "/"}, search.TypeJob, "AlphaJob"},
		{"linear list", []string{"l", "/"}, search.TypeLinearHistory, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := press(t, f.model(), tt.keys...)
			if !m.inputActive {
				t.Fatal("search prompt not open")
			}
			if m.query.Type != tt.wantType || m.query.ClassName != tt.wantClass {
				t.Errorf("query = %+v, want type %s class %q", m.query, tt.wantType, tt.wantClass)
			}
		})
	}
}

func TestModel_SearchLoadMore(t *testing.T) {
	f := newFixture(t)
	f.record(t, "ReportJob", "r1", []any{"Invoice-1"}, "finish")
	f.record(t, "ReportJob", "r2", []any{"receipt-2"}, "finish")
	f.record(t, "ReportJob", "r3", []any{"invoice-3"}, "running")
	f.record(t, "BetaJob", "b1", []any{"invoice-4"}, "fail")

	clock := &tickingClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := New(f.ledger, search.New(f.ledger, search.Options{Timeout: time.Nanosecond, Now: clock.Now, Logger: f.logger}), f.logger)

	m = press(t, m, "/", "invoice", "ctrl+t", "enter")
	if m.viewMode != ViewSearch || m.inputActive {
		t.Fatalf("view = %v input = %v, want search results", m.viewMode, m.inputActive)
	}
	if !m.query.CaseInsensitive || m.query.Term != "invoice" {
		t.Errorf("query = %+v", m.query)
	}
	if !m.moreResults || !m.keys.More.Enabled() {
		t.Fatal("time-boxed search should leave more records")
	}

	for i := 0; m.moreResults; i++ {
		if i > 100 {
			t.Fatal("search did not finish")
		}
		m = press(t, m, "m")
	}
	if m.keys.More.Enabled() {
		t.Error("load more still enabled after the search finished")
	}

	want := []string{"b1", "r3", "r1"}
	if ids := runIDs(m.runResults); !reflect.DeepEqual(ids, want) {
		t.Errorf("accumulated results = %v, want %v", ids, want)
	}

	m = press(t, m, "enter")
	if m.viewMode != ViewRun || m.run.JobID != "b1" {
		t.Errorf("enter on first result: view = %v", m.viewMode)
	}
	m = press(t, m, "esc")
	if m.viewMode != ViewSearch {
		t.Errorf("esc from a result = %v, want search results", m.viewMode)
	}
}

func TestModel_SearchInvalidRegex(t *testing.T) {
	f := newFixture(t)
	seedClasses(t, f)
	m := f.model()
	m.query.Regex = true

	m = press(t, m, "/", "([", "enter")
	if m.viewMode != ViewClasses {
		t.Errorf("view = %v, want the class list", m.viewMode)
	}
	if m.errorMessage == "" {
		t.Error("invalid regex should be reported")
	}
}

func TestModel_Tick(t *testing.T) {
	f := newFixture(t)
	m := f.model()
	if len(m.classes) != 0 {
		t.Fatalf("classes = %v, want none", classNames(m))
	}

	f.record(t, "AlphaJob", "a1", nil, "finish")
	next, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	if names := classNames(next.(Model)); !reflect.DeepEqual(names, []string{"AlphaJob"}) {
		t.Errorf("classes after tick = %v", names)
	}
}

func TestModel_Quit(t *testing.T) {
	f := newFixture(t)
	m := f.model()

	next, cmd := m.Update(keyMsg("q"))
	if !next.(Model).Quitting() {
		t.Error("q should quit")
	}
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("q command = %T, want tea.QuitMsg", cmd())
	}
}

func TestModel_View(t *testing.T) {
	f := newFixture(t)
	seedClasses(t, f)
	m := f.model()

	out := m.View()
	for _, want := range []string{"Job Ledger", "AlphaJob", "BetaJob", "Page 1 of 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("class view missing %q", want)
		}
	}
}
