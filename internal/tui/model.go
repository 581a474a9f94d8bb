package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/logging"
	"github.com/caevv/jobledger/internal/search"
)

// ViewMode represents the current view in the TUI.
type ViewMode int

const (
	ViewClasses ViewMode = iota
	ViewRuns
	ViewSearch
	ViewRun
)

const (
	refreshInterval = 2 * time.Second
	loadTimeout     = 5 * time.Second
)

// sortColumns are the class list columns, in the order the sort key cycles
// through them.
var sortColumns = []string{
	ledger.SortClassName,
	ledger.SortRunningJobs,
	ledger.SortFinishedJobs,
	ledger.SortTotalRunJobs,
	ledger.SortTotalFinishedJobs,
	ledger.SortMaxConcurrentJobs,
	ledger.SortStartTime,
	ledger.SortDuration,
	ledger.SortSuccess,
}

// Model holds the state for the TUI. It reads the ledger directly, so it
// shows whatever another process records in the same store.
type Model struct {
	ledger   *ledger.Ledger
	cleaner  *ledger.Cleaner
	searcher *search.Searcher
	logger   *slog.Logger

	keys  keyMap
	help  help.Model
	input textinput.Model

	viewMode ViewMode
	// runBack is the view esc returns to from a run; searchBack the one it
	// returns to from search results.
	runBack    ViewMode
	searchBack ViewMode

	// Class list
	classes       []*ledger.ClassSummary
	numClasses    int
	sortKey       string
	order         string
	classPage     int
	selectedClass int

	// History list. An empty className selects the linear list.
	className   string
	listKind    ledger.ListKind
	runs        []*ledger.Record
	numRuns     int64
	runPage     int
	runPageSize int
	selectedRun int

	// Search
	inputActive    bool
	query          search.Query
	cursor         search.Cursor
	classResults   []string
	runResults     []*ledger.Record
	moreResults    bool
	selectedResult int

	// Run detail
	run *ledger.Record

	width        int
	height       int
	lastUpdate   time.Time
	quitting     bool
	notice       string
	errorMessage string
}

// New creates a TUI model over l and loads the class list.
func New(l *ledger.Ledger, searcher *search.Searcher, logger *slog.Logger) Model {
	input := textinput.New()
	input.Prompt = "/ "
	input.Placeholder = "search runs and class names"
	input.CharLimit = 256

	m := Model{
		ledger:    l,
		cleaner:   ledger.NewCleaner(l),
		searcher:  searcher,
		logger:    logging.OrDefault(logger).With("component", "tui"),
		keys:      newKeyMap(),
		help:      help.New(),
		input:     input,
		sortKey:   ledger.SortClassName,
		order:     "asc",
		classPage: 1,
		runPage:   1,
		listKind:  ledger.Finished,
	}
	m.refresh()
	m.syncKeys()
	return m
}

// Init starts the refresh ticker (required by Bubbletea).
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickMsg is sent on a regular interval to refresh the UI.
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Quitting returns true if the user has requested to quit.
func (m Model) Quitting() bool {
	return m.quitting
}

func loadContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), loadTimeout)
}

// refresh reloads the data behind the current view. Search results are
// left alone; they only change when the user asks for more.
func (m *Model) refresh() {
	var err error
	switch m.viewMode {
	case ViewClasses:
		err = m.loadClasses()
	case ViewRuns:
		err = m.loadRuns()
	case ViewRun:
		err = m.reloadRun()
	}
	m.setErr(err)
	m.lastUpdate = m.ledger.Now()
}

func (m *Model) setErr(err error) {
	if err == nil {
		m.errorMessage = ""
		return
	}
	m.logger.Warn("ledger read failed", "view", m.viewMode, "error", err)
	m.errorMessage = err.Error()
}

func (m *Model) loadClasses() error {
	ctx, cancel := loadContext()
	defer cancel()

	names, err := m.ledger.JobClasses(ctx)
	if err != nil {
		return err
	}
	pageSize := m.ledger.Settings().ClassListPageSize
	m.numClasses = len(names)
	m.classPage = ledger.ServedPage(m.classPage, pageSize, int64(len(names)))

	summaries, err := m.ledger.JobSummaries(ctx, m.sortKey, m.order, m.classPage, pageSize)
	if err != nil {
		return err
	}
	m.classes = summaries
	m.selectedClass = clampIndex(m.selectedClass, len(summaries))
	return nil
}

// currentList returns the history list the runs view shows.
func (m *Model) currentList() *ledger.HistoryList {
	if m.className == "" {
		return m.ledger.LinearJobs()
	}
	if m.listKind == ledger.Running {
		return m.ledger.RunningJobs(m.className)
	}
	return m.ledger.FinishedJobs(m.className)
}

func (m *Model) loadRuns() error {
	ctx, cancel := loadContext()
	defer cancel()

	list := m.currentList()
	n, err := list.NumJobs(ctx)
	if err != nil {
		return err
	}
	m.numRuns = n
	m.runPageSize = list.PageSize()
	m.runPage = ledger.ServedPage(m.runPage, m.runPageSize, n)

	jobs, err := list.PagedJobs(ctx, m.runPage, m.runPageSize)
	if err != nil {
		return err
	}
	runs := make([]*ledger.Record, 0, len(jobs))
	for _, job := range jobs {
		rec, err := job.Load(ctx)
		if err != nil {
			return err
		}
		if rec.Exists() {
			runs = append(runs, rec)
		}
	}
	m.runs = runs
	m.selectedRun = clampIndex(m.selectedRun, len(runs))
	return nil
}

// reloadRun refreshes the run detail, leaving the view when the run is gone.
func (m *Model) reloadRun() error {
	if m.run == nil {
		return nil
	}
	ctx, cancel := loadContext()
	defer cancel()

	rec, err := m.ledger.Job(m.run.ClassName, m.run.JobID).Load(ctx)
	if err != nil {
		return err
	}
	if !rec.Exists() {
		m.notice = fmt.Sprintf("run %s is no longer recorded", m.run.JobID)
		m.run = nil
		m.viewMode = m.runBack
		m.refresh()
		return nil
	}
	m.run = rec
	return nil
}

// runSearch performs one time-boxed search call from cur. With more set the
// results are appended to the ones already shown.
func (m *Model) runSearch(cur search.Cursor, more bool) error {
	res, err := m.searcher.Run(context.Background(), m.query, cur)
	if err != nil {
		return err
	}
	if !more {
		m.classResults = nil
		m.runResults = nil
		m.selectedResult = 0
	}
	for _, className := range res.ClassResults {
		if !slices.Contains(m.classResults, className) {
			m.classResults = append(m.classResults, className)
		}
	}
	m.runResults = append(m.runResults, res.RunResults...)
	m.cursor = res.Cursor
	m.moreResults = res.MoreRecords()
	return nil
}

// selectedRecord returns the run under the cursor of the current view.
func (m *Model) selectedRecord() *ledger.Record {
	switch m.viewMode {
	case ViewRuns:
		if m.selectedRun < len(m.runs) {
			return m.runs[m.selectedRun]
		}
	case ViewSearch:
		i := m.selectedResult - len(m.classResults)
		if i >= 0 && i < len(m.runResults) {
			return m.runResults[i]
		}
	case ViewRun:
		return m.run
	}
	return nil
}

// selectedClassName returns the class under the cursor of the class list or
// of the class results of a search.
func (m *Model) selectedClassName() string {
	switch m.viewMode {
	case ViewClasses:
		if m.selectedClass < len(m.classes) {
			return m.classes[m.selectedClass].ClassName
		}
	case ViewSearch:
		if m.selectedResult < len(m.classResults) {
			return m.classResults[m.selectedResult]
		}
	}
	return ""
}

func (m *Model) cancelRun() error {
	rec := m.selectedRecord()
	if rec == nil {
		return nil
	}
	if rec.Finished() {
		m.notice = fmt.Sprintf("run %s already finished", rec.JobID)
		return nil
	}
	ctx, cancel := loadContext()
	defer cancel()

	if err := m.ledger.Job(rec.ClassName, rec.JobID).Cancel(ctx); err != nil {
		return fmt.Errorf("cancel %s: %w", rec.JobID, err)
	}
	m.logger.Info("run canceled", "class", rec.ClassName, "job_id", rec.JobID)
	m.notice = fmt.Sprintf("canceled run %s", rec.JobID)
	return m.reloadResult(ctx, rec)
}

func (m *Model) retryRun() error {
	rec := m.selectedRecord()
	if rec == nil {
		return nil
	}
	if !m.ledger.ClassNameValid(rec.ClassName) {
		return fmt.Errorf("class %s is no longer configured", rec.ClassName)
	}
	ctx, cancel := loadContext()
	defer cancel()

	if err := m.ledger.Job(rec.ClassName, rec.JobID).Retry(ctx); err != nil {
		if errors.Is(err, ledger.ErrNoEnqueuer) {
			return errors.New("retry not available: nothing executes this class")
		}
		return fmt.Errorf("retry %s: %w", rec.JobID, err)
	}
	m.logger.Info("run retried", "class", rec.ClassName, "job_id", rec.JobID)
	m.notice = fmt.Sprintf("retried run %s of %s", rec.JobID, rec.ClassName)
	return nil
}

func (m *Model) purgeRun() error {
	rec := m.selectedRecord()
	if rec == nil {
		return nil
	}
	ctx, cancel := loadContext()
	defer cancel()

	if err := m.ledger.Job(rec.ClassName, rec.JobID).Purge(ctx); err != nil {
		return fmt.Errorf("purge %s: %w", rec.JobID, err)
	}
	m.logger.Info("run purged", "class", rec.ClassName, "job_id", rec.JobID)
	m.notice = fmt.Sprintf("purged run %s", rec.JobID)

	switch m.viewMode {
	case ViewSearch:
		m.runResults = slices.DeleteFunc(m.runResults, func(r *ledger.Record) bool {
			return r.ClassName == rec.ClassName && r.JobID == rec.JobID
		})
		m.selectedResult = clampIndex(m.selectedResult, len(m.classResults)+len(m.runResults))
	case ViewRun:
		m.run = nil
		m.viewMode = m.runBack
	}
	return nil
}

func (m *Model) purgeClass() error {
	className := m.selectedClassName()
	if className == "" || m.viewMode != ViewClasses {
		return nil
	}
	ctx, cancel := loadContext()
	defer cancel()

	purged, err := m.cleaner.PurgeClass(ctx, className)
	if err != nil {
		return fmt.Errorf("purge class %s: %w", className, err)
	}
	if !purged {
		return fmt.Errorf("not purging %s: another class name starts with it", className)
	}
	m.logger.Info("class purged", "class", className)
	m.notice = fmt.Sprintf("purged class %s", className)
	return nil
}

// reloadResult refreshes rec in place after an action on it.
func (m *Model) reloadResult(ctx context.Context, rec *ledger.Record) error {
	fresh, err := m.ledger.Job(rec.ClassName, rec.JobID).Load(ctx)
	if err != nil {
		return err
	}
	*rec = *fresh
	return nil
}

func clampIndex(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}
