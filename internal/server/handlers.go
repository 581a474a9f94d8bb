package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/search"
)

const version = "v0.1.0"

// sortKeys are the class list columns, in display order.
var sortKeys = []string{
	ledger.SortClassName,
	ledger.SortRunningJobs,
	ledger.SortFinishedJobs,
	ledger.SortTotalFinishedJobs,
	ledger.SortTotalRunJobs,
	ledger.SortMaxConcurrentJobs,
	ledger.SortStartTime,
	ledger.SortDuration,
	ledger.SortSuccess,
}

// handleHealth returns the health status of the server
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Version: version,
		Uptime:  s.Uptime().String(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleListTasks returns the scheduled tasks with their statistics
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	resp := TaskList{}
	if s.tasks != nil {
		resp.Tasks = s.tasks.AllStats()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleListClasses returns one sorted page of class summaries
func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sortKey := q.Get("sort")
	if sortKey == "" {
		sortKey = ledger.SortClassName
	}
	order := q.Get("order")
	if order != "desc" {
		order = "asc"
	}
	pageSize := intParam(r, "page_size", 0)
	if pageSize < 1 {
		pageSize = s.ledger.Settings().ClassListPageSize
	}

	classes, err := s.ledger.JobClasses(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list classes", err)
		return
	}
	page := ledger.ServedPage(intParam(r, "page", 1), pageSize, int64(len(classes)))

	summaries, err := s.ledger.JobSummaries(r.Context(), sortKey, order, page, pageSize)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve classes", err)
		return
	}

	links := make(map[string]string, len(sortKeys))
	for _, key := range sortKeys {
		links[key] = ledger.OrderParam(key, sortKey, order)
	}

	s.writeJSON(w, http.StatusOK, ClassList{
		Sort:      sortKey,
		Order:     order,
		Page:      page,
		Classes:   summaries,
		SortLinks: links,
	})
}

// handleGetClass returns the summary and configuration of one class
func (s *Server) handleGetClass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	className := r.PathValue("class")

	if !s.knownClass(w, r, className) {
		return
	}

	summary, err := s.ledger.JobClassSummary(ctx, className)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to summarize class", err)
		return
	}

	s.writeJSON(w, http.StatusOK, ClassDetail{
		ClassSummary: summary,
		Config:       newClassConfigView(s.ledger.ClassConfig(className)),
	})
}

// handleClassRuns returns one page of a class's running or finished list
func (s *Server) handleClassRuns(w http.ResponseWriter, r *http.Request) {
	className := r.PathValue("class")

	var list *ledger.HistoryList
	switch r.PathValue("list") {
	case string(ledger.Running):
		list = s.ledger.RunningJobs(className)
	case string(ledger.Finished):
		list = s.ledger.FinishedJobs(className)
	default:
		s.writeError(w, http.StatusBadRequest, "list must be running or finished", nil)
		return
	}

	s.writeRunPage(w, r, className, list)
}

// handleLinearRuns returns one page of the linear list
func (s *Server) handleLinearRuns(w http.ResponseWriter, r *http.Request) {
	s.writeRunPage(w, r, "", s.ledger.LinearJobs())
}

func (s *Server) writeRunPage(w http.ResponseWriter, r *http.Request, className string, list *ledger.HistoryList) {
	ctx := r.Context()
	page := intParam(r, "page", 1)
	pageSize := intParam(r, "page_size", 0)
	if pageSize < 1 {
		pageSize = list.PageSize()
	}

	numJobs, err := list.NumJobs(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to count runs", err)
		return
	}
	page = ledger.ServedPage(page, pageSize, numJobs)

	jobs, err := list.PagedJobs(ctx, page, pageSize)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve runs", err)
		return
	}
	records, err := loadRuns(ctx, jobs)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load runs", err)
		return
	}

	s.writeJSON(w, http.StatusOK, RunPage{
		ClassName: className,
		List:      string(list.Kind()),
		Page:      page,
		PageSize:  pageSize,
		NumJobs:   numJobs,
		Runs:      s.runViews(records),
	})
}

// handleGetRun returns a specific run
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	_, rec, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.newRunView(rec))
}

// handleRetryRun resubmits a run's arguments to the host runtime
func (s *Server) handleRetryRun(w http.ResponseWriter, r *http.Request) {
	job, _, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	if !s.ledger.ClassNameValid(job.ClassName) {
		s.writeError(w, http.StatusConflict, "class is no longer configured", nil)
		return
	}
	if err := job.Retry(r.Context()); err != nil {
		if errors.Is(err, ledger.ErrNoEnqueuer) {
			s.writeError(w, http.StatusServiceUnavailable, "retry not available", err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to retry run", err)
		return
	}

	s.logger.Info("run retried", "class", job.ClassName, "job_id", job.JobID)
	s.writeJSON(w, http.StatusAccepted, ActionResponse{Status: "enqueued"})
}

// handleCancelRun marks a run as canceled
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	job, _, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	if err := job.Cancel(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to cancel run", err)
		return
	}

	s.logger.Info("run canceled", "class", job.ClassName, "job_id", job.JobID)
	s.writeJSON(w, http.StatusOK, ActionResponse{Status: "canceled"})
}

// handlePurgeRun deletes a run
func (s *Server) handlePurgeRun(w http.ResponseWriter, r *http.Request) {
	job, _, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	if err := job.Purge(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to purge run", err)
		return
	}

	s.logger.Info("run purged", "class", job.ClassName, "job_id", job.JobID)
	s.writeJSON(w, http.StatusOK, ActionResponse{Status: "purged"})
}

// handlePurgeClass deletes every run and key of a class
func (s *Server) handlePurgeClass(w http.ResponseWriter, r *http.Request) {
	className := r.PathValue("class")

	if !s.knownClass(w, r, className) {
		return
	}

	purged, err := s.cleaner.PurgeClass(r.Context(), className)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to purge class", err)
		return
	}
	if !purged {
		s.writeError(w, http.StatusConflict, "another class name starts with this name", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, ActionResponse{Status: "purged", Classes: []string{className}})
}

// handleSearch runs one time-boxed search call. The query string carries the
// query and, for continued searches, the cursor.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if params.Get(search.KeySearchType) == "" {
		params.Set(search.KeySearchType, search.TypeAll)
	}

	q, cur, err := search.ParseSettings(params)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid search", err)
		return
	}

	res, err := s.searcher.Run(r.Context(), q, cur)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "search failed", err)
		return
	}

	resp := SearchResponse{
		ClassResults: res.ClassResults,
		RunResults:   s.runViews(res.RunResults),
		MoreRecords:  res.MoreRecords(),
		Retry:        search.RetrySettings(q, true).Encode(),
	}
	if resp.ClassResults == nil {
		resp.ClassResults = []string{}
	}
	if resp.MoreRecords {
		resp.Next = search.Settings(q, res.Cursor, true).Encode()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleClean runs one cleaner operation
func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	op := r.PathValue("op")

	var (
		resp = ActionResponse{Status: "done"}
		err  error
	)
	switch op {
	case "sweep":
		resp.Count, err = s.cleaner.CleanAllOldRunningJobs(ctx)
	case "fixup":
		resp.Count, err = s.cleaner.FixupAllKeys(ctx)
	case "purge-invalid":
		resp.Classes, err = s.cleaner.PurgeInvalidJobs(ctx)
		resp.Count = len(resp.Classes)
	case "purge-linear":
		err = s.cleaner.PurgeLinearHistory(ctx)
	case "purge-all":
		if r.URL.Query().Get("confirm") != "true" {
			s.writeError(w, http.StatusBadRequest, "purge-all requires confirm=true", nil)
			return
		}
		err = s.cleaner.PurgeAllJobs(ctx)
	default:
		s.writeError(w, http.StatusNotFound, "unknown cleaner operation", nil)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "cleaner operation failed", err)
		return
	}

	s.logger.Info("cleaner operation completed", "op", op, "count", resp.Count)
	s.writeJSON(w, http.StatusOK, resp)
}

// loadRun resolves the run named by the path, writing a 404 when nothing is
// recorded for it.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*ledger.Job, *ledger.Record, bool) {
	job := s.ledger.Job(r.PathValue("class"), r.PathValue("id"))

	rec, err := job.Load(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load run", err)
		return nil, nil, false
	}
	if !rec.Exists() {
		s.writeError(w, http.StatusNotFound, "run not found", nil)
		return nil, nil, false
	}
	return job, rec, true
}

// knownClass writes a 404 unless className is in the registry.
func (s *Server) knownClass(w http.ResponseWriter, r *http.Request, className string) bool {
	classes, err := s.ledger.JobClasses(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list classes", err)
		return false
	}
	if !slices.Contains(classes, className) {
		s.writeError(w, http.StatusNotFound, "class not found", nil)
		return false
	}
	return true
}

// intParam parses a positive integer query parameter, returning def when it
// is missing or invalid.
func intParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}

	if err != nil {
		response.Message = message + ": " + err.Error()
		s.logger.Error("API error", "status", status, "message", message, "error", err)
	}

	s.writeJSON(w, status, response)
}
