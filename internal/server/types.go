package server

import (
	"time"

	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/scheduler"
)

// Run statuses reported by the API.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusMissing   = "missing"
)

// RunView represents a single recorded run
type RunView struct {
	ClassName  string     `json:"class_name"`
	JobID      string     `json:"job_id"`
	Status     string     `json:"status"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Args       []any      `json:"args,omitempty"`
	RawArgs    string     `json:"raw_args,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// RunPage is one page of a history list
type RunPage struct {
	ClassName string    `json:"class_name,omitempty"`
	List      string    `json:"list"`
	Page      int       `json:"page"`
	PageSize  int       `json:"page_size"`
	NumJobs   int64     `json:"num_jobs"`
	Runs      []RunView `json:"runs"`
}

// ClassConfigView is the resolved configuration of a class
type ClassConfigView struct {
	HistoryLen               int    `json:"history_len"`
	PurgeAge                 string `json:"purge_age"`
	PageSize                 int    `json:"page_size"`
	ExcludeFromLinearHistory bool   `json:"exclude_from_linear_history"`
}

// ClassDetail represents a class summary with its configuration
type ClassDetail struct {
	*ledger.ClassSummary
	Config ClassConfigView `json:"config"`
}

// ClassList is one page of class summaries
type ClassList struct {
	Sort    string                `json:"sort"`
	Order   string                `json:"order"`
	Page    int                   `json:"page"`
	Classes []*ledger.ClassSummary `json:"classes"`
	// SortLinks maps each sort key to the order a link on it should request.
	SortLinks map[string]string `json:"sort_links"`
}

// SearchResponse is the output of one search call
type SearchResponse struct {
	ClassResults []string  `json:"class_results"`
	RunResults   []RunView `json:"run_results"`
	MoreRecords  bool      `json:"more_records"`
	// Next holds the query string that continues the search.
	Next string `json:"next,omitempty"`
	// Retry holds the query string that restarts the search.
	Retry string `json:"retry"`
}

// ActionResponse reports the outcome of a mutating request
type ActionResponse struct {
	Status  string   `json:"status"`
	Count   int      `json:"count,omitempty"`
	Classes []string `json:"classes,omitempty"`
}

// TaskList reports the scheduled tasks
type TaskList struct {
	Tasks []*scheduler.TaskStats `json:"tasks"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
