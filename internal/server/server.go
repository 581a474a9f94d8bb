// Package server exposes recorded job history, search and maintenance over
// HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/search"
)

// Server serves the job ledger over a JSON HTTP API
type Server struct {
	addr     string
	ledger   *ledger.Ledger
	cleaner  *ledger.Cleaner
	searcher *search.Searcher
	tasks    Tasks
	logger   *slog.Logger

	srv       *http.Server
	router    *http.ServeMux
	startTime time.Time

	mu sync.Mutex
}

// New creates a new Server instance. searcher and tasks may be nil; a nil
// searcher gets the ledger's default search timeout and a nil tasks
// reports no scheduled tasks.
func New(addr string, l *ledger.Ledger, searcher *search.Searcher, tasks Tasks, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if searcher == nil {
		searcher = search.New(l, search.Options{Logger: logger})
	}

	s := &Server{
		addr:      addr,
		ledger:    l,
		cleaner:   ledger.NewCleaner(l),
		searcher:  searcher,
		tasks:     tasks,
		logger:    logger,
		startTime: time.Now(),
		router:    http.NewServeMux(),
	}

	s.registerRoutes()

	return s
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	s.router.HandleFunc("GET /api/health", s.handleHealth)
	s.router.HandleFunc("GET /api/tasks", s.handleListTasks)

	s.router.HandleFunc("GET /api/classes", s.handleListClasses)
	s.router.HandleFunc("GET /api/classes/{class}", s.handleGetClass)
	s.router.HandleFunc("DELETE /api/classes/{class}", s.handlePurgeClass)
	s.router.HandleFunc("GET /api/classes/{class}/{list}", s.handleClassRuns)
	s.router.HandleFunc("GET /api/linear", s.handleLinearRuns)

	s.router.HandleFunc("GET /api/runs/{class}/{id}", s.handleGetRun)
	s.router.HandleFunc("POST /api/runs/{class}/{id}/retry", s.handleRetryRun)
	s.router.HandleFunc("POST /api/runs/{class}/{id}/cancel", s.handleCancelRun)
	s.router.HandleFunc("DELETE /api/runs/{class}/{id}", s.handlePurgeRun)

	s.router.HandleFunc("GET /api/search", s.handleSearch)

	s.router.HandleFunc("POST /api/clean/{op}", s.handleClean)
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.router)
}

// Start listens on the configured address and serves until ctx is done or
// the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.srv = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Searches run up to the searcher timeout before responding.
		WriteTimeout: s.searcher.Timeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	srv := s.srv
	s.mu.Unlock()

	s.logger.Info("serving ledger API", "addr", ln.Addr().String())

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		return s.Stop(context.Background())
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("ledger API failed", "error", err)
		return fmt.Errorf("serve: %w", err)
	}
}

// Stop shuts the server down, waiting up to ten seconds for in-flight
// requests.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	s.logger.Info("ledger API stopped")
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// Uptime returns how long ago the server was created.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime).Round(time.Second)
}
