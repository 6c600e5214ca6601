package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cwbudde/tspanneal/internal/config"
	"github.com/cwbudde/tspanneal/internal/report"
	"github.com/cwbudde/tspanneal/internal/store"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	store      store.Store
	addr       string
	server     *http.Server

	// jobsCtx is cancelled on Shutdown so workers stop before their next restart
	jobsCtx    context.Context
	cancelJobs context.CancelFunc
}

// NewServer creates a new HTTP server. checkpointStore may be nil, in which
// case jobs run without checkpoints, traces and artifacts.
func NewServer(addr string, checkpointStore store.Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		store:      checkpointStore,
		addr:       addr,
		jobsCtx:    ctx,
		cancelJobs: cancel,
	}
}

// Handler builds the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.jobManager.metrics.Handler())

	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreateJob)
		r.Get("/", s.handleListJobs)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Get("/status", s.handleGetJobStatus)
			r.Get("/tour", s.handleGetTour)
			r.Get("/trace", s.handleGetTrace)
			r.Get("/stream", s.handleJobStream)
		})
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and signals running jobs to stop.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.cancelJobs()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	cfg := DefaultJobConfig()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if err := config.Struct(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if cfg.CheckpointInterval < 0 {
		http.Error(w, "checkpointInterval cannot be negative", http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(cfg)
	slog.Info("Job created", "job_id", job.ID, "cities", cfg.CitiesPath)

	go runJob(s.jobsCtx, s.jobManager, s.store, job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJob handles GET /api/v1/jobs/{jobID}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobManager.GetJob(chi.URLParam(r, "jobID"))
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleGetJobStatus handles GET /api/v1/jobs/{jobID}/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobManager.GetJob(chi.URLParam(r, "jobID"))
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"id":                  job.ID,
		"state":               job.State,
		"config":              job.Config,
		"cityCount":           job.CityCount,
		"bestCost":            job.BestCost,
		"initialCost":         job.InitialCost,
		"iterations":          job.Iterations,
		"temperature":         job.Temperature,
		"elapsed":             job.Elapsed().Seconds(),
		"iterationsPerSecond": iterationsPerSecond(job),
		"startTime":           job.StartTime,
		"endTime":             job.EndTime,
		"error":               job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetTour handles GET /api/v1/jobs/{jobID}/tour?format=text|json
func (s *Server) handleGetTour(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobManager.GetJob(chi.URLParam(r, "jobID"))
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if len(job.BestTour) == 0 {
		http.Error(w, "No results yet", http.StatusNotFound)
		return
	}

	format := report.FormatText
	if f := r.URL.Query().Get("format"); f != "" {
		var err error
		if format, err = report.ParseFormat(f); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if format == report.FormatJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.Header().Set("Cache-Control", "no-cache")

	if err := report.Write(w, format, job.BestTour, job.BestCost); err != nil {
		slog.Error("Failed to write tour", "job_id", job.ID, "error", err)
	}
}

// traceLoader is implemented by stores that keep a cost trace per job.
type traceLoader interface {
	LoadTrace(jobID string) ([]store.TraceEntry, error)
}

// handleGetTrace handles GET /api/v1/jobs/{jobID}/trace?improvements=true
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	loader, ok := s.store.(traceLoader)
	if !ok {
		http.Error(w, "Traces are not stored", http.StatusNotFound)
		return
	}

	entries, err := loader.LoadTrace(jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Trace not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load trace", "job_id", jobID, "error", err)
		http.Error(w, "Failed to load trace", http.StatusInternalServerError)
		return
	}

	if v := r.URL.Query().Get("improvements"); v != "" {
		only, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "improvements must be a boolean", http.StatusBadRequest)
			return
		}
		if only {
			entries = store.Improvements(entries)
		}
	}

	writeJSON(w, http.StatusOK, entries)
}

// loggingMiddleware logs HTTP requests and records request metrics
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)

		m := s.jobManager.metrics
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration,
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
