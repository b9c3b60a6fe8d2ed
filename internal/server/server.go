package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/templatetrack/internal/seq"
	"github.com/cwbudde/templatetrack/internal/store"
)

// Server represents the HTTP tracking-job server
type Server struct {
	jobManager  *JobManager
	resultStore store.Store
	baseDir     string
	addr        string
	server      *http.Server
}

// NewServer creates a new HTTP server persisting results under baseDir
func NewServer(addr, baseDir string, resultStore store.Store) *Server {
	return &Server{
		jobManager:  NewJobManager(),
		resultStore: resultStore,
		baseDir:     baseDir,
		addr:        addr,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	handler := s.loggingMiddleware(s.corsMiddleware(mux))

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: handler,
	}

	slog.Info("starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	switch {
	case len(parts) == 1 || parts[1] == "status":
		s.handleGetJobStatus(w, r, jobID)
	case parts[1] == "result":
		s.handleGetResult(w, r, jobID)
	case parts[1] == "stream":
		s.handleJobStream(w, r, jobID)
	case parts[1] == "path.png":
		s.handleGetPathImage(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if config.FramesPath == "" {
		http.Error(w, "framesPath is required", http.StatusBadRequest)
		return
	}
	if config.TemplatePath == "" {
		http.Error(w, "templatePath is required", http.StatusBadRequest)
		return
	}
	// Zero values from the JSON body mean "not set": map them onto the
	// canonical defaults (full-frame, no rejection, rate 1.1).
	if config.Radius == 0 {
		config.Radius = -1
	}
	if config.Threshold == 0 {
		config.Threshold = -1
	}
	if config.Rate == 0 {
		config.Rate = 1.1
	}

	job := s.jobManager.CreateJob(config)

	go runJob(context.Background(), s.jobManager, s.resultStore, s.baseDir, job.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobManager.ListJobs()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobs)
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	fps := float64(0)
	if elapsed.Seconds() > 0 {
		fps = float64(job.FramesDone) / elapsed.Seconds()
	}

	response := map[string]interface{}{
		"id":         job.ID,
		"state":      job.State,
		"config":     job.Config,
		"frames":     job.Frames,
		"framesDone": job.FramesDone,
		"matched":    job.Matched,
		"lastScore":  job.LastScore,
		"elapsed":    elapsed.Seconds(),
		"fps":        fps,
		"startTime":  job.StartTime,
		"endTime":    job.EndTime,
		"error":      job.Error,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleGetResult handles GET /api/v1/jobs/:id/result
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request, jobID string) {
	result, err := s.resultStore.LoadResult(jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "No result yet", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to load result: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleGetPathImage handles GET /api/v1/jobs/:id/path.png:
// the tracked trajectory rendered onto the last frame.
func (s *Server) handleGetPathImage(w http.ResponseWriter, r *http.Request, jobID string) {
	result, err := s.resultStore.LoadResult(jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "No result yet", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to load result: %v", err), http.StatusInternalServerError)
		return
	}

	frames, err := seq.Load(result.Config.FramesPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load frames: %v", err), http.StatusInternalServerError)
		return
	}

	tmpl, err := seq.LoadImage(result.Config.TemplatePath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load template: %v", err), http.StatusInternalServerError)
		return
	}

	img := renderPath(frames[len(frames)-1], result.X, result.Y,
		tmpl.Bounds().Dx(), tmpl.Bounds().Dy())

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")

	if err := png.Encode(w, img); err != nil {
		slog.Error("failed to encode PNG", "error", err)
	}
}

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	jobs := s.jobManager.ListJobs()

	fmt.Fprint(w, "<!DOCTYPE html><html><head><title>templatetrack</title></head><body>")
	fmt.Fprint(w, "<h1>Tracking jobs</h1>")
	if len(jobs) == 0 {
		fmt.Fprint(w, "<p>No jobs yet. POST to /api/v1/jobs to start one.</p>")
	} else {
		fmt.Fprint(w, "<table border=\"1\" cellpadding=\"4\"><tr><th>ID</th><th>State</th><th>Frames</th><th>Matched</th><th>Links</th></tr>")
		for _, job := range jobs {
			fmt.Fprintf(w, "<tr><td>%s</td><td>%s</td><td>%d/%d</td><td>%d</td>",
				job.ID, job.State, job.FramesDone, job.Frames, job.Matched)
			fmt.Fprintf(w, "<td><a href=\"/api/v1/jobs/%s/status\">status</a> <a href=\"/api/v1/jobs/%s/result\">result</a> <a href=\"/api/v1/jobs/%s/path.png\">path</a></td></tr>",
				job.ID, job.ID, job.ID)
		}
		fmt.Fprint(w, "</table>")
	}
	fmt.Fprint(w, "</body></html>")
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
