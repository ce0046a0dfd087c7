// Package api exposes the HTTP ops interface for the checker service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/metrics"
	"github.com/netflixcritic/checker/internal/progress"
	"github.com/netflixcritic/checker/internal/runner"
)

// BatchRunner triggers the batch pipelines.
type BatchRunner interface {
	CheckAvailability(ctx context.Context) (runner.Report, error)
	BackfillMetadata(ctx context.Context) (runner.Report, error)
	PopulateRatings(ctx context.Context) (runner.Report, error)
}

// Server wires the ops endpoints to the runner and progress hub.
type Server struct {
	router chi.Router
	runner BatchRunner
	hub    *progress.Hub
	logger *zap.Logger

	// One batch per pipeline at a time; triggering a running pipeline
	// returns 409.
	running sync.Map
}

// NewServer constructs a Server with middleware and routes.
func NewServer(batches BatchRunner, hub *progress.Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner: batches,
		hub:    hub,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/progress", s.progress)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/batches/{pipeline}", s.startBatch)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) progress(w http.ResponseWriter, _ *http.Request) {
	if s.hub == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.hub.Snapshot())
}

// startBatch kicks off one pipeline in the background and returns
// immediately. The report lands in the log and the progress snapshot.
func (s *Server) startBatch(w http.ResponseWriter, r *http.Request) {
	pipeline := chi.URLParam(r, "pipeline")

	var run func(context.Context) (runner.Report, error)
	switch progress.Pipeline(pipeline) {
	case progress.PipelineAvailability:
		run = s.runner.CheckAvailability
	case progress.PipelineMetadata:
		run = s.runner.BackfillMetadata
	case progress.PipelineRatings:
		run = s.runner.PopulateRatings
	default:
		s.writeError(w, http.StatusNotFound, "unknown pipeline")
		return
	}

	if _, loaded := s.running.LoadOrStore(pipeline, struct{}{}); loaded {
		s.writeError(w, http.StatusConflict, "pipeline already running")
		return
	}

	go func() {
		defer s.running.Delete(pipeline)
		report, err := run(context.Background())
		if err != nil {
			s.logger.Error("batch failed to start",
				zap.String("pipeline", pipeline),
				zap.Error(err),
			)
			return
		}
		s.logger.Info("batch report",
			zap.String("pipeline", pipeline),
			zap.String("batch_id", report.BatchID.String()),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Duration("elapsed", report.Elapsed),
		)
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{"pipeline": pipeline, "status": "started"})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
