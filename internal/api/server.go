// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the control HTTP surface: uploads, the processed library, the
// playback mode and ingest jobs.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/striploop/internal/api/middleware"
	"github.com/ManuGH/striploop/internal/health"
	"github.com/ManuGH/striploop/internal/ingest"
	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/mode"
)

// Ingest is the part of the ingest pipeline the API drives.
type Ingest interface {
	RawDir() string
	ProcessedDir() string
	Destination(rawPath string) string
	Enqueue(ctx context.Context, rawPath string) (string, error)
	Retry(ctx context.Context, id string) (string, error)
	Job(ctx context.Context, id string) (ingest.Job, error)
	Jobs(ctx context.Context, limit int) ([]ingest.Job, error)
}

// Modes is the mode controller as seen by the API.
type Modes interface {
	Status() mode.Status
	SwitchTo(ctx context.Context, target mode.Mode) (bool, error)
}

// Config holds the knobs of the HTTP surface.
type Config struct {
	MaxUploadBytes int64
	// RateLimit is requests per minute per client; zero disables limiting.
	RateLimit int
	// TracingService enables otelhttp spans when non-empty.
	TracingService string
	Version        string
	// SwitchTimeout bounds a mode switch requested over HTTP. Zero means the
	// request context alone.
	SwitchTimeout time.Duration
	// Health serves /healthz and /readyz. Nil serves both without component checks.
	Health *health.Manager
}

// Server serves the control API.
type Server struct {
	cfg    Config
	ingest Ingest
	modes  Modes
	logger zerolog.Logger
}

// New creates the API server.
func New(cfg Config, in Ingest, modes Modes) *Server {
	if cfg.Health == nil {
		cfg.Health = health.NewManager(cfg.Version)
	}
	return &Server{
		cfg:    cfg,
		ingest: in,
		modes:  modes,
		logger: xglog.WithComponent("api"),
	}
}

// Handler returns the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
		RateLimit:      s.cfg.RateLimit,
		RateWindow:     time.Minute,
	})

	r.Get("/healthz", s.cfg.Health.ServeHealth)
	r.Get("/readyz", s.cfg.Health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)

		r.Get("/videos", s.handleListVideos)
		r.Delete("/videos/{name}", s.handleDeleteVideo)

		r.Get("/mode", s.handleGetMode)
		r.Put("/mode", s.handlePutMode)

		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/retry", s.handleRetryJob)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}
