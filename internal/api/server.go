// Package api is the HTTP front door: pipeline CRUD, run control, the
// worker callback endpoint, and a live event stream.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/portwhine/portwhine/internal/catalog"
	"github.com/portwhine/portwhine/internal/events"
	"github.com/portwhine/portwhine/internal/log"
	"github.com/portwhine/portwhine/internal/model"
	"github.com/portwhine/portwhine/internal/store"
)

// RunControl is the slice of the orchestrator the API drives.
type RunControl interface {
	StartRun(ctx context.Context, pipelineID uuid.UUID) (*model.Run, error)
	StopRun(ctx context.Context, runID uuid.UUID) (*model.Run, error)
	HandleNodeCompletion(ctx context.Context, res *model.WorkerResult) error
}

// InstanceCleaner enqueues removal of a single finished container.
type InstanceCleaner interface {
	CleanupInstance(ctx context.Context, name string) error
}

// QueueStats exposes the container task queue's depth for health reporting.
type QueueStats interface {
	Pending(ctx context.Context) (int, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey, when set, is required as a bearer token on every request
	// except healthz and the worker callback.
	APIKey string
}

// Server is the HTTP API server.
type Server struct {
	config    Config
	pipelines store.PipelineStore
	runs      store.RunStore
	results   store.ResultStore
	control   RunControl
	cleaner   InstanceCleaner
	stats     QueueStats
	registry  *catalog.Registry
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

func New(cfg Config, ps store.PipelineStore, rs store.RunStore, res store.ResultStore, control RunControl, cleaner InstanceCleaner, stats QueueStats, reg *catalog.Registry, hub *events.Hub) *Server {
	return &Server{
		config:    cfg,
		pipelines: ps,
		runs:      rs,
		results:   res,
		control:   control,
		cleaner:   cleaner,
		stats:     stats,
		registry:  reg,
		hub:       hub,
		logger:    log.WithComponent("api"),
		startedAt: time.Now(),
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("api server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Routes builds the chi router. Exposed for handler tests.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		// Workers authenticate at the network layer, not with the
		// operator key.
		r.Post("/job/result", s.handleJobResult)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/catalog", s.handleCatalog)

			r.Route("/pipeline", func(r chi.Router) {
				r.Get("/", s.handleListPipelines)
				r.Post("/", s.handleCreatePipeline)
				r.Route("/{pipelineID}", func(r chi.Router) {
					r.Get("/", s.handleGetPipeline)
					r.Put("/", s.handleUpdatePipeline)
					r.Delete("/", s.handleDeletePipeline)
					r.Post("/start", s.handleStartPipeline)
					r.Post("/stop", s.handleStopPipeline)
					r.Get("/runs", s.handleListRuns)
				})
			})

			r.Route("/run/{runID}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/results", s.handleRunResults)
			})

			r.Get("/events", s.handleEvents)
		})
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.config.APIKey {
			s.writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
