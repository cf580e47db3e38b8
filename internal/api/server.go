// Package api serves the operator surface of the storage layer: health,
// Prometheus metrics, provider state, explicit failover, policy edits,
// alerts and the audit trail.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/FairForge/sal/internal/alerting"
	"github.com/FairForge/sal/internal/audit"
	"github.com/FairForge/sal/internal/engine"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Server is the ops HTTP server
type Server struct {
	manager    *engine.Manager
	alerts     *alerting.Recorder
	metrics    http.Handler
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server

	healthMu  sync.RWMutex
	health    map[string]bool
	checkedAt time.Time
}

// Option configures a Server
type Option func(*Server)

// WithMetricsHandler mounts h at /metrics
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithAlertRecorder exposes recorded alerts at /api/v1/alerts
func WithAlertRecorder(r *alerting.Recorder) Option {
	return func(s *Server) {
		s.alerts = r
	}
}

// WithLogger sets the zap logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates the ops server listening on addr
func NewServer(addr string, manager *engine.Manager, opts ...Option) *Server {
	s := &Server{
		manager: manager,
		logger:  zap.NewNop(),
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleLiveness)
	s.router.Get("/readyz", s.handleReadiness)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/providers", s.handleListProviders)
		r.Post("/providers/{name}/failover", s.handleFailover)
		r.Post("/providers/{name}/enable", s.handleEnable)
		r.Post("/health/sweep", s.handleSweep)

		r.Get("/policies", s.handleListPolicies)
		r.Put("/policies/{level}", s.handlePutPolicy)

		if s.alerts != nil {
			r.Get("/alerts", s.handleListAlerts)
		}
	})

	audit.NewAPIHandler(s.manager.Audit(), s.logger).RegisterRoutes(s.router)
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetHealth stores the result of the latest health sweep
func (s *Server) SetHealth(results map[string]bool) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.health = results
	s.checkedAt = time.Now().UTC()
}

// Sweep runs a health check across all providers and stores the result
func (s *Server) Sweep(ctx context.Context) map[string]bool {
	results := s.manager.HealthCheckAll(ctx)
	s.SetHealth(results)
	return results
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("ops server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
