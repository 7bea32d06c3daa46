// Package httpserver provides the HTTP REST API for the affiliation harvester.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/helixir/affiliation-harvester/internal/domain"
	"github.com/helixir/affiliation-harvester/internal/harvest"
)

// Runner executes one harvest run to completion. It is the surface the HTTP
// layer needs from the harvest pipeline.
type Runner interface {
	Run(ctx context.Context, runID string, req harvest.Request) (*domain.HarvestResult, error)
}

var _ Runner = (*harvest.Harvester)(nil)

// Server is the HTTP REST API server. Harvest runs accepted over the API
// execute in background goroutines owned by the server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	harvester  Runner
	runs       *harvest.Runs
	logger     zerolog.Logger

	// runCtx parents every background harvest so Shutdown cancels
	// in-flight runs along with the listener.
	runCtx   context.Context
	stopRuns context.CancelFunc
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, harvester Runner, runs *harvest.Runs, logger zerolog.Logger) *Server {
	runCtx, stopRuns := context.WithCancel(context.Background())

	s := &Server{
		harvester: harvester,
		runs:      runs,
		logger:    logger.With().Str("component", "http-server").Logger(),
		runCtx:    runCtx,
		stopRuns:  stopRuns,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLoggingMiddleware(s.logger))
	r.Use(jsonContentTypeMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/harvests", s.startHarvest)
		r.Get("/harvests", s.listHarvests)
		r.Get("/harvests/{runID}", s.getHarvestStatus)
		r.Get("/harvests/{runID}/result", s.getHarvestResult)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown cancels in-flight harvest runs and gracefully shuts down the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopRuns()
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler returns readiness status. The service holds no warm
// backend connections, so readiness follows liveness.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
