package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ekemper/leadgen/breaker"
	"github.com/ekemper/leadgen/campaign"
	"github.com/ekemper/leadgen/job"
	"github.com/ekemper/leadgen/logger"
	"github.com/ekemper/leadgen/orchestrator"
)

// Server exposes the breaker, orchestrator and campaign operations over HTTP.
type Server struct {
	breaker      *breaker.Breaker
	orchestrator *orchestrator.Orchestrator
	campaigns    *campaign.Store
	jobs         *job.Store
	validator    *campaign.StartValidator
	dependencies []string

	httpServer *http.Server
	mux        *http.ServeMux
}

// Config holds the server wiring.
type Config struct {
	Port         int
	Breaker      *breaker.Breaker
	Orchestrator *orchestrator.Orchestrator
	Campaigns    *campaign.Store
	Jobs         *job.Store
	Validator    *campaign.StartValidator
	Dependencies []string
}

// New creates a Server and registers all routes.
func New(cfg Config) *Server {
	s := &Server{
		breaker:      cfg.Breaker,
		orchestrator: cfg.Orchestrator,
		campaigns:    cfg.Campaigns,
		jobs:         cfg.Jobs,
		validator:    cfg.Validator,
		dependencies: cfg.Dependencies,
		mux:          http.NewServeMux(),
	}

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/breaker/status", s.handleBreakerStatus)
	s.mux.HandleFunc("/api/breaker/open", s.handleBreakerOpen)
	s.mux.HandleFunc("/api/breaker/close", s.handleBreakerClose)
	s.mux.HandleFunc("/api/jobs/pause", s.handleJobsPause)
	s.mux.HandleFunc("/api/jobs/resume", s.handleJobsResume)
	s.mux.HandleFunc("/api/jobs/summary", s.handleJobsSummary)
	s.mux.HandleFunc("/api/campaigns/summary", s.handleCampaignSummary)
	s.mux.HandleFunc("/api/campaigns/", s.handleCampaignAction)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	logger.Infof("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
