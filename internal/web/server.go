// Package web is the HTTP surface: the JSON REST endpoints of §6 and the
// /ws/execute WebSocket upgrade that drives a Streaming Session over the
// Stage Orchestrator.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/teemulinna/council/internal/cache"
	"github.com/teemulinna/council/internal/config"
	"github.com/teemulinna/council/internal/cost"
	"github.com/teemulinna/council/internal/db"
	"github.com/teemulinna/council/internal/ratelimit"
	"github.com/teemulinna/council/internal/streaming"
)

// Server is the HTTP+WebSocket server fronting the council engine.
type Server struct {
	cfg      config.Config
	db       *db.DB
	cache    cache.Cache
	acct     *cost.Accountant
	limiter  *ratelimit.Limiter
	executor streaming.Executor
	upgrader *streaming.Upgrader

	mux    *http.ServeMux
	server *http.Server
}

// New builds a Server wiring the given Orchestrator (as a streaming.Executor)
// to the HTTP surface.
func New(cfg config.Config, database *db.DB, respCache cache.Cache, acct *cost.Accountant, limiter *ratelimit.Limiter, executor streaming.Executor) *Server {
	s := &Server{
		cfg:      cfg,
		db:       database,
		cache:    respCache,
		acct:     acct,
		limiter:  limiter,
		executor: newPersistingExecutor(executor, database),
		upgrader: streaming.NewUpgrader(cfg.CORSOrigins),
		mux:      http.NewServeMux(),
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/models", s.handleModels)
	s.mux.HandleFunc("GET /api/roles", s.handleRoles)
	s.mux.HandleFunc("GET /api/patterns", s.handlePatterns)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/logs/{conv}", s.handleLogs)
	s.mux.HandleFunc("GET /api/logs/{conv}/decision-tree", s.handleDecisionTree)
	s.mux.HandleFunc("GET /ws/execute", s.handleWSExecute)
}

// Start begins serving HTTP requests. It blocks until the server is shut down.
func (s *Server) Start() error {
	log.Printf("council engine listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
