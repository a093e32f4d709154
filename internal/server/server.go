// Package server provides the HTTP API for Erabu.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/erabu/internal/config"
	"github.com/hyperjump/erabu/internal/ingest"
	"github.com/hyperjump/erabu/internal/search"
)

// Server is the HTTP server for the Erabu API.
type Server struct {
	retriever    *search.Retriever
	orchestrator *ingest.Orchestrator
	config       *config.ServerConfig
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	retriever *search.Retriever,
	orchestrator *ingest.Orchestrator,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		retriever:    retriever,
		orchestrator: orchestrator,
		config:       cfg,
		logger:       logger,
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/query", s.handleQuery)
	r.Post("/api/v1/ingest", s.handleIngest)
	r.Get("/api/v1/stats", s.handleStats)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestID tags each request with a UUID, echoed in the X-Request-ID header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
