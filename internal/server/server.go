// Package server exposes the HTTP API: per-corpus retrieval search, document
// management, question answering, and service status.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/opencampus/docqa/internal/assistant"
	"github.com/opencampus/docqa/internal/catalog"
	"github.com/opencampus/docqa/internal/config"
	"github.com/opencampus/docqa/internal/index"
	"github.com/opencampus/docqa/internal/querycache"
	"github.com/opencampus/docqa/internal/retrieval"
)

// Corpus bundles the per-corpus components the API serves from. Catalog and
// Assistant may be nil; the corresponding endpoints then return 501.
type Corpus struct {
	Manager   *index.Manager
	Catalog   *catalog.Catalog
	Retrieval *retrieval.Service
	Assistant *assistant.Service
}

// Server is the HTTP API server.
type Server struct {
	cfg     *config.Config
	corpora map[string]*Corpus
	cache   *querycache.Cache
	logger  *zap.Logger

	httpServer *http.Server
}

// New creates a Server. cache may be nil when caching is disabled.
func New(cfg *config.Config, corpora map[string]*Corpus, cache *querycache.Cache, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		corpora: corpora,
		cache:   cache,
		logger:  logger,
	}
}

// Handler builds the chi router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/corpora/{corpus}", func(r chi.Router) {
			r.Post("/search", s.handleSearch)
			r.Post("/ask", s.handleAsk)
			r.Route("/documents", func(r chi.Router) {
				r.Get("/", s.handleListDocuments)
				r.Post("/", s.handleUploadDocument)
				r.Get("/search", s.handleSearchDocuments)
				r.Get("/{id}", s.handleGetDocument)
				r.Delete("/{id}", s.handleDeleteDocument)
			})
		})
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)

	return r
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}
