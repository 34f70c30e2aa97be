// Package api serves open entries to readers over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dgallion1/docstream/internal/config"
	"github.com/dgallion1/docstream/internal/pipeline"
	"github.com/dgallion1/docstream/internal/selection"
	"github.com/dgallion1/docstream/internal/upstream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// EntryCreator requests new entries from the entry server.
type EntryCreator interface {
	NewEntry(ctx context.Context, topic string, proficiency upstream.Proficiency) (string, error)
}

// Server is the HTTP API server for docstream.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	entries      EntryCreator
	resolver     *selection.Resolver
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, entries EntryCreator, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		entries:      entries,
		resolver:     selection.NewResolver(float64(cfg.SurfaceWidth)),
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.DocstreamAPIKey, s.log))

		r.Post("/e/new", s.handleNewEntry)

		r.Route("/e/{entryID}", func(r chi.Router) {
			r.Post("/open", s.handleOpen)
			r.Delete("/", s.handleClose)

			r.Get("/", s.handleEntryHTML)
			r.Get("/state", s.handleState)
			r.Get("/toc", s.handleTOC)
			r.Get("/export.docx", s.handleExportDOCX)

			r.Post("/pages/{index}/activate", s.handleActivate)

			r.Post("/selection", s.handleSelection)
			r.Post("/selection/dismiss", s.handleDismiss)
			r.Post("/lookup", s.handleLookup)

			r.Post("/chat/open", s.handleChatOpen)
			r.Post("/chat", s.handleChatSubmit)
			r.Delete("/chat", s.handleChatClose)
		})

		r.Get("/api/jobs/{jobID}", s.handleJobStatus)
		r.Get("/api/stats/streams", s.handleStreamStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
