package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"

	"github.com/dgallion1/pagetree/internal/config"
	"github.com/dgallion1/pagetree/internal/llm"
	"github.com/dgallion1/pagetree/internal/pipeline"
	"github.com/dgallion1/pagetree/internal/search"
	"github.com/dgallion1/pagetree/internal/store"
)

// Server is the HTTP API server for pagetree.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	store        *store.Store
	reasoner     *search.Reasoner
	llm          *llm.Client
	markdown     goldmark.Markdown
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. llmClient may be nil,
// in which case the stats endpoint reports itself unavailable.
func NewServer(orch *pipeline.Orchestrator, st *store.Store, reasoner *search.Reasoner, llmClient *llm.Client, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		store:        st,
		reasoner:     reasoner,
		llm:          llmClient,
		markdown:     goldmark.New(),
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

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/documents", s.handleUpload)
		r.Get("/api/documents", s.handleListDocuments)
		r.Delete("/api/documents/{docID}", s.handleDeleteDocument)

		r.Post("/api/trees/generate", s.handleGenerate)
		r.Get("/api/trees/{docID}/status", s.handleTreeStatus)
		r.Get("/api/trees/{docID}/nodes", s.handleListNodes)
		r.Get("/api/trees/{docID}", s.handleGetTree)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)

		r.Post("/api/query", s.handleQuery)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		jsonError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
