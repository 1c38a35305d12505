package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wareline/kbcore/internal/config"
	"github.com/wareline/kbcore/internal/model"
	"github.com/wareline/kbcore/internal/pipeline"
	"github.com/wareline/kbcore/internal/store"
)

// Ingestor is the pipeline surface the handlers drive.
type Ingestor interface {
	ProcessDocument(ctx context.Context, data []byte, filename string, opts pipeline.ProcessOptions) (*pipeline.Result, error)
	ReprocessDocument(ctx context.Context, documentID string, data []byte, opts pipeline.ProcessOptions) (*pipeline.Result, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// DocumentReader serves read-only document queries.
type DocumentReader interface {
	Get(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, limit int) ([]*model.Document, error)
	AuditEntries(ctx context.Context, documentID string) ([]store.FieldChange, error)
}

// Searcher answers semantic retrieval queries.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, filters model.SearchFilters) ([]model.SearchResult, error)
	Status(ctx context.Context) model.PipelineStatus
}

// Server is the HTTP API server for the knowledge base core.
type Server struct {
	router   chi.Router
	ingestor Ingestor
	docs     DocumentReader
	searcher Searcher
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(ingestor Ingestor, docs DocumentReader, searcher Searcher, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		ingestor: ingestor,
		docs:     docs,
		searcher: searcher,
		log:      log,
		cfg:      cfg,
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
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/documents", s.handleUpload)
		r.Get("/api/documents", s.handleListDocuments)
		r.Get("/api/documents/{docID}", s.handleGetDocument)
		r.Delete("/api/documents/{docID}", s.handleDeleteDocument)
		r.Post("/api/documents/{docID}/reprocess", s.handleReprocess)
		r.Get("/api/documents/{docID}/audit", s.handleDocumentAudit)

		r.Get("/api/search", s.handleSearch)
		r.Get("/api/status", s.handleStatus)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
