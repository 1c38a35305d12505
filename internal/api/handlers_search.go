package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/wareline/kbcore/internal/model"
)

// handleSearch runs a semantic query over indexed chunks.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		jsonError(w, "q query parameter is required", http.StatusBadRequest)
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	filters := model.SearchFilters{
		DocumentID: r.URL.Query().Get("document_id"),
		Category:   r.URL.Query().Get("category"),
	}

	results, err := s.searcher.Search(r.Context(), query, limit, filters)
	if err != nil {
		jsonError(w, "search failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []model.SearchResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"query":   query,
		"results": results,
	})
}

// handleStatus reports retrieval availability and embedding progress.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.searcher.Status(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
