package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wareline/kbcore/internal/chunker"
	"github.com/wareline/kbcore/internal/model"
	"github.com/wareline/kbcore/internal/parser"
	"github.com/wareline/kbcore/internal/pipeline"
)

// handleUpload ingests a single uploaded file synchronously. Embedding
// happens later in the background worker, so the response reports the
// chunk count but not vector status.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	opts := s.processOptions(r)
	result, err := s.ingestor.ProcessDocument(r.Context(), data, filename, opts)
	if err != nil {
		writeIngestError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// handleReprocess re-runs the pipeline for an existing document. The
// file bytes must be uploaded again.
func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	opts := s.processOptions(r)
	result, err := s.ingestor.ReprocessDocument(r.Context(), docID, data, opts)
	if err != nil {
		writeIngestError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// processOptions builds per-request pipeline options from form values,
// falling back to configured chunking defaults.
func (s *Server) processOptions(r *http.Request) pipeline.ProcessOptions {
	opts := pipeline.DefaultProcessOptions()
	opts.Title = r.FormValue("title")
	opts.Category = r.FormValue("category")
	if v := r.FormValue("source_type"); v != "" {
		opts.SourceType = v
	}
	opts.AssignNumber = s.cfg.AssignDocumentNumbers

	chunking := chunker.Options{
		MaxTokens:         s.cfg.ChunkMaxTokens,
		OverlapTokens:     s.cfg.ChunkOverlapTokens,
		MinChunkSize:      s.cfg.ChunkMinTokens,
		PreserveStructure: true,
	}
	if v := r.FormValue("max_tokens"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			chunking.MaxTokens = n
		}
	}
	if v := r.FormValue("overlap_tokens"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			chunking.OverlapTokens = n
		}
	}
	if v := r.FormValue("preserve_structure"); v != "" {
		chunking.PreserveStructure = v != "false"
	}
	opts.Chunking = chunking
	return opts
}

// writeIngestError maps pipeline failures to HTTP status codes.
func writeIngestError(w http.ResponseWriter, err error) {
	var dup *model.DuplicateError
	switch {
	case errors.As(err, &dup):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"error":                "duplicate document",
			"existing_document_id": dup.ExistingID,
		})
	case errors.Is(err, model.ErrUnsupportedFormat):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrCorruptInput):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, model.ErrNotFound):
		jsonError(w, "document not found", http.StatusNotFound)
	default:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
