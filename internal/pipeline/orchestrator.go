// Package pipeline sequences the ingestion pipeline: parse, duplicate
// check, chunk, persist, status bookkeeping. It owns the Document
// lifecycle and its retry/failure accounting.
package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wareline/kbcore/internal/chunker"
	"github.com/wareline/kbcore/internal/model"
	"github.com/wareline/kbcore/internal/parser"
)

// DocumentStore is the slice of the relational store the orchestrator
// needs for document records.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Update(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id string) (*model.Document, error)
	GetByHash(ctx context.Context, hash string) (*model.Document, error)
	Delete(ctx context.Context, id string) error
	NextDocumentNumber(ctx context.Context) (string, error)
}

// ChunkStore persists chunk sets transactionally.
type ChunkStore interface {
	ReplaceForDocument(ctx context.Context, documentID string, chunks []model.Chunk) error
	IDsByDocument(ctx context.Context, documentID string) ([]string, error)
}

// SearchInvalidator keeps the retrieval side consistent with document
// mutations: cached results are dropped and deleted chunks lose their
// vectors.
type SearchInvalidator interface {
	InvalidateResults(ctx context.Context) error
	RemoveDocument(ctx context.Context, chunkIDs []string) error
}

// ProcessOptions controls one ingestion run.
type ProcessOptions struct {
	Title           string
	Category        string
	SourceType      string
	Chunking        chunker.Options
	CheckDuplicates bool
	AssignNumber    bool
}

// DefaultProcessOptions returns the standard ingestion options.
func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{
		SourceType:      "upload",
		Chunking:        chunker.DefaultOptions(),
		CheckDuplicates: true,
	}
}

// Result is the outcome of a successful processing run.
type Result struct {
	Document      *model.Document `json:"document"`
	ChunksCreated int             `json:"chunks_created"`
}

// Orchestrator manages the document ingestion pipeline.
type Orchestrator struct {
	docs   DocumentStore
	chunks ChunkStore
	search SearchInvalidator
	log    *slog.Logger
}

// NewOrchestrator creates the pipeline orchestrator.
func NewOrchestrator(docs DocumentStore, chunks ChunkStore, search SearchInvalidator, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		docs:   docs,
		chunks: chunks,
		search: search,
		log:    log,
	}
}

// ProcessDocument ingests raw bytes end to end. Unsupported formats,
// corrupt input and duplicates fail fast before any record is created;
// failures past that point leave the document in failed status with the
// captured error message. Chunk persistence is all-or-nothing.
func (o *Orchestrator) ProcessDocument(ctx context.Context, data []byte, filename string, opts ProcessOptions) (*Result, error) {
	log := o.log.With("filename", filename)

	hash := ContentHashHex(data)
	if opts.CheckDuplicates {
		existing, err := o.docs.GetByHash(ctx, hash)
		if err == nil {
			log.Info("duplicate upload rejected", "existing_document_id", existing.ID)
			return nil, &model.DuplicateError{ExistingID: existing.ID}
		}
		if err != model.ErrNotFound {
			return nil, fmt.Errorf("duplicate check: %w", err)
		}
	}

	// Parse before creating any record: unsupported and corrupt inputs
	// must not leave a document row behind.
	parsed, err := parser.Parse(data, filename)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &model.Document{
		ID:               uuid.NewString(),
		SourceType:       opts.SourceType,
		Filename:         filename,
		FileHash:         hash,
		Title:            documentTitle(opts.Title, parsed, filename),
		Category:         opts.Category,
		ProcessingStatus: model.StatusPending,
		Version:          1,
		ApprovalStatus:   model.ApprovalDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if doc.SourceType == "" {
		doc.SourceType = "upload"
	}
	if opts.AssignNumber {
		number, err := o.docs.NextDocumentNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("assign document number: %w", err)
		}
		doc.DocumentNumber = number
	}

	if err := o.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	doc.ProcessingStatus = model.StatusProcessing
	if err := o.docs.Update(ctx, doc); err != nil {
		return nil, o.markFailed(ctx, doc, fmt.Errorf("transition to processing: %w", err))
	}

	chunksCreated, err := o.persistChunks(ctx, doc, parsed, opts.Chunking)
	if err != nil {
		return nil, o.markFailed(ctx, doc, err)
	}

	doc.ChunksCount = chunksCreated
	doc.ProcessingStatus = model.StatusCompleted
	if err := o.docs.Update(ctx, doc); err != nil {
		return nil, o.markFailed(ctx, doc, fmt.Errorf("transition to completed: %w", err))
	}

	if err := o.search.InvalidateResults(ctx); err != nil {
		log.Warn("results cache invalidation failed", "error", err)
	}

	log.Info("document processed", "document_id", doc.ID, "chunks", chunksCreated)
	return &Result{Document: doc, ChunksCreated: chunksCreated}, nil
}

// ReprocessDocument re-ingests an existing document. Raw bytes must be
// supplied again; the system does not retain them after initial
// ingestion. All prior chunks (and their vectors) are removed before the
// new set is inserted, and the chunk count is recomputed from the new set.
func (o *Orchestrator) ReprocessDocument(ctx context.Context, documentID string, data []byte, opts ProcessOptions) (*Result, error) {
	doc, err := o.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	parsed, err := parser.Parse(data, doc.Filename)
	if err != nil {
		return nil, err
	}

	oldChunkIDs, err := o.chunks.IDsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("collect prior chunks: %w", err)
	}

	doc.FileHash = ContentHashHex(data)
	doc.Version++
	doc.ErrorMessage = ""
	doc.ProcessingStatus = model.StatusProcessing
	if err := o.docs.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("transition to processing: %w", err)
	}

	chunksCreated, err := o.persistChunks(ctx, doc, parsed, opts.Chunking)
	if err != nil {
		return nil, o.markFailed(ctx, doc, err)
	}

	doc.ChunksCount = chunksCreated
	doc.ProcessingStatus = model.StatusCompleted
	if err := o.docs.Update(ctx, doc); err != nil {
		return nil, o.markFailed(ctx, doc, fmt.Errorf("transition to completed: %w", err))
	}

	// Old vectors are gone from the relational store; drop them from the
	// index and flush cached answers that may still reference them.
	if err := o.search.RemoveDocument(ctx, oldChunkIDs); err != nil {
		o.log.Warn("vector cleanup after reprocess failed", "document_id", documentID, "error", err)
	}

	o.log.Info("document reprocessed", "document_id", doc.ID, "version", doc.Version, "chunks", chunksCreated)
	return &Result{Document: doc, ChunksCreated: chunksCreated}, nil
}

// DeleteDocument removes a document, its chunks, its vectors, and any
// cached results that could reference them.
func (o *Orchestrator) DeleteDocument(ctx context.Context, documentID string) error {
	chunkIDs, err := o.chunks.IDsByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("collect chunks: %w", err)
	}
	if err := o.docs.Delete(ctx, documentID); err != nil {
		return err
	}
	if err := o.search.RemoveDocument(ctx, chunkIDs); err != nil {
		o.log.Warn("vector cleanup after delete failed", "document_id", documentID, "error", err)
	}
	o.log.Info("document deleted", "document_id", documentID, "chunks", len(chunkIDs))
	return nil
}

// persistChunks runs the chunker and swaps the document's chunk set in
// one transaction.
func (o *Orchestrator) persistChunks(ctx context.Context, doc *model.Document, parsed *model.ParsedDocument, opts chunker.Options) (int, error) {
	if opts == (chunker.Options{}) {
		opts = chunker.DefaultOptions()
	}

	chunks := chunker.Chunk(parsed, opts)
	now := time.Now().UTC()
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].DocumentID = doc.ID
		chunks[i].CreatedAt = now
	}

	if err := o.chunks.ReplaceForDocument(ctx, doc.ID, chunks); err != nil {
		return 0, fmt.Errorf("persist chunks: %w", err)
	}
	return len(chunks), nil
}

// markFailed records a processing failure on the document and returns the
// original error. Failures are visible, never silently swallowed.
func (o *Orchestrator) markFailed(ctx context.Context, doc *model.Document, cause error) error {
	doc.ProcessingStatus = model.StatusFailed
	doc.ErrorMessage = cause.Error()
	if err := o.docs.Update(ctx, doc); err != nil {
		o.log.Error("failed to record processing failure", "document_id", doc.ID, "error", err)
	}
	o.log.Error("document processing failed", "document_id", doc.ID, "error", cause)
	return cause
}

func documentTitle(explicit string, parsed *model.ParsedDocument, filename string) string {
	if explicit != "" {
		return explicit
	}
	if parsed.Metadata.Title != "" {
		return parsed.Metadata.Title
	}
	return filename
}

// ContentHashHex computes the SHA-256 content digest used for dedup.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
