// Package model holds the persisted and transient domain types shared
// across the ingestion and retrieval pipeline.
package model

import "time"

// ProcessingStatus tracks a document through the ingestion pipeline.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// ApprovalStatus tracks the editorial workflow state of a document.
type ApprovalStatus string

const (
	ApprovalDraft    ApprovalStatus = "draft"
	ApprovalApproved ApprovalStatus = "approved"
)

// Document is the persisted record for one ingested file. There is exactly
// one row per unique FileHash; duplicate uploads are rejected, not re-ingested.
type Document struct {
	ID               string           `json:"id"`
	DocumentNumber   string           `json:"document_number,omitempty"`
	SourceType       string           `json:"source_type"`
	Filename         string           `json:"filename"`
	FileHash         string           `json:"file_hash"`
	Title            string           `json:"title"`
	Category         string           `json:"category"`
	ChunksCount      int              `json:"chunks_count"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	Version          int              `json:"version"`
	ApprovalStatus   ApprovalStatus   `json:"approval_status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ContentType classifies what kind of blocks make up a chunk.
type ContentType string

const (
	ContentText    ContentType = "text"
	ContentHeading ContentType = "heading"
	ContentList    ContentType = "list"
	ContentTable   ContentType = "table"
	ContentCode    ContentType = "code"
	ContentMixed   ContentType = "mixed"
)

// Chunk is a retrieval-sized slice of a document. ChunkIndex values for a
// document form a dense 0..N-1 sequence after a successful processing run.
type Chunk struct {
	ID            string      `json:"id"`
	DocumentID    string      `json:"document_id"`
	ChunkIndex    int         `json:"chunk_index"`
	Content       string      `json:"content"`
	ContentType   ContentType `json:"content_type"`
	SectionTitle  string      `json:"section_title,omitempty"`
	SectionPath   string      `json:"section_path,omitempty"`
	PageNumber    *int        `json:"page_number,omitempty"`
	WordCount     int         `json:"word_count"`
	TokenEstimate int         `json:"token_estimate"`
	HasEmbedding  bool        `json:"has_embedding"`
	EmbeddingID   string      `json:"embedding_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}
