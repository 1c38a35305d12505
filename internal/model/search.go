package model

// SearchFilters narrows a similarity query to one document or category.
// Zero values mean no constraint.
type SearchFilters struct {
	DocumentID string `json:"document_id,omitempty"`
	Category   string `json:"category,omitempty"`
}

// SearchResult is one ranked hit from the vector index, enriched with the
// chunk's structural metadata.
type SearchResult struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	Content      string  `json:"content"`
	Similarity   float64 `json:"similarity"`
	SectionTitle string  `json:"section_title,omitempty"`
	SectionPath  string  `json:"section_path,omitempty"`
	PageNumber   *int    `json:"page_number,omitempty"`
}

// PipelineStatus reports operational health of the retrieval side.
type PipelineStatus struct {
	Available     bool `json:"available"`
	IndexedChunks int  `json:"indexed_chunks"`
	PendingChunks int  `json:"pending_chunks"`
}
