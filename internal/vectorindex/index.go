// Package vectorindex talks to the external vector index service that
// stores embeddings and answers nearest-neighbor queries.
package vectorindex

import "context"

// Entry is one vector plus its source text and filterable metadata.
type Entry struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]any
}

// QueryResult is one nearest-neighbor hit. Distance is the index's raw
// distance metric; callers convert it to a similarity score.
type QueryResult struct {
	ID       string
	Distance float64
	Content  string
	Metadata map[string]any
}

// Index is the vector index contract. Unavailability is treated by
// callers as a soft failure, not a crash.
type Index interface {
	// Add upserts entries into the index.
	Add(ctx context.Context, entries []Entry) error

	// Query returns the n nearest entries to vector, optionally
	// constrained by metadata equality filters.
	Query(ctx context.Context, vector []float32, n int, where map[string]any) ([]QueryResult, error)

	// Delete removes entries by id.
	Delete(ctx context.Context, ids []string) error

	// Heartbeat probes index availability.
	Heartbeat(ctx context.Context) error
}
