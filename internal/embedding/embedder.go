// Package embedding generates vector embeddings through a remote,
// rate-limited provider.
package embedding

import "context"

// Embedder generates text embeddings.
type Embedder interface {
	// Embed generates embeddings for multiple texts, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension size.
	Dimensions() int

	// Close releases resources held by the embedder.
	Close() error
}

// DefaultMaxInputChars is the conservative per-request input ceiling.
// Chunk content is truncated to this before being sent to the provider.
const DefaultMaxInputChars = 8000

// TruncateInput clips text to the provider's input limit on a rune
// boundary.
func TruncateInput(text string, limit int) string {
	if limit <= 0 {
		limit = DefaultMaxInputChars
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
