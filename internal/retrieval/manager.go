// Package retrieval owns embedding generation and similarity search: it
// embeds chunks that lack vectors, keeps the vector index and the
// relational embedding flags in agreement, and answers ranked queries
// through a two-tier cache.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wareline/kbcore/internal/embedding"
	"github.com/wareline/kbcore/internal/model"
	"github.com/wareline/kbcore/internal/store"
	"github.com/wareline/kbcore/internal/vectorindex"
)

// ChunkSource is the slice of the relational store the manager needs.
type ChunkSource interface {
	Pending(ctx context.Context, limit int) ([]store.PendingChunk, error)
	MarkEmbedded(ctx context.Context, chunkID, embeddingID string) error
	EmbeddingCounts(ctx context.Context) (indexed, pending int, err error)
}

// EmbeddingCache caches query embeddings, keyed purely by text.
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, error)
	Set(ctx context.Context, text string, vec []float32) error
}

// ResultsCache caches ranked search results and supports whole-cache
// invalidation.
type ResultsCache interface {
	Get(ctx context.Context, key string) ([]model.SearchResult, error)
	Set(ctx context.Context, key string, results []model.SearchResult) error
	Invalidate(ctx context.Context) error
}

// Config tunes provider admission control and timeouts.
type Config struct {
	// RequestsPerSecond caps the embedding call rate. The waits between
	// calls are mandatory sequencing points, not optional backoff.
	RequestsPerSecond float64

	// CallTimeout bounds each remote embedding call so a hung provider
	// surfaces as a per-chunk failure instead of blocking forever.
	CallTimeout time.Duration

	// MaxInputChars truncates chunk content before embedding.
	MaxInputChars int
}

// DefaultConfig returns the standard retrieval configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2,
		CallTimeout:       30 * time.Second,
		MaxInputChars:     embedding.DefaultMaxInputChars,
	}
}

// Manager generates embeddings for pending chunks and serves similarity
// search.
type Manager struct {
	chunks   ChunkSource
	embedder embedding.Embedder
	index    vectorindex.Index
	embCache EmbeddingCache
	resCache ResultsCache
	limiter  *rate.Limiter
	cfg      Config
	log      *slog.Logger
}

// NewManager wires a retrieval manager.
func NewManager(chunks ChunkSource, embedder embedding.Embedder, index vectorindex.Index,
	embCache EmbeddingCache, resCache ResultsCache, cfg Config, log *slog.Logger) *Manager {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Manager{
		chunks:   chunks,
		embedder: embedder,
		index:    index,
		embCache: embCache,
		resCache: resCache,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cfg:      cfg,
		log:      log,
	}
}

// EmbedPending embeds up to batchSize chunks that lack vectors. Per-chunk
// failures are counted and skipped; the batch continues. The chunk's
// embedding flag is flipped only after the vector write succeeds, so the
// index never disagrees with the relational store in the dangerous
// direction. The loop is interruptible between chunks, never mid-chunk.
func (m *Manager) EmbedPending(ctx context.Context, batchSize int) (added, failed int, err error) {
	if err := m.index.Heartbeat(ctx); err != nil {
		m.log.Warn("vector index unavailable, skipping embedding pass", "error", err)
		return 0, 0, nil
	}

	pending, err := m.chunks.Pending(ctx, batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("load pending chunks: %w", err)
	}

	for _, chunk := range pending {
		select {
		case <-ctx.Done():
			return added, failed, ctx.Err()
		default:
		}

		if err := m.limiter.Wait(ctx); err != nil {
			return added, failed, err
		}

		if err := m.embedOne(ctx, chunk); err != nil {
			failed++
			m.log.Error("chunk embedding failed",
				"chunk_id", chunk.ID, "document_id", chunk.DocumentID, "error", err)
			continue
		}
		added++
	}

	if added > 0 || failed > 0 {
		m.log.Info("embedding pass complete", "added", added, "failed", failed)
	}
	return added, failed, nil
}

func (m *Manager) embedOne(ctx context.Context, chunk store.PendingChunk) error {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	input := embedding.TruncateInput(chunk.Content, m.cfg.MaxInputChars)
	vec, err := m.embedder.EmbedQuery(callCtx, input)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	entry := vectorindex.Entry{
		ID:      chunk.ID,
		Vector:  vec,
		Content: chunk.Content,
		Metadata: map[string]any{
			"document_id":   chunk.DocumentID,
			"chunk_index":   chunk.ChunkIndex,
			"section_title": chunk.SectionTitle,
			"section_path":  chunk.SectionPath,
			"category":      chunk.Category,
		},
	}
	if chunk.PageNumber != nil {
		entry.Metadata["page_number"] = *chunk.PageNumber
	}
	if err := m.index.Add(ctx, []vectorindex.Entry{entry}); err != nil {
		return fmt.Errorf("index add: %w", err)
	}

	// Vector is in the index; now it is safe to flip the flag.
	if err := m.chunks.MarkEmbedded(ctx, chunk.ID, chunk.ID); err != nil {
		return fmt.Errorf("mark embedded: %w", err)
	}
	return nil
}

// Search answers a free-text query with ranked chunk results. It consults
// the results cache first, then the embedding cache, and only then the
// remote provider; index unavailability degrades to zero results rather
// than an error.
func (m *Manager) Search(ctx context.Context, query string, limit int, filters model.SearchFilters) ([]model.SearchResult, error) {
	norm := NormalizeQuery(query)
	if norm == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	cacheKey := resultsKey(norm, limit, filters)
	if cached, err := m.resCache.Get(ctx, cacheKey); err == nil {
		return cached, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		m.log.Warn("results cache read failed", "error", err)
	}

	vec, err := m.queryEmbedding(ctx, norm)
	if err != nil {
		return nil, err
	}

	where := map[string]any{}
	if filters.DocumentID != "" {
		where["document_id"] = filters.DocumentID
	}
	if filters.Category != "" {
		where["category"] = filters.Category
	}

	hits, err := m.index.Query(ctx, vec, limit, where)
	if err != nil {
		m.log.Warn("vector index query failed, returning no results", "error", err)
		return []model.SearchResult{}, nil
	}

	results := make([]model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		r := model.SearchResult{
			ChunkID:    hit.ID,
			Content:    hit.Content,
			Similarity: similarityFromDistance(hit.Distance),
		}
		if v, ok := hit.Metadata["document_id"].(string); ok {
			r.DocumentID = v
		}
		if v, ok := hit.Metadata["section_title"].(string); ok {
			r.SectionTitle = v
		}
		if v, ok := hit.Metadata["section_path"].(string); ok {
			r.SectionPath = v
		}
		if v, ok := hit.Metadata["page_number"].(float64); ok {
			page := int(v)
			r.PageNumber = &page
		}
		results = append(results, r)
	}

	if err := m.resCache.Set(ctx, cacheKey, results); err != nil {
		m.log.Warn("results cache write failed", "error", err)
	}
	return results, nil
}

// queryEmbedding resolves the query vector through the embedding cache,
// calling the remote provider only on a miss.
func (m *Manager) queryEmbedding(ctx context.Context, norm string) ([]float32, error) {
	if vec, err := m.embCache.Get(ctx, norm); err == nil {
		return vec, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		m.log.Warn("embedding cache read failed", "error", err)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	vec, err := m.embedder.EmbedQuery(callCtx, norm)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if err := m.embCache.Set(ctx, norm, vec); err != nil {
		m.log.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// InvalidateResults drops all cached search results. Must be called on
// any document or chunk mutation.
func (m *Manager) InvalidateResults(ctx context.Context) error {
	return m.resCache.Invalidate(ctx)
}

// RemoveDocument deletes a document's vectors from the index and
// invalidates cached results. The cache is invalidated even when the
// index delete fails: stale results pointing at deleted chunks are a
// correctness bug, while a leftover vector is cleaned up on the next
// reindex.
func (m *Manager) RemoveDocument(ctx context.Context, chunkIDs []string) error {
	if err := m.resCache.Invalidate(ctx); err != nil {
		m.log.Warn("results cache invalidation failed", "error", err)
	}
	if len(chunkIDs) > 0 {
		if err := m.index.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("index delete: %w", err)
		}
	}
	return nil
}

// Status reports operational visibility: index availability and
// indexed-vs-pending chunk counts.
func (m *Manager) Status(ctx context.Context) model.PipelineStatus {
	status := model.PipelineStatus{}
	if err := m.index.Heartbeat(ctx); err == nil {
		status.Available = true
	}
	indexed, pending, err := m.chunks.EmbeddingCounts(ctx)
	if err != nil {
		m.log.Warn("embedding counts failed", "error", err)
		return status
	}
	status.IndexedChunks = indexed
	status.PendingChunks = pending
	return status
}

// NormalizeQuery lowercases and collapses whitespace so equivalent query
// spellings share cache entries.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// similarityFromDistance converts index distance to a [0,1] similarity.
func similarityFromDistance(distance float64) float64 {
	d := distance / 2
	if d > 1 {
		d = 1
	}
	s := 1 - d
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func resultsKey(norm string, limit int, filters model.SearchFilters) string {
	return fmt.Sprintf("%s|%d|%s|%s", norm, limit, filters.DocumentID, filters.Category)
}
