// Package cache provides the two retrieval-side caches, backed by Redis.
// They are deliberately separate stores: the embedding cache is keyed
// purely by query text and is never invalidated by document mutation; the
// results cache is keyed by (query, options) and must be invalidated
// whenever any document's chunks change.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wareline/kbcore/internal/model"
)

const (
	embeddingPrefix  = "kb:embedding:"
	resultsPrefix    = "kb:results:"
	resultsGenKey    = "kb:results:generation"
	DefaultEmbedTTL  = 48 * time.Hour
	DefaultResultTTL = 12 * time.Hour
)

// EmbeddingCache maps normalized query text to its embedding vector.
type EmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEmbeddingCache creates a Redis-backed embedding cache.
func NewEmbeddingCache(client *redis.Client, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultEmbedTTL
	}
	return &EmbeddingCache{client: client, ttl: ttl}
}

// Get returns the cached vector for text, or model.ErrNotFound on a miss.
func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, error) {
	data, err := c.client.Get(ctx, embeddingPrefix+hashKey(text)).Bytes()
	if err == redis.Nil {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("embedding cache get: %w", err)
	}

	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, fmt.Errorf("embedding cache decode: %w", err)
	}
	return vec, nil
}

// Set stores the vector for text with the cache TTL.
func (c *EmbeddingCache) Set(ctx context.Context, text string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("embedding cache encode: %w", err)
	}
	if err := c.client.Set(ctx, embeddingPrefix+hashKey(text), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("embedding cache set: %w", err)
	}
	return nil
}

// ResultsCache maps a (query, search-options) key to a ranked result
// list. Invalidation bumps a generation counter, which orphans every
// previous entry in O(1); orphans expire via TTL.
type ResultsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultsCache creates a Redis-backed search results cache.
func NewResultsCache(client *redis.Client, ttl time.Duration) *ResultsCache {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &ResultsCache{client: client, ttl: ttl}
}

// Get returns cached results for key, or model.ErrNotFound on a miss.
func (c *ResultsCache) Get(ctx context.Context, key string) ([]model.SearchResult, error) {
	full, err := c.generationKey(ctx, key)
	if err != nil {
		return nil, err
	}

	data, err := c.client.Get(ctx, full).Bytes()
	if err == redis.Nil {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("results cache get: %w", err)
	}

	var results []model.SearchResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("results cache decode: %w", err)
	}
	return results, nil
}

// Set stores results for key with the cache TTL.
func (c *ResultsCache) Set(ctx context.Context, key string, results []model.SearchResult) error {
	full, err := c.generationKey(ctx, key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("results cache encode: %w", err)
	}
	if err := c.client.Set(ctx, full, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("results cache set: %w", err)
	}
	return nil
}

// Invalidate drops every cached result set. Called on any document or
// chunk mutation; stale cached answers referencing deleted chunks are a
// correctness bug, not a staleness nuisance.
func (c *ResultsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, resultsGenKey).Err(); err != nil {
		return fmt.Errorf("results cache invalidate: %w", err)
	}
	return nil
}

func (c *ResultsCache) generationKey(ctx context.Context, key string) (string, error) {
	gen, err := c.client.Get(ctx, resultsGenKey).Result()
	if err == redis.Nil {
		gen = "0"
	} else if err != nil {
		return "", fmt.Errorf("results cache generation: %w", err)
	}
	return resultsPrefix + gen + ":" + hashKey(key), nil
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
