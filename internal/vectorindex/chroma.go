package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

var _ Index = (*ChromaIndex)(nil)

// ChromaIndex is a minimal REST client to a Chroma server. The collection
// is created on first use if missing.
type ChromaIndex struct {
	url        string
	collection string
	client     *http.Client

	mu           sync.Mutex
	collectionID string
}

// Config holds Chroma connection settings.
type Config struct {
	URL        string
	Collection string
	Timeout    time.Duration
}

// NewChromaIndex creates a Chroma-backed vector index client.
func NewChromaIndex(cfg Config) *ChromaIndex {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "kb_chunks"
	}
	return &ChromaIndex{
		url:        cfg.URL,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// ensureCollection resolves (creating if needed) the collection id.
func (c *ChromaIndex) ensureCollection(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	body := map[string]any{
		"name":          c.collection,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, c.url+"/api/v1/collections", body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("collection %q: empty id in response", c.collection)
	}
	c.collectionID = resp.ID
	return c.collectionID, nil
}

// Add upserts entries into the collection.
func (c *ChromaIndex) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	id, err := c.ensureCollection(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	documents := make([]string, len(entries))
	metadatas := make([]map[string]any, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		vectors[i] = e.Vector
		documents[i] = e.Content
		metadatas[i] = e.Metadata
	}

	body := map[string]any{
		"ids":        ids,
		"embeddings": vectors,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	return c.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections/%s/upsert", c.url, id), body, nil)
}

// Query returns the n nearest entries, optionally filtered by metadata.
func (c *ChromaIndex) Query(ctx context.Context, vector []float32, n int, where map[string]any) ([]QueryResult, error) {
	if n <= 0 {
		n = 10
	}
	id, err := c.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        n,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if len(where) > 0 {
		body["where"] = where
	}

	var resp struct {
		IDs       [][]string         `json:"ids"`
		Distances [][]float64        `json:"distances"`
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
	}
	if err := c.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections/%s/query", c.url, id), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	results := make([]QueryResult, 0, len(resp.IDs[0]))
	for i, hitID := range resp.IDs[0] {
		r := QueryResult{ID: hitID}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Distance = resp.Distances[0][i]
		}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			r.Content = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

// Delete removes entries by id.
func (c *ChromaIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	id, err := c.ensureCollection(ctx)
	if err != nil {
		return err
	}
	return c.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections/%s/delete", c.url, id), map[string]any{"ids": ids}, nil)
}

// Heartbeat probes the server.
func (c *ChromaIndex) Heartbeat(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/api/v1/heartbeat", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("heartbeat failed: %s", resp.Status)
	}
	return nil
}

func (c *ChromaIndex) postJSON(ctx context.Context, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("vector index POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
