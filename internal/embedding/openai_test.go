package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateInput(t *testing.T) {
	assert.Equal(t, "short", TruncateInput("short", 100))
	assert.Equal(t, "abc", TruncateInput("abcdef", 3))
	// Rune boundary, not byte boundary.
	assert.Equal(t, "hé", TruncateInput("héllo", 2))
	// Non-positive limit falls back to the default.
	long := strings.Repeat("x", DefaultMaxInputChars+10)
	assert.Len(t, TruncateInput(long, 0), DefaultMaxInputChars)
}

func TestOpenAIEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "", "")
	assert.Error(t, err)
}

func TestOpenAIEmbedder_Dimensions(t *testing.T) {
	e, err := NewOpenAIEmbedder("key", "text-embedding-3-large", "")
	require.NoError(t, err)
	assert.Equal(t, 3072, e.Dimensions())

	e, err = NewOpenAIEmbedder("key", "custom-model", "")
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimensions())
}

func TestOpenAIEmbedder_EmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 2)

		// Results intentionally out of order.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0.2}},
				{"index": 0, "embedding": []float32{0.1}},
			},
		})
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("test-key", "text-embedding-3-small", srv.URL)
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1}, vecs[0])
	assert.Equal(t, []float32{0.2}, vecs[1])
}

func TestOpenAIEmbedder_APIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limit exceeded", "type": "rate_limit", "code": "429"},
		})
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("test-key", "", srv.URL)
	require.NoError(t, err)

	_, err = e.EmbedQuery(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	e, err := NewOpenAIEmbedder("test-key", "", "http://unused")
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
