package vectorindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chromaStub fakes the subset of the Chroma REST API the client uses.
type chromaStub struct {
	upserts   []map[string]any
	deletes   []map[string]any
	lastQuery map[string]any
	queryResp map[string]any
	down      bool
}

func (s *chromaStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		if s.down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]int64{"nanosecond heartbeat": 1})
	})
	mux.HandleFunc("/api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "kb_chunks" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "col-123"})
	})
	mux.HandleFunc("/api/v1/collections/col-123/upsert", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		s.upserts = append(s.upserts, body)
		w.Write([]byte("true"))
	})
	mux.HandleFunc("/api/v1/collections/col-123/query", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		s.lastQuery = body
		json.NewEncoder(w).Encode(s.queryResp)
	})
	mux.HandleFunc("/api/v1/collections/col-123/delete", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		s.deletes = append(s.deletes, body)
		w.Write([]byte("[]"))
	})
	return mux
}

func newStubIndex(t *testing.T) (*chromaStub, *ChromaIndex) {
	t.Helper()
	stub := &chromaStub{}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return stub, NewChromaIndex(Config{URL: srv.URL, Collection: "kb_chunks"})
}

func TestChromaIndex_AddUpsertsParallelArrays(t *testing.T) {
	stub, idx := newStubIndex(t)

	entries := []Entry{
		{ID: "c1", Vector: []float32{0.1, 0.2}, Content: "first", Metadata: map[string]any{"document_id": "d1"}},
		{ID: "c2", Vector: []float32{0.3, 0.4}, Content: "second", Metadata: map[string]any{"document_id": "d1"}},
	}
	require.NoError(t, idx.Add(context.Background(), entries))
	require.Len(t, stub.upserts, 1)

	body := stub.upserts[0]
	ids := body["ids"].([]any)
	docs := body["documents"].([]any)
	require.Len(t, ids, 2)
	assert.Equal(t, "c1", ids[0])
	assert.Equal(t, "c2", ids[1])
	assert.Equal(t, "first", docs[0])
	assert.Equal(t, "second", docs[1])
}

func TestChromaIndex_AddEmptyIsNoop(t *testing.T) {
	stub, idx := newStubIndex(t)
	require.NoError(t, idx.Add(context.Background(), nil))
	assert.Empty(t, stub.upserts)
}

func TestChromaIndex_QueryShapesNestedResponse(t *testing.T) {
	stub, idx := newStubIndex(t)
	stub.queryResp = map[string]any{
		"ids":       [][]string{{"c1", "c2"}},
		"distances": [][]float64{{0.12, 0.48}},
		"documents": [][]string{{"alpha", "beta"}},
		"metadatas": [][]map[string]any{{{"document_id": "d1"}, {"document_id": "d2"}}},
	}

	hits, err := idx.Query(context.Background(), []float32{0.5, 0.5}, 2, map[string]any{"category": "manuals"})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "c1", hits[0].ID)
	assert.Equal(t, 0.12, hits[0].Distance)
	assert.Equal(t, "alpha", hits[0].Content)
	assert.Equal(t, "d1", hits[0].Metadata["document_id"])
	assert.Equal(t, "c2", hits[1].ID)

	// Request carried the filter and limit through.
	where := stub.lastQuery["where"].(map[string]any)
	assert.Equal(t, "manuals", where["category"])
	assert.Equal(t, float64(2), stub.lastQuery["n_results"])
}

func TestChromaIndex_QueryWithoutFilterOmitsWhere(t *testing.T) {
	stub, idx := newStubIndex(t)
	stub.queryResp = map[string]any{"ids": [][]string{{}}}

	_, err := idx.Query(context.Background(), []float32{0.5}, 5, nil)
	require.NoError(t, err)
	_, present := stub.lastQuery["where"]
	assert.False(t, present, "empty filter must not produce a where clause")
}

func TestChromaIndex_Delete(t *testing.T) {
	stub, idx := newStubIndex(t)

	require.NoError(t, idx.Delete(context.Background(), []string{"c1", "c2"}))
	require.Len(t, stub.deletes, 1)
	ids := stub.deletes[0]["ids"].([]any)
	assert.Len(t, ids, 2)

	require.NoError(t, idx.Delete(context.Background(), nil))
	assert.Len(t, stub.deletes, 1, "empty delete must not hit the server")
}

func TestChromaIndex_Heartbeat(t *testing.T) {
	stub, idx := newStubIndex(t)
	require.NoError(t, idx.Heartbeat(context.Background()))

	stub.down = true
	assert.Error(t, idx.Heartbeat(context.Background()))
}

func TestChromaIndex_CollectionResolvedOnce(t *testing.T) {
	stub, idx := newStubIndex(t)
	stub.queryResp = map[string]any{"ids": [][]string{{}}}

	// Two operations share the cached collection id; if resolution
	// re-ran with a changed name the stub would reject it.
	require.NoError(t, idx.Add(context.Background(), []Entry{{ID: "c1", Vector: []float32{1}}}))
	_, err := idx.Query(context.Background(), []float32{1}, 1, nil)
	require.NoError(t, err)
}
