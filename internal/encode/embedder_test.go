package encode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dia-upm/muia-rag/internal/index"
)

func TestFakeEmbedderDeterministic(t *testing.T) {
	ctx := context.Background()
	fake := FakeEmbedder{}

	for _, name := range []string{"bm25", "splade", "colbert", "bge_small"} {
		enc, err := Get(name)
		require.NoError(t, err)

		first, err := fake.Embed(ctx, enc, []string{"hola mundo", "master in artificial intelligence"})
		require.NoError(t, err)
		second, err := fake.Embed(ctx, enc, []string{"hola mundo", "master in artificial intelligence"})
		require.NoError(t, err)

		require.Len(t, first, 2)
		assert.Equal(t, first, second, "encoder %s must embed deterministically", name)
		assert.Equal(t, enc.Kind, first[0].Kind())
	}
}

func TestFakeEmbedderShapes(t *testing.T) {
	ctx := context.Background()
	fake := FakeEmbedder{}

	dense, err := fake.Embed(ctx, registry["bge_small"], []string{"texto"})
	require.NoError(t, err)
	assert.Len(t, dense[0].Dense, 384)

	multi, err := fake.Embed(ctx, registry["colbert"], []string{"dos palabras"})
	require.NoError(t, err)
	require.Len(t, multi[0].Multi, 2)
	assert.Len(t, multi[0].Multi[0], 128)

	sparse, err := fake.Embed(ctx, registry["bm25"], []string{"uno dos dos"})
	require.NoError(t, err)
	assert.Len(t, sparse[0].SparseIndices, 2)
	assert.Len(t, sparse[0].SparseValues, 2)
	assert.True(t, sort.SliceIsSorted(sparse[0].SparseIndices, func(i, j int) bool {
		return sparse[0].SparseIndices[i] < sparse[0].SparseIndices[j]
	}), "sparse indices must come out in a stable order")
}

func TestHTTPEmbedderRoutesByService(t *testing.T) {
	var cpuModel, gpuModel string

	cpu := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		cpuModel = req.ModelName
		resp := embedResponse{Embeddings: make([]embedVector, len(req.Texts))}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = embedVector{SparseIndices: []uint32{1}, SparseValues: []float32{2}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer cpu.Close()

	gpu := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gpuModel = req.ModelName
		resp := embedResponse{Embeddings: make([]embedVector, len(req.Texts))}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = embedVector{Dense: []float32{0.5}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer gpu.Close()

	e := NewHTTPEmbedder(cpu.URL, gpu.URL)
	ctx := context.Background()

	out, err := e.Embed(ctx, registry["bm25"], []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, index.Sparse, out[0].Kind())
	assert.Equal(t, "Qdrant/bm25", cpuModel)
	assert.Empty(t, gpuModel)

	out, err = e.Embed(ctx, registry["bge_small"], []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, index.Dense, out[0].Kind())
	assert.Equal(t, "BAAI/bge-small-en-v1.5", gpuModel)
}

func TestHTTPEmbedderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, srv.URL)
	_, err := e.Embed(context.Background(), registry["bm25"], []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestHTTPEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(embedResponse{
			Embeddings: []embedVector{{Dense: []float32{1}}},
		}))
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, srv.URL)
	_, err := e.Embed(context.Background(), registry["bge_small"], []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 vectors for 2 texts")
}

func TestHTTPEmbedderEmptyInput(t *testing.T) {
	e := NewHTTPEmbedder("http://unreachable.invalid", "http://unreachable.invalid")
	out, err := e.Embed(context.Background(), registry["bm25"], nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
