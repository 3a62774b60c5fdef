package encode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dia-upm/muia-rag/internal/index"
)

// Embedder turns texts into vectors for one encoder.
type Embedder interface {
	Embed(ctx context.Context, enc Encoder, texts []string) ([]index.Embedding, error)
}

// HTTPEmbedder talks to the embedding services over HTTP. Requests for
// an encoder are routed to the service class that hosts it.
type HTTPEmbedder struct {
	cpuURL string
	gpuURL string
	client *http.Client
}

// NewHTTPEmbedder builds an embedder over the cpu and gpu service URLs.
func NewHTTPEmbedder(cpuURL, gpuURL string) *HTTPEmbedder {
	return &HTTPEmbedder{
		cpuURL: strings.TrimRight(cpuURL, "/"),
		gpuURL: strings.TrimRight(gpuURL, "/"),
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

type embedRequest struct {
	ModelName string   `json:"model_name"`
	Texts     []string `json:"texts"`
}

type embedVector struct {
	Dense         []float32   `json:"dense,omitempty"`
	SparseIndices []uint32    `json:"sparse_indices,omitempty"`
	SparseValues  []float32   `json:"sparse_values,omitempty"`
	Multi         [][]float32 `json:"multi,omitempty"`
}

type embedResponse struct {
	Embeddings []embedVector `json:"embeddings"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, enc Encoder, texts []string) ([]index.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	base := e.cpuURL
	if enc.Service == GPUService {
		base = e.gpuURL
	}

	body, err := json.Marshal(embedRequest{ModelName: enc.ModelName, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(out.Embeddings), len(texts))
	}

	embeddings := make([]index.Embedding, len(out.Embeddings))
	for i, v := range out.Embeddings {
		embeddings[i] = index.Embedding{
			Dense:         v.Dense,
			SparseIndices: v.SparseIndices,
			SparseValues:  v.SparseValues,
			Multi:         v.Multi,
		}
	}
	return embeddings, nil
}

// FakeEmbedder derives vectors from text content alone, so equal texts
// always embed equally. Used for local runs and tests.
type FakeEmbedder struct{}

func (FakeEmbedder) Embed(ctx context.Context, enc Encoder, texts []string) ([]index.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]index.Embedding, len(texts))
	for i, text := range texts {
		switch enc.Kind {
		case index.Sparse:
			out[i] = fakeSparse(text)
		case index.Multi:
			out[i] = fakeMulti(text, int(enc.VectorSize))
		default:
			out[i] = index.Embedding{Dense: fakeDense(text, int(enc.VectorSize))}
		}
	}
	return out, nil
}

func fakeDense(text string, size int) []float32 {
	if size == 0 {
		size = 8
	}
	vec := make([]float32, size)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	for j := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[j] = float32(seed%1000)/1000 - 0.5
	}
	return vec
}

func fakeSparse(text string) index.Embedding {
	counts := make(map[uint32]float32)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		counts[h.Sum32()%100000]++
	}

	indices := make([]uint32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	emb := index.Embedding{}
	for _, idx := range indices {
		emb.SparseIndices = append(emb.SparseIndices, idx)
		emb.SparseValues = append(emb.SparseValues, counts[idx])
	}
	return emb
}

func fakeMulti(text string, size int) index.Embedding {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		words = []string{""}
	}
	if len(words) > 8 {
		words = words[:8]
	}

	multi := make([][]float32, len(words))
	for i, word := range words {
		multi[i] = fakeDense(word, size)
	}
	return index.Embedding{Multi: multi}
}
