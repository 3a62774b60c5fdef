package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for tests and local runs. Scoring:
// cosine for dense vectors, dot product for sparse, MaxSim for
// late-interaction.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	vectors map[string]VectorConfig
	points  map[uint64]Point
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

// EnsureCollection creates the collection if absent; with recreate it
// drops any existing points first.
func (s *MemoryStore) EnsureCollection(_ context.Context, name string, vectors []VectorConfig, recreate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; ok && !recreate {
		return nil
	}
	col := &memCollection{
		vectors: make(map[string]VectorConfig, len(vectors)),
		points:  make(map[uint64]Point),
	}
	for _, v := range vectors {
		col.vectors[v.Name] = v
	}
	s.collections[name] = col
	return nil
}

// CollectionExists reports whether name has been created.
func (s *MemoryStore) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

// Upsert stores points. A point with the same id keeps its vectors under
// names the new point does not carry; its payload is replaced.
func (s *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	for _, p := range points {
		for name := range p.Vectors {
			if _, declared := col.vectors[name]; !declared {
				return fmt.Errorf("collection %s has no vector %q", collection, name)
			}
		}

		merged := Point{ID: p.ID, Vectors: make(map[string]Embedding), Payload: p.Payload}
		if prev, ok := col.points[p.ID]; ok {
			for name, emb := range prev.Vectors {
				merged.Vectors[name] = emb
			}
		}
		for name, emb := range p.Vectors {
			merged.Vectors[name] = emb
		}
		col.points[p.ID] = merged
	}
	return nil
}

// Query scores every point under one named vector and returns the topK.
func (s *MemoryStore) Query(_ context.Context, collection, vectorName string, query Embedding, topK int) ([]Scored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if _, declared := col.vectors[vectorName]; !declared {
		return nil, fmt.Errorf("collection %s has no vector %q", collection, vectorName)
	}

	var hits []Scored
	for _, p := range col.points {
		emb, ok := p.Vectors[vectorName]
		if !ok {
			continue
		}
		hits = append(hits, Scored{ID: p.ID, Score: score(query, emb), Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// PointCount returns the number of points in a collection; tests use it.
func (s *MemoryStore) PointCount(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[collection]
	if !ok {
		return 0
	}
	return len(col.points)
}

func score(query, doc Embedding) float32 {
	switch query.Kind() {
	case Sparse:
		return sparseDot(query, doc)
	case Multi:
		return maxSim(query.Multi, doc.Multi)
	default:
		return cosine(query.Dense, doc.Dense)
	}
}

func cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func sparseDot(a, b Embedding) float32 {
	weights := make(map[uint32]float32, len(b.SparseIndices))
	for i, idx := range b.SparseIndices {
		weights[idx] = b.SparseValues[i]
	}
	var dot float32
	for i, idx := range a.SparseIndices {
		dot += a.SparseValues[i] * weights[idx]
	}
	return dot
}

// maxSim sums, over the query token vectors, the best dot product against
// any document token vector.
func maxSim(query, doc [][]float32) float32 {
	var total float32
	for _, q := range query {
		best := float32(math.Inf(-1))
		for _, d := range doc {
			var dot float32
			if len(q) == len(d) {
				for i := range q {
					dot += q[i] * d[i]
				}
			}
			if dot > best {
				best = dot
			}
		}
		if len(doc) > 0 {
			total += best
		}
	}
	return total
}
