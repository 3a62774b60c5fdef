// Package index abstracts the vector store holding encoded chunks.
package index

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned by operations against a collection
// that has not been created.
var ErrCollectionNotFound = errors.New("collection not found")

// VectorKind distinguishes the vector layouts the encoders produce.
type VectorKind int

const (
	// Dense is a single fixed-width vector.
	Dense VectorKind = iota
	// Sparse is an index/value pairing over a large vocabulary.
	Sparse
	// Multi is a late-interaction set of per-token vectors.
	Multi
)

// Embedding is one encoded text under exactly one layout; the fields for
// the other layouts stay nil.
type Embedding struct {
	Dense         []float32
	SparseIndices []uint32
	SparseValues  []float32
	Multi         [][]float32
}

// Kind reports the layout of a populated embedding.
func (e Embedding) Kind() VectorKind {
	switch {
	case len(e.SparseIndices) > 0 || len(e.SparseValues) > 0:
		return Sparse
	case len(e.Multi) > 0:
		return Multi
	default:
		return Dense
	}
}

// VectorConfig declares one named vector of a collection.
type VectorConfig struct {
	Name string
	Kind VectorKind
	// Size is the vector width for Dense and Multi layouts.
	Size uint64
	// IDFWeighted enables inverse-document-frequency weighting on a
	// sparse vector.
	IDFWeighted bool
}

// Point is one stored record: a deterministic integer id, one embedding
// per encoder, and the record payload.
type Point struct {
	ID      uint64
	Vectors map[string]Embedding
	Payload map[string]any
}

// Scored is one retrieval hit.
type Scored struct {
	ID      uint64
	Score   float32
	Payload map[string]any
}

// Store is the vector store boundary. Collections are created explicitly;
// upserting or querying a missing collection is an error, never an
// implicit create.
//
// Upsert merges: a point written with a subset of the collection's named
// vectors keeps the vectors it already holds under other names, so each
// encoder can fill its own slot of a shared point id. The payload is
// replaced.
type Store interface {
	EnsureCollection(ctx context.Context, name string, vectors []VectorConfig, recreate bool) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	Upsert(ctx context.Context, collection string, points []Point) error
	Query(ctx context.Context, collection, vectorName string, query Embedding, topK int) ([]Scored, error)
	Close() error
}
