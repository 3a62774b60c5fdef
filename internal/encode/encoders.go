// Package encode post-processes snapshot variants, fans encode batches
// out across the encoder fleet, and upserts the vectors.
package encode

import (
	"fmt"
	"sort"

	"github.com/dia-upm/muia-rag/internal/index"
)

// ServiceClass picks which embedding service hosts an encoder.
type ServiceClass string

const (
	// CPUService hosts the cheap lexical encoders.
	CPUService ServiceClass = "cpu"
	// GPUService hosts the neural encoders.
	GPUService ServiceClass = "gpu"
)

// Encoder describes one embedding model.
type Encoder struct {
	// Name is the named-vector key in every collection.
	Name      string
	ModelName string
	Kind      index.VectorKind
	Service   ServiceClass
	// VectorSize is the width for dense and late-interaction vectors.
	VectorSize uint64
	// MaxInputTokens is the model's recommended input budget.
	MaxInputTokens int
	// IDFWeighted applies to sparse encoders.
	IDFWeighted bool
}

// registry holds the encoder fleet keyed by name.
var registry = map[string]Encoder{
	"bm25": {
		Name:           "bm25",
		ModelName:      "Qdrant/bm25",
		Kind:           index.Sparse,
		Service:        CPUService,
		MaxInputTokens: 8192,
		IDFWeighted:    true,
	},
	"splade": {
		Name:           "splade",
		ModelName:      "prithivida/Splade_PP_en_v1",
		Kind:           index.Sparse,
		Service:        GPUService,
		MaxInputTokens: 512,
	},
	"colbert": {
		Name:           "colbert",
		ModelName:      "colbert-ir/colbertv2.0",
		Kind:           index.Multi,
		Service:        GPUService,
		VectorSize:     128,
		MaxInputTokens: 256,
	},
	"bge_small": {
		Name:           "bge_small",
		ModelName:      "BAAI/bge-small-en-v1.5",
		Kind:           index.Dense,
		Service:        GPUService,
		VectorSize:     384,
		MaxInputTokens: 8192,
	},
}

// Get looks an encoder up by name.
func Get(name string) (Encoder, error) {
	enc, ok := registry[name]
	if !ok {
		return Encoder{}, fmt.Errorf("unknown encoder %q", name)
	}
	return enc, nil
}

// All returns the fleet sorted by name.
func All() []Encoder {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]Encoder, 0, len(names))
	for _, n := range names {
		out = append(out, registry[n])
	}
	return out
}

// SmallestInputBudget is the tightest MaxInputTokens across the fleet;
// the post-processor sub-chunks to this size so every encoder sees whole
// chunks.
func SmallestInputBudget() int {
	budget := 0
	for _, enc := range registry {
		if budget == 0 || enc.MaxInputTokens < budget {
			budget = enc.MaxInputTokens
		}
	}
	return budget
}

// VectorConfigs declares the named vectors every variant collection
// carries: one per encoder in the fleet.
func VectorConfigs() []index.VectorConfig {
	encoders := All()
	out := make([]index.VectorConfig, 0, len(encoders))
	for _, enc := range encoders {
		out = append(out, index.VectorConfig{
			Name:        enc.Name,
			Kind:        enc.Kind,
			Size:        enc.VectorSize,
			IDFWeighted: enc.IDFWeighted,
		})
	}
	return out
}
