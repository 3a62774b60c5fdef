package encode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	totalPointsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muia_rag_points_upserted_total",
		Help: "Points written to the vector index, by variant and encoder.",
	}, []string{"variant", "encoder"})

	totalBatchesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muia_rag_encode_batches_total",
		Help: "Encode batches dispatched, by variant and encoder.",
	}, []string{"variant", "encoder"})

	totalEncodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muia_rag_encode_failures_total",
		Help: "Failed embed or upsert calls, by variant and encoder.",
	}, []string{"variant", "encoder"})
)
