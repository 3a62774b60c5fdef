package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	totalSnapshotsBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muia_rag_snapshots_built_total",
		Help: "Snapshots committed by fresh pipeline runs.",
	})

	totalSnapshotsReused = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muia_rag_snapshots_reused_total",
		Help: "Runs that resolved to an existing snapshot instead of crawling.",
	})
)
