package refine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalChunksRefined tracks chunks the decoder cleaned successfully.
	TotalChunksRefined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refine_chunks_total",
		Help: "The total number of chunks refined by the decoder.",
	})
	// TotalDecoderFailures tracks chunks skipped after a failed or
	// unusable decoder response.
	TotalDecoderFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refine_decoder_failures_total",
		Help: "The total number of chunks skipped because the decoder call failed.",
	})
	// TotalQADropped tracks chunks whose Q&A pairs were discarded on a
	// question/answer count mismatch.
	TotalQADropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refine_qa_dropped_total",
		Help: "The total number of chunks whose Q&A pairs were dropped on a count mismatch.",
	})
)
