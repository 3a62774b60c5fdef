// Package crawler implements the breadth-first site crawl through a
// markdown reader proxy.
package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalPagesFetched tracks pages successfully fetched and cleaned.
	TotalPagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_fetched_total",
		Help: "The total number of pages successfully fetched through the reader proxy.",
	})
	// TotalPagesSkipped tracks pages skipped after a soft fetch miss.
	TotalPagesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_skipped_total",
		Help: "The total number of pages skipped because the reader returned no usable content.",
	})
	// TotalFetchErrors tracks reader requests that failed outright.
	TotalFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_fetch_errors_total",
		Help: "The total number of failed reader proxy requests.",
	})
	// TotalLinksDiscovered tracks in-scope links found on fetched pages.
	TotalLinksDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_links_discovered_total",
		Help: "The total number of in-scope links extracted from fetched pages.",
	})
)
