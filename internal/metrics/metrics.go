// Package metrics exposes Prometheus instrumentation for the ingest and
// tiling pipelines.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IngestsTotal counts ingest requests by outcome (ok, error).
	IngestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tilepyramid_ingests_total",
		Help: "Number of pyramid ingest requests by outcome.",
	}, []string{"outcome"})

	// IngestDuration observes the synchronous ingest phase.
	IngestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilepyramid_ingest_duration_seconds",
		Help:    "Duration of the synchronous ingest phase.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// TilingJobsTotal counts tiling jobs by outcome (done, failed, lost).
	TilingJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tilepyramid_tiling_jobs_total",
		Help: "Number of tiling jobs by outcome.",
	}, []string{"outcome"})

	// TilesGenerated counts tiles encoded, compressed and persisted.
	TilesGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tilepyramid_tiles_generated_total",
		Help: "Number of tiles generated across all pyramids.",
	})
)

func init() {
	prometheus.MustRegister(IngestsTotal, IngestDuration, TilingJobsTotal, TilesGenerated)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
