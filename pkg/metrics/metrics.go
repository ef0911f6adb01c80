package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ClassificationChunksTotal *prometheus.CounterVec
	ExtractionsTotal          *prometheus.CounterVec
	ExtractionDuration        *prometheus.HistogramVec
	JobsFinishedTotal         *prometheus.CounterVec
	URLsDiscoveredTotal       prometheus.Counter
)

func Init() {
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ClassificationChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classification_chunks_total",
			Help: "Total number of classification chunk outcomes.",
		},
		[]string{"outcome"}, // outcome: completed, failed
	)

	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractions_total",
			Help: "Total number of per-URL extraction attempts.",
		},
		[]string{"method", "outcome"}, // outcome: success, skipped, failure
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_duration_seconds",
			Help:    "Duration of single-URL extraction cascades.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		},
		[]string{"method"},
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_finished_total",
			Help: "Total number of jobs reaching a terminal status.",
		},
		[]string{"status"},
	)

	URLsDiscoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "urls_discovered_total",
			Help: "Total number of candidate URLs surviving sitemap pre-filters.",
		},
	)
}
