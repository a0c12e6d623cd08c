// Package metrics provides Prometheus metrics for the estimator service
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reference data metrics
	TableLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbam_reference_table_loads_total",
			Help: "Total number of reference table loads by outcome",
		},
		[]string{"table", "outcome"},
	)

	TableEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cbam_reference_table_entries",
			Help: "Number of entries in the most recently loaded table",
		},
		[]string{"table"},
	)

	// Extraction metrics
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbam_extractions_total",
			Help: "Total number of image extraction calls by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cbam_extraction_duration_seconds",
			Help:    "Time taken by a vision model call",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"backend"},
	)

	// Classification metrics
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbam_material_resolutions_total",
			Help: "Material resolutions by the step that produced the category",
		},
		[]string{"step"},
	)

	CategoryFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cbam_category_fallbacks_total",
			Help: "Tax computations for a category missing from the reference table",
		},
	)

	// Report metrics
	ReportsBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbam_reports_built_total",
			Help: "Total number of XLSX reports generated",
		},
		[]string{"outcome"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbam_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cbam_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cbam_sessions_active",
			Help: "Number of live login sessions",
		},
	)
)

// RecordTableLoad records a reference table load.
func RecordTableLoad(table, outcome string, entries int) {
	TableLoadsTotal.WithLabelValues(table, outcome).Inc()
	TableEntries.WithLabelValues(table).Set(float64(entries))
}

// RecordExtraction records a vision model call.
func RecordExtraction(backend, outcome string, duration time.Duration) {
	ExtractionsTotal.WithLabelValues(backend, outcome).Inc()
	ExtractionDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, route, code string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
