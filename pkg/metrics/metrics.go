// Package metrics defines the Prometheus metric collectors used across the
// consistency service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the consistency service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SagasTotal        *prometheus.CounterVec
	SagaDuration      *prometheus.HistogramVec
	CompensationTotal *prometheus.CounterVec
	VectorWritesTotal *prometheus.CounterVec
	ChunksStoredTotal prometheus.Counter

	AuditRunsTotal        *prometheus.CounterVec
	OrphansDeletedTotal   prometheus.Counter
	ReprocessFlaggedTotal prometheus.Counter
	DocumentsSweptTotal   prometheus.Counter
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all collectors and registers them with reg. Tests pass a
// private registry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SagasTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunk_sagas_total",
				Help: "Total saga attempts by operation (store, delete) and outcome (committed, rolled_back).",
			},
			[]string{"operation", "status"},
		),
		SagaDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chunk_saga_duration_seconds",
				Help:    "Saga duration in seconds by operation.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		CompensationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunk_compensations_total",
				Help: "Compensating actions by operation and outcome (completed, failed).",
			},
			[]string{"operation", "outcome"},
		),
		VectorWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vector_writes_total",
				Help: "Vector store upserts by status (ok, error).",
			},
			[]string{"status"},
		),
		ChunksStoredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chunks_stored_total",
				Help: "Chunks committed to both stores.",
			},
		),
		AuditRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consistency_audits_total",
				Help: "Audit runs by result (consistent, drift, error).",
			},
			[]string{"result"},
		),
		OrphansDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "consistency_orphans_deleted_total",
				Help: "Orphaned vector records removed by repair.",
			},
		),
		ReprocessFlaggedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "consistency_reprocess_flagged_total",
				Help: "Chunks flagged needs_reprocessing by repair.",
			},
		),
		DocumentsSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "consistency_documents_swept_total",
				Help: "Documents examined by bulk sweeps.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SagasTotal,
		m.SagaDuration,
		m.CompensationTotal,
		m.VectorWritesTotal,
		m.ChunksStoredTotal,
		m.AuditRunsTotal,
		m.OrphansDeletedTotal,
		m.ReprocessFlaggedTotal,
		m.DocumentsSweptTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
