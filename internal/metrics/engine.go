package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion and conflict detection Prometheus metrics.
var (
	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manualindex",
			Name:      "ingest_documents_total",
			Help:      "Total number of document ingestions",
		},
		[]string{"classification", "status"},
	)

	IngestChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "manualindex",
			Name:      "ingest_chunks_total",
			Help:      "Total number of chunks stored across all ingestions",
		},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "manualindex",
			Name:      "ingest_duration_seconds",
			Help:      "Document ingestion duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	ConflictScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "manualindex",
			Name:      "conflict_scans_total",
			Help:      "Total number of conflict detection scans",
		},
	)

	ConflictsDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manualindex",
			Name:      "conflicts_detected_total",
			Help:      "Total conflicts detected, by kind",
		},
		[]string{"kind"},
	)

	SearchRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "manualindex",
			Name:      "search_requests_total",
			Help:      "Total number of similarity searches",
		},
	)

	IndexedVectors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "manualindex",
			Name:      "indexed_vectors",
			Help:      "Number of vectors currently held in the index",
		},
	)
)

var engineMetricsRegistered bool

// RegisterEngineMetrics registers ingestion, search and conflict metrics. Must be called once from main.
func RegisterEngineMetrics() {
	if engineMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestDocumentsTotal)
	prometheus.MustRegister(IngestChunksTotal)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(ConflictScansTotal)
	prometheus.MustRegister(ConflictsDetectedTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(IndexedVectors)
	engineMetricsRegistered = true
}
