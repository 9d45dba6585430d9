package metrics

import "github.com/prometheus/client_golang/prometheus"

// Generation metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Generative model calls by mode and status",
		},
		[]string{"model", "mode", "status"}, // mode: buffered | stream
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Generative model call duration, until the last token for streams",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"model", "mode"},
	)

	GenerationPromptTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_prompt_tokens",
			Help:      "Estimated prompt size in tokens",
			Buckets:   prometheus.ExponentialBuckets(128, 2, 8),
		},
		[]string{"model"},
	)

	GenerationStreamTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_stream_fragments_total",
			Help:      "Text fragments forwarded to streaming clients",
		},
		[]string{"model"},
	)

	GenerationShortCircuitTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_short_circuit_total",
			Help:      "Answers served with the fallback message without a model call",
		},
	)
)

// Ingestion and store metrics.
var (
	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_documents_total",
			Help:      "Ingested documents by status",
		},
		[]string{"status"},
	)

	IngestChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_total",
			Help:      "Chunks written to the vector store",
		},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "End-to-end ingestion duration",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	StoreDeleteDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_delete_degraded_total",
			Help:      "Prefix deletions that could not be carried out fully",
		},
	)
)

var ragMetricsRegistered bool

// RegisterRAGMetrics registers generation, ingestion and store metrics. Must be called once from main.
func RegisterRAGMetrics() {
	if ragMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		GenerationRequestsTotal,
		GenerationDuration,
		GenerationPromptTokens,
		GenerationStreamTokensTotal,
		GenerationShortCircuitTotal,
		IngestDocumentsTotal,
		IngestChunksTotal,
		IngestDuration,
		StoreDeleteDegradedTotal,
	)
	ragMetricsRegistered = true
}
