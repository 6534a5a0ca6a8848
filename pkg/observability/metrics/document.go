package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels recorded for document operations.
const (
	OutcomeSuccess     = "success"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
)

var (
	// documentOperationDuration tracks document store operation latency in seconds.
	// Labels: backend, collection, operation
	documentOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "document_operation_duration_seconds",
			Help:    "Document store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "collection", "operation"},
	)

	// documentOperationsTotal counts document store operations by outcome.
	// Labels: backend, collection, operation, outcome
	documentOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_operations_total",
			Help: "Total number of document store operations",
		},
		[]string{"backend", "collection", "operation", "outcome"},
	)

	// documentsAffectedTotal counts documents inserted, modified or deleted.
	// Labels: backend, collection, operation
	documentsAffectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documents_affected_total",
			Help: "Total number of documents inserted, modified or deleted",
		},
		[]string{"backend", "collection", "operation"},
	)

	// walkthroughStepsTotal counts walkthrough steps by outcome.
	// Labels: step, outcome
	walkthroughStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walkthrough_steps_total",
			Help: "Total number of walkthrough steps executed",
		},
		[]string{"step", "outcome"},
	)
)

// RecordDocumentOperation records latency and outcome of one document store call.
func RecordDocumentOperation(backend, collection, operation, outcome string, duration time.Duration) {
	documentOperationDuration.WithLabelValues(backend, collection, operation).Observe(duration.Seconds())
	documentOperationsTotal.WithLabelValues(backend, collection, operation, outcome).Inc()
}

// RecordDocumentsAffected adds n to the affected-documents counter. Non-positive n is ignored.
func RecordDocumentsAffected(backend, collection, operation string, n int64) {
	if n <= 0 {
		return
	}
	documentsAffectedTotal.WithLabelValues(backend, collection, operation).Add(float64(n))
}

// RecordWalkthroughStep records the outcome of a walkthrough step.
func RecordWalkthroughStep(step, outcome string) {
	walkthroughStepsTotal.WithLabelValues(step, outcome).Inc()
}
