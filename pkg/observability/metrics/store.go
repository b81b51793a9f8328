// Package metrics provides Prometheus metrics for document store operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	// storeOperationDuration tracks store call duration in seconds.
	// Labels: collection, operation, outcome
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vbengine_store_operation_duration_seconds",
			Help:    "Document store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection", "operation", "outcome"},
	)

	// storeOperationsTotal counts store calls.
	// Labels: collection, operation, outcome
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vbengine_store_operations_total",
			Help: "Total number of document store operations",
		},
		[]string{"collection", "operation", "outcome"},
	)

	// writeOpsTotal counts planned batch operations per kind.
	// Labels: collection, kind
	writeOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vbengine_write_ops_total",
			Help: "Total number of planned write operations by kind",
		},
		[]string{"collection", "kind"},
	)

	// sequenceIssuedTotal counts values handed out per sequence.
	// Labels: sequence
	sequenceIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vbengine_sequence_values_issued_total",
			Help: "Total number of sequence values issued",
		},
		[]string{"sequence"},
	)
)

// RecordStoreOperation records the duration and outcome of one store call.
func RecordStoreOperation(collection, operation string, err error, duration time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	storeOperationDuration.WithLabelValues(collection, operation, outcome).Observe(duration.Seconds())
	storeOperationsTotal.WithLabelValues(collection, operation, outcome).Inc()
}

// RecordWriteOp counts one planned write operation.
func RecordWriteOp(collection, kind string) {
	writeOpsTotal.WithLabelValues(collection, kind).Inc()
}

// RecordSequenceIssued counts one issued sequence value.
func RecordSequenceIssued(sequence string) {
	sequenceIssuedTotal.WithLabelValues(sequence).Inc()
}
