package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess        = "success"
	OutcomeFailed         = "failed"
	OutcomePartialFailure = "partial_failure"
	OutcomeInvalid        = "invalid"
)

var (
	investOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brewit",
			Subsystem: "invest",
			Name:      "operations_total",
			Help:      "Total number of orchestration operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	investOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "brewit",
			Subsystem: "invest",
			Name:      "operation_duration_seconds",
			Help:      "Duration of orchestration operations",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)
)

type PromInvestMetrics struct{}

func NewInvestMetrics() *PromInvestMetrics {
	return &PromInvestMetrics{}
}

func (PromInvestMetrics) RecordOperation(operation, outcome string, duration time.Duration) {
	investOperationsTotal.WithLabelValues(operation, outcome).Inc()
	investOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
