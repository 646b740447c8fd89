package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	schedulerEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brewit",
			Subsystem: "scheduler",
			Name:      "enqueued_total",
			Help:      "Total number of job executions enqueued by the poller",
		},
	)

	schedulerDueJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "brewit",
			Subsystem: "scheduler",
			Name:      "due_jobs",
			Help:      "Number of jobs due at the last poll",
		},
	)

	schedulerCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brewit",
			Subsystem: "scheduler",
			Name:      "completed_total",
			Help:      "Total number of jobs that reached their end time",
		},
	)

	executorExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brewit",
			Subsystem: "executor",
			Name:      "executions_total",
			Help:      "Total number of job executions by status",
		},
		[]string{"status"},
	)

	executorExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "brewit",
			Subsystem: "executor",
			Name:      "execution_duration_seconds",
			Help:      "Duration of job executions including inclusion wait",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	executorLastExecutionTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "brewit",
			Subsystem: "executor",
			Name:      "last_execution_timestamp",
			Help:      "Timestamp of the last processed execution",
		},
	)
)

type PromSchedulerMetrics struct{}

func NewSchedulerMetrics() *PromSchedulerMetrics {
	return &PromSchedulerMetrics{}
}

func (PromSchedulerMetrics) RecordEnqueued(count int) {
	schedulerEnqueuedTotal.Add(float64(count))
}

func (PromSchedulerMetrics) SetDueJobs(count float64) {
	schedulerDueJobs.Set(count)
}

func (PromSchedulerMetrics) RecordCompleted() {
	schedulerCompletedTotal.Inc()
}

func (PromSchedulerMetrics) RecordExecution(status string, duration time.Duration) {
	executorExecutionsTotal.WithLabelValues(status).Inc()
	executorExecutionDuration.Observe(duration.Seconds())
	executorLastExecutionTimestamp.SetToCurrentTime()
}
