package metrics

import "time"

// InvestMetrics records orchestration outcomes of the wallet API.
type InvestMetrics interface {
	RecordOperation(operation, outcome string, duration time.Duration)
}

// SchedulerMetrics records poller and executor activity.
type SchedulerMetrics interface {
	RecordEnqueued(count int)
	SetDueJobs(count float64)
	RecordCompleted()
	RecordExecution(status string, duration time.Duration)
}

type NilInvestMetrics struct{}

func (NilInvestMetrics) RecordOperation(string, string, time.Duration) {}

type NilSchedulerMetrics struct{}

func (NilSchedulerMetrics) RecordEnqueued(int)                     {}
func (NilSchedulerMetrics) SetDueJobs(float64)                     {}
func (NilSchedulerMetrics) RecordCompleted()                       {}
func (NilSchedulerMetrics) RecordExecution(string, time.Duration) {}
