package tasks

const QUEUE_NAME = "brewit"

const (
	// TypeExecuteJob runs one scheduled DCA execution.
	TypeExecuteJob = "job:execute"
	// TypeScheduleRetry re-registers a trigger whose job is already on chain.
	TypeScheduleRetry = "investment:scheduleRetry"
)
