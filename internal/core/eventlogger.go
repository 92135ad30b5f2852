package core

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Event types emitted by the driver.
const (
	EventIterationStarted = "loop.iteration_started"
	EventTaskSelected     = "task.selected"
	EventStatusChanged    = "task.status_changed"
	EventTaskCompleted    = "task.completed"
	EventTaskUnblocked    = "task.unblocked"
	EventTaskRejected     = "task.rejected"
	EventDependencyError  = "dependency.error"
	EventBreakerDegraded  = "breaker.degraded"
	EventBreakerTripped   = "breaker.tripped"
	EventBreakerReset     = "breaker.reset"
	EventCompacted        = "progress.compacted"
	EventCompactionFailed = "progress.compaction_failed"
	EventTaskStarving     = "task.starving"
	EventLoopRecovered    = "loop.recovered"
	EventExecutorFailed   = "executor.failed"
	EventTaskIngested     = "task.ingested"
)
