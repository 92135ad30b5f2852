package observability

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/taskloop/internal/core"
)

// Metrics holds loop metrics derived from the event log.
type Metrics struct {
	Iterations       int            `json:"iterations"`
	TasksCompleted   int            `json:"tasks_completed"`
	CompletedByType  map[string]int `json:"completed_by_type"`
	TasksUnblocked   int            `json:"tasks_unblocked"`
	TasksIngested    int            `json:"tasks_ingested"`
	TasksRejected    int            `json:"tasks_rejected"`
	DependencyErrors int            `json:"dependency_errors"`
	ExecutorFailures int            `json:"executor_failures"`
	Timeouts         int            `json:"timeouts"`
	BreakerTrips     int            `json:"breaker_trips"`
	BreakerResets    int            `json:"breaker_resets"`
	Compactions      int            `json:"compactions"`
	CompactionErrors int            `json:"compaction_errors"`
	Recoveries       int            `json:"recoveries"`
	EventCount       int            `json:"event_count"`
	OldestEvent      *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent      *time.Time     `json:"newest_event,omitempty"`
}

// CompletionRate is completed tasks per iteration, or 0 before the first
// iteration.
func (m *Metrics) CompletionRate() float64 {
	if m.Iterations == 0 {
		return 0
	}
	return float64(m.TasksCompleted) / float64(m.Iterations)
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{CompletedByType: make(map[string]int)}
	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case core.EventIterationStarted:
			m.Iterations++
		case core.EventTaskCompleted:
			m.TasksCompleted++
			if taskType, ok := event.Data["type"].(string); ok {
				m.CompletedByType[taskType]++
			}
		case core.EventTaskUnblocked:
			m.TasksUnblocked++
		case core.EventTaskIngested:
			m.TasksIngested++
		case core.EventTaskRejected:
			m.TasksRejected++
		case core.EventDependencyError:
			m.DependencyErrors++
		case core.EventExecutorFailed:
			m.ExecutorFailures++
			if timedOut, _ := event.Data["timed_out"].(bool); timedOut {
				m.Timeouts++
			}
		case core.EventBreakerTripped:
			m.BreakerTrips++
		case core.EventBreakerReset:
			m.BreakerResets++
		case core.EventCompacted:
			m.Compactions++
		case core.EventCompactionFailed:
			m.CompactionErrors++
		case core.EventLoopRecovered:
			m.Recoveries++
		}
	}

	return m, nil
}
