package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert conditions.
const (
	ConditionBreakerTripped  = "breaker_tripped"
	ConditionBreakerDegraded = "breaker_degraded"
	ConditionStaleInProgress = "task_stale_in_progress"
	ConditionTooManyBlocked  = "too_many_blocked"
	ConditionTaskStarving    = "task_starving"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// StateReader is the read-only view of loop state the alert engine needs.
// core.Inspector satisfies it.
type StateReader interface {
	Checkpoint() (*models.Checkpoint, error)
	Counts() (*core.TaskCounts, error)
	Starving() ([]core.StarvationWarning, error)
}

// AlertEngine evaluates alert conditions against loop state and the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	state      StateReader
	thresholds models.AlertConfig
	now        func() time.Time
}

// NewAlertEngine creates a new AlertEngine. A nil eventLog disables the
// event-derived checks.
func NewAlertEngine(eventLog EventLog, state StateReader, thresholds models.AlertConfig) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		state:      state,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks every alert condition and returns the triggered alerts,
// most severe first.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now()
	var alerts []Alert

	breakerAlerts, err := ae.checkBreaker(now)
	if err != nil {
		return nil, fmt.Errorf("checking breaker: %w", err)
	}
	alerts = append(alerts, breakerAlerts...)

	staleAlerts, err := ae.checkStaleInProgress(now)
	if err != nil {
		return nil, fmt.Errorf("checking in-progress tasks: %w", err)
	}
	alerts = append(alerts, staleAlerts...)

	blockedAlerts, err := ae.checkBlockedCount(now)
	if err != nil {
		return nil, fmt.Errorf("checking blocked tasks: %w", err)
	}
	alerts = append(alerts, blockedAlerts...)

	starving, err := ae.state.Starving()
	if err != nil {
		return nil, fmt.Errorf("checking starvation: %w", err)
	}
	for _, w := range starving {
		alerts = append(alerts, Alert{
			ID:          "starving-" + w.TaskID,
			Condition:   ConditionTaskStarving,
			Severity:    SeverityLow,
			Message:     w.Error(),
			TriggeredAt: now,
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if r1, r2 := severityRank(alerts[i].Severity), severityRank(alerts[j].Severity); r1 != r2 {
			return r1 < r2
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts, nil
}

func (ae *alertEngine) checkBreaker(now time.Time) ([]Alert, error) {
	cp, err := ae.state.Checkpoint()
	if err != nil {
		return nil, err
	}
	switch cp.State() {
	case models.BreakerTripped:
		msg := fmt.Sprintf("circuit breaker tripped after %d iterations without progress", cp.ConsecutiveFailures)
		if cp.TripReason != "" {
			msg = "circuit breaker tripped: " + cp.TripReason
		}
		return []Alert{{
			ID:          "breaker",
			Condition:   ConditionBreakerTripped,
			Severity:    SeverityHigh,
			Message:     msg + "; run reset after fixing the cause",
			TriggeredAt: now,
		}}, nil
	case models.BreakerDegraded:
		return []Alert{{
			ID:          "breaker",
			Condition:   ConditionBreakerDegraded,
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("%d consecutive iterations without durable progress", cp.ConsecutiveFailures),
			TriggeredAt: now,
		}}, nil
	}
	return nil, nil
}

// checkStaleInProgress replays selection and status events to find tasks
// that were selected and never left in_progress within the threshold.
func (ae *alertEngine) checkStaleInProgress(now time.Time) ([]Alert, error) {
	if ae.eventLog == nil || ae.thresholds.StaleInProgress <= 0 {
		return nil, nil
	}
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, err
	}

	running := make(map[string]time.Time)
	for _, event := range events {
		taskID := event.TaskID()
		if taskID == "" {
			continue
		}
		switch event.Type {
		case core.EventTaskSelected:
			running[taskID] = event.Time
		case core.EventStatusChanged:
			if from, _ := event.Data["from"].(string); from == string(models.StatusInProgress) {
				delete(running, taskID)
			}
		case core.EventLoopRecovered:
			delete(running, taskID)
		}
	}

	var alerts []Alert
	for taskID, since := range running {
		if age := now.Sub(since); age > ae.thresholds.StaleInProgress {
			alerts = append(alerts, Alert{
				ID:          "stale-" + taskID,
				Condition:   ConditionStaleInProgress,
				Severity:    SeverityMedium,
				Message:     fmt.Sprintf("task %s has been in progress for %s", taskID, age.Round(time.Minute)),
				TriggeredAt: now,
			})
		}
	}
	return alerts, nil
}

func (ae *alertEngine) checkBlockedCount(now time.Time) ([]Alert, error) {
	if ae.thresholds.MaxBlocked <= 0 {
		return nil, nil
	}
	counts, err := ae.state.Counts()
	if err != nil {
		return nil, err
	}
	blocked := counts.ByStatus[models.StatusBlocked]
	if blocked <= ae.thresholds.MaxBlocked {
		return nil, nil
	}
	return []Alert{{
		ID:          "blocked-count",
		Condition:   ConditionTooManyBlocked,
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("%d tasks are blocked, exceeding the maximum of %d", blocked, ae.thresholds.MaxBlocked),
		TriggeredAt: now,
	}}, nil
}

func severityRank(s AlertSeverity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}
