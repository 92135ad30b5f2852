package models

import "time"

// BreakerState is the health of the work loop as derived from a Checkpoint.
type BreakerState string

const (
	BreakerHealthy  BreakerState = "healthy"
	BreakerDegraded BreakerState = "degraded"
	BreakerTripped  BreakerState = "tripped"
)

// Checkpoint is the durable record of last-known-good loop state. It is
// created once and then updated in place by the driver, once per iteration.
type Checkpoint struct {
	LastGoodReference    string     `yaml:"last_good_reference" json:"last_good_reference"`
	LastSuccessfulTaskID string     `yaml:"last_successful_task_id" json:"last_successful_task_id"`
	Timestamp            *time.Time `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	ConsecutiveFailures  int        `yaml:"consecutive_failures" json:"consecutive_failures"`
	Tripped              bool       `yaml:"tripped" json:"tripped"`
	TripReason           string     `yaml:"trip_reason,omitempty" json:"trip_reason,omitempty"`
	Iteration            int        `yaml:"iteration" json:"iteration"`
	InFlightTaskID       string     `yaml:"in_flight_task_id,omitempty" json:"in_flight_task_id,omitempty"`
	UpdatedAt            *time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// State derives the breaker state from the tripped flag and failure counter.
func (c *Checkpoint) State() BreakerState {
	switch {
	case c.Tripped:
		return BreakerTripped
	case c.ConsecutiveFailures > 0:
		return BreakerDegraded
	default:
		return BreakerHealthy
	}
}
