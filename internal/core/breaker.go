package core

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// DefaultBreakerThreshold is the number of consecutive no-progress
// iterations that trips the breaker when none is configured.
const DefaultBreakerThreshold = 3

// IterationRecord is what the driver tells the breaker about one finished
// iteration. Progress means a durable artifact was produced.
type IterationRecord struct {
	TaskID    string
	Progress  bool
	Reference string
	At        time.Time
}

// Transition describes how one record moved the breaker.
type Transition struct {
	From models.BreakerState
	To   models.BreakerState
}

// Changed reports whether the breaker state changed.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Breaker is the Healthy -> Degraded -> Tripped state machine stored in a
// Checkpoint. It holds no state of its own.
type Breaker struct {
	Threshold int
}

// NewBreaker returns a Breaker, falling back to DefaultBreakerThreshold for
// non-positive thresholds.
func NewBreaker(threshold int) Breaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	return Breaker{Threshold: threshold}
}

// Record applies one iteration to cp. A progress iteration resets the
// failure counter and moves the last-good fields forward; any other
// iteration increments the counter and trips the breaker once it reaches
// the threshold. Recording against a tripped checkpoint is an error.
func (b Breaker) Record(cp *models.Checkpoint, rec IterationRecord) (Transition, error) {
	from := cp.State()
	if cp.Tripped {
		return Transition{From: from, To: from}, ErrCircuitBreakerTripped
	}

	at := rec.At
	cp.Iteration++
	cp.InFlightTaskID = ""
	cp.UpdatedAt = &at

	if rec.Progress {
		cp.ConsecutiveFailures = 0
		if rec.Reference != "" {
			cp.LastGoodReference = rec.Reference
		}
		cp.LastSuccessfulTaskID = rec.TaskID
		cp.Timestamp = &at
		return Transition{From: from, To: cp.State()}, nil
	}

	cp.ConsecutiveFailures++
	if cp.ConsecutiveFailures >= b.Threshold {
		cp.Tripped = true
		cp.TripReason = fmt.Sprintf("%d consecutive iterations without durable progress (last task %s)", cp.ConsecutiveFailures, rec.TaskID)
	}
	return Transition{From: from, To: cp.State()}, nil
}

// Reset clears the tripped flag and the failure counter. Task statuses and
// the last-good fields are never touched.
func (b Breaker) Reset(cp *models.Checkpoint, now time.Time) Transition {
	from := cp.State()
	cp.Tripped = false
	cp.TripReason = ""
	cp.ConsecutiveFailures = 0
	cp.UpdatedAt = &now
	return Transition{From: from, To: cp.State()}
}
