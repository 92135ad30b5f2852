package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCircuitBreakerTripped is returned when a selection is requested while
// the breaker is tripped. Only an explicit reset clears it.
var ErrCircuitBreakerTripped = errors.New("circuit breaker tripped")

// ErrNoEligibleTask is returned when no pending, unblocked task exists.
var ErrNoEligibleTask = errors.New("no eligible task")

// ValidationError rejects a single task record at ingestion.
type ValidationError struct {
	TaskID string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	id := e.TaskID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("invalid task %s: %s %s", id, e.Field, e.Reason)
}

// DependencyErrorKind distinguishes dangling references from cycles.
type DependencyErrorKind string

const (
	DependencyMissing DependencyErrorKind = "missing"
	DependencyCycle   DependencyErrorKind = "cycle"
)

// DependencyError reports a blocking-set that references an unknown task or
// participates in a cycle. The affected task keeps its prior state.
type DependencyError struct {
	Kind   DependencyErrorKind
	TaskID string
	Refs   []string
}

func (e *DependencyError) Error() string {
	switch e.Kind {
	case DependencyCycle:
		return fmt.Sprintf("task %s is part of a blocking cycle among: %s", e.TaskID, strings.Join(e.Refs, ", "))
	default:
		return fmt.Sprintf("task %s is blocked by unknown task(s): %s", e.TaskID, strings.Join(e.Refs, ", "))
	}
}

// StarvationWarning is a non-fatal signal that a task has waited longer
// than the starvation threshold without being selected.
type StarvationWarning struct {
	TaskID string
	Age    time.Duration
}

func (w StarvationWarning) Error() string {
	return fmt.Sprintf("task %s has waited %s without being selected", w.TaskID, w.Age.Round(time.Minute))
}

// CompactionError aborts only the compaction step. The log it was given is
// left untouched.
type CompactionError struct {
	Err error
}

func (e *CompactionError) Error() string {
	return fmt.Sprintf("compacting progress log: %v", e.Err)
}

func (e *CompactionError) Unwrap() error {
	return e.Err
}
