package models

import "time"

// Outcome is the executor-reported result of one iteration.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeBlocked Outcome = "blocked"
)

// ProgressEntry records one iteration in the progress log. Entries are
// never mutated after being appended; compaction folds them into a
// PeriodSummary.
type ProgressEntry struct {
	Timestamp   time.Time
	Title       string
	Description string
	Artifacts   []string
	Outcome     Outcome
	NextHint    string
}

// PeriodSpan is the length of time a PeriodSummary covers.
type PeriodSpan int

const (
	SpanWeek PeriodSpan = iota
	SpanMonth
	SpanYear
)

func (s PeriodSpan) String() string {
	switch s {
	case SpanMonth:
		return "month"
	case SpanYear:
		return "year"
	default:
		return "week"
	}
}

// PeriodSummary aggregates folded entries. Period is the UTC start of the
// span: the Monday of an ISO week, the first day of a month or of a year.
// Compaction starts with weekly summaries and rolls the oldest ones up into
// months and years when the log is over its size limit.
type PeriodSummary struct {
	Period     time.Time
	Span       PeriodSpan
	Successes  int
	Milestones []string
	Fixes      []string
	Decisions  []string
}

// CurrentStatus is the snapshot at the top of the progress log.
type CurrentStatus struct {
	Updated   time.Time
	Iteration int
	Breaker   BreakerState
	LastTask  string
	Counts    map[TaskStatus]int
	NextHint  string
}

// ProgressLog is the human-readable activity history. Recent holds the
// newest entries oldest-first; History holds summaries most recent first.
type ProgressLog struct {
	Status      CurrentStatus
	Recent      []ProgressEntry
	History     []PeriodSummary
	CompactedAt *time.Time
}
