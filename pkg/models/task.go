package models

import (
	"sort"
	"time"
)

// TaskType represents the kind of work a task involves.
type TaskType string

const (
	TaskTypeBlocker            TaskType = "blocker"
	TaskTypeMilestoneWork      TaskType = "milestone-work"
	TaskTypeFix                TaskType = "fix"
	TaskTypeSupportingArtifact TaskType = "supporting-artifact"
	TaskTypeDiagram            TaskType = "diagram"
	TaskTypeReview             TaskType = "review"
	TaskTypeOther              TaskType = "other"
)

// AllTaskTypes lists every valid TaskType in display order.
var AllTaskTypes = []TaskType{
	TaskTypeBlocker,
	TaskTypeMilestoneWork,
	TaskTypeFix,
	TaskTypeSupportingArtifact,
	TaskTypeDiagram,
	TaskTypeReview,
	TaskTypeOther,
}

// TaskStatus represents the current lifecycle state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusComplete   TaskStatus = "complete"
)

// AllStatuses lists every valid TaskStatus in lifecycle order.
var AllStatuses = []TaskStatus{
	StatusInProgress,
	StatusPending,
	StatusBlocked,
	StatusComplete,
}

// Priority represents the urgency level of a task.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// AllPriorities lists every valid Priority from most to least urgent.
var AllPriorities = []Priority{
	PriorityCritical,
	PriorityHigh,
	PriorityMedium,
	PriorityNormal,
	PriorityLow,
}

// Task is a unit of trackable work in the backlog. Status complete is
// terminal: once a task reaches it only bookkeeping fields change.
type Task struct {
	ID              string            `yaml:"id" json:"id"`
	Type            TaskType          `yaml:"type" json:"type"`
	Title           string            `yaml:"title" json:"title"`
	Description     string            `yaml:"description,omitempty" json:"description,omitempty"`
	Status          TaskStatus        `yaml:"status" json:"status"`
	Priority        Priority          `yaml:"priority" json:"priority"`
	Score           int               `yaml:"score" json:"score,omitempty"`
	SequenceKey     string            `yaml:"sequence_key,omitempty" json:"sequence_key,omitempty"`
	BlockedBy       []string          `yaml:"blocked_by,omitempty" json:"blocked_by,omitempty"`
	Created         *time.Time        `yaml:"created,omitempty" json:"created,omitempty"`
	Started         *time.Time        `yaml:"started,omitempty" json:"started,omitempty"`
	Completed       *time.Time        `yaml:"completed,omitempty" json:"completed,omitempty"`
	ReviewEscalated bool              `yaml:"review_escalated,omitempty" json:"review_escalated,omitempty"`
	Metadata        map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// IsComplete reports whether the task reached its terminal state.
func (t *Task) IsComplete() bool {
	return t.Status == StatusComplete
}

// IsBlockedBy reports whether id is in the task's blocking set.
func (t *Task) IsBlockedBy(id string) bool {
	for _, b := range t.BlockedBy {
		if b == id {
			return true
		}
	}
	return false
}

// Backlog is the full collection of tasks plus aggregate counts by status.
// A single Backlog value is owned by the driver; every other component
// receives it as an explicit parameter.
type Backlog struct {
	Version string             `yaml:"version"`
	Counts  map[TaskStatus]int `yaml:"counts"`
	Tasks   []*Task            `yaml:"tasks"`
}

// NewBacklog returns an empty backlog at the current format version.
func NewBacklog() *Backlog {
	return &Backlog{
		Version: "1.0",
		Counts:  make(map[TaskStatus]int),
	}
}

// Task returns the task with the given id, or nil if it is not present.
func (b *Backlog) Task(id string) *Task {
	for _, t := range b.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Index returns a lookup table of tasks keyed by id.
func (b *Backlog) Index() map[string]*Task {
	idx := make(map[string]*Task, len(b.Tasks))
	for _, t := range b.Tasks {
		idx[t.ID] = t
	}
	return idx
}

// Recount recomputes the aggregate counts by status.
func (b *Backlog) Recount() {
	counts := make(map[TaskStatus]int, len(AllStatuses))
	for _, s := range AllStatuses {
		counts[s] = 0
	}
	for _, t := range b.Tasks {
		counts[t.Status]++
	}
	b.Counts = counts
}

// SortByID orders tasks by id so persisted output is stable.
func (b *Backlog) SortByID() {
	sort.Slice(b.Tasks, func(i, j int) bool {
		return b.Tasks[i].ID < b.Tasks[j].ID
	})
}

// CountByType returns the number of tasks of each type.
func (b *Backlog) CountByType() map[TaskType]int {
	counts := make(map[TaskType]int)
	for _, t := range b.Tasks {
		counts[t.Type]++
	}
	return counts
}
