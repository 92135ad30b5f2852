package core

import (
	"sort"
	"strings"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

var validTaskTypes = map[models.TaskType]bool{
	models.TaskTypeBlocker:            true,
	models.TaskTypeMilestoneWork:      true,
	models.TaskTypeFix:                true,
	models.TaskTypeSupportingArtifact: true,
	models.TaskTypeDiagram:            true,
	models.TaskTypeReview:             true,
	models.TaskTypeOther:              true,
}

var validStatuses = map[models.TaskStatus]bool{
	models.StatusPending:    true,
	models.StatusInProgress: true,
	models.StatusBlocked:    true,
	models.StatusComplete:   true,
}

var validPriorities = map[models.Priority]bool{
	models.PriorityCritical: true,
	models.PriorityHigh:     true,
	models.PriorityMedium:   true,
	models.PriorityNormal:   true,
	models.PriorityLow:      true,
}

// ValidateTask checks that a task record carries every required field and
// only values from the closed type, status, and priority sets.
func ValidateTask(t *models.Task) error {
	if t == nil {
		return &ValidationError{Field: "record", Reason: "is empty"}
	}
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if strings.ContainsAny(t.ID, " \t\n") {
		return &ValidationError{TaskID: t.ID, Field: "id", Reason: "must not contain whitespace"}
	}
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{TaskID: t.ID, Field: "title", Reason: "must not be empty"}
	}
	if !validTaskTypes[t.Type] {
		return &ValidationError{TaskID: t.ID, Field: "type", Reason: "has invalid value " + quote(string(t.Type))}
	}
	if !validStatuses[t.Status] {
		return &ValidationError{TaskID: t.ID, Field: "status", Reason: "has invalid value " + quote(string(t.Status))}
	}
	if !validPriorities[t.Priority] {
		return &ValidationError{TaskID: t.ID, Field: "priority", Reason: "has invalid value " + quote(string(t.Priority))}
	}
	for _, b := range t.BlockedBy {
		if strings.TrimSpace(b) == "" {
			return &ValidationError{TaskID: t.ID, Field: "blocked_by", Reason: "contains an empty id"}
		}
	}
	for k := range t.Metadata {
		if strings.TrimSpace(k) == "" {
			return &ValidationError{TaskID: t.ID, Field: "metadata", Reason: "contains an empty key"}
		}
	}
	return nil
}

// NormalizeTask sorts and de-duplicates the blocking set and collapses an
// empty set to nil, so absent and empty sets compare and persist the same.
func NormalizeTask(t *models.Task) {
	t.BlockedBy = normalizeIDs(t.BlockedBy)
	if len(t.Metadata) == 0 {
		t.Metadata = nil
	}
}

func normalizeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func quote(s string) string {
	return `"` + s + `"`
}
