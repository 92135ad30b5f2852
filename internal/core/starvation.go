package core

import (
	"sort"
	"time"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// DetectStarvation returns a warning for every waiting task created at
// least threshold before now that has never been started. Warnings are
// ordered oldest first, then by id. A non-positive threshold disables the
// check.
func DetectStarvation(backlog *models.Backlog, now time.Time, threshold time.Duration) []StarvationWarning {
	if threshold <= 0 {
		return nil
	}
	var warnings []StarvationWarning
	for _, t := range backlog.Tasks {
		if t.Status != models.StatusPending && t.Status != models.StatusBlocked {
			continue
		}
		if t.Created == nil || t.Created.IsZero() || t.Started != nil {
			continue
		}
		if age := now.Sub(*t.Created); age >= threshold {
			warnings = append(warnings, StarvationWarning{TaskID: t.ID, Age: age})
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		if warnings[i].Age != warnings[j].Age {
			return warnings[i].Age > warnings[j].Age
		}
		return warnings[i].TaskID < warnings[j].TaskID
	})
	return warnings
}
