package core

import (
	"sort"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// Eligible reports whether t may be selected: pending with an empty
// blocking set.
func Eligible(t *models.Task) bool {
	return t.Status == models.StatusPending && len(t.BlockedBy) == 0
}

// SelectNext returns the id of the eligible task with the highest score,
// breaking ties by the smallest id. The second result is false when no task
// is eligible. It knows nothing about the circuit breaker; callers must
// check the checkpoint first.
func SelectNext(backlog *models.Backlog) (string, bool) {
	var best *models.Task
	for _, t := range backlog.Tasks {
		if !Eligible(t) {
			continue
		}
		if best == nil || t.Score > best.Score || (t.Score == best.Score && t.ID < best.ID) {
			best = t
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

// RankEligible returns every eligible task in selection order.
func RankEligible(backlog *models.Backlog) []*models.Task {
	var ranked []*models.Task
	for _, t := range backlog.Tasks {
		if Eligible(t) {
			ranked = append(ranked, t)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranksBefore(ranked[i], ranked[j])
	})
	return ranked
}

func ranksBefore(a, b *models.Task) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}
