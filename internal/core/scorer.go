package core

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// sequencePattern extracts the ordinal from keys such as "3", "ch03" or
// "phase-12".
var sequencePattern = regexp.MustCompile(`\d+`)

// Scorer computes the ranking value of a task. Apart from the age bonus,
// which depends on the injected now, the result is a pure function of the
// task, the backlog, and the configured weights.
type Scorer struct {
	cfg models.ScoringConfig
}

// NewScorer creates a Scorer using the given weights.
func NewScorer(cfg models.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score returns the ranking value of task within backlog at time now.
func (s *Scorer) Score(task *models.Task, backlog *models.Backlog, now time.Time) int {
	return s.score(task, countDependents(backlog, task.ID), now)
}

// Rescore recomputes Score for every unfinished task. Completed tasks keep
// the score they finished with.
func (s *Scorer) Rescore(backlog *models.Backlog, now time.Time) {
	dependents := dependentCounts(backlog)
	for _, t := range backlog.Tasks {
		if t.IsComplete() {
			continue
		}
		t.Score = s.score(t, dependents[t.ID], now)
	}
}

func (s *Scorer) score(task *models.Task, dependents int, now time.Time) int {
	total := s.cfg.PriorityWeights[task.Priority]
	total += s.cfg.TypeWeights[task.Type]
	total += s.sequenceBonus(task.SequenceKey)
	total += s.milestoneBonus(task.Title)
	if task.ReviewEscalated {
		total += s.cfg.ReviewBonus
	}
	total += dependents * s.cfg.PerBlockWeight
	total += s.ageBonus(task.Created, now)
	return total
}

func (s *Scorer) sequenceBonus(key string) int {
	n, ok := ParseSequenceKey(key)
	if !ok {
		return s.cfg.MissingSequence
	}
	bonus := (s.cfg.MaxSequence - n) * s.cfg.SequenceStepWeight
	if bonus < 0 {
		return 0
	}
	return bonus
}

// milestoneBonus walks the table in order; table order breaks ties.
func (s *Scorer) milestoneBonus(title string) int {
	lower := strings.ToLower(title)
	for _, m := range s.cfg.Milestones {
		if m.Marker == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(m.Marker)) {
			return m.Bonus
		}
	}
	return 0
}

func (s *Scorer) ageBonus(created *time.Time, now time.Time) int {
	if created == nil || created.IsZero() {
		return 0
	}
	age := now.Sub(*created)
	bonus := 0
	if s.cfg.Age.FirstThreshold > 0 && age >= s.cfg.Age.FirstThreshold {
		bonus += s.cfg.Age.FirstBonus
	}
	if s.cfg.Age.SecondThreshold > 0 && age >= s.cfg.Age.SecondThreshold {
		bonus += s.cfg.Age.SecondBonus
	}
	return bonus
}

// ParseSequenceKey returns the first run of digits in key as an integer.
func ParseSequenceKey(key string) (int, bool) {
	digits := sequencePattern.FindString(key)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// countDependents counts the other non-complete tasks whose blocking set
// contains id.
func countDependents(backlog *models.Backlog, id string) int {
	n := 0
	for _, t := range backlog.Tasks {
		if t.ID == id || t.IsComplete() {
			continue
		}
		if t.IsBlockedBy(id) {
			n++
		}
	}
	return n
}

func dependentCounts(backlog *models.Backlog) map[string]int {
	counts := make(map[string]int)
	for _, t := range backlog.Tasks {
		if t.IsComplete() {
			continue
		}
		seen := make(map[string]bool, len(t.BlockedBy))
		for _, b := range t.BlockedBy {
			if b == t.ID || seen[b] {
				continue
			}
			seen[b] = true
			counts[b]++
		}
	}
	return counts
}
