package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/pkg/models"
	"pgregory.net/rapid"
)

func genSelectionEvents(t *rapid.T) []Event {
	n := rapid.IntRange(1, 12).Draw(t, "numTasks")
	var events []Event
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("T-%d", i)
		hoursAgo := rapid.IntRange(0, 48).Draw(t, "hoursAgo"+id)
		events = append(events, Event{
			Time: alertNow.Add(-time.Duration(hoursAgo) * time.Hour),
			Type: core.EventTaskSelected,
			Data: map[string]any{"task_id": id},
		})
		if rapid.Bool().Draw(t, "finished"+id) {
			events = append(events, Event{
				Time: alertNow.Add(-time.Duration(hoursAgo)*time.Hour + time.Minute),
				Type: core.EventStatusChanged,
				Data: map[string]any{"task_id": id, "from": "in_progress", "to": "pending"},
			})
		}
	}
	return events
}

// Feature: taskloop, Property 9: Stale Alert Threshold Monotonicity
// Raising the stale in-progress threshold never produces more stale alerts.
func TestProperty_StaleAlertThresholdMonotonicity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp("", "taskloop-alerts-*")
		if err != nil {
			rt.Fatalf("MkdirTemp: %v", err)
		}
		defer os.RemoveAll(dir)

		log, err := NewJSONLEventLog(filepath.Join(dir, EventLogFileName))
		if err != nil {
			rt.Fatalf("creating event log: %v", err)
		}
		defer log.Close()
		for _, e := range genSelectionEvents(rt) {
			if err := log.Write(e); err != nil {
				rt.Fatalf("writing event: %v", err)
			}
		}

		low := time.Duration(rapid.IntRange(1, 24).Draw(rt, "low")) * time.Hour
		high := low + time.Duration(rapid.IntRange(0, 24).Draw(rt, "delta"))*time.Hour

		count := func(threshold time.Duration) int {
			engine := NewAlertEngine(log, &fakeState{}, models.AlertConfig{StaleInProgress: threshold}).(*alertEngine)
			engine.now = func() time.Time { return alertNow }
			alerts, err := engine.Evaluate()
			if err != nil {
				rt.Fatalf("evaluating alerts: %v", err)
			}
			return countAlertsByCondition(alerts, ConditionStaleInProgress)
		}
		if lo, hi := count(low), count(high); hi > lo {
			rt.Fatalf("threshold %s gave %d alerts but higher threshold %s gave %d", low, lo, high, hi)
		}
	})
}

// Feature: taskloop, Property 10: Event Filter Time Range
// Every event returned for a time range lies inside it.
func TestProperty_EventFilterTimeRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp("", "taskloop-events-*")
		if err != nil {
			rt.Fatalf("MkdirTemp: %v", err)
		}
		defer os.RemoveAll(dir)

		log, err := NewJSONLEventLog(filepath.Join(dir, EventLogFileName))
		if err != nil {
			rt.Fatalf("creating event log: %v", err)
		}
		defer log.Close()

		n := rapid.IntRange(0, 20).Draw(rt, "numEvents")
		for i := 0; i < n; i++ {
			offset := time.Duration(rapid.IntRange(0, 1000).Draw(rt, fmt.Sprintf("offset%d", i))) * time.Minute
			if err := log.Write(Event{Time: alertNow.Add(offset), Type: core.EventIterationStarted}); err != nil {
				rt.Fatalf("writing event: %v", err)
			}
		}

		since := alertNow.Add(time.Duration(rapid.IntRange(0, 500).Draw(rt, "since")) * time.Minute)
		until := since.Add(time.Duration(rapid.IntRange(0, 500).Draw(rt, "span")) * time.Minute)
		events, err := log.Read(EventFilter{Since: &since, Until: &until})
		if err != nil {
			rt.Fatalf("reading events: %v", err)
		}
		for _, e := range events {
			if e.Time.Before(since) || e.Time.After(until) {
				rt.Fatalf("event at %v outside [%v, %v]", e.Time, since, until)
			}
		}
	})
}
