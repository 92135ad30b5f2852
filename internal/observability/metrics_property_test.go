package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valter-silva-au/taskloop/internal/core"
	"pgregory.net/rapid"
)

var metricEventTypes = []string{
	core.EventIterationStarted,
	core.EventTaskSelected,
	core.EventTaskCompleted,
	core.EventTaskUnblocked,
	core.EventExecutorFailed,
	core.EventBreakerTripped,
	core.EventCompacted,
	"unknown.event",
}

// Feature: taskloop, Property 11: Metrics Match Events
// For any event sequence, EventCount is the number of events and Iterations
// and TasksCompleted equal the counts of their event types.
func TestProperty_MetricsMatchEvents(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp("", "taskloop-metrics-*")
		if err != nil {
			rt.Fatalf("MkdirTemp: %v", err)
		}
		defer os.RemoveAll(dir)

		log, err := NewJSONLEventLog(filepath.Join(dir, EventLogFileName))
		if err != nil {
			rt.Fatalf("creating event log: %v", err)
		}
		defer log.Close()

		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		n := rapid.IntRange(0, 40).Draw(rt, "numEvents")
		want := make(map[string]int)
		for i := 0; i < n; i++ {
			typ := rapid.SampledFrom(metricEventTypes).Draw(rt, fmt.Sprintf("type%d", i))
			want[typ]++
			if err := log.Write(Event{Time: base.Add(time.Duration(i) * time.Second), Type: typ}); err != nil {
				rt.Fatalf("writing event: %v", err)
			}
		}

		m, err := NewMetricsCalculator(log).Calculate(base)
		if err != nil {
			rt.Fatalf("calculating metrics: %v", err)
		}
		if m.EventCount != n {
			rt.Fatalf("EventCount = %d, want %d", m.EventCount, n)
		}
		if m.Iterations != want[core.EventIterationStarted] {
			rt.Fatalf("Iterations = %d, want %d", m.Iterations, want[core.EventIterationStarted])
		}
		if m.TasksCompleted != want[core.EventTaskCompleted] {
			rt.Fatalf("TasksCompleted = %d, want %d", m.TasksCompleted, want[core.EventTaskCompleted])
		}
		if m.BreakerTrips != want[core.EventBreakerTripped] {
			rt.Fatalf("BreakerTrips = %d, want %d", m.BreakerTrips, want[core.EventBreakerTripped])
		}
	})
}
