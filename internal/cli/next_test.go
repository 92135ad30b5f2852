package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/pkg/models"
)

func TestNextCmd_ShowsSelectedTask(t *testing.T) {
	withInspector(t, &statusMock{
		next: &models.Task{
			ID:          "T-1",
			Title:       "Fix login redirect",
			Type:        models.TaskTypeFix,
			Status:      models.StatusPending,
			Priority:    models.PriorityHigh,
			Score:       1250,
			SequenceKey: "ch03",
		},
	})

	out := captureStdout(t, func() {
		if err := nextCmd.RunE(nextCmd, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	for _, want := range []string{"T-1  Fix login redirect", "1250", "high", "fix", "ch03"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestNextCmd_NoEligibleTask(t *testing.T) {
	withInspector(t, &statusMock{})

	out := captureStdout(t, func() {
		if err := nextCmd.RunE(nextCmd, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "No eligible task.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNextCmd_BreakerTripped(t *testing.T) {
	withInspector(t, &statusMock{nextErr: core.ErrCircuitBreakerTripped})

	out := captureStdout(t, func() {
		if err := nextCmd.RunE(nextCmd, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "taskloop reset") {
		t.Errorf("expected reset hint, got: %s", out)
	}
}

func TestNextCmd_StoreError(t *testing.T) {
	withInspector(t, &statusMock{nextErr: errors.New("bad yaml")})

	err := nextCmd.RunE(nextCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "bad yaml") {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestNextCmd_Ranked(t *testing.T) {
	withInspector(t, &statusMock{
		tasks: []models.Task{
			{ID: "T-1", Title: "first", Score: 900, Priority: models.PriorityHigh, Type: models.TaskTypeFix},
			{ID: "T-2", Title: "second", Score: 500, Priority: models.PriorityLow, Type: models.TaskTypeReview},
			{ID: "T-3", Title: "third", Score: 100, Priority: models.PriorityLow, Type: models.TaskTypeOther},
		},
	})
	if err := nextCmd.Flags().Set("ranked", "2"); err != nil {
		t.Fatal(err)
	}
	defer func() {
		nextRanked = 0
		nextCmd.Flags().Lookup("ranked").Changed = false
	}()

	out := captureStdout(t, func() {
		if err := nextCmd.RunE(nextCmd, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "T-1") || !strings.Contains(out, "T-2") {
		t.Errorf("expected top two tasks, got:\n%s", out)
	}
	if strings.Contains(out, "T-3") {
		t.Errorf("limit not applied:\n%s", out)
	}
}

func TestChainCmd(t *testing.T) {
	withInspector(t, &statusMock{
		chains: map[string][]core.ChainLink{
			"T-3": {
				{TaskID: "T-2", Title: "schema", Status: models.StatusBlocked, Depth: 1},
				{TaskID: "T-1", Title: "design", Status: models.StatusPending, Depth: 2},
				{TaskID: "T-0", Depth: 2},
			},
			"T-1": nil,
		},
	})

	out := captureStdout(t, func() {
		if err := chainCmd.RunE(chainCmd, []string{"T-3"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	for _, want := range []string{
		"T-3 is blocked by:",
		"  T-2 [blocked] schema",
		"    T-1 [pending] design",
		"    T-0 [missing]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out = captureStdout(t, func() {
		if err := chainCmd.RunE(chainCmd, []string{"T-1"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "T-1 is not blocked.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestChainCmd_UnknownTask(t *testing.T) {
	withInspector(t, &statusMock{chains: map[string][]core.ChainLink{}})

	err := chainCmd.RunE(chainCmd, []string{"T-404"})
	if err == nil || !strings.Contains(err.Error(), "T-404") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
