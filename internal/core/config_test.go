package core

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// --- Helper ---

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// --- LoadConfig tests ---

func TestLoadConfig_Defaults_WhenNoFile(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())

	cfg, err := cm.LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := DefaultConfig()

	if !reflect.DeepEqual(cfg.Scoring.PriorityWeights, def.Scoring.PriorityWeights) {
		t.Errorf("PriorityWeights = %v, want %v", cfg.Scoring.PriorityWeights, def.Scoring.PriorityWeights)
	}
	if !reflect.DeepEqual(cfg.Scoring.Milestones, def.Scoring.Milestones) {
		t.Errorf("Milestones = %v, want %v", cfg.Scoring.Milestones, def.Scoring.Milestones)
	}
	if cfg.Breaker.Threshold != 3 {
		t.Errorf("Breaker.Threshold = %d, want 3", cfg.Breaker.Threshold)
	}
	if cfg.Loop.IterationBudget != 30*time.Minute {
		t.Errorf("Loop.IterationBudget = %s, want 30m", cfg.Loop.IterationBudget)
	}
	if cfg.Compaction.KeepRecent != 20 || cfg.Compaction.MaxRecentEntries != 50 {
		t.Errorf("Compaction = %+v, want keep 20 of 50", cfg.Compaction)
	}
	if err := cm.ValidateConfig(cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".taskloop.yaml", `
breaker:
  threshold: 5
loop:
  iteration_budget: 90s
  durable_artifacts:
    - "docs/**"
    - "*.md"
compaction:
  keep_recent: 8
executor:
  command: ./bin/worker
  args: ["--fast"]
`)

	cfg, err := NewConfigurationManager(dir).LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Breaker.Threshold != 5 {
		t.Errorf("Breaker.Threshold = %d, want 5", cfg.Breaker.Threshold)
	}
	if cfg.Loop.IterationBudget != 90*time.Second {
		t.Errorf("Loop.IterationBudget = %s, want 1m30s", cfg.Loop.IterationBudget)
	}
	if !reflect.DeepEqual(cfg.Loop.DurableArtifacts, []string{"docs/**", "*.md"}) {
		t.Errorf("Loop.DurableArtifacts = %v", cfg.Loop.DurableArtifacts)
	}
	if cfg.Compaction.KeepRecent != 8 {
		t.Errorf("Compaction.KeepRecent = %d, want 8", cfg.Compaction.KeepRecent)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Compaction.MaxRecentEntries != 50 {
		t.Errorf("Compaction.MaxRecentEntries = %d, want default 50", cfg.Compaction.MaxRecentEntries)
	}
	if cfg.Executor.Command != "./bin/worker" || !reflect.DeepEqual(cfg.Executor.Args, []string{"--fast"}) {
		t.Errorf("Executor = %+v", cfg.Executor)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("TASKLOOP_BREAKER_THRESHOLD", "7")

	cfg, err := NewConfigurationManager(t.TempDir()).LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Breaker.Threshold != 7 {
		t.Errorf("Breaker.Threshold = %d, want 7 from environment", cfg.Breaker.Threshold)
	}
}

func TestLoadConfig_InvalidYAML_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".taskloop.yaml", `
breaker:
  threshold: [invalid yaml
  broken: {
`)

	if _, err := NewConfigurationManager(dir).LoadConfig(); err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

// --- ValidateConfig tests ---

func TestValidateConfig_Nil(t *testing.T) {
	if err := ValidateConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestValidateConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.Config)
		wantErr string
	}{
		{
			name: "unknown priority key",
			mutate: func(c *models.Config) {
				c.Scoring.PriorityWeights["urgent"] = 5
			},
			wantErr: `priority_weights key "urgent"`,
		},
		{
			name: "unknown type key",
			mutate: func(c *models.Config) {
				c.Scoring.TypeWeights["chore"] = 5
			},
			wantErr: `type_weights key "chore"`,
		},
		{
			name:    "negative sequence weight",
			mutate:  func(c *models.Config) { c.Scoring.SequenceStepWeight = -1 },
			wantErr: "sequence_step_weight must be non-negative",
		},
		{
			name: "empty milestone marker",
			mutate: func(c *models.Config) {
				c.Scoring.Milestones = append(c.Scoring.Milestones, models.MilestoneMarker{Bonus: 10})
			},
			wantErr: "milestones[3].marker",
		},
		{
			name: "age thresholds out of order",
			mutate: func(c *models.Config) {
				c.Scoring.Age.SecondThreshold = time.Hour
			},
			wantErr: "second_threshold",
		},
		{
			name:    "zero breaker threshold",
			mutate:  func(c *models.Config) { c.Breaker.Threshold = 0 },
			wantErr: "breaker.threshold must be at least 1",
		},
		{
			name:    "keep above max",
			mutate:  func(c *models.Config) { c.Compaction.KeepRecent = 60 },
			wantErr: "compaction.keep_recent 60 is invalid",
		},
		{
			name:    "bad pattern",
			mutate:  func(c *models.Config) { c.Compaction.FixPattern = "(" },
			wantErr: "compaction.fix_pattern",
		},
		{
			name:    "bad glob",
			mutate:  func(c *models.Config) { c.Loop.DurableArtifacts = []string{"docs/[a"} },
			wantErr: "loop.durable_artifacts",
		},
		{
			name:    "negative budget",
			mutate:  func(c *models.Config) { c.Loop.IterationBudget = -time.Second },
			wantErr: "loop.iteration_budget must be non-negative",
		},
		{
			name:    "notifications without webhook",
			mutate:  func(c *models.Config) { c.Notifications.Enabled = true },
			wantErr: "slack_webhook_url must be set",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_AggregatesProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Breaker.Threshold = 0
	cfg.Compaction.MaxItems = 0
	cfg.Alerts.MaxBlocked = -1

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "config validation failed:") {
		t.Errorf("unexpected prefix: %q", msg)
	}
	if got := strings.Count(msg, "\n  - "); got != 3 {
		t.Errorf("expected 3 problems, got %d in %q", got, msg)
	}
}
