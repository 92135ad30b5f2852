// Package core contains the scheduling and state-compaction logic of the
// work loop: scoring, dependency resolution, selection, the circuit
// breaker, progress-log compaction, and the driver that ties them together.
package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// ConfigFileName is the configuration file looked up in the base path.
const ConfigFileName = ".taskloop"

// EnvPrefix prefixes every environment override, e.g.
// TASKLOOP_BREAKER_THRESHOLD.
const EnvPrefix = "TASKLOOP"

// ConfigurationManager loads and validates the loop configuration.
type ConfigurationManager interface {
	LoadConfig() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .taskloop.yaml from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *models.Config {
	return &models.Config{
		Scoring: models.ScoringConfig{
			PriorityWeights: map[models.Priority]int{
				models.PriorityCritical: 1000,
				models.PriorityHigh:     750,
				models.PriorityMedium:   500,
				models.PriorityNormal:   250,
				models.PriorityLow:      100,
			},
			TypeWeights: map[models.TaskType]int{
				models.TaskTypeBlocker:            200,
				models.TaskTypeFix:                150,
				models.TaskTypeReview:             120,
				models.TaskTypeMilestoneWork:      100,
				models.TaskTypeSupportingArtifact: 50,
				models.TaskTypeDiagram:            40,
				models.TaskTypeOther:              0,
			},
			MaxSequence:        20,
			SequenceStepWeight: 5,
			MissingSequence:    0,
			Milestones: []models.MilestoneMarker{
				{Marker: "work done", Bonus: 60},
				{Marker: "checked", Bonus: 40},
				{Marker: "reviewed", Bonus: 20},
			},
			ReviewBonus:    300,
			PerBlockWeight: 50,
			Age: models.AgeBonusConfig{
				FirstThreshold:  24 * time.Hour,
				FirstBonus:      25,
				SecondThreshold: 72 * time.Hour,
				SecondBonus:     50,
			},
		},
		Breaker: models.BreakerConfig{Threshold: DefaultBreakerThreshold},
		Compaction: models.CompactionConfig{
			MaxLines:         400,
			MaxRecentEntries: 50,
			KeepRecent:       20,
			MaxItems:         5,
			MilestonePattern: DefaultMilestonePattern,
			FixPattern:       DefaultFixPattern,
			DecisionPattern:  DefaultDecisionPattern,
		},
		Loop: models.LoopConfig{
			IterationBudget:  30 * time.Minute,
			MaxIterations:    0,
			DurableArtifacts: []string{"**"},
			StarvationAge:    72 * time.Hour,
		},
		Alerts: models.AlertConfig{
			StaleInProgress: 2 * time.Hour,
			MaxBlocked:      20,
		},
	}
}

// LoadConfig reads .taskloop.yaml from the base path using Viper, applying
// TASKLOOP_* environment overrides. If the file does not exist the defaults
// are returned, still subject to environment overrides.
func (cm *viperConfigManager) LoadConfig() (*models.Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set Viper defaults so missing keys fall back gracefully and every key
	// is known to AutomaticEnv.
	v.SetDefault("scoring.priority_weights", stringKeyed(def.Scoring.PriorityWeights))
	v.SetDefault("scoring.type_weights", stringKeyed(def.Scoring.TypeWeights))
	v.SetDefault("scoring.max_sequence", def.Scoring.MaxSequence)
	v.SetDefault("scoring.sequence_step_weight", def.Scoring.SequenceStepWeight)
	v.SetDefault("scoring.missing_sequence_bonus", def.Scoring.MissingSequence)
	v.SetDefault("scoring.milestones", milestoneMaps(def.Scoring.Milestones))
	v.SetDefault("scoring.review_bonus", def.Scoring.ReviewBonus)
	v.SetDefault("scoring.blocking_weight", def.Scoring.PerBlockWeight)
	v.SetDefault("scoring.age.first_threshold", def.Scoring.Age.FirstThreshold)
	v.SetDefault("scoring.age.first_bonus", def.Scoring.Age.FirstBonus)
	v.SetDefault("scoring.age.second_threshold", def.Scoring.Age.SecondThreshold)
	v.SetDefault("scoring.age.second_bonus", def.Scoring.Age.SecondBonus)
	v.SetDefault("breaker.threshold", def.Breaker.Threshold)
	v.SetDefault("compaction.max_lines", def.Compaction.MaxLines)
	v.SetDefault("compaction.max_recent_entries", def.Compaction.MaxRecentEntries)
	v.SetDefault("compaction.keep_recent", def.Compaction.KeepRecent)
	v.SetDefault("compaction.max_items", def.Compaction.MaxItems)
	v.SetDefault("compaction.milestone_pattern", def.Compaction.MilestonePattern)
	v.SetDefault("compaction.fix_pattern", def.Compaction.FixPattern)
	v.SetDefault("compaction.decision_pattern", def.Compaction.DecisionPattern)
	v.SetDefault("loop.iteration_budget", def.Loop.IterationBudget)
	v.SetDefault("loop.max_iterations", def.Loop.MaxIterations)
	v.SetDefault("loop.durable_artifacts", def.Loop.DurableArtifacts)
	v.SetDefault("loop.starvation_age", def.Loop.StarvationAge)
	v.SetDefault("executor.command", def.Executor.Command)
	v.SetDefault("executor.args", def.Executor.Args)
	v.SetDefault("executor.work_dir", def.Executor.WorkDir)
	v.SetDefault("alerts.stale_in_progress", def.Alerts.StaleInProgress)
	v.SetDefault("alerts.max_blocked", def.Alerts.MaxBlocked)
	v.SetDefault("notifications.enabled", def.Notifications.Enabled)
	v.SetDefault("notifications.slack_webhook_url", def.Notifications.SlackWebhookURL)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s.yaml: %w", ConfigFileName, err)
		}
	}

	cfg := &models.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding %s.yaml: %w", ConfigFileName, err)
	}
	return cfg, nil
}

// ValidateConfig checks the configuration for invalid values and returns
// every problem found in a single error.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	return ValidateConfig(cfg)
}

// ValidateConfig checks the configuration for invalid values and returns
// every problem found in a single error.
func ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string
	errs = append(errs, validateScoring(&cfg.Scoring)...)

	if cfg.Breaker.Threshold < 1 {
		errs = append(errs, fmt.Sprintf("breaker.threshold must be at least 1, got %d", cfg.Breaker.Threshold))
	}

	c := cfg.Compaction
	if c.MaxLines < 0 {
		errs = append(errs, fmt.Sprintf("compaction.max_lines must be non-negative, got %d", c.MaxLines))
	}
	if c.MaxRecentEntries < 1 {
		errs = append(errs, fmt.Sprintf("compaction.max_recent_entries must be at least 1, got %d", c.MaxRecentEntries))
	}
	if c.KeepRecent < 0 || c.KeepRecent > c.MaxRecentEntries {
		errs = append(errs, fmt.Sprintf(
			"compaction.keep_recent %d is invalid, must be between 0 and max_recent_entries (%d)",
			c.KeepRecent, c.MaxRecentEntries,
		))
	}
	if c.MaxItems < 1 {
		errs = append(errs, fmt.Sprintf("compaction.max_items must be at least 1, got %d", c.MaxItems))
	}
	for _, p := range []struct{ name, pattern string }{
		{"milestone_pattern", c.MilestonePattern},
		{"fix_pattern", c.FixPattern},
		{"decision_pattern", c.DecisionPattern},
	} {
		if _, err := regexp.Compile(p.pattern); err != nil {
			errs = append(errs, fmt.Sprintf("compaction.%s %q does not compile: %v", p.name, p.pattern, err))
		}
	}

	l := cfg.Loop
	if l.IterationBudget < 0 {
		errs = append(errs, fmt.Sprintf("loop.iteration_budget must be non-negative, got %s", l.IterationBudget))
	}
	if l.MaxIterations < 0 {
		errs = append(errs, fmt.Sprintf("loop.max_iterations must be non-negative, got %d", l.MaxIterations))
	}
	if l.StarvationAge < 0 {
		errs = append(errs, fmt.Sprintf("loop.starvation_age must be non-negative, got %s", l.StarvationAge))
	}
	if _, err := CompileArtifactPatterns(l.DurableArtifacts); err != nil {
		errs = append(errs, fmt.Sprintf("loop.durable_artifacts: %v", err))
	}

	if cfg.Alerts.StaleInProgress < 0 {
		errs = append(errs, fmt.Sprintf("alerts.stale_in_progress must be non-negative, got %s", cfg.Alerts.StaleInProgress))
	}
	if cfg.Alerts.MaxBlocked < 0 {
		errs = append(errs, fmt.Sprintf("alerts.max_blocked must be non-negative, got %d", cfg.Alerts.MaxBlocked))
	}
	if cfg.Notifications.Enabled && cfg.Notifications.SlackWebhookURL == "" {
		errs = append(errs, "notifications.slack_webhook_url must be set when notifications are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateScoring(s *models.ScoringConfig) []string {
	var errs []string
	for p := range s.PriorityWeights {
		if !validPriorities[p] {
			errs = append(errs, fmt.Sprintf(
				"scoring.priority_weights key %q is not a valid priority, must be one of: critical, high, medium, normal, low", p,
			))
		}
	}
	for t := range s.TypeWeights {
		if !validTaskTypes[t] {
			errs = append(errs, fmt.Sprintf("scoring.type_weights key %q is not a valid task type", t))
		}
	}
	if s.MaxSequence < 0 {
		errs = append(errs, fmt.Sprintf("scoring.max_sequence must be non-negative, got %d", s.MaxSequence))
	}
	if s.SequenceStepWeight < 0 {
		errs = append(errs, fmt.Sprintf("scoring.sequence_step_weight must be non-negative, got %d", s.SequenceStepWeight))
	}
	for i, m := range s.Milestones {
		if strings.TrimSpace(m.Marker) == "" {
			errs = append(errs, fmt.Sprintf("scoring.milestones[%d].marker must not be empty", i))
		}
	}
	a := s.Age
	if a.FirstThreshold < 0 || a.SecondThreshold < 0 {
		errs = append(errs, "scoring.age thresholds must be non-negative")
	}
	if a.FirstThreshold > 0 && a.SecondThreshold > 0 && a.SecondThreshold < a.FirstThreshold {
		errs = append(errs, fmt.Sprintf(
			"scoring.age.second_threshold %s must not be below first_threshold %s",
			a.SecondThreshold, a.FirstThreshold,
		))
	}
	return errs
}

// stringKeyed converts a weight table so Viper can merge file values into
// the defaults key by key.
func stringKeyed[K ~string](weights map[K]int) map[string]any {
	out := make(map[string]any, len(weights))
	for k, v := range weights {
		out[string(k)] = v
	}
	return out
}

func milestoneMaps(markers []models.MilestoneMarker) []map[string]any {
	out := make([]map[string]any, 0, len(markers))
	for _, m := range markers {
		out = append(out, map[string]any{"marker": m.Marker, "bonus": m.Bonus})
	}
	return out
}
