package models

import "time"

// MilestoneMarker is one row of the ordered milestone table used by the
// scorer. The first marker found in a task title wins.
type MilestoneMarker struct {
	Marker string `yaml:"marker" mapstructure:"marker"`
	Bonus  int    `yaml:"bonus" mapstructure:"bonus"`
}

// AgeBonusConfig describes the cumulative age step function.
type AgeBonusConfig struct {
	FirstThreshold  time.Duration `yaml:"first_threshold" mapstructure:"first_threshold"`
	FirstBonus      int           `yaml:"first_bonus" mapstructure:"first_bonus"`
	SecondThreshold time.Duration `yaml:"second_threshold" mapstructure:"second_threshold"`
	SecondBonus     int           `yaml:"second_bonus" mapstructure:"second_bonus"`
}

// ScoringConfig holds every weight the scorer uses.
type ScoringConfig struct {
	PriorityWeights    map[Priority]int  `yaml:"priority_weights" mapstructure:"priority_weights"`
	TypeWeights        map[TaskType]int  `yaml:"type_weights" mapstructure:"type_weights"`
	MaxSequence        int               `yaml:"max_sequence" mapstructure:"max_sequence"`
	SequenceStepWeight int               `yaml:"sequence_step_weight" mapstructure:"sequence_step_weight"`
	MissingSequence    int               `yaml:"missing_sequence_bonus" mapstructure:"missing_sequence_bonus"`
	Milestones         []MilestoneMarker `yaml:"milestones" mapstructure:"milestones"`
	ReviewBonus        int               `yaml:"review_bonus" mapstructure:"review_bonus"`
	PerBlockWeight     int               `yaml:"blocking_weight" mapstructure:"blocking_weight"`
	Age                AgeBonusConfig    `yaml:"age" mapstructure:"age"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	Threshold int `yaml:"threshold" mapstructure:"threshold"`
}

// CompactionConfig configures when and how the progress log is folded.
type CompactionConfig struct {
	MaxLines         int    `yaml:"max_lines" mapstructure:"max_lines"`
	MaxRecentEntries int    `yaml:"max_recent_entries" mapstructure:"max_recent_entries"`
	KeepRecent       int    `yaml:"keep_recent" mapstructure:"keep_recent"`
	MaxItems         int    `yaml:"max_items" mapstructure:"max_items"`
	MilestonePattern string `yaml:"milestone_pattern" mapstructure:"milestone_pattern"`
	FixPattern       string `yaml:"fix_pattern" mapstructure:"fix_pattern"`
	DecisionPattern  string `yaml:"decision_pattern" mapstructure:"decision_pattern"`
}

// LoopConfig configures the driver itself.
type LoopConfig struct {
	IterationBudget  time.Duration `yaml:"iteration_budget" mapstructure:"iteration_budget"`
	MaxIterations    int           `yaml:"max_iterations" mapstructure:"max_iterations"`
	DurableArtifacts []string      `yaml:"durable_artifacts" mapstructure:"durable_artifacts"`
	StarvationAge    time.Duration `yaml:"starvation_age" mapstructure:"starvation_age"`
}

// ExecutorConfig names the external command that performs a task.
type ExecutorConfig struct {
	Command string   `yaml:"command" mapstructure:"command"`
	Args    []string `yaml:"args,omitempty" mapstructure:"args"`
	WorkDir string   `yaml:"work_dir,omitempty" mapstructure:"work_dir"`
}

// AlertConfig holds thresholds for the alert engine.
type AlertConfig struct {
	StaleInProgress time.Duration `yaml:"stale_in_progress" mapstructure:"stale_in_progress"`
	MaxBlocked      int           `yaml:"max_blocked" mapstructure:"max_blocked"`
}

// NotificationConfig configures outbound alert delivery.
type NotificationConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	SlackWebhookURL string `yaml:"slack_webhook_url" mapstructure:"slack_webhook_url"`
}

// Config is the complete configuration read from .taskloop.yaml via Viper.
type Config struct {
	Scoring       ScoringConfig      `yaml:"scoring" mapstructure:"scoring"`
	Breaker       BreakerConfig      `yaml:"breaker" mapstructure:"breaker"`
	Compaction    CompactionConfig   `yaml:"compaction" mapstructure:"compaction"`
	Loop          LoopConfig         `yaml:"loop" mapstructure:"loop"`
	Executor      ExecutorConfig     `yaml:"executor" mapstructure:"executor"`
	Alerts        AlertConfig        `yaml:"alerts" mapstructure:"alerts"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
}
