// Package config holds the tunable thresholds of the routing engine.
//
// Every magic number used by the assessor, safety router, selector,
// parameterizer and flow memory lives here so it can be tuned from a YAML
// file or ORACLE_* environment variables without touching code.
package config

import "time"

// Config is the top-level threshold configuration, corresponding to oracle.yml.
type Config struct {
	Registry RegistryConfig `yaml:"registry" koanf:"registry"`
	Assess   AssessConfig   `yaml:"assess" koanf:"assess"`
	Selector SelectorConfig `yaml:"selector" koanf:"selector"`
	Params   ParamsConfig   `yaml:"params" koanf:"params"`
	Memory   MemoryConfig   `yaml:"memory" koanf:"memory"`
	Engine   EngineConfig   `yaml:"engine" koanf:"engine"`
	Writer   WriterConfig   `yaml:"writer" koanf:"writer"`
}

// RegistryConfig controls agent eligibility.
type RegistryConfig struct {
	MinCapability  float64 `yaml:"min_capability" koanf:"min_capability"`
	DefaultAgentID string  `yaml:"default_agent_id" koanf:"default_agent_id"`
}

// AssessConfig controls the state assessor.
type AssessConfig struct {
	FatigueAfter       time.Duration `yaml:"fatigue_after" koanf:"fatigue_after"`
	FatigueFocusFactor float64       `yaml:"fatigue_focus_factor" koanf:"fatigue_focus_factor"`
	BalanceStdDevMax   float64       `yaml:"balance_stddev_max" koanf:"balance_stddev_max"`
}

// SelectorConfig controls flow selection and agent scoring.
type SelectorConfig struct {
	SupportBonus           float64 `yaml:"support_bonus" koanf:"support_bonus"`
	GroundingBonus         float64 `yaml:"grounding_bonus" koanf:"grounding_bonus"`
	GroundingCapabilityMin float64 `yaml:"grounding_capability_min" koanf:"grounding_capability_min"`
	CrisisBonus            float64 `yaml:"crisis_bonus" koanf:"crisis_bonus"`
	RepetitionWindow       int     `yaml:"repetition_window" koanf:"repetition_window"`
}

// ParamsConfig controls the parameterizer thresholds.
type ParamsConfig struct {
	LowFocus            float64 `yaml:"low_focus" koanf:"low_focus"`
	HighFocus           float64 `yaml:"high_focus" koanf:"high_focus"`
	HighReceptivity     float64 `yaml:"high_receptivity" koanf:"high_receptivity"`
	HighTension         float64 `yaml:"high_tension" koanf:"high_tension"`
	QuestionFramingRate float64 `yaml:"question_framing_rate" koanf:"question_framing_rate"`
}

// MemoryConfig controls preference learning, pattern detection and phases.
type MemoryConfig struct {
	LearningRate         float64 `yaml:"learning_rate" koanf:"learning_rate"`
	PositiveImpactFactor float64 `yaml:"positive_impact_factor" koanf:"positive_impact_factor"`
	NegativeImpactFactor float64 `yaml:"negative_impact_factor" koanf:"negative_impact_factor"`
	AvoidEffectiveness   float64 `yaml:"avoid_effectiveness" koanf:"avoid_effectiveness"`
	AvoidMinObservations int     `yaml:"avoid_min_observations" koanf:"avoid_min_observations"`

	HistoryLimit    int `yaml:"history_limit" koanf:"history_limit"`
	InsightLimit    int `yaml:"insight_limit" koanf:"insight_limit"`
	AdaptationLimit int `yaml:"adaptation_limit" koanf:"adaptation_limit"`

	PatternLookback  int     `yaml:"pattern_lookback" koanf:"pattern_lookback"`
	PatternWindow    int     `yaml:"pattern_window" koanf:"pattern_window"`
	StuckWindow      int     `yaml:"stuck_window" koanf:"stuck_window"`
	StuckVariance    float64 `yaml:"stuck_variance" koanf:"stuck_variance"`
	CrisisPatternMin int     `yaml:"crisis_pattern_min" koanf:"crisis_pattern_min"`
	MorningStartHour int     `yaml:"morning_start_hour" koanf:"morning_start_hour"`
	MorningEndHour   int     `yaml:"morning_end_hour" koanf:"morning_end_hour"`
	RhythmMinSamples int     `yaml:"rhythm_min_samples" koanf:"rhythm_min_samples"`

	PhaseLookback             int     `yaml:"phase_lookback" koanf:"phase_lookback"`
	ExploringMinRecords       int     `yaml:"exploring_min_records" koanf:"exploring_min_records"`
	ExploringDiversity        float64 `yaml:"exploring_diversity" koanf:"exploring_diversity"`
	DeepeningEffectiveness    float64 `yaml:"deepening_effectiveness" koanf:"deepening_effectiveness"`
	IntegratingEffectiveness  float64 `yaml:"integrating_effectiveness" koanf:"integrating_effectiveness"`
	TransformingEffectiveness float64 `yaml:"transforming_effectiveness" koanf:"transforming_effectiveness"`
	TransformingDiversity     float64 `yaml:"transforming_diversity" koanf:"transforming_diversity"`

	RepetitionWindow       int     `yaml:"repetition_window" koanf:"repetition_window"`
	EffectiveFlowThreshold float64 `yaml:"effective_flow_threshold" koanf:"effective_flow_threshold"`
	MaxRecommendations     int     `yaml:"max_recommendations" koanf:"max_recommendations"`
}

// EngineConfig controls the orchestration glue.
type EngineConfig struct {
	RiskTimeout         time.Duration `yaml:"risk_timeout" koanf:"risk_timeout"`
	PendingDecisionTTL  time.Duration `yaml:"pending_decision_ttl" koanf:"pending_decision_ttl"`
	MaxPendingDecisions int           `yaml:"max_pending_decisions" koanf:"max_pending_decisions"`
	// MaintenanceSchedule is a 5-field cron expression for pruning expired decisions. Empty disables it.
	MaintenanceSchedule string        `yaml:"maintenance_schedule" koanf:"maintenance_schedule"`
}

// WriterConfig controls the write-behind persistence queue.
type WriterConfig struct {
	Shards      int           `yaml:"shards" koanf:"shards"`
	QueueSize   int           `yaml:"queue_size" koanf:"queue_size"`
	MaxAttempts int           `yaml:"max_attempts" koanf:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff" koanf:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff" koanf:"max_backoff"`
}
