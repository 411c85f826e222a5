package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides.
// Sections are separated by a double underscore: ORACLE_MEMORY__LEARNING_RATE.
const EnvPrefix = "ORACLE_"

// ErrInvalidConfig is returned by Validate for out-of-range thresholds.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads thresholds from the given YAML file, then overlays
// environment variable overrides (ORACLE_*). An empty or missing path yields the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// envKey maps ORACLE_MEMORY__LEARNING_RATE to memory.learning_rate.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that every threshold is within its meaningful range.
func (c *Config) Validate() error {
	unit := map[string]float64{
		"registry.min_capability":           c.Registry.MinCapability,
		"assess.fatigue_focus_factor":       c.Assess.FatigueFocusFactor,
		"selector.grounding_capability_min": c.Selector.GroundingCapabilityMin,
		"params.low_focus":                  c.Params.LowFocus,
		"params.high_focus":                 c.Params.HighFocus,
		"params.high_receptivity":           c.Params.HighReceptivity,
		"params.high_tension":               c.Params.HighTension,
		"params.question_framing_rate":      c.Params.QuestionFramingRate,
		"memory.avoid_effectiveness":        c.Memory.AvoidEffectiveness,
		"memory.exploring_diversity":        c.Memory.ExploringDiversity,
		"memory.transforming_diversity":     c.Memory.TransformingDiversity,
		"memory.effective_flow_threshold":   c.Memory.EffectiveFlowThreshold,
	}
	for key, v := range unit {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be within [0,1], got %v", ErrInvalidConfig, key, v)
		}
	}

	if c.Registry.DefaultAgentID == "" {
		return fmt.Errorf("%w: registry.default_agent_id is required", ErrInvalidConfig)
	}
	if c.Memory.LearningRate <= 0 || c.Memory.LearningRate > 1 {
		return fmt.Errorf("%w: memory.learning_rate must be within (0,1], got %v", ErrInvalidConfig, c.Memory.LearningRate)
	}
	if c.Params.LowFocus > c.Params.HighFocus {
		return fmt.Errorf("%w: params.low_focus must not exceed params.high_focus", ErrInvalidConfig)
	}

	positive := map[string]int{
		"selector.repetition_window":    c.Selector.RepetitionWindow,
		"memory.history_limit":          c.Memory.HistoryLimit,
		"memory.insight_limit":          c.Memory.InsightLimit,
		"memory.adaptation_limit":       c.Memory.AdaptationLimit,
		"memory.pattern_lookback":       c.Memory.PatternLookback,
		"memory.pattern_window":         c.Memory.PatternWindow,
		"memory.stuck_window":           c.Memory.StuckWindow,
		"memory.phase_lookback":         c.Memory.PhaseLookback,
		"memory.repetition_window":      c.Memory.RepetitionWindow,
		"memory.max_recommendations":    c.Memory.MaxRecommendations,
		"memory.avoid_min_observations": c.Memory.AvoidMinObservations,
		"writer.shards":                 c.Writer.Shards,
		"writer.queue_size":             c.Writer.QueueSize,
		"writer.max_attempts":           c.Writer.MaxAttempts,
	}
	for key, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, key, v)
		}
	}

	if c.Memory.PatternWindow < 2 {
		return fmt.Errorf("%w: memory.pattern_window must be at least 2", ErrInvalidConfig)
	}
	if c.Memory.MorningStartHour < 0 || c.Memory.MorningEndHour > 24 || c.Memory.MorningStartHour >= c.Memory.MorningEndHour {
		return fmt.Errorf("%w: memory morning window [%d,%d) is invalid", ErrInvalidConfig, c.Memory.MorningStartHour, c.Memory.MorningEndHour)
	}
	if c.Engine.RiskTimeout <= 0 {
		return fmt.Errorf("%w: engine.risk_timeout must be positive", ErrInvalidConfig)
	}
	if c.Writer.BaseBackoff <= 0 || c.Writer.MaxBackoff < c.Writer.BaseBackoff {
		return fmt.Errorf("%w: writer backoff bounds are invalid", ErrInvalidConfig)
	}

	return nil
}
