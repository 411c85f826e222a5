package config

import "time"

// DefaultConfig returns a Config with the engine's standard thresholds.
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			MinCapability:  0.6,
			DefaultAgentID: "maya",
		},
		Assess: AssessConfig{
			FatigueAfter:       time.Hour,
			FatigueFocusFactor: 0.7,
			BalanceStdDevMax:   0.3,
		},
		Selector: SelectorConfig{
			SupportBonus:           0.2,
			GroundingBonus:         0.3,
			GroundingCapabilityMin: 0.7,
			CrisisBonus:            0.5,
			RepetitionWindow:       3,
		},
		Params: ParamsConfig{
			LowFocus:            0.4,
			HighFocus:           0.7,
			HighReceptivity:     0.7,
			HighTension:         0.7,
			QuestionFramingRate: 0.6,
		},
		Memory: MemoryConfig{
			LearningRate:         0.1,
			PositiveImpactFactor: 1.2,
			NegativeImpactFactor: 0.8,
			AvoidEffectiveness:   0.3,
			AvoidMinObservations: 3,

			HistoryLimit:    100,
			InsightLimit:    50,
			AdaptationLimit: 50,

			PatternLookback:  20,
			PatternWindow:    3,
			StuckWindow:      3,
			StuckVariance:    0.05,
			CrisisPatternMin: 2,
			MorningStartHour: 6,
			MorningEndHour:   12,
			RhythmMinSamples: 2,

			PhaseLookback:             20,
			ExploringMinRecords:       5,
			ExploringDiversity:        0.7,
			DeepeningEffectiveness:    0.6,
			IntegratingEffectiveness:  0.7,
			TransformingEffectiveness: 0.8,
			TransformingDiversity:     0.5,

			RepetitionWindow:       3,
			EffectiveFlowThreshold: 0.7,
			MaxRecommendations:     5,
		},
		Engine: EngineConfig{
			RiskTimeout:         2 * time.Second,
			PendingDecisionTTL:  24 * time.Hour,
			MaxPendingDecisions: 10000,
			MaintenanceSchedule: "*/5 * * * *",
		},
		Writer: WriterConfig{
			Shards:      4,
			QueueSize:   256,
			MaxAttempts: 5,
			BaseBackoff: 100 * time.Millisecond,
			MaxBackoff:  5 * time.Second,
		},
	}
}
