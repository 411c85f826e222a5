// Package models defines the per-request state assessment structures.
package models

// Stability describes how steady the user's emotional state is.
type Stability string

const (
	StabilityStable      Stability = "stable"
	StabilityFluctuating Stability = "fluctuating"
	StabilityUnstable    Stability = "unstable"
	StabilityCrisis      Stability = "crisis"
)

// Readiness describes how prepared the user is for spiritual depth work.
type Readiness string

const (
	ReadinessLow      Readiness = "low"
	ReadinessModerate Readiness = "moderate"
	ReadinessHigh     Readiness = "high"
)

// Clarity describes the user's cognitive clarity.
type Clarity string

const (
	ClarityClear    Clarity = "clear"
	ClarityFoggy    Clarity = "foggy"
	ClarityFatigued Clarity = "fatigued"
)

// Energy describes the user's somatic energy balance.
type Energy string

const (
	EnergyBalanced   Energy = "balanced"
	EnergyDepleted   Energy = "depleted"
	EnergyImbalanced Energy = "imbalanced"
)

// BreathQuality describes the user's breathing pattern.
type BreathQuality string

const (
	BreathSteady    BreathQuality = "steady"
	BreathShallow   BreathQuality = "shallow"
	BreathIrregular BreathQuality = "irregular"
)

// EmotionalAxis is the emotional part of a StateAssessment.
type EmotionalAxis struct {
	Stability    Stability `json:"stability"`
	Intensity    float64   `json:"intensity"`
	NeedsSupport bool      `json:"needs_support"`
	Valence      float64   `json:"valence"`
}

// SpiritualAxis is the spiritual/groundedness part of a StateAssessment.
type SpiritualAxis struct {
	Grounded  bool      `json:"grounded"`
	Openness  float64   `json:"openness"`
	Readiness Readiness `json:"readiness"`
}

// CognitiveAxis is the cognitive part of a StateAssessment.
type CognitiveAxis struct {
	Clarity     Clarity `json:"clarity"`
	Focus       float64 `json:"focus"`
	Receptivity float64 `json:"receptivity"`
}

// SomaticAxis is the somatic part of a StateAssessment.
type SomaticAxis struct {
	Tension       float64       `json:"tension"`
	Energy        Energy        `json:"energy"`
	BreathQuality BreathQuality `json:"breath_quality"`
}

// StateAssessment is the normalized four-axis view of the user for one request.
// It is never persisted on its own; only its summary ends up in a FlowRecord.
type StateAssessment struct {
	Emotional EmotionalAxis `json:"emotional"`
	Spiritual SpiritualAxis `json:"spiritual"`
	Cognitive CognitiveAxis `json:"cognitive"`
	Somatic   SomaticAxis   `json:"somatic"`
}

// BaselineState returns the neutral, stable assessment used when nothing is known.
func BaselineState() StateAssessment {
	return StateAssessment{
		Emotional: EmotionalAxis{
			Stability: StabilityStable,
			Intensity: 0.5,
		},
		Spiritual: SpiritualAxis{
			Grounded:  true,
			Openness:  0.7,
			Readiness: ReadinessModerate,
		},
		Cognitive: CognitiveAxis{
			Clarity:     ClarityClear,
			Focus:       0.7,
			Receptivity: 0.6,
		},
		Somatic: SomaticAxis{
			Tension:       0.3,
			Energy:        EnergyBalanced,
			BreathQuality: BreathSteady,
		},
	}
}

// InCrisis reports whether the emotional axis is at crisis stability.
func (s StateAssessment) InCrisis() bool {
	return s.Emotional.Stability == StabilityCrisis
}
