package models

import "fmt"

// RiskLevel is the externally computed safety level of a message.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "minimal"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskMinimal:  0,
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// IsValidRiskLevel checks whether the risk level is known.
func IsValidRiskLevel(r RiskLevel) bool {
	_, ok := riskRank[r]
	return ok
}

// ParseRiskLevel converts a raw string into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(s)
	if !IsValidRiskLevel(r) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRiskLevel, s)
	}
	return r, nil
}

// Rank orders risk levels from minimal (0) to critical (4). Unknown levels rank as minimal.
func (r RiskLevel) Rank() int {
	return riskRank[r]
}

// SupportType is the kind of support the external assessor believes is needed.
type SupportType string

const (
	SupportTypeCrisis      SupportType = "crisis"
	SupportTypeGentle      SupportType = "gentle"
	SupportTypeGrounding   SupportType = "grounding"
	SupportTypeCelebration SupportType = "celebration"
	SupportTypeIntegration SupportType = "integration"
)

// PrimaryEmotion is the dominant emotion detected in the message.
type PrimaryEmotion struct {
	Emotion string  `json:"emotion"`
	Valence float64 `json:"valence"` // [-1,1]
	Arousal float64 `json:"arousal"` // [0,1]
}

// EmotionalProfile is the emotional part of an external risk assessment.
type EmotionalProfile struct {
	Primary      PrimaryEmotion `json:"primary"`
	Intensity    float64        `json:"intensity"`
	NeedsSupport bool           `json:"needs_support"`
	SupportType  SupportType    `json:"support_type,omitempty"`
}

// RiskAssessment is consumed, never produced, by the routing core.
type RiskAssessment struct {
	RiskLevel      RiskLevel        `json:"risk_level"`
	EmotionalState EmotionalProfile `json:"emotional_state"`
}
