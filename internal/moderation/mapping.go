package moderation

import (
	"math"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

// Score cutoffs for the risk ladder.
const (
	criticalSelfHarmIntent = 0.5
	criticalSelfHarm       = 0.8
	highSelfHarm           = 0.5
	highViolence           = 0.8
	mediumScore            = 0.3
	lowScore               = 0.1
)

// Assess maps one moderation result onto a RiskAssessment.
func Assess(m openai.Moderation) models.RiskAssessment {
	s := m.CategoryScores
	selfHarm := max(s.SelfHarm, s.SelfHarmIntent, s.SelfHarmInstructions)
	violence := max(s.Violence, s.ViolenceGraphic, s.HarassmentThreatening, s.HateThreatening, s.IllicitViolent)
	hostility := max(s.Harassment, s.Hate)
	peak := max(selfHarm, violence, hostility, s.Illicit, s.Sexual, s.SexualMinors)

	var level models.RiskLevel
	switch {
	case s.SelfHarmIntent >= criticalSelfHarmIntent || selfHarm >= criticalSelfHarm:
		level = models.RiskCritical
	case selfHarm >= highSelfHarm || violence >= highViolence:
		level = models.RiskHigh
	case m.Flagged || peak >= mediumScore:
		level = models.RiskMedium
	case peak >= lowScore:
		level = models.RiskLow
	default:
		level = models.RiskMinimal
	}

	emotion := "neutral"
	switch {
	case peak < lowScore:
	case selfHarm > 0 && selfHarm >= violence && selfHarm >= hostility:
		emotion = "despair"
	case violence > 0 && violence >= hostility:
		emotion = "fear"
	case hostility > 0:
		emotion = "anger"
	default:
		emotion = "unease"
	}

	var support models.SupportType
	switch level {
	case models.RiskCritical, models.RiskHigh:
		support = models.SupportTypeCrisis
	case models.RiskMedium:
		support = models.SupportTypeGrounding
	}

	intensity := math.Min(1, peak)
	valence := 0.0
	if intensity > 0 {
		valence = -intensity
	}

	return models.RiskAssessment{
		RiskLevel: level,
		EmotionalState: models.EmotionalProfile{
			Primary: models.PrimaryEmotion{
				Emotion: emotion,
				Valence: valence,
				Arousal: intensity,
			},
			Intensity:    intensity,
			NeedsSupport: level.Rank() >= models.RiskMedium.Rank(),
			SupportType:  support,
		},
	}
}
