// Package assess turns raw input and an optional external risk assessment into a
// normalized four-axis StateAssessment.
package assess

import (
	"math"
	"time"

	"github.com/BTreeMap/OracleRouter/internal/config"
	"github.com/BTreeMap/OracleRouter/internal/models"
)

// Element names used as keys of the balance vector.
const (
	ElementFire   = "fire"
	ElementWater  = "water"
	ElementEarth  = "earth"
	ElementAir    = "air"
	ElementAether = "aether"
)

// SessionContext carries optional per-session signals.
type SessionContext struct {
	// Duration is how long the current session has been running.
	Duration time.Duration `json:"duration,omitempty"`
	// Balance is the elemental/archetypal balance vector, each component in [0,1].
	Balance map[string]float64 `json:"balance,omitempty"`
}

// Assessor builds StateAssessments. It holds only thresholds and is safe for concurrent use.
type Assessor struct {
	cfg config.AssessConfig
}

// NewAssessor creates an assessor with the given thresholds.
func NewAssessor(cfg config.AssessConfig) *Assessor {
	return &Assessor{cfg: cfg}
}

// Assess never fails; every input is optional.
func (a *Assessor) Assess(text string, risk *models.RiskAssessment, session *SessionContext) models.StateAssessment {
	state := models.BaselineState()

	if risk != nil {
		state.Emotional.Stability = stabilityFor(risk.RiskLevel)
		state.Emotional.NeedsSupport = risk.EmotionalState.NeedsSupport
		state.Emotional.Intensity = clamp(risk.EmotionalState.Intensity, 0, 1)
		state.Emotional.Valence = clamp(risk.EmotionalState.Primary.Valence, -1, 1)

		// High arousal shows up in the body.
		arousal := clamp(risk.EmotionalState.Primary.Arousal, 0, 1)
		if arousal > state.Somatic.Tension {
			state.Somatic.Tension = arousal
		}
		switch state.Emotional.Stability {
		case models.StabilityCrisis:
			state.Somatic.BreathQuality = models.BreathIrregular
			state.Spiritual.Readiness = models.ReadinessLow
			state.Cognitive.Receptivity = math.Min(state.Cognitive.Receptivity, 0.3)
		case models.StabilityUnstable:
			state.Somatic.BreathQuality = models.BreathShallow
			state.Spiritual.Readiness = models.ReadinessLow
		}
	}

	if session == nil {
		return state
	}

	if a.cfg.FatigueAfter > 0 && session.Duration > a.cfg.FatigueAfter {
		state.Cognitive.Clarity = models.ClarityFatigued
		state.Cognitive.Focus *= a.cfg.FatigueFocusFactor
		if state.Somatic.Energy == models.EnergyBalanced {
			state.Somatic.Energy = models.EnergyDepleted
		}
	}

	if len(session.Balance) > 0 && BalanceStdDev(session.Balance) > a.cfg.BalanceStdDevMax {
		state.Spiritual.Grounded = false
		state.Somatic.Energy = models.EnergyImbalanced
	}

	return state
}

func stabilityFor(level models.RiskLevel) models.Stability {
	switch level {
	case models.RiskCritical:
		return models.StabilityCrisis
	case models.RiskHigh:
		return models.StabilityUnstable
	case models.RiskMedium:
		return models.StabilityFluctuating
	default:
		return models.StabilityStable
	}
}

// BalanceStdDev returns the population standard deviation of the balance components.
func BalanceStdDev(balance map[string]float64) float64 {
	if len(balance) == 0 {
		return 0
	}
	var sum float64
	for _, v := range balance {
		sum += v
	}
	mean := sum / float64(len(balance))
	var sq float64
	for _, v := range balance {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(balance)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
