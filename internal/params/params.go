// Package params derives execution parameters, adaptations and suggestions for a chosen flow.
package params

import (
	"github.com/BTreeMap/OracleRouter/internal/config"
	"github.com/BTreeMap/OracleRouter/internal/models"
	"github.com/BTreeMap/OracleRouter/internal/util"
)

// Fixed directive content.
const (
	CrisisLineResource       = "crisis_hotline"
	GroundingTechnique       = "5-4-3-2-1 grounding: name five things you see, four you can touch, three you hear, two you smell, one you taste"
	CrisisLineSuggestion     = "If you are in danger, contact a local crisis line or emergency services now"
	PauseSuggestion          = "Take a short break: stand up, drink some water, and return when you feel refreshed"
	BreathingPractice        = "Slow breathing: inhale for four counts, exhale for six, for one minute"
	QuestionFramingDirective = "Frame reflections as open questions rather than statements"
)

// Parameterizer is a pure function of its thresholds and inputs.
type Parameterizer struct {
	cfg config.ParamsConfig
}

// New creates a parameterizer.
func New(cfg config.ParamsConfig) *Parameterizer {
	return &Parameterizer{cfg: cfg}
}

// Parameters applies the threshold rules independently and returns the four ordinal parameters.
func (p *Parameterizer) Parameters(state models.StateAssessment, ft models.FlowType) models.FlowParameters {
	fp := models.FlowParameters{
		Intensity: models.IntensityModerate,
		Duration:  models.DurationStandard,
		Style:     models.StyleConversational,
		Support:   models.SupportModerate,
	}

	crisis := state.InCrisis() || ft == models.FlowCrisisSupport
	switch {
	case crisis:
		fp.Intensity = models.IntensityGentle
		fp.Support = models.SupportSubstantial
	case state.Emotional.Stability == models.StabilityStable && state.Spiritual.Grounded:
		fp.Intensity = models.IntensityDeep
	}

	switch {
	case state.Cognitive.Focus < p.cfg.LowFocus:
		fp.Duration = models.DurationBrief
	case state.Cognitive.Focus > p.cfg.HighFocus && state.Cognitive.Clarity == models.ClarityClear:
		fp.Duration = models.DurationExtended
	}

	if state.Cognitive.Receptivity > p.cfg.HighReceptivity {
		fp.Style = models.StyleExploratory
	}
	if state.Emotional.NeedsSupport {
		fp.Style = models.StyleStructured
		fp.Support = models.SupportSubstantial
	}

	if crisis {
		fp.Resources = append(fp.Resources, CrisisLineResource, "grounding_technique")
	}
	if state.Cognitive.Clarity == models.ClarityFatigued {
		fp.Resources = append(fp.Resources, "rest_break")
	}

	return fp
}

// Adaptations emits tone, pace, depth, support and resource directives.
// The question-framing tone directive is chosen for a fixed share of requests,
// deterministically by request id.
func (p *Parameterizer) Adaptations(state models.StateAssessment, ft models.FlowType, requestID string) []models.Adaptation {
	var out []models.Adaptation

	if state.InCrisis() {
		out = append(out,
			models.Adaptation{Kind: models.AdaptTone, Directive: "Use a calm, steady, reassuring tone", Reason: "User is in crisis"},
			models.Adaptation{Kind: models.AdaptPace, Directive: "Slow down; one short idea per message", Reason: "User is in crisis"},
			models.Adaptation{Kind: models.AdaptResource, Directive: "Offer the crisis line and a grounding technique", Reason: "User is in crisis"},
		)
	}
	if state.Emotional.NeedsSupport {
		out = append(out, models.Adaptation{Kind: models.AdaptSupport, Directive: "Validate feelings before offering guidance", Reason: "User indicated a need for support"})
	}
	if state.Cognitive.Focus < p.cfg.LowFocus || state.Cognitive.Clarity == models.ClarityFatigued {
		out = append(out, models.Adaptation{Kind: models.AdaptPace, Directive: "Keep responses short and concrete", Reason: "Low focus or fatigue"})
	}
	if !state.Spiritual.Grounded {
		out = append(out, models.Adaptation{Kind: models.AdaptDepth, Directive: "Stay with the body and the present moment before going deeper", Reason: "User appears ungrounded"})
	} else if state.Emotional.Stability == models.StabilityStable && !state.InCrisis() && models.IsDeepWork(ft) {
		out = append(out, models.Adaptation{Kind: models.AdaptDepth, Directive: "Invite deeper exploration", Reason: "Stable and grounded for deep work"})
	}
	if state.Cognitive.Receptivity > p.cfg.HighReceptivity && !state.InCrisis() {
		out = append(out, models.Adaptation{Kind: models.AdaptTone, Directive: "Use symbolic, exploratory language", Reason: "High receptivity"})
	}
	if !state.InCrisis() && util.SeededChance(requestID, p.cfg.QuestionFramingRate) {
		out = append(out, models.Adaptation{Kind: models.AdaptTone, Directive: QuestionFramingDirective, Reason: "Encourage self-reflection"})
	}

	return out
}

// Suggestions emits practices, resources, transitions and pauses.
func (p *Parameterizer) Suggestions(state models.StateAssessment, ft models.FlowType) []models.Suggestion {
	var out []models.Suggestion

	if state.InCrisis() {
		out = append(out,
			models.Suggestion{Kind: models.SuggestPractice, Content: GroundingTechnique, Priority: models.PriorityImmediate},
			models.Suggestion{Kind: models.SuggestResource, Content: CrisisLineSuggestion, Priority: models.PriorityImmediate},
		)
	}
	if state.Cognitive.Clarity == models.ClarityFatigued {
		out = append(out, models.Suggestion{Kind: models.SuggestPause, Content: PauseSuggestion, Priority: models.PrioritySoon})
	}
	if state.Somatic.Tension > p.cfg.HighTension || state.Somatic.BreathQuality != models.BreathSteady {
		priority := models.PrioritySoon
		if state.InCrisis() {
			priority = models.PriorityImmediate
		}
		out = append(out, models.Suggestion{Kind: models.SuggestPractice, Content: BreathingPractice, Priority: priority})
	}
	if !state.Spiritual.Grounded && ft != models.FlowGroundingExercise {
		out = append(out, models.Suggestion{Kind: models.SuggestTransition, Content: "Move into a short grounding exercise", Priority: models.PrioritySoon})
	}
	if state.Emotional.NeedsSupport && !state.InCrisis() {
		out = append(out, models.Suggestion{Kind: models.SuggestPractice, Content: "Write down one feeling and where you notice it in your body", Priority: models.PriorityLater})
	}
	if models.IsDeepWork(ft) {
		out = append(out, models.Suggestion{Kind: models.SuggestTransition, Content: "Close with an integration reflection", Priority: models.PriorityLater})
	}

	return out
}

// CapIntensity lowers the parameters' intensity to the agent's maximum.
func CapIntensity(fp models.FlowParameters, agent models.AgentProfile) models.FlowParameters {
	if agent.Safety.MaxIntensity != "" {
		fp.Intensity = models.MinIntensity(fp.Intensity, agent.Safety.MaxIntensity)
	}
	return fp
}
