// Package models defines flow type definitions to avoid circular imports.
package models

import "fmt"

// FlowType represents a named category of interaction the router can send a user into.
type FlowType string

// Flow type constants.
const (
	FlowOracleGuidance            FlowType = "oracle_guidance"
	FlowCrisisSupport             FlowType = "crisis_support"
	FlowGroundingExercise         FlowType = "grounding_exercise"
	FlowJournalReflection         FlowType = "journal_reflection"
	FlowRitualCeremony            FlowType = "ritual_ceremony"
	FlowShadowWork                FlowType = "shadow_work"
	FlowArchetypalExploration     FlowType = "archetypal_exploration"
	FlowDreamAnalysis             FlowType = "dream_analysis"
	FlowIntegrationProcess        FlowType = "integration_process"
	FlowElementalBalancing        FlowType = "elemental_balancing"
	FlowSomaticPractice           FlowType = "somatic_practice"
	FlowCelebrationAcknowledgment FlowType = "celebration_acknowledgment"
	FlowVoiceDialogue             FlowType = "voice_dialogue"
)

// AllFlowTypes lists every flow type in canonical order. Callers must not modify it.
var AllFlowTypes = []FlowType{
	FlowOracleGuidance,
	FlowCrisisSupport,
	FlowGroundingExercise,
	FlowJournalReflection,
	FlowRitualCeremony,
	FlowShadowWork,
	FlowArchetypalExploration,
	FlowDreamAnalysis,
	FlowIntegrationProcess,
	FlowElementalBalancing,
	FlowSomaticPractice,
	FlowCelebrationAcknowledgment,
	FlowVoiceDialogue,
}

// DeepWorkFlows are the flows that demand emotional stability from the user.
var DeepWorkFlows = []FlowType{FlowShadowWork, FlowArchetypalExploration}

// IsValidFlowType checks if the given flow type is part of the closed enumeration.
func IsValidFlowType(ft FlowType) bool {
	for _, known := range AllFlowTypes {
		if ft == known {
			return true
		}
	}
	return false
}

// ParseFlowType converts a raw string into a FlowType.
func ParseFlowType(s string) (FlowType, error) {
	ft := FlowType(s)
	if !IsValidFlowType(ft) {
		return "", fmt.Errorf("%w: %q", ErrUnknownFlowType, s)
	}
	return ft, nil
}

// IsDeepWork reports whether the flow belongs to the deep-work set.
func IsDeepWork(ft FlowType) bool {
	for _, d := range DeepWorkFlows {
		if ft == d {
			return true
		}
	}
	return false
}

// flowIntensity is the static 0..6 intensity ranking used for sequence analysis.
var flowIntensity = map[FlowType]int{
	FlowCrisisSupport:             0,
	FlowGroundingExercise:         1,
	FlowSomaticPractice:           1,
	FlowJournalReflection:         2,
	FlowElementalBalancing:        2,
	FlowCelebrationAcknowledgment: 2,
	FlowOracleGuidance:            3,
	FlowVoiceDialogue:             3,
	FlowRitualCeremony:            4,
	FlowDreamAnalysis:             4,
	FlowIntegrationProcess:        4,
	FlowArchetypalExploration:     5,
	FlowShadowWork:                6,
}

// Intensity returns the static intensity rank of the flow (0 = crisis support, 6 = shadow work).
// Unknown flows rank in the middle of the scale.
func (ft FlowType) Intensity() int {
	if v, ok := flowIntensity[ft]; ok {
		return v
	}
	return 3
}
