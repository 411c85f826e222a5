package models

import "time"

// SafetyRouting partitions the flow types for one request.
// Invariants: Restricted and Priority are disjoint, Priority is a subset of Allowed,
// and Allowed is never empty.
type SafetyRouting struct {
	Allowed        []FlowType `json:"allowed_flows"`
	Restricted     []FlowType `json:"restricted_flows"`
	Priority       []FlowType `json:"priority_flows"`
	Considerations []string   `json:"considerations"`
}

// IsAllowed reports whether the flow is in the allowed set.
func (r SafetyRouting) IsAllowed(ft FlowType) bool {
	return containsFlow(r.Allowed, ft)
}

// IsRestricted reports whether the flow is in the restricted set.
func (r SafetyRouting) IsRestricted(ft FlowType) bool {
	return containsFlow(r.Restricted, ft)
}

// IsPriority reports whether the flow is in the priority list.
func (r SafetyRouting) IsPriority(ft FlowType) bool {
	return containsFlow(r.Priority, ft)
}

func containsFlow(flows []FlowType, ft FlowType) bool {
	for _, f := range flows {
		if f == ft {
			return true
		}
	}
	return false
}

// Duration is the ordinal length of a flow.
type Duration string

const (
	DurationBrief    Duration = "brief"
	DurationStandard Duration = "standard"
	DurationExtended Duration = "extended"
)

// Style is the interaction style of a flow.
type Style string

const (
	StyleStructured     Style = "structured"
	StyleConversational Style = "conversational"
	StyleExploratory    Style = "exploratory"
)

// SupportLevel is how much scaffolding the response layer should provide.
type SupportLevel string

const (
	SupportMinimal     SupportLevel = "minimal"
	SupportModerate    SupportLevel = "moderate"
	SupportSubstantial SupportLevel = "substantial"
)

// FlowParameters are the execution parameters emitted with a routing decision.
type FlowParameters struct {
	Intensity IntensityLevel `json:"intensity"`
	Duration  Duration       `json:"duration"`
	Style     Style          `json:"style"`
	Support   SupportLevel   `json:"support"`
	Resources []string       `json:"resources,omitempty"`
}

// MinimalParameters is used for fallback decisions.
func MinimalParameters() FlowParameters {
	return FlowParameters{
		Intensity: IntensityGentle,
		Duration:  DurationBrief,
		Style:     StyleConversational,
		Support:   SupportModerate,
	}
}

// AdaptationKind is the dimension of the response an Adaptation changes.
type AdaptationKind string

const (
	AdaptTone     AdaptationKind = "tone"
	AdaptPace     AdaptationKind = "pace"
	AdaptDepth    AdaptationKind = "depth"
	AdaptSupport  AdaptationKind = "support"
	AdaptResource AdaptationKind = "resource"
)

// Adaptation is a directive to the response layer.
type Adaptation struct {
	Kind      AdaptationKind `json:"type"`
	Directive string         `json:"adjustment"`
	Reason    string         `json:"reason"`
}

// SuggestionKind classifies a Suggestion.
type SuggestionKind string

const (
	SuggestPractice   SuggestionKind = "practice"
	SuggestResource   SuggestionKind = "resource"
	SuggestTransition SuggestionKind = "transition"
	SuggestPause      SuggestionKind = "pause"
)

// SuggestionPriority orders suggestions for presentation.
type SuggestionPriority string

const (
	PriorityImmediate SuggestionPriority = "immediate"
	PrioritySoon      SuggestionPriority = "soon"
	PriorityLater     SuggestionPriority = "later"
)

// Suggestion is an optional follow-up the response layer may offer the user.
type Suggestion struct {
	Kind     SuggestionKind     `json:"type"`
	Content  string             `json:"content"`
	Priority SuggestionPriority `json:"priority"`
}

// DecisionMetadata explains a routing decision.
type DecisionMetadata struct {
	DecisionFactors      []string   `json:"decision_factors"`
	ConfidenceScore      float64    `json:"confidence_score"`
	AlternativeFlows     []FlowType `json:"alternative_flows"`
	SafetyConsiderations []string   `json:"safety_considerations"`
}

// RoutingDecision is the contract consumed by the response-composition layer.
type RoutingDecision struct {
	RequestID      string           `json:"request_id"`
	UserID         string           `json:"user_id"`
	SelectedAgent  string           `json:"selected_agent"`
	SelectedFlow   FlowType         `json:"selected_flow"`
	FlowParameters FlowParameters   `json:"flow_parameters"`
	Adaptations    []Adaptation     `json:"adaptations"`
	Suggestions    []Suggestion     `json:"suggestions"`
	Metadata       DecisionMetadata `json:"metadata"`
	RiskLevel      RiskLevel        `json:"risk_level,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
