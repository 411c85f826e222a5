package models

// IntensityLevel is an ordinal intensity used for agent limits and flow parameters.
type IntensityLevel string

const (
	IntensityGentle   IntensityLevel = "gentle"
	IntensityModerate IntensityLevel = "moderate"
	IntensityDeep     IntensityLevel = "deep"
)

// Rank orders intensity levels gentle (0) < moderate (1) < deep (2).
// Unknown values rank as moderate.
func (l IntensityLevel) Rank() int {
	switch l {
	case IntensityGentle:
		return 0
	case IntensityDeep:
		return 2
	default:
		return 1
	}
}

// MinIntensity returns the lower of two intensity levels.
func MinIntensity(a, b IntensityLevel) IntensityLevel {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}

// Modality is a delivery channel an agent supports.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityVoice Modality = "voice"
)

// SafetyProfile captures how an agent may be used around vulnerable users.
type SafetyProfile struct {
	CrisisCapable     bool           `json:"crisis_capable" yaml:"crisis_capable"`
	MaxIntensity      IntensityLevel `json:"max_intensity" yaml:"max_intensity"`
	RequiresGrounding bool           `json:"requires_grounding" yaml:"requires_grounding"`
}

// AgentProfile describes one response style and its per-flow capability.
type AgentProfile struct {
	ID             string               `json:"id" yaml:"id"`
	Name           string               `json:"name" yaml:"name"`
	Capabilities   map[FlowType]float64 `json:"capabilities" yaml:"capabilities"`
	EmotionalRange []string             `json:"emotional_range" yaml:"emotional_range"`
	Modalities     []Modality           `json:"modalities" yaml:"modalities"`
	Safety         SafetyProfile        `json:"safety" yaml:"safety"`
}

// Capability returns the agent's score for a flow, 0 when the flow is not listed.
func (a AgentProfile) Capability(ft FlowType) float64 {
	return a.Capabilities[ft]
}

// GroundingCapability is the agent's ability to ground a user, read from its grounding-exercise score.
func (a AgentProfile) GroundingCapability() float64 {
	return a.Capabilities[FlowGroundingExercise]
}

// HasEmotionalTag reports whether the tag is in the agent's emotional range.
func (a AgentProfile) HasEmotionalTag(tag string) bool {
	for _, t := range a.EmotionalRange {
		if t == tag {
			return true
		}
	}
	return false
}

// SupportsModality reports whether the agent can deliver through the modality.
func (a AgentProfile) SupportsModality(m Modality) bool {
	for _, supported := range a.Modalities {
		if supported == m {
			return true
		}
	}
	return false
}
