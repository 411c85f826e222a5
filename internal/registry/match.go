package registry

import "github.com/BTreeMap/OracleRouter/internal/models"

// Requirements are the optional criteria for EvaluateMatch. Zero values mean "not supplied".
type Requirements struct {
	Flow          models.FlowType
	EmotionalTags []string
	Modality      models.Modality
	Intensity     models.IntensityLevel
	CrisisCapable bool
}

// EvaluateMatch returns the equal-weight average of the supplied criteria for the agent,
// or 0 if the agent is unknown or nothing was supplied.
func (r *Registry) EvaluateMatch(agentID string, req Requirements) float64 {
	agent, ok := r.Agent(agentID)
	if !ok {
		return 0
	}

	var total float64
	var n int

	if req.Flow != "" {
		total += agent.Capability(req.Flow)
		n++
	}
	if len(req.EmotionalTags) > 0 {
		matched := 0
		for _, tag := range req.EmotionalTags {
			if agent.HasEmotionalTag(tag) {
				matched++
			}
		}
		total += float64(matched) / float64(len(req.EmotionalTags))
		n++
	}
	if req.Modality != "" {
		total += boolScore(agent.SupportsModality(req.Modality))
		n++
	}
	if req.Intensity != "" {
		total += boolScore(agent.Safety.MaxIntensity.Rank() >= req.Intensity.Rank())
		n++
	}
	if req.CrisisCapable {
		total += boolScore(agent.Safety.CrisisCapable)
		n++
	}

	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
