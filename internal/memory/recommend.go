package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BTreeMap/OracleRouter/internal/flow"
	"github.com/BTreeMap/OracleRouter/internal/models"
)

// Source weights for ranking merged recommendations.
const (
	weightComplement = 1.0
	weightEmotion    = 1.0
	weightPhase      = 0.75
	weightTimeOfDay  = 0.5
)

// positiveValence separates the celebration table from the neutral one.
const positiveValence = 0.3

type timeTable struct {
	appropriate []models.FlowType
	avoid       []models.FlowType
}

var timeOfDayFlows = map[models.HourBucket]timeTable{
	models.BucketMorning: {
		appropriate: []models.FlowType{models.FlowGroundingExercise, models.FlowJournalReflection, models.FlowOracleGuidance},
		avoid:       []models.FlowType{models.FlowDreamAnalysis},
	},
	models.BucketAfternoon: {
		appropriate: []models.FlowType{models.FlowElementalBalancing, models.FlowArchetypalExploration, models.FlowVoiceDialogue},
	},
	models.BucketEvening: {
		appropriate: []models.FlowType{models.FlowJournalReflection, models.FlowIntegrationProcess, models.FlowRitualCeremony},
	},
	models.BucketNight: {
		appropriate: []models.FlowType{models.FlowDreamAnalysis, models.FlowSomaticPractice, models.FlowGroundingExercise},
		avoid:       []models.FlowType{models.FlowShadowWork, models.FlowArchetypalExploration},
	},
}

var (
	supportFlows     = []models.FlowType{models.FlowGroundingExercise, models.FlowSomaticPractice, models.FlowJournalReflection}
	celebrationFlows = []models.FlowType{models.FlowCelebrationAcknowledgment, models.FlowRitualCeremony, models.FlowArchetypalExploration}
	neutralFlows     = []models.FlowType{models.FlowOracleGuidance, models.FlowJournalReflection, models.FlowElementalBalancing}
)

// Recommendation is the ranked output of Recommendations.
type Recommendation struct {
	Flows     []models.FlowType `json:"flows"`
	Rationale []string          `json:"rationale"`
	// Learned is false for a user with no recorded flows; the ranking then
	// comes only from the time-of-day and emotion tables.
	Learned bool `json:"learned"`
}

type ranker struct {
	score   map[models.FlowType]float64
	order   []models.FlowType
	exclude map[models.FlowType]bool
}

func newRanker() *ranker {
	return &ranker{score: make(map[models.FlowType]float64), exclude: make(map[models.FlowType]bool)}
}

func (r *ranker) add(w float64, flows ...models.FlowType) {
	for _, ft := range flows {
		if _, seen := r.score[ft]; !seen {
			r.order = append(r.order, ft)
		}
		r.score[ft] += w
	}
}

func (r *ranker) top(n int) []models.FlowType {
	var out []models.FlowType
	for _, ft := range r.order {
		if !r.exclude[ft] {
			out = append(out, ft)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return r.score[out[i]] > r.score[out[j]] })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Recommendations merges anti-repetition, time of day, emotional state, phase and
// historical effectiveness into at most MaxRecommendations flows, best first.
func (m *FlowMemory) Recommendations(ctx context.Context, userID string, state models.StateAssessment) (Recommendation, error) {
	if userID == "" {
		return Recommendation{}, models.ErrEmptyUserID
	}
	e := m.lock(ctx, userID)
	p := e.profile.Clone()
	e.mu.Unlock()

	return m.recommend(p, state), nil
}

func (m *FlowMemory) recommend(p *models.UserFlowProfile, state models.StateAssessment) Recommendation {
	r := newRanker()
	var rationale []string

	last := p.LastFlows(m.cfg.RepetitionWindow)
	if m.cfg.RepetitionWindow > 0 && len(last) == m.cfg.RepetitionWindow && allSame(last) {
		repeated := last[0]
		r.exclude[repeated] = true
		comps := flow.ComplementaryFlows(repeated)
		r.add(weightComplement, comps...)
		rationale = append(rationale, fmt.Sprintf("%s was used %d times in a row; try %s", repeated, len(last), joinFlows(comps)))
	}

	bucket := models.BucketForHour(m.now().In(m.loc).Hour())
	table := timeOfDayFlows[bucket]
	r.add(weightTimeOfDay, table.appropriate...)
	for _, ft := range table.avoid {
		r.exclude[ft] = true
	}
	rationale = append(rationale, fmt.Sprintf("Suited to the %s: %s", bucket, joinFlows(table.appropriate)))

	switch {
	case state.Emotional.NeedsSupport || state.Emotional.Stability == models.StabilityUnstable || state.InCrisis():
		r.add(weightEmotion, supportFlows...)
		rationale = append(rationale, "Support is needed; favouring grounding and reflection")
	case state.Emotional.Valence > positiveValence:
		r.add(weightEmotion, celebrationFlows...)
		rationale = append(rationale, "Positive mood; favouring celebration and exploration")
	default:
		r.add(weightEmotion, neutralFlows...)
	}

	if flows := p.CurrentPhase.RecommendedFlows; len(flows) > 0 {
		r.add(weightPhase, flows...)
		rationale = append(rationale, fmt.Sprintf("Current phase is %s", p.CurrentPhase.Current))
	}

	effective := m.effectiveFlows(p)
	for _, ft := range effective {
		r.add(p.PreferredFlows[ft].Effectiveness, ft)
	}
	if len(effective) > 0 {
		rationale = append(rationale, fmt.Sprintf("Historically effective: %s", joinFlows(effective)))
	}

	for _, ft := range p.AvoidFlows {
		r.exclude[ft] = true
	}

	return Recommendation{
		Flows:     r.top(m.cfg.MaxRecommendations),
		Rationale: rationale,
		Learned:   len(p.FlowHistory) > 0,
	}
}

// effectiveFlows lists flows whose EMA exceeds the threshold, best first.
func (m *FlowMemory) effectiveFlows(p *models.UserFlowProfile) []models.FlowType {
	var out []models.FlowType
	for _, ft := range models.AllFlowTypes {
		if pref, ok := p.PreferredFlows[ft]; ok && pref.Effectiveness > m.cfg.EffectiveFlowThreshold {
			out = append(out, ft)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return p.PreferredFlows[out[i]].Effectiveness > p.PreferredFlows[out[j]].Effectiveness
	})
	return out
}

func allSame(flows []models.FlowType) bool {
	for _, ft := range flows[1:] {
		if ft != flows[0] {
			return false
		}
	}
	return true
}

func joinFlows(flows []models.FlowType) string {
	parts := make([]string, len(flows))
	for i, ft := range flows {
		parts[i] = string(ft)
	}
	return strings.Join(parts, ", ")
}
