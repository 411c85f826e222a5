package memory

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

// initialEffectiveness seeds the EMA for a flow seen for the first time.
const initialEffectiveness = 0.5

// updatePreference applies the exponential moving average to effectiveness and
// preference score.
func (m *FlowMemory) updatePreference(p *models.UserFlowProfile, r models.FlowRecord) {
	alpha := m.cfg.LearningRate
	pref, ok := p.PreferredFlows[r.FlowType]
	if !ok {
		pref = models.FlowPreference{Effectiveness: initialEffectiveness}
	}

	impact := m.cfg.NegativeImpactFactor
	if r.EmotionalImpact > 0 {
		impact = m.cfg.PositiveImpactFactor
	}

	pref.Effectiveness = clamp(pref.Effectiveness*(1-alpha)+r.Effectiveness*alpha, 0, 1)
	pref.PreferenceScore = clamp(pref.PreferenceScore*(1-alpha)+(r.Effectiveness*impact)*alpha, -1, 1)
	pref.Frequency++
	pref.LastUsed = r.Timestamp
	if pref.TimeConditions == nil {
		pref.TimeConditions = make(map[models.HourBucket]int)
	}
	pref.TimeConditions[models.BucketForHour(r.Timestamp.In(m.loc).Hour())]++

	p.PreferredFlows[r.FlowType] = pref
}

// updateAvoidance moves a flow into the avoid set once it has proven ineffective,
// and back out once it recovers.
func (m *FlowMemory) updateAvoidance(p *models.UserFlowProfile, r models.FlowRecord) {
	pref := p.PreferredFlows[r.FlowType]
	avoided := p.IsAvoided(r.FlowType)

	switch {
	case !avoided && pref.Frequency >= m.cfg.AvoidMinObservations && pref.Effectiveness < m.cfg.AvoidEffectiveness:
		p.AvoidFlows = append(p.AvoidFlows, r.FlowType)
		reason := fmt.Sprintf("effectiveness %.2f after %d sessions", pref.Effectiveness, pref.Frequency)
		m.addAdaptation(p, models.AdaptationEntry{Flow: r.FlowType, Change: "avoid", Reason: reason, CreatedAt: r.Timestamp})
		m.addInsight(p, "avoidance", fmt.Sprintf("%s has not been helping (%s)", r.FlowType, reason), r.Timestamp)
		slog.Info("FlowMemory.updateAvoidance: flow avoided", "userID", p.UserID, "flow", r.FlowType, "effectiveness", pref.Effectiveness)

	case avoided && pref.Effectiveness >= m.cfg.AvoidEffectiveness:
		kept := p.AvoidFlows[:0]
		for _, ft := range p.AvoidFlows {
			if ft != r.FlowType {
				kept = append(kept, ft)
			}
		}
		p.AvoidFlows = kept
		m.addAdaptation(p, models.AdaptationEntry{
			Flow: r.FlowType, Change: "restore",
			Reason:    fmt.Sprintf("effectiveness recovered to %.2f", pref.Effectiveness),
			CreatedAt: r.Timestamp,
		})
		slog.Info("FlowMemory.updateAvoidance: flow restored", "userID", p.UserID, "flow", r.FlowType, "effectiveness", pref.Effectiveness)
	}
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
