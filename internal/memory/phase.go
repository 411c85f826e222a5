package memory

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

// phaseFlows are the fixed recommendations attached to each phase.
var phaseFlows = map[models.Phase][]models.FlowType{
	models.PhaseExploring:    {models.FlowOracleGuidance, models.FlowJournalReflection, models.FlowElementalBalancing},
	models.PhaseDeepening:    {models.FlowShadowWork, models.FlowDreamAnalysis, models.FlowArchetypalExploration},
	models.PhaseIntegrating:  {models.FlowIntegrationProcess, models.FlowJournalReflection, models.FlowRitualCeremony},
	models.PhaseTransforming: {models.FlowRitualCeremony, models.FlowVoiceDialogue, models.FlowCelebrationAcknowledgment},
	models.PhaseStabilizing:  {models.FlowGroundingExercise, models.FlowSomaticPractice, models.FlowJournalReflection},
}

// PhaseFlows returns a copy of the recommendation list for a phase.
func PhaseFlows(phase models.Phase) []models.FlowType {
	return append([]models.FlowType(nil), phaseFlows[phase]...)
}

// ClassifyPhase is a pure function of the last PhaseLookback records.
// Rules are checked in order: exploring, transforming, integrating, deepening,
// and stabilizing otherwise.
func (m *FlowMemory) ClassifyPhase(history []models.FlowRecord) models.Phase {
	records := recent(history, m.cfg.PhaseLookback)
	if len(records) < m.cfg.ExploringMinRecords || len(records) == 0 {
		return models.PhaseExploring
	}

	distinct := make(map[models.FlowType]bool)
	var sum float64
	sawDeep, sawIntegration := false, false
	for _, r := range records {
		distinct[r.FlowType] = true
		sum += r.Effectiveness
		if models.IsDeepWork(r.FlowType) {
			sawDeep = true
		}
		if r.FlowType == models.FlowIntegrationProcess {
			sawIntegration = true
		}
	}
	diversity := float64(len(distinct)) / float64(len(records))
	avg := sum / float64(len(records))

	// First match wins: exploring, transforming, integrating, deepening, stabilizing.
	// Transforming is checked ahead of the deep-work phases, so a varied but effective
	// window (20 records, 8 flows, avg 0.85) reads as transforming.
	switch {
	case diversity > m.cfg.ExploringDiversity:
		return models.PhaseExploring
	case avg > m.cfg.TransformingEffectiveness && diversity < m.cfg.TransformingDiversity:
		return models.PhaseTransforming
	case sawIntegration && avg > m.cfg.IntegratingEffectiveness:
		return models.PhaseIntegrating
	case sawDeep && avg > m.cfg.DeepeningEffectiveness:
		return models.PhaseDeepening
	default:
		return models.PhaseStabilizing
	}
}

func (m *FlowMemory) updatePhase(p *models.UserFlowProfile, at time.Time) {
	phase := m.ClassifyPhase(p.FlowHistory)
	if phase == p.CurrentPhase.Current && len(p.CurrentPhase.RecommendedFlows) > 0 {
		return
	}
	changed := phase != p.CurrentPhase.Current
	from := p.CurrentPhase.Current
	started := p.CurrentPhase.StartedAt
	if changed || started.IsZero() {
		started = at
	}
	p.CurrentPhase = models.PhaseState{
		Current:          phase,
		StartedAt:        started,
		RecommendedFlows: PhaseFlows(phase),
	}
	if changed {
		m.addInsight(p, "phase", fmt.Sprintf("Moved from %s into %s", from, phase), at)
		slog.Info("FlowMemory.updatePhase: phase changed", "userID", p.UserID, "from", from, "to", phase)
	}
}
