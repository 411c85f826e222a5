// Package safety converts an external risk assessment and the current state into
// allowed, restricted and priority flow sets.
package safety

import (
	"log/slog"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

// Flow sets used by the routing rules.
var (
	criticalAllowed    = []models.FlowType{models.FlowCrisisSupport, models.FlowGroundingExercise, models.FlowSomaticPractice}
	criticalPriority   = []models.FlowType{models.FlowCrisisSupport}
	criticalRestricted = []models.FlowType{models.FlowShadowWork, models.FlowArchetypalExploration, models.FlowDreamAnalysis}

	highPriority   = []models.FlowType{models.FlowGroundingExercise, models.FlowSomaticPractice, models.FlowJournalReflection}
	highRestricted = []models.FlowType{models.FlowShadowWork, models.FlowRitualCeremony}

	ungroundedPriority   = []models.FlowType{models.FlowGroundingExercise, models.FlowElementalBalancing}
	ungroundedRestricted = []models.FlowType{models.FlowArchetypalExploration}
)

// Router computes SafetyRouting. It is stateless.
type Router struct{}

// NewRouter creates a safety router.
func NewRouter() *Router {
	return &Router{}
}

// Route applies the safety rules in order. The result always satisfies
// Restricted ∩ Priority = ∅, Priority ⊆ Allowed and len(Allowed) > 0.
func (r *Router) Route(risk *models.RiskAssessment, state models.StateAssessment) models.SafetyRouting {
	b := newBuilder(models.AllFlowTypes)

	if risk == nil {
		b.consider("No risk assessment available; all flows allowed")
		return b.build()
	}

	if risk.RiskLevel == models.RiskCritical {
		b.allowOnly(criticalAllowed)
		for _, ft := range criticalRestricted {
			b.restrict(ft)
		}
		for _, ft := range criticalPriority {
			b.prioritize(ft)
		}
		b.consider("Critical risk detected; routing restricted to crisis support and stabilizing practices")
	}

	if risk.RiskLevel == models.RiskHigh {
		for _, ft := range highRestricted {
			b.restrict(ft)
		}
		for _, ft := range highPriority {
			b.prioritize(ft)
		}
		b.consider("High risk detected; prioritizing grounding and gentle processing, avoiding deep work")
	}

	if !state.Spiritual.Grounded {
		for _, ft := range ungroundedRestricted {
			b.restrict(ft)
		}
		for _, ft := range ungroundedPriority {
			b.prioritize(ft)
		}
		b.consider("User appears ungrounded; grounding and elemental balancing prioritized")
	}

	if risk.EmotionalState.SupportType == models.SupportTypeCelebration {
		b.prioritize(models.FlowCelebrationAcknowledgment)
		b.consider("Celebratory state detected; acknowledging the moment")
	}

	routing := b.build()
	slog.Debug("Router.Route: safety routing computed", "risk", risk.RiskLevel, "allowed", len(routing.Allowed), "restricted", routing.Restricted, "priority", routing.Priority)
	return routing
}

type builder struct {
	allowed        []models.FlowType
	restricted     []models.FlowType
	priority       []models.FlowType
	considerations []string
}

func newBuilder(all []models.FlowType) *builder {
	return &builder{allowed: append([]models.FlowType(nil), all...)}
}

// allowOnly narrows the allowed set to the given flows.
func (b *builder) allowOnly(flows []models.FlowType) {
	var next []models.FlowType
	for _, ft := range b.allowed {
		if contains(flows, ft) {
			next = append(next, ft)
		}
	}
	b.allowed = next
	var prio []models.FlowType
	for _, ft := range b.priority {
		if contains(b.allowed, ft) {
			prio = append(prio, ft)
		}
	}
	b.priority = prio
}

// restrict adds a restriction. Restrictions are never lifted and remove the
// flow from the allowed and priority sets.
func (b *builder) restrict(ft models.FlowType) {
	if !contains(b.restricted, ft) {
		b.restricted = append(b.restricted, ft)
	}
	b.allowed = remove(b.allowed, ft)
	b.priority = remove(b.priority, ft)
}

// prioritize appends a priority flow unless it is restricted, disallowed or already present.
func (b *builder) prioritize(ft models.FlowType) {
	if contains(b.restricted, ft) || !contains(b.allowed, ft) || contains(b.priority, ft) {
		return
	}
	b.priority = append(b.priority, ft)
}

func (b *builder) consider(reason string) {
	b.considerations = append(b.considerations, reason)
}

func (b *builder) build() models.SafetyRouting {
	if len(b.allowed) == 0 {
		// Unreachable with the current rule set.
		b.allowed = []models.FlowType{models.FlowCrisisSupport}
		b.restricted = remove(b.restricted, models.FlowCrisisSupport)
	}
	return models.SafetyRouting{
		Allowed:        b.allowed,
		Restricted:     nonNil(b.restricted),
		Priority:       nonNil(b.priority),
		Considerations: b.considerations,
	}
}

func contains(flows []models.FlowType, ft models.FlowType) bool {
	for _, f := range flows {
		if f == ft {
			return true
		}
	}
	return false
}

func remove(flows []models.FlowType, ft models.FlowType) []models.FlowType {
	out := flows[:0]
	for _, f := range flows {
		if f != ft {
			out = append(out, f)
		}
	}
	return out
}

func nonNil(flows []models.FlowType) []models.FlowType {
	if flows == nil {
		return []models.FlowType{}
	}
	return flows
}
