package flow

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/OracleRouter/internal/config"
	"github.com/BTreeMap/OracleRouter/internal/models"
	"github.com/BTreeMap/OracleRouter/internal/registry"
)

// maxAlternatives bounds the alternative flows reported with a decision.
const maxAlternatives = 3

// Input is everything the selector needs for one decision.
type Input struct {
	Text    string
	State   models.StateAssessment
	Routing models.SafetyRouting
	// RecentFlows are the user's most recent flow types, oldest first.
	RecentFlows []models.FlowType
	// AvoidFlows are flows the user's history shows to be ineffective.
	AvoidFlows []models.FlowType
	// Recommendations come from flow memory, best first. Leave empty for users
	// without recorded history.
	Recommendations []models.FlowType
}

// Selection is the outcome of one decision.
type Selection struct {
	Flow             models.FlowType
	Agent            models.AgentProfile
	AgentScore       float64
	Intent           Intent
	IntentMatched    bool
	FromPriority     bool
	FromMemory       bool
	Substituted      bool
	CrisisOverride   bool
	Repetition       bool
	UsedDefaultAgent bool
	Alternatives     []models.FlowType
	Factors          []string
}

// Opts holds selector options.
type Opts struct {
	Classifier IntentClassifier
}

// Option configures a Selector.
type Option func(*Opts)

// WithClassifier swaps the intent classifier.
func WithClassifier(c IntentClassifier) Option {
	return func(o *Opts) {
		o.Classifier = c
	}
}

// Selector chooses one flow and one agent per request. It keeps no state of its own.
type Selector struct {
	registry   *registry.Registry
	classifier IntentClassifier
	cfg        config.SelectorConfig
}

// NewSelector creates a selector over the registry.
func NewSelector(reg *registry.Registry, cfg config.SelectorConfig, opts ...Option) *Selector {
	o := Opts{Classifier: KeywordClassifier{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Classifier == nil {
		o.Classifier = KeywordClassifier{}
	}
	return &Selector{registry: reg, classifier: o.Classifier, cfg: cfg}
}

// Select runs the flow state machine and then scores agents for the chosen flow.
func (s *Selector) Select(in Input) Selection {
	if len(in.Routing.Allowed) == 0 {
		in.Routing.Allowed = models.AllFlowTypes
	}

	sel := Selection{}
	sel.Intent = s.classifier.ClassifyIntent(in.Text)
	sel.IntentMatched = sel.Intent != IntentGuidance

	candidate := s.chooseCandidate(in, &sel)

	if in.Routing.IsRestricted(candidate) || !in.Routing.IsAllowed(candidate) {
		replacement := s.substitute(candidate, in.Routing)
		sel.Factors = append(sel.Factors, fmt.Sprintf("%s is restricted; substituted %s", candidate, replacement))
		sel.Substituted = true
		candidate = replacement
	}

	switch {
	case in.State.Emotional.Stability == models.StabilityCrisis:
		if candidate != models.FlowCrisisSupport {
			sel.Factors = append(sel.Factors, fmt.Sprintf("Crisis state overrides %s with crisis support", candidate))
		}
		candidate = models.FlowCrisisSupport
		sel.CrisisOverride = true
	case in.State.Emotional.NeedsSupport && models.IsDeepWork(candidate):
		sel.Factors = append(sel.Factors, fmt.Sprintf("User needs support; %s downgraded to journal reflection", candidate))
		candidate = models.FlowJournalReflection
	}

	// Crisis support is never rotated away.
	if candidate != models.FlowCrisisSupport && s.isRepeated(candidate, in.RecentFlows) {
		replacement := s.repetitionReplacement(candidate, in.Routing)
		if replacement != candidate {
			sel.Factors = append(sel.Factors, fmt.Sprintf("%s used %d times in a row; varied to %s", candidate, s.cfg.RepetitionWindow, replacement))
			sel.Repetition = true
			candidate = replacement
		}
	}

	sel.Flow = candidate
	s.pickAgent(in.State, &sel)
	sel.Alternatives = alternatives(candidate, in.Routing)

	slog.Debug("Selector.Select: flow selected", "flow", sel.Flow, "agent", sel.Agent.ID, "intent", sel.Intent, "score", sel.AgentScore)
	return sel
}

// chooseCandidate covers the priority and intent steps, including memory bias.
func (s *Selector) chooseCandidate(in Input, sel *Selection) models.FlowType {
	if len(in.Routing.Priority) > 0 {
		sel.FromPriority = true
		candidate := in.Routing.Priority[0]
		sel.Factors = append(sel.Factors, fmt.Sprintf("Safety priority: %s", candidate))
		return candidate
	}

	candidate := FlowForIntent(sel.Intent)
	if sel.IntentMatched {
		sel.Factors = append(sel.Factors, fmt.Sprintf("Intent %s maps to %s", sel.Intent, candidate))
	} else {
		for _, rec := range in.Recommendations {
			if in.Routing.IsAllowed(rec) && !in.Routing.IsRestricted(rec) && !contains(in.AvoidFlows, rec) {
				sel.FromMemory = true
				sel.Factors = append(sel.Factors, fmt.Sprintf("No explicit intent; history recommends %s", rec))
				return rec
			}
		}
		sel.Factors = append(sel.Factors, "No explicit intent; defaulting to oracle guidance")
	}

	if contains(in.AvoidFlows, candidate) {
		for _, comp := range complementaryFlows[candidate] {
			if in.Routing.IsAllowed(comp) && !contains(in.AvoidFlows, comp) {
				sel.Factors = append(sel.Factors, fmt.Sprintf("%s has been ineffective for this user; using %s", candidate, comp))
				return comp
			}
		}
	}
	return candidate
}

// substitute returns the first allowed complementary flow, then oracle guidance,
// then the first allowed flow.
func (s *Selector) substitute(ft models.FlowType, routing models.SafetyRouting) models.FlowType {
	for _, comp := range complementaryFlows[ft] {
		if routing.IsAllowed(comp) && !routing.IsRestricted(comp) {
			return comp
		}
	}
	if routing.IsAllowed(models.FlowOracleGuidance) {
		return models.FlowOracleGuidance
	}
	return routing.Allowed[0]
}

func (s *Selector) isRepeated(ft models.FlowType, recent []models.FlowType) bool {
	n := s.cfg.RepetitionWindow
	if n <= 0 || len(recent) < n {
		return false
	}
	for _, prev := range recent[len(recent)-n:] {
		if prev != ft {
			return false
		}
	}
	return true
}

func (s *Selector) repetitionReplacement(ft models.FlowType, routing models.SafetyRouting) models.FlowType {
	for _, comp := range complementaryFlows[ft] {
		if comp != ft && routing.IsAllowed(comp) && !routing.IsRestricted(comp) {
			return comp
		}
	}
	for _, alt := range routing.Allowed {
		if alt != ft {
			return alt
		}
	}
	return ft
}

// pickAgent scores every capable agent and keeps the best; ties keep registry order.
func (s *Selector) pickAgent(state models.StateAssessment, sel *Selection) {
	candidates := s.registry.AgentsForFlow(sel.Flow)
	if len(candidates) == 0 {
		sel.Agent = s.registry.DefaultAgent()
		sel.AgentScore = clamp01(sel.Agent.Capability(sel.Flow))
		sel.UsedDefaultAgent = true
		sel.Factors = append(sel.Factors, fmt.Sprintf("warning: no capable agent for %s; using default agent %s", sel.Flow, sel.Agent.ID))
		slog.Warn("Selector.pickAgent: no capable agent, using default", "flow", sel.Flow, "agent", sel.Agent.ID)
		return
	}

	best := -1.0
	for _, agent := range candidates {
		score := s.scoreAgent(agent, sel.Flow, state)
		if score > best {
			best = score
			sel.Agent = agent
		}
	}
	sel.AgentScore = best
	sel.Factors = append(sel.Factors, fmt.Sprintf("Agent %s scored %.2f for %s", sel.Agent.ID, best, sel.Flow))
}

func (s *Selector) scoreAgent(agent models.AgentProfile, ft models.FlowType, state models.StateAssessment) float64 {
	score := agent.Capability(ft)
	if state.Emotional.NeedsSupport && agent.HasEmotionalTag("supportive") {
		score += s.cfg.SupportBonus
	}
	if !state.Spiritual.Grounded && agent.GroundingCapability() > s.cfg.GroundingCapabilityMin {
		score += s.cfg.GroundingBonus
	}
	if state.Emotional.Stability == models.StabilityCrisis && agent.Safety.CrisisCapable {
		score += s.cfg.CrisisBonus
	}
	return clamp01(score)
}

// alternatives lists up to three other allowed flows: complements first, then priorities.
func alternatives(selected models.FlowType, routing models.SafetyRouting) []models.FlowType {
	out := make([]models.FlowType, 0, maxAlternatives)
	add := func(ft models.FlowType) {
		if len(out) >= maxAlternatives || ft == selected || contains(out, ft) {
			return
		}
		if routing.IsAllowed(ft) && !routing.IsRestricted(ft) {
			out = append(out, ft)
		}
	}
	for _, ft := range complementaryFlows[selected] {
		add(ft)
	}
	for _, ft := range routing.Priority {
		add(ft)
	}
	return out
}

func contains(flows []models.FlowType, ft models.FlowType) bool {
	for _, f := range flows {
		if f == ft {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
