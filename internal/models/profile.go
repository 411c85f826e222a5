package models

import (
	"fmt"
	"time"
)

// FlowRecord is one completed interaction. Immutable after creation.
type FlowRecord struct {
	FlowType        FlowType  `json:"flow_type"`
	Timestamp       time.Time `json:"timestamp"`
	EmotionalImpact float64   `json:"emotional_impact"` // [-1,1]
	Effectiveness   float64   `json:"effectiveness"`    // [0,1]
	SafetyLevel     RiskLevel `json:"safety_level,omitempty"`
}

// Validate checks that the record is well formed.
func (r FlowRecord) Validate() error {
	if !IsValidFlowType(r.FlowType) {
		return fmt.Errorf("%w: %q", ErrUnknownFlowType, r.FlowType)
	}
	if r.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if r.Effectiveness < 0 || r.Effectiveness > 1 {
		return ErrEffectivenessRange
	}
	if r.EmotionalImpact < -1 || r.EmotionalImpact > 1 {
		return ErrEmotionalImpactRange
	}
	if r.SafetyLevel != "" && !IsValidRiskLevel(r.SafetyLevel) {
		return fmt.Errorf("%w: %q", ErrUnknownRiskLevel, r.SafetyLevel)
	}
	return nil
}

// HourBucket is a coarse time-of-day window.
type HourBucket string

const (
	BucketMorning   HourBucket = "morning"
	BucketAfternoon HourBucket = "afternoon"
	BucketEvening   HourBucket = "evening"
	BucketNight     HourBucket = "night"
)

// BucketForHour maps a local hour (0-23) to its bucket:
// morning 6-11, afternoon 12-16, evening 17-21, night otherwise.
func BucketForHour(hour int) HourBucket {
	switch {
	case hour >= 6 && hour < 12:
		return BucketMorning
	case hour >= 12 && hour < 17:
		return BucketAfternoon
	case hour >= 17 && hour < 22:
		return BucketEvening
	default:
		return BucketNight
	}
}

// FlowPreference is the learned per-flow preference of one user.
type FlowPreference struct {
	PreferenceScore float64            `json:"preference_score"` // [-1,1]
	Effectiveness   float64            `json:"effectiveness"`    // EMA, [0,1]
	Frequency       int                `json:"frequency"`
	TimeConditions  map[HourBucket]int `json:"time_conditions,omitempty"`
	LastUsed        time.Time          `json:"last_used"`
}

// Phase is a coarse classification of a user's developmental trajectory.
type Phase string

const (
	PhaseExploring    Phase = "exploring"
	PhaseDeepening    Phase = "deepening"
	PhaseIntegrating  Phase = "integrating"
	PhaseTransforming Phase = "transforming"
	PhaseStabilizing  Phase = "stabilizing"
)

// PhaseState is the user's current phase and what it recommends.
type PhaseState struct {
	Current          Phase      `json:"current"`
	StartedAt        time.Time  `json:"started_at"`
	RecommendedFlows []FlowType `json:"recommended_flows"`
}

// PatternType names a detected sequence pattern.
type PatternType string

const (
	PatternEscalating   PatternType = "escalating"
	PatternDeescalating PatternType = "deescalating"
	PatternStuck        PatternType = "stuck"
	PatternCrisis       PatternType = "crisis"
	PatternDailyRhythm  PatternType = "daily_rhythm"
)

// FlowPattern is a derived sequence pattern over a user's history.
type FlowPattern struct {
	Type        PatternType `json:"type"`
	Flows       []FlowType  `json:"flows"`
	Occurrences int         `json:"occurrences"`
	Confidence  float64     `json:"confidence"`
	Description string      `json:"description"`
}

// Insight is an observation the memory derived about a user.
type Insight struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// AdaptationEntry records a learned change to a user's routing profile.
type AdaptationEntry struct {
	Flow      FlowType  `json:"flow"`
	Change    string    `json:"change"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// UserFlowProfile is the aggregate per-user learning document.
type UserFlowProfile struct {
	UserID            string                      `json:"user_id"`
	PreferredFlows    map[FlowType]FlowPreference `json:"preferred_flows"`
	AvoidFlows        []FlowType                  `json:"avoid_flows"`
	EffectivePatterns []FlowPattern               `json:"effective_patterns"`
	CurrentPhase      PhaseState                  `json:"current_phase"`
	FlowHistory       []FlowRecord                `json:"flow_history"`
	Insights          []Insight                   `json:"insights"`
	Adaptations       []AdaptationEntry           `json:"adaptations"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

// NewUserFlowProfile returns the defaults for a user seen for the first time.
func NewUserFlowProfile(userID string, now time.Time) *UserFlowProfile {
	return &UserFlowProfile{
		UserID:         userID,
		PreferredFlows: make(map[FlowType]FlowPreference),
		CurrentPhase: PhaseState{
			Current:   PhaseExploring,
			StartedAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsAvoided reports whether the flow is in the user's avoid set.
func (p *UserFlowProfile) IsAvoided(ft FlowType) bool {
	return containsFlow(p.AvoidFlows, ft)
}

// LastFlows returns up to n of the most recent flow types, oldest first.
func (p *UserFlowProfile) LastFlows(n int) []FlowType {
	start := len(p.FlowHistory) - n
	if start < 0 {
		start = 0
	}
	out := make([]FlowType, 0, len(p.FlowHistory)-start)
	for _, r := range p.FlowHistory[start:] {
		out = append(out, r.FlowType)
	}
	return out
}

// Clone returns a deep copy safe to hand out of the memory's lock.
func (p *UserFlowProfile) Clone() *UserFlowProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.PreferredFlows = make(map[FlowType]FlowPreference, len(p.PreferredFlows))
	for ft, pref := range p.PreferredFlows {
		if pref.TimeConditions != nil {
			tc := make(map[HourBucket]int, len(pref.TimeConditions))
			for k, v := range pref.TimeConditions {
				tc[k] = v
			}
			pref.TimeConditions = tc
		}
		c.PreferredFlows[ft] = pref
	}
	c.AvoidFlows = append([]FlowType(nil), p.AvoidFlows...)
	c.EffectivePatterns = make([]FlowPattern, len(p.EffectivePatterns))
	for i, pat := range p.EffectivePatterns {
		pat.Flows = append([]FlowType(nil), pat.Flows...)
		c.EffectivePatterns[i] = pat
	}
	c.CurrentPhase.RecommendedFlows = append([]FlowType(nil), p.CurrentPhase.RecommendedFlows...)
	c.FlowHistory = append([]FlowRecord(nil), p.FlowHistory...)
	c.Insights = append([]Insight(nil), p.Insights...)
	c.Adaptations = append([]AdaptationEntry(nil), p.Adaptations...)
	return &c
}

// Normalize repairs a profile decoded from storage so it can be mutated safely.
// Unknown flow types are dropped from history and preferences.
func (p *UserFlowProfile) Normalize() {
	if p.PreferredFlows == nil {
		p.PreferredFlows = make(map[FlowType]FlowPreference)
	}
	for ft := range p.PreferredFlows {
		if !IsValidFlowType(ft) {
			delete(p.PreferredFlows, ft)
		}
	}
	history := p.FlowHistory[:0]
	for _, r := range p.FlowHistory {
		if r.Validate() == nil {
			history = append(history, r)
		}
	}
	p.FlowHistory = history
	if p.CurrentPhase.Current == "" {
		p.CurrentPhase.Current = PhaseExploring
	}
}
