// Package engine wires the assessor, safety router, selector, parameterizer and flow
// memory into one decision path that always produces a routing decision.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/OracleRouter/internal/assess"
	"github.com/BTreeMap/OracleRouter/internal/config"
	"github.com/BTreeMap/OracleRouter/internal/flow"
	"github.com/BTreeMap/OracleRouter/internal/memory"
	"github.com/BTreeMap/OracleRouter/internal/models"
	"github.com/BTreeMap/OracleRouter/internal/params"
	"github.com/BTreeMap/OracleRouter/internal/registry"
	"github.com/BTreeMap/OracleRouter/internal/safety"
	"github.com/BTreeMap/OracleRouter/internal/store"
)

// Confidence bounds and adjustments.
const (
	minConfidence       = 0.3
	maxConfidence       = 1.0
	baseConfidence      = 0.5
	strongAgentScore    = 0.8
	strongAgentBonus    = 0.2
	intentBonus         = 0.1
	recommendedBonus    = 0.1
	defaultAgentPenalty = 0.2
	substitutionPenalty = 0.1
)

// Error variables for engine construction and outcome feedback.
var (
	ErrMissingRegistry = errors.New("engine requires a registry")
	ErrMissingMemory   = errors.New("engine requires a flow memory")
	ErrUnknownDecision = errors.New("unknown or expired decision")
	ErrUserMismatch    = errors.New("outcome user does not match decision")
	ErrOutcomeRecorded = errors.New("outcome already recorded for this decision")
)

// RiskProvider is the external safety analysis capability.
type RiskProvider interface {
	AssessRisk(ctx context.Context, text, userID string, context map[string]string) (*models.RiskAssessment, error)
}

// NoRiskProvider never has an assessment; routing follows the no-assessment defaults.
type NoRiskProvider struct{}

// AssessRisk always returns nil.
func (NoRiskProvider) AssessRisk(context.Context, string, string, map[string]string) (*models.RiskAssessment, error) {
	return nil, nil
}

// DecisionSink receives every decision for the decision log. store.Writer satisfies it.
type DecisionSink interface {
	EnqueueDecision(decision models.RoutingDecision) error
}

// Request is one incoming message.
type Request struct {
	UserID  string                 `json:"user_id"`
	Text    string                 `json:"text"`
	Risk    *models.RiskAssessment `json:"risk,omitempty"`
	Session *assess.SessionContext `json:"session,omitempty"`
	Context map[string]string      `json:"context,omitempty"`
}

// Opts holds engine options.
type Opts struct {
	RiskProvider  RiskProvider
	DecisionSink  DecisionSink
	DecisionStore store.Store
	Classifier    flow.IntentClassifier
	Clock         func() time.Time
	NewID         func() string
}

// Option configures an Engine.
type Option func(*Opts)

// WithRiskProvider sets the provider consulted when a request carries no assessment.
func WithRiskProvider(p RiskProvider) Option {
	return func(o *Opts) {
		o.RiskProvider = p
	}
}

// WithDecisionSink sets where decisions are logged.
func WithDecisionSink(s DecisionSink) Option {
	return func(o *Opts) {
		o.DecisionSink = s
	}
}

// WithDecisionStore lets outcome feedback find decisions that are no longer pending in memory.
func WithDecisionStore(s store.Store) Option {
	return func(o *Opts) {
		o.DecisionStore = s
	}
}

// WithClassifier swaps the intent classifier.
func WithClassifier(c flow.IntentClassifier) Option {
	return func(o *Opts) {
		o.Classifier = c
	}
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// WithIDGenerator overrides request id generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *Opts) {
		o.NewID = newID
	}
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg      config.EngineConfig
	registry *registry.Registry
	assessor *assess.Assessor
	router   *safety.Router
	selector *flow.Selector
	params   *params.Parameterizer
	memory   *memory.FlowMemory
	repeatN  int

	risk      RiskProvider
	sink      DecisionSink
	decisions store.Store
	now       func() time.Time
	newID     func() string

	mu       sync.Mutex
	pending  map[string]pendingDecision
	consumed map[string]time.Time
}

// New validates the configuration and builds the decision path. Configuration faults
// are returned here so they surface at startup, not per request.
func New(cfg *config.Config, reg *registry.Registry, mem *memory.FlowMemory, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}
	if reg == nil {
		return nil, ErrMissingRegistry
	}
	if mem == nil {
		return nil, ErrMissingMemory
	}

	o := Opts{RiskProvider: NoRiskProvider{}, Clock: time.Now, NewID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	if o.RiskProvider == nil {
		o.RiskProvider = NoRiskProvider{}
	}

	var selOpts []flow.Option
	if o.Classifier != nil {
		selOpts = append(selOpts, flow.WithClassifier(o.Classifier))
	}

	e := &Engine{
		cfg:       cfg.Engine,
		registry:  reg,
		assessor:  assess.NewAssessor(cfg.Assess),
		router:    safety.NewRouter(),
		selector:  flow.NewSelector(reg, cfg.Selector, selOpts...),
		params:    params.New(cfg.Params),
		memory:    mem,
		repeatN:   cfg.Selector.RepetitionWindow,
		risk:      o.RiskProvider,
		sink:      o.DecisionSink,
		decisions: o.DecisionStore,
		now:       o.Clock,
		newID:     o.NewID,
		pending:   make(map[string]pendingDecision),
		consumed:  make(map[string]time.Time),
	}
	if uncovered := reg.UncoveredFlows(); len(uncovered) > 0 {
		slog.Warn("Engine.New: flows without a capable agent will use the default agent", "flows", uncovered)
	}
	return e, nil
}

// Route produces a routing decision. It never fails: missing inputs fall back to
// defaults and an internal fault yields the minimal fallback decision.
func (e *Engine) Route(ctx context.Context, req Request) (decision models.RoutingDecision) {
	requestID := e.newID()
	var risk *models.RiskAssessment

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine.Route: decision path panicked, using fallback", "requestID", requestID, "userID", req.UserID, "panic", r)
			decision = e.fallback(requestID, req.UserID, risk, fmt.Sprint(r))
			e.log(decision)
		}
	}()

	risk = req.Risk
	if risk == nil {
		risk = e.fetchRisk(ctx, req)
	}

	state := e.assessor.Assess(req.Text, risk, req.Session)
	routing := e.router.Route(risk, state)

	in := flow.Input{Text: req.Text, State: state, Routing: routing}
	if req.UserID != "" {
		if profile, err := e.memory.Profile(ctx, req.UserID); err == nil {
			in.RecentFlows = profile.LastFlows(e.repeatN)
			in.AvoidFlows = profile.AvoidFlows
		}
		// Table-only recommendations must not displace the default flow.
		if rec, err := e.memory.Recommendations(ctx, req.UserID, state); err == nil && rec.Learned {
			in.Recommendations = rec.Flows
		}
	}

	sel := e.selector.Select(in)

	fp := params.CapIntensity(e.params.Parameters(state, sel.Flow), sel.Agent)

	decision = models.RoutingDecision{
		RequestID:      requestID,
		UserID:         req.UserID,
		SelectedAgent:  sel.Agent.ID,
		SelectedFlow:   sel.Flow,
		FlowParameters: fp,
		Adaptations:    e.params.Adaptations(state, sel.Flow, requestID),
		Suggestions:    e.params.Suggestions(state, sel.Flow),
		Metadata: models.DecisionMetadata{
			DecisionFactors:      sel.Factors,
			ConfidenceScore:      Confidence(sel, in.Recommendations),
			AlternativeFlows:     sel.Alternatives,
			SafetyConsiderations: routing.Considerations,
		},
		CreatedAt: e.now(),
	}
	if risk != nil {
		decision.RiskLevel = risk.RiskLevel
	}

	slog.Info("Engine.Route: decision made", "requestID", requestID, "userID", req.UserID,
		"flow", decision.SelectedFlow, "agent", decision.SelectedAgent,
		"confidence", decision.Metadata.ConfidenceScore, "riskLevel", decision.RiskLevel)
	e.log(decision)
	return decision
}

// fetchRisk bounds the provider call by the configured timeout. Failures and
// timeouts degrade to no assessment.
func (e *Engine) fetchRisk(ctx context.Context, req Request) *models.RiskAssessment {
	timeout := e.cfg.RiskTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		risk *models.RiskAssessment
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		risk, err := e.risk.AssessRisk(ctx, req.Text, req.UserID, req.Context)
		ch <- result{risk, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			slog.Warn("Engine.fetchRisk: risk provider failed, continuing without assessment", "userID", req.UserID, "error", res.err)
			return nil
		}
		if res.risk != nil && !models.IsValidRiskLevel(res.risk.RiskLevel) {
			slog.Warn("Engine.fetchRisk: provider returned unknown risk level, ignoring", "userID", req.UserID, "riskLevel", res.risk.RiskLevel)
			return nil
		}
		return res.risk
	case <-ctx.Done():
		slog.Warn("Engine.fetchRisk: risk provider timed out, continuing without assessment", "userID", req.UserID, "timeout", timeout)
		return nil
	}
}

// fallback is the minimal coherent decision. Elevated risk keeps the user in crisis support.
func (e *Engine) fallback(requestID, userID string, risk *models.RiskAssessment, reason string) models.RoutingDecision {
	ft := models.FlowOracleGuidance
	var considerations []string
	if risk != nil && risk.RiskLevel.Rank() >= models.RiskHigh.Rank() {
		ft = models.FlowCrisisSupport
		considerations = append(considerations, "Elevated risk; fallback keeps crisis support")
	}
	d := models.RoutingDecision{
		RequestID:      requestID,
		UserID:         userID,
		SelectedAgent:  e.registry.DefaultAgent().ID,
		SelectedFlow:   ft,
		FlowParameters: models.MinimalParameters(),
		Metadata: models.DecisionMetadata{
			DecisionFactors:      []string{"warning: fallback decision after internal error: " + reason},
			ConfidenceScore:      minConfidence,
			AlternativeFlows:     []models.FlowType{},
			SafetyConsiderations: considerations,
		},
		CreatedAt: e.now(),
	}
	if risk != nil {
		d.RiskLevel = risk.RiskLevel
	}
	return d
}

// log remembers the decision for outcome feedback and schedules the decision log write.
func (e *Engine) log(d models.RoutingDecision) {
	e.remember(d)
	if e.sink == nil {
		return
	}
	if err := e.sink.EnqueueDecision(d); err != nil {
		slog.Warn("Engine.log: decision not queued for persistence", "requestID", d.RequestID, "error", err)
	}
}

// Confidence scores a selection: base 0.5, bonuses for a strong agent, an explicit
// intent and agreement with history, penalties for the default agent and
// substitution, clamped to [0.3, 1].
func Confidence(sel flow.Selection, recommendations []models.FlowType) float64 {
	c := baseConfidence
	if sel.AgentScore >= strongAgentScore {
		c += strongAgentBonus
	}
	if sel.IntentMatched {
		c += intentBonus
	}
	for _, ft := range recommendations {
		if ft == sel.Flow {
			c += recommendedBonus
			break
		}
	}
	if sel.UsedDefaultAgent {
		c -= defaultAgentPenalty
	}
	if sel.Substituted {
		c -= substitutionPenalty
	}
	if c < minConfidence {
		return minConfidence
	}
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}
