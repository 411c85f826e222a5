package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/OracleRouter/internal/config"
	"github.com/BTreeMap/OracleRouter/internal/flow"
	"github.com/BTreeMap/OracleRouter/internal/memory"
	"github.com/BTreeMap/OracleRouter/internal/models"
	"github.com/BTreeMap/OracleRouter/internal/store"
	"github.com/BTreeMap/OracleRouter/internal/testutil"
)

type fixedRisk struct {
	risk *models.RiskAssessment
	err  error
}

func (f fixedRisk) AssessRisk(context.Context, string, string, map[string]string) (*models.RiskAssessment, error) {
	return f.risk, f.err
}

type blockingRisk struct{}

func (blockingRisk) AssessRisk(ctx context.Context, _, _ string, _ map[string]string) (*models.RiskAssessment, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type panicClassifier struct{}

func (panicClassifier) ClassifyIntent(string) flow.Intent {
	panic("classifier exploded")
}

type captureSink struct {
	mu        sync.Mutex
	decisions []models.RoutingDecision
}

func (c *captureSink) EnqueueDecision(d models.RoutingDecision) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, d)
	return nil
}

type testEngine struct {
	*Engine
	memory *memory.FlowMemory
	store  *store.InMemoryStore
}

func newTestEngine(t *testing.T, opts ...Option) testEngine {
	t.Helper()
	cfg := testutil.NewTestConfig()
	s := store.NewInMemoryStore()
	mem := memory.New(s, cfg.Memory, memory.WithClock(func() time.Time { return testutil.Epoch }))
	seq := 0
	base := []Option{
		WithClock(func() time.Time { return testutil.Epoch }),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("req-%d", seq) }),
	}
	e, err := New(cfg, testutil.NewTestRegistry(t), mem, append(base, opts...)...)
	require.NoError(t, err)
	return testEngine{Engine: e, memory: mem, store: s}
}

func seedHistory(t *testing.T, mem *memory.FlowMemory, userID string, flows ...models.FlowType) {
	t.Helper()
	for _, r := range testutil.FlowRecords(testutil.Epoch.Add(-time.Hour), time.Minute, 0.6, flows...) {
		require.NoError(t, mem.RecordFlow(context.Background(), userID, r))
	}
}

func TestScenarioCriticalRiskSelectsCrisisSpecialist(t *testing.T) {
	e := newTestEngine(t)
	d := e.Route(context.Background(), Request{
		UserID: "u1",
		Text:   "tell me about my dreams",
		Risk:   testutil.Risk(models.RiskCritical, true),
	})

	assert.Equal(t, models.FlowCrisisSupport, d.SelectedFlow)
	assert.Equal(t, "sentinel", d.SelectedAgent)
	assert.Equal(t, models.IntensityGentle, d.FlowParameters.Intensity)
	assert.Equal(t, models.SupportSubstantial, d.FlowParameters.Support)
	assert.Equal(t, models.RiskCritical, d.RiskLevel)
	assert.NotEmpty(t, d.Metadata.SafetyConsiderations)
}

func TestScenarioDreamWithoutRiskAssessment(t *testing.T) {
	e := newTestEngine(t)
	d := e.Route(context.Background(), Request{UserID: "u1", Text: "I had the strangest dream last night"})

	assert.Equal(t, models.FlowDreamAnalysis, d.SelectedFlow)
	assert.Empty(t, d.RiskLevel)
	assert.GreaterOrEqual(t, d.Metadata.ConfidenceScore, 0.3)
	assert.LessOrEqual(t, d.Metadata.ConfidenceScore, 1.0)
}

func TestNewUserWithoutIntentGetsOracleGuidance(t *testing.T) {
	e := newTestEngine(t)
	for _, text := range []string{"", "hello there"} {
		d := e.Route(context.Background(), Request{UserID: "fresh-user", Text: text})
		assert.Equal(t, models.FlowOracleGuidance, d.SelectedFlow, "text %q", text)
		for _, f := range d.Metadata.DecisionFactors {
			assert.NotContains(t, f, "history recommends", "text %q", text)
		}
	}
}

func TestLearnedHistoryBiasesDefaultIntent(t *testing.T) {
	e := newTestEngine(t)
	seedHistory(t, e.memory, "u1", models.FlowSomaticPractice)

	rec, err := e.memory.Recommendations(context.Background(), "u1", models.BaselineState())
	require.NoError(t, err)
	require.True(t, rec.Learned)
	require.NotEmpty(t, rec.Flows)

	d := e.Route(context.Background(), Request{UserID: "u1", Text: "hello there"})
	assert.Equal(t, rec.Flows[0], d.SelectedFlow)
	assert.Contains(t, d.Metadata.DecisionFactors, "No explicit intent; history recommends "+string(rec.Flows[0]))
}

func TestScenarioRepeatedGroundingRotatesToComplement(t *testing.T) {
	e := newTestEngine(t)
	seedHistory(t, e.memory, "u1", models.FlowGroundingExercise, models.FlowGroundingExercise, models.FlowGroundingExercise)

	d := e.Route(context.Background(), Request{UserID: "u1", Text: "help me ground myself"})
	assert.Contains(t, []models.FlowType{models.FlowSomaticPractice, models.FlowElementalBalancing}, d.SelectedFlow)
}

func TestScenarioCrisisOverridesShadowIntent(t *testing.T) {
	e := newTestEngine(t)
	d := e.Route(context.Background(), Request{
		UserID: "u1",
		Text:   "I want to explore my shadow",
		Risk:   testutil.Risk(models.RiskCritical, false),
	})
	assert.Equal(t, models.FlowCrisisSupport, d.SelectedFlow)
}

func TestCriticalRiskContainment(t *testing.T) {
	e := newTestEngine(t)
	safe := []models.FlowType{models.FlowCrisisSupport, models.FlowGroundingExercise, models.FlowSomaticPractice}
	texts := []string{
		"", "shadow", "my archetype", "a dream", "ritual tonight", "journal", "celebrate",
		"talk to my inner voice", "balance my elements", "my body feels tight", "integrate",
	}
	for _, text := range texts {
		for _, support := range []bool{true, false} {
			d := e.Route(context.Background(), Request{UserID: "u-critical", Text: text, Risk: testutil.Risk(models.RiskCritical, support)})
			assert.Contains(t, safe, d.SelectedFlow, "text %q", text)
		}
	}
}

func TestAntiRepetitionForJournal(t *testing.T) {
	e := newTestEngine(t)
	seedHistory(t, e.memory, "u1", models.FlowJournalReflection, models.FlowJournalReflection, models.FlowJournalReflection)

	d := e.Route(context.Background(), Request{UserID: "u1", Text: "I want to journal", Risk: testutil.Risk(models.RiskMinimal, false)})
	assert.NotEqual(t, models.FlowJournalReflection, d.SelectedFlow)
}

func TestRiskProviderIsConsulted(t *testing.T) {
	e := newTestEngine(t, WithRiskProvider(fixedRisk{risk: testutil.Risk(models.RiskCritical, true)}))
	d := e.Route(context.Background(), Request{UserID: "u1", Text: "hello"})
	assert.Equal(t, models.FlowCrisisSupport, d.SelectedFlow)
	assert.Equal(t, models.RiskCritical, d.RiskLevel)
}

func TestRiskProviderFailureDegrades(t *testing.T) {
	e := newTestEngine(t, WithRiskProvider(fixedRisk{err: errors.New("moderation down")}))
	d := e.Route(context.Background(), Request{UserID: "u1", Text: "I had a dream"})
	assert.Equal(t, models.FlowDreamAnalysis, d.SelectedFlow)
	assert.Empty(t, d.RiskLevel)

	e = newTestEngine(t, WithRiskProvider(fixedRisk{risk: &models.RiskAssessment{RiskLevel: "apocalyptic"}}))
	d = e.Route(context.Background(), Request{UserID: "u1", Text: "I had a dream"})
	assert.Equal(t, models.FlowDreamAnalysis, d.SelectedFlow)
}

func TestRiskProviderTimeout(t *testing.T) {
	cfg := testutil.NewTestConfig()
	cfg.Engine.RiskTimeout = 20 * time.Millisecond
	mem := memory.New(store.NewInMemoryStore(), cfg.Memory)
	e, err := New(cfg, testutil.NewTestRegistry(t), mem, WithRiskProvider(blockingRisk{}))
	require.NoError(t, err)

	start := time.Now()
	d := e.Route(context.Background(), Request{UserID: "u1", Text: "I had a dream"})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, models.FlowDreamAnalysis, d.SelectedFlow)
}

func TestPanicYieldsFallbackDecision(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(t, WithClassifier(panicClassifier{}), WithDecisionSink(sink))

	d := e.Route(context.Background(), Request{UserID: "u1", Text: "anything"})
	assert.Equal(t, models.FlowOracleGuidance, d.SelectedFlow)
	assert.Equal(t, "maya", d.SelectedAgent)
	assert.Equal(t, models.MinimalParameters(), d.FlowParameters)
	assert.Equal(t, 0.3, d.Metadata.ConfidenceScore)
	require.NotEmpty(t, d.Metadata.DecisionFactors)
	assert.Contains(t, d.Metadata.DecisionFactors[0], "warning:")
	assert.Len(t, sink.decisions, 1)

	d = e.Route(context.Background(), Request{UserID: "u1", Text: "anything", Risk: testutil.Risk(models.RiskHigh, true)})
	assert.Equal(t, models.FlowCrisisSupport, d.SelectedFlow)
}

func TestDecisionsAreLoggedAndRemembered(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(t, WithDecisionSink(sink))

	d := e.Route(context.Background(), Request{UserID: "u1", Text: "I had a dream"})
	assert.Equal(t, "req-1", d.RequestID)
	assert.Equal(t, testutil.Epoch, d.CreatedAt)
	require.Len(t, sink.decisions, 1)
	assert.Equal(t, d.RequestID, sink.decisions[0].RequestID)

	got, err := e.Decision(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, d.SelectedFlow, got.SelectedFlow)
	assert.Equal(t, 1, e.PendingDecisions())
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	mem := memory.New(nil, config.DefaultConfig().Memory)

	cfg := config.DefaultConfig()
	cfg.Memory.LearningRate = 0
	_, err := New(cfg, reg, mem)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = New(config.DefaultConfig(), nil, mem)
	assert.ErrorIs(t, err, ErrMissingRegistry)

	_, err = New(config.DefaultConfig(), reg, nil)
	assert.ErrorIs(t, err, ErrMissingMemory)
}

func TestConcurrentRoutes(t *testing.T) {
	cfg := testutil.NewTestConfig()
	mem := memory.New(store.NewInMemoryStore(), cfg.Memory)
	e, err := New(cfg, testutil.NewTestRegistry(t), mem)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("u%d", i%4)
			for j := 0; j < 20; j++ {
				d := e.Route(context.Background(), Request{UserID: userID, Text: "I want to journal"})
				_ = e.RecordOutcome(context.Background(), Outcome{RequestID: d.RequestID, UserID: userID, Effectiveness: 0.7})
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		p, err := mem.Profile(context.Background(), fmt.Sprintf("u%d", i))
		require.NoError(t, err)
		assert.Len(t, p.FlowHistory, 80)
	}
	assert.Equal(t, 0, e.PendingDecisions())
}
