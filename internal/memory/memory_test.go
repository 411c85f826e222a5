package memory

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
	"github.com/BTreeMap/OracleRouter/internal/models"
	"github.com/BTreeMap/OracleRouter/internal/store"
	"github.com/BTreeMap/OracleRouter/internal/testutil"
)

type capturePersister struct {
	mu       sync.Mutex
	profiles []*models.UserFlowProfile
	records  []models.FlowRecord
	fail     bool
}

func (c *capturePersister) EnqueueProfile(p *models.UserFlowProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return store.ErrQueueFull
	}
	c.profiles = append(c.profiles, p)
	return nil
}

func (c *capturePersister) EnqueueFlowRecord(_ string, r models.FlowRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return store.ErrQueueFull
	}
	c.records = append(c.records, r)
	return nil
}

type brokenStore struct {
	*store.InMemoryStore
	err error
}

func (b brokenStore) LoadProfile(context.Context, string) (*models.UserFlowProfile, error) {
	return nil, b.err
}

func newTestMemory(opts ...Option) *FlowMemory {
	opts = append([]Option{WithClock(func() time.Time { return testutil.Epoch })}, opts...)
	return New(store.NewInMemoryStore(), config.DefaultConfig().Memory, opts...)
}

func record(t *testing.T, m *FlowMemory, userID string, recs []models.FlowRecord) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, m.RecordFlow(context.Background(), userID, r))
	}
}

func TestEMAIncreasesMonotonically(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()
	prev := -1.0
	for i, r := range testutil.FlowRecords(testutil.Epoch, time.Minute, 0.9,
		models.FlowJournalReflection, models.FlowJournalReflection, models.FlowJournalReflection,
		models.FlowJournalReflection, models.FlowJournalReflection) {
		require.NoError(t, m.RecordFlow(ctx, "u1", r))
		p, err := m.Profile(ctx, "u1")
		require.NoError(t, err)
		eff := p.PreferredFlows[models.FlowJournalReflection].Effectiveness
		assert.Greater(t, eff, prev, "update %d", i)
		assert.Less(t, eff, 0.9, "update %d", i)
		prev = eff
	}
	p, _ := m.Profile(ctx, "u1")
	assert.Equal(t, 5, p.PreferredFlows[models.FlowJournalReflection].Frequency)
	assert.InDelta(t, 0.9-0.4*0.59049, prev, 1e-9)
}

func TestPreferenceScoreImpactFactor(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	pos := models.FlowRecord{FlowType: models.FlowRitualCeremony, Timestamp: testutil.Epoch, EmotionalImpact: 0.5, Effectiveness: 1}
	neg := models.FlowRecord{FlowType: models.FlowDreamAnalysis, Timestamp: testutil.Epoch, EmotionalImpact: -0.5, Effectiveness: 1}
	require.NoError(t, m.RecordFlow(ctx, "u1", pos))
	require.NoError(t, m.RecordFlow(ctx, "u1", neg))

	p, _ := m.Profile(ctx, "u1")
	assert.InDelta(t, 0.12, p.PreferredFlows[models.FlowRitualCeremony].PreferenceScore, 1e-9)
	assert.InDelta(t, 0.08, p.PreferredFlows[models.FlowDreamAnalysis].PreferenceScore, 1e-9)
	assert.Equal(t, 1, p.PreferredFlows[models.FlowDreamAnalysis].TimeConditions[models.BucketMorning])
}

func TestAvoidAfterRepeatedIneffectiveSessions(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()
	recs := testutil.FlowRecords(testutil.Epoch, time.Minute, 0,
		models.FlowVoiceDialogue, models.FlowVoiceDialogue, models.FlowVoiceDialogue,
		models.FlowVoiceDialogue, models.FlowVoiceDialogue)

	record(t, m, "u1", recs[:4])
	p, _ := m.Profile(ctx, "u1")
	assert.False(t, p.IsAvoided(models.FlowVoiceDialogue), "EMA 0.328 is still above the cutoff")

	record(t, m, "u1", recs[4:])
	p, _ = m.Profile(ctx, "u1")
	assert.True(t, p.IsAvoided(models.FlowVoiceDialogue))
	require.NotEmpty(t, p.Adaptations)
	assert.Equal(t, "avoid", p.Adaptations[len(p.Adaptations)-1].Change)
}

func TestAvoidedFlowRestoredWhenItRecovers(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()
	p := models.NewUserFlowProfile("u1", testutil.Epoch)
	p.AvoidFlows = []models.FlowType{models.FlowShadowWork}
	p.PreferredFlows[models.FlowShadowWork] = models.FlowPreference{Effectiveness: 0.29, Frequency: 6}
	require.NoError(t, m.store.SaveProfile(ctx, p))

	require.NoError(t, m.RecordFlow(ctx, "u1", models.FlowRecord{FlowType: models.FlowShadowWork, Timestamp: testutil.Epoch, Effectiveness: 0.9}))
	got, _ := m.Profile(ctx, "u1")
	assert.False(t, got.IsAvoided(models.FlowShadowWork))
	assert.Equal(t, "restore", got.Adaptations[len(got.Adaptations)-1].Change)
}

func TestHistoryEvictsOldestBeyondLimit(t *testing.T) {
	m := newTestMemory()
	flows := make([]models.FlowType, 105)
	for i := range flows {
		flows[i] = models.AllFlowTypes[i%len(models.AllFlowTypes)]
	}
	recs := testutil.FlowRecords(testutil.Epoch, time.Minute, 0.5, flows...)
	record(t, m, "u1", recs)

	p, _ := m.Profile(context.Background(), "u1")
	require.Len(t, p.FlowHistory, 100)
	assert.Equal(t, recs[5].Timestamp, p.FlowHistory[0].Timestamp)
	assert.Equal(t, recs[104].Timestamp, p.FlowHistory[99].Timestamp)
}

func TestOutOfOrderRecordIsClamped(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()
	require.NoError(t, m.RecordFlow(ctx, "u1", models.FlowRecord{FlowType: models.FlowOracleGuidance, Timestamp: testutil.Epoch.Add(time.Hour), Effectiveness: 0.5}))
	require.NoError(t, m.RecordFlow(ctx, "u1", models.FlowRecord{FlowType: models.FlowShadowWork, Timestamp: testutil.Epoch, Effectiveness: 0.5}))

	p, _ := m.Profile(ctx, "u1")
	require.Len(t, p.FlowHistory, 2)
	assert.False(t, p.FlowHistory[1].Timestamp.Before(p.FlowHistory[0].Timestamp))
}

func TestRecordFlowRejectsInvalidInput(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	assert.ErrorIs(t, m.RecordFlow(ctx, "", models.FlowRecord{FlowType: models.FlowOracleGuidance}), models.ErrEmptyUserID)
	assert.ErrorIs(t, m.RecordFlow(ctx, "u1", models.FlowRecord{FlowType: "levitation", Timestamp: testutil.Epoch}), models.ErrUnknownFlowType)
	assert.ErrorIs(t, m.RecordFlow(ctx, "u1", models.FlowRecord{FlowType: models.FlowOracleGuidance, Timestamp: testutil.Epoch, Effectiveness: 2}), models.ErrEffectivenessRange)

	// A zero timestamp is filled from the clock.
	require.NoError(t, m.RecordFlow(ctx, "u1", models.FlowRecord{FlowType: models.FlowOracleGuidance, Effectiveness: 0.5}))
	p, _ := m.Profile(ctx, "u1")
	assert.Equal(t, testutil.Epoch, p.FlowHistory[0].Timestamp)
}

func TestMissingOrMalformedProfileStartsFresh(t *testing.T) {
	for _, err := range []error{store.ErrNotFound, store.ErrCorruptProfile, errors.New("connection refused")} {
		t.Run(err.Error(), func(t *testing.T) {
			m := New(brokenStore{InMemoryStore: store.NewInMemoryStore(), err: err}, config.DefaultConfig().Memory)
			p, gotErr := m.Profile(context.Background(), "u1")
			require.NoError(t, gotErr)
			assert.Equal(t, "u1", p.UserID)
			assert.Empty(t, p.FlowHistory)
			assert.Equal(t, models.PhaseExploring, p.CurrentPhase.Current)
		})
	}
}

func TestWarmLoadsStoredProfile(t *testing.T) {
	s := store.NewInMemoryStore()
	testutil.SeedProfile(t, s, "u1", testutil.FlowRecords(testutil.Epoch, time.Minute, 0.5, models.FlowDreamAnalysis))
	m := New(s, config.DefaultConfig().Memory)
	m.Warm(context.Background(), "u1", "")

	p, err := m.Profile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, p.FlowHistory, 1)
}

func TestProfileIsSnapshot(t *testing.T) {
	m := newTestMemory()
	record(t, m, "u1", testutil.FlowRecords(testutil.Epoch, time.Minute, 0.5, models.FlowOracleGuidance))

	p, _ := m.Profile(context.Background(), "u1")
	p.FlowHistory[0].FlowType = models.FlowShadowWork
	p.PreferredFlows[models.FlowOracleGuidance] = models.FlowPreference{}

	again, _ := m.Profile(context.Background(), "u1")
	assert.Equal(t, models.FlowOracleGuidance, again.FlowHistory[0].FlowType)
	assert.Equal(t, 1, again.PreferredFlows[models.FlowOracleGuidance].Frequency)
}

func TestRecordFlowSchedulesPersistence(t *testing.T) {
	sink := &capturePersister{}
	m := newTestMemory(WithPersister(sink))
	record(t, m, "u1", testutil.FlowRecords(testutil.Epoch, time.Minute, 0.5, models.FlowOracleGuidance, models.FlowJournalReflection))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.records, 2)
	require.Len(t, sink.profiles, 2)
	assert.Len(t, sink.profiles[0].FlowHistory, 1, "snapshots must not alias the live profile")
	assert.Len(t, sink.profiles[1].FlowHistory, 2)
}

func TestPersistenceFailureDoesNotFailRecord(t *testing.T) {
	m := newTestMemory(WithPersister(&capturePersister{fail: true}))
	assert.NoError(t, m.RecordFlow(context.Background(), "u1", models.FlowRecord{FlowType: models.FlowOracleGuidance, Timestamp: testutil.Epoch, Effectiveness: 0.5}))
}

func TestConcurrentRecordsSerializePerUser(t *testing.T) {
	m := New(store.NewInMemoryStore(), config.DefaultConfig().Memory)
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := 0; u < 4; u++ {
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					_ = m.RecordFlow(ctx, userID, models.FlowRecord{FlowType: models.FlowGroundingExercise, Timestamp: time.Now(), Effectiveness: 0.6})
				}
			}(fmt.Sprintf("user-%d", u))
		}
	}
	wg.Wait()

	for u := 0; u < 4; u++ {
		p, err := m.Profile(ctx, fmt.Sprintf("user-%d", u))
		require.NoError(t, err)
		assert.Len(t, p.FlowHistory, 100)
		assert.Equal(t, 200, p.PreferredFlows[models.FlowGroundingExercise].Frequency)
		for i := 1; i < len(p.FlowHistory); i++ {
			assert.False(t, p.FlowHistory[i].Timestamp.Before(p.FlowHistory[i-1].Timestamp))
		}
	}
}
