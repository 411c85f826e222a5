package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/BTreeMap/OracleRouter/internal/config"
	"github.com/BTreeMap/OracleRouter/internal/models"
)

// flakyStore fails the first n writes of any kind.
type flakyStore struct {
	*InMemoryStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) AppendFlowRecord(ctx context.Context, userID string, r models.FlowRecord) error {
	f.mu.Lock()
	f.calls++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("transient")
	}
	return f.InMemoryStore.AppendFlowRecord(ctx, userID, r)
}

func testWriterConfig() config.WriterConfig {
	return config.WriterConfig{
		Shards:      2,
		QueueSize:   16,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestWriterAppliesWritesInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewInMemoryStore()
	w := NewWriter(s, testWriterConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	flows := []models.FlowType{models.FlowOracleGuidance, models.FlowShadowWork, models.FlowJournalReflection}
	for i, ft := range flows {
		require.NoError(t, w.EnqueueFlowRecord("u1", models.FlowRecord{FlowType: ft, Timestamp: base.Add(time.Duration(i) * time.Second)}))
	}
	require.NoError(t, w.EnqueueDecision(models.RoutingDecision{RequestID: "r1", UserID: "u1"}))

	assert.Eventually(t, func() bool { return w.Pending() == 0 }, time.Second, time.Millisecond)

	records, err := s.FlowRecords(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, flows[i], r.FlowType)
	}
	_, err = s.GetDecision(context.Background(), "r1")
	assert.NoError(t, err)

	cancel()
	require.NoError(t, <-done)
}

func TestWriterRetriesTransientFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := &flakyStore{InMemoryStore: NewInMemoryStore(), failures: 2}
	w := NewWriter(s, testWriterConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, w.EnqueueFlowRecord("u1", models.FlowRecord{FlowType: models.FlowShadowWork, Timestamp: time.Now()}))
	assert.Eventually(t, func() bool { return w.Pending() == 0 }, time.Second, time.Millisecond)

	records, _ := s.FlowRecords(context.Background(), "u1", 0)
	assert.Len(t, records, 1)
	s.mu.Lock()
	assert.Equal(t, 3, s.calls)
	s.mu.Unlock()

	cancel()
	require.NoError(t, <-done)
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := &flakyStore{InMemoryStore: NewInMemoryStore(), failures: 10}
	w := NewWriter(s, testWriterConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, w.EnqueueFlowRecord("u1", models.FlowRecord{FlowType: models.FlowShadowWork, Timestamp: time.Now()}))
	assert.Eventually(t, func() bool { return w.Pending() == 0 }, time.Second, time.Millisecond)

	records, _ := s.FlowRecords(context.Background(), "u1", 0)
	assert.Empty(t, records)

	cancel()
	require.NoError(t, <-done)
}

func TestWriterDropsWhenFull(t *testing.T) {
	cfg := testWriterConfig()
	cfg.Shards = 1
	cfg.QueueSize = 1
	w := NewWriter(NewInMemoryStore(), cfg)

	// Not running: the single slot fills and the next write is rejected.
	require.NoError(t, w.EnqueueDecision(models.RoutingDecision{RequestID: "a", UserID: "u"}))
	err := w.EnqueueDecision(models.RoutingDecision{RequestID: "b", UserID: "u"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, w.Pending())
	assert.Equal(t, 1, w.Dropped())
}

func TestWriterDrainsOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewInMemoryStore()
	w := NewWriter(s, testWriterConfig())
	for i := 0; i < 5; i++ {
		require.NoError(t, w.EnqueueProfile(models.NewUserFlowProfile("u"+string(rune('a'+i)), time.Now())))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	assert.Equal(t, 0, w.Pending())
	for i := 0; i < 5; i++ {
		_, err := s.LoadProfile(context.Background(), "u"+string(rune('a'+i)))
		assert.NoError(t, err)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	w := NewWriter(NewInMemoryStore(), config.WriterConfig{BaseBackoff: 10 * time.Millisecond, MaxBackoff: 35 * time.Millisecond})
	assert.Equal(t, 10*time.Millisecond, w.backoff(1))
	assert.Equal(t, 20*time.Millisecond, w.backoff(2))
	assert.Equal(t, 35*time.Millisecond, w.backoff(3))
	assert.Equal(t, 35*time.Millisecond, w.backoff(10))
}
