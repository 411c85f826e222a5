// Package memory implements the per-user learning loop: flow history, preference
// learning, sequence patterns, phase classification and recommendations.
//
// Profiles are cached in process and serialized per user. Writes to durable storage
// go through a Persister and never block the caller.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/OracleRouter/internal/config"
	"github.com/BTreeMap/OracleRouter/internal/models"
	"github.com/BTreeMap/OracleRouter/internal/store"
)

// Persister schedules durable writes. store.Writer satisfies it.
type Persister interface {
	EnqueueProfile(profile *models.UserFlowProfile) error
	EnqueueFlowRecord(userID string, record models.FlowRecord) error
}

// Opts holds FlowMemory options.
type Opts struct {
	Persister Persister
	Clock     func() time.Time
	Location  *time.Location
}

// Option configures a FlowMemory.
type Option func(*Opts)

// WithPersister sets the write-behind sink for profile snapshots and records.
func WithPersister(p Persister) Option {
	return func(o *Opts) {
		o.Persister = p
	}
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// WithLocation sets the zone used for hour-of-day buckets. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

type entry struct {
	mu      sync.Mutex
	loaded  bool
	profile *models.UserFlowProfile
}

// FlowMemory owns every UserFlowProfile. Mutations for one user are serialized;
// distinct users proceed in parallel.
type FlowMemory struct {
	store     store.Store
	persister Persister
	cfg       config.MemoryConfig
	now       func() time.Time
	loc       *time.Location

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a flow memory reading profiles from s on first access.
func New(s store.Store, cfg config.MemoryConfig, opts ...Option) *FlowMemory {
	o := Opts{Clock: time.Now, Location: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if s == nil {
		s = store.NewInMemoryStore()
	}
	return &FlowMemory{
		store:     s,
		persister: o.Persister,
		cfg:       cfg,
		now:       o.Clock,
		loc:       o.Location,
		entries:   make(map[string]*entry),
	}
}

// lock returns the user's entry locked and loaded. The caller must unlock e.mu.
func (m *FlowMemory) lock(ctx context.Context, userID string) *entry {
	m.mu.Lock()
	e, ok := m.entries[userID]
	if !ok {
		e = &entry{}
		m.entries[userID] = e
	}
	m.mu.Unlock()

	e.mu.Lock()
	if !e.loaded {
		e.profile = m.load(ctx, userID)
		e.loaded = true
	}
	return e
}

// load never fails: unknown users and unreadable profiles start fresh.
func (m *FlowMemory) load(ctx context.Context, userID string) *models.UserFlowProfile {
	p, err := m.store.LoadProfile(ctx, userID)
	switch {
	case err == nil:
		slog.Debug("FlowMemory.load: profile loaded", "userID", userID, "history", len(p.FlowHistory))
		return p
	case errors.Is(err, store.ErrNotFound):
		slog.Debug("FlowMemory.load: new user", "userID", userID)
	case errors.Is(err, store.ErrCorruptProfile):
		slog.Warn("FlowMemory.load: stored profile is malformed, starting empty", "userID", userID, "error", err)
	default:
		slog.Error("FlowMemory.load: failed to load profile, starting empty", "userID", userID, "error", err)
	}
	return models.NewUserFlowProfile(userID, m.now())
}

// Warm loads the given users' profiles ahead of their first request.
func (m *FlowMemory) Warm(ctx context.Context, userIDs ...string) {
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		e := m.lock(ctx, id)
		e.mu.Unlock()
	}
	slog.Debug("FlowMemory.Warm: profiles loaded", "count", len(userIDs))
}

// Profile returns a snapshot copy of the user's profile. Unknown users get defaults.
func (m *FlowMemory) Profile(ctx context.Context, userID string) (*models.UserFlowProfile, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	e := m.lock(ctx, userID)
	defer e.mu.Unlock()
	return e.profile.Clone(), nil
}

// RecordFlow appends a completed interaction and updates every derived field of the
// profile. The durable write is scheduled and not awaited.
func (m *FlowMemory) RecordFlow(ctx context.Context, userID string, record models.FlowRecord) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = m.now()
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid flow record for %s: %w", userID, err)
	}

	e := m.lock(ctx, userID)
	defer e.mu.Unlock()
	p := e.profile

	// History is order-sensitive; a late record is pinned to the latest timestamp.
	if n := len(p.FlowHistory); n > 0 && record.Timestamp.Before(p.FlowHistory[n-1].Timestamp) {
		slog.Warn("FlowMemory.RecordFlow: out-of-order record clamped", "userID", userID, "flow", record.FlowType,
			"timestamp", record.Timestamp, "latest", p.FlowHistory[n-1].Timestamp)
		record.Timestamp = p.FlowHistory[n-1].Timestamp
	}

	p.FlowHistory = append(p.FlowHistory, record)
	if limit := m.cfg.HistoryLimit; limit > 0 && len(p.FlowHistory) > limit {
		p.FlowHistory = append([]models.FlowRecord(nil), p.FlowHistory[len(p.FlowHistory)-limit:]...)
	}

	m.updatePreference(p, record)
	m.updateAvoidance(p, record)

	previous := patternTypes(p.EffectivePatterns)
	p.EffectivePatterns = m.detectPatterns(p.FlowHistory)
	for _, pat := range p.EffectivePatterns {
		if !previous[pat.Type] {
			m.addInsight(p, "pattern", pat.Description, record.Timestamp)
		}
	}

	m.updatePhase(p, record.Timestamp)
	p.UpdatedAt = m.now()

	slog.Debug("FlowMemory.RecordFlow: profile updated", "userID", userID, "flow", record.FlowType,
		"effectiveness", p.PreferredFlows[record.FlowType].Effectiveness, "phase", p.CurrentPhase.Current,
		"patterns", len(p.EffectivePatterns))

	m.persist(userID, record, p.Clone())
	return nil
}

func (m *FlowMemory) persist(userID string, record models.FlowRecord, snapshot *models.UserFlowProfile) {
	if m.persister == nil {
		return
	}
	if err := m.persister.EnqueueFlowRecord(userID, record); err != nil {
		slog.Warn("FlowMemory.persist: flow record not queued", "userID", userID, "error", err)
	}
	if err := m.persister.EnqueueProfile(snapshot); err != nil {
		slog.Warn("FlowMemory.persist: profile not queued", "userID", userID, "error", err)
	}
}

func (m *FlowMemory) addInsight(p *models.UserFlowProfile, kind, message string, at time.Time) {
	p.Insights = append(p.Insights, models.Insight{Kind: kind, Message: message, CreatedAt: at})
	if limit := m.cfg.InsightLimit; limit > 0 && len(p.Insights) > limit {
		p.Insights = append([]models.Insight(nil), p.Insights[len(p.Insights)-limit:]...)
	}
}

func (m *FlowMemory) addAdaptation(p *models.UserFlowProfile, a models.AdaptationEntry) {
	p.Adaptations = append(p.Adaptations, a)
	if limit := m.cfg.AdaptationLimit; limit > 0 && len(p.Adaptations) > limit {
		p.Adaptations = append([]models.AdaptationEntry(nil), p.Adaptations[len(p.Adaptations)-limit:]...)
	}
}
