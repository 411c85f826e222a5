// Package store provides storage backends for OracleRouter.
//
// It persists one aggregate profile document per user, the append-only flow record
// log, and the routing decision log. Backends: in-memory, SQLite and PostgreSQL.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

// Error variables for storage lookups.
var (
	ErrNotFound       = errors.New("not found")
	ErrCorruptProfile = errors.New("stored profile is malformed")
)

// Store is the persistence contract of the routing core.
// LoadProfile returns ErrNotFound for unknown users and ErrCorruptProfile when
// the stored document cannot be decoded.
type Store interface {
	LoadProfile(ctx context.Context, userID string) (*models.UserFlowProfile, error)
	SaveProfile(ctx context.Context, profile *models.UserFlowProfile) error
	AppendFlowRecord(ctx context.Context, userID string, record models.FlowRecord) error
	FlowRecords(ctx context.Context, userID string, limit int) ([]models.FlowRecord, error)
	SaveDecision(ctx context.Context, decision models.RoutingDecision) error
	GetDecision(ctx context.Context, requestID string) (*models.RoutingDecision, error)
	// ClaimOutcome marks the decision's outcome as recorded. It reports false when
	// an outcome for requestID was already claimed.
	ClaimOutcome(ctx context.Context, requestID, userID string, at time.Time) (bool, error)
	Close() error
}

// InMemoryStore is a simple in-memory store, used for tests and ephemeral deployments.
type InMemoryStore struct {
	mu        sync.RWMutex
	profiles  map[string]*models.UserFlowProfile
	records   map[string][]models.FlowRecord
	decisions map[string]models.RoutingDecision
	outcomes  map[string]time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles:  make(map[string]*models.UserFlowProfile),
		records:   make(map[string][]models.FlowRecord),
		decisions: make(map[string]models.RoutingDecision),
		outcomes:  make(map[string]time.Time),
	}
}

func (s *InMemoryStore) LoadProfile(_ context.Context, userID string) (*models.UserFlowProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *InMemoryStore) SaveProfile(_ context.Context, profile *models.UserFlowProfile) error {
	if profile == nil || profile.UserID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile.Clone()
	return nil
}

func (s *InMemoryStore) AppendFlowRecord(_ context.Context, userID string, record models.FlowRecord) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = append(s.records[userID], record)
	return nil
}

// FlowRecords returns up to limit of the most recent records, oldest first. limit <= 0 returns all.
func (s *InMemoryStore) FlowRecords(_ context.Context, userID string, limit int) ([]models.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.records[userID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	return append([]models.FlowRecord(nil), all[start:]...), nil
}

func (s *InMemoryStore) SaveDecision(_ context.Context, decision models.RoutingDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[decision.RequestID] = decision
	return nil
}

func (s *InMemoryStore) GetDecision(_ context.Context, requestID string) (*models.RoutingDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *InMemoryStore) ClaimOutcome(_ context.Context, requestID, _ string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.outcomes[requestID]; done {
		return false, nil
	}
	s.outcomes[requestID] = at
	return true, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
