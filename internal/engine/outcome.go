package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/OracleRouter/internal/memory"
	"github.com/BTreeMap/OracleRouter/internal/models"
	"github.com/BTreeMap/OracleRouter/internal/store"
)

type pendingDecision struct {
	decision models.RoutingDecision
	expires  time.Time
}

// Outcome is the measured result of a completed interaction.
// Either RequestID or Flow identifies what was run.
type Outcome struct {
	RequestID       string          `json:"request_id,omitempty"`
	UserID          string          `json:"user_id"`
	Flow            models.FlowType `json:"flow,omitempty"`
	EmotionalImpact float64         `json:"emotional_impact"`
	Effectiveness   float64         `json:"effectiveness"`
	Timestamp       time.Time       `json:"timestamp,omitempty"`
}

// RecordOutcome turns feedback into a FlowRecord in the user's flow memory.
func (e *Engine) RecordOutcome(ctx context.Context, o Outcome) error {
	if o.UserID == "" {
		return models.ErrEmptyUserID
	}

	record := models.FlowRecord{
		FlowType:        o.Flow,
		Timestamp:       o.Timestamp,
		EmotionalImpact: o.EmotionalImpact,
		Effectiveness:   o.Effectiveness,
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = e.now()
	}

	if o.RequestID == "" {
		if err := e.memory.RecordFlow(ctx, o.UserID, record); err != nil {
			return err
		}
	} else {
		var err error
		if record, err = e.recordDecisionOutcome(ctx, o, record); err != nil {
			return err
		}
	}
	slog.Info("Engine.RecordOutcome: outcome recorded", "userID", o.UserID, "requestID", o.RequestID,
		"flow", record.FlowType, "effectiveness", record.Effectiveness)
	return nil
}

// recordDecisionOutcome records feedback for a routed decision at most once.
func (e *Engine) recordDecisionOutcome(ctx context.Context, o Outcome, record models.FlowRecord) (models.FlowRecord, error) {
	if e.isConsumed(o.RequestID) {
		return record, fmt.Errorf("%w: request %s", ErrOutcomeRecorded, o.RequestID)
	}
	d, err := e.lookup(ctx, o.RequestID)
	if err != nil {
		return record, err
	}
	if d.UserID != o.UserID {
		return record, fmt.Errorf("%w: request %s", ErrUserMismatch, o.RequestID)
	}
	record.FlowType = d.SelectedFlow
	record.SafetyLevel = d.RiskLevel
	if err := record.Validate(); err != nil {
		return record, err
	}

	if !e.consume(o.RequestID) {
		return record, fmt.Errorf("%w: request %s", ErrOutcomeRecorded, o.RequestID)
	}
	if e.decisions != nil {
		claimed, err := e.decisions.ClaimOutcome(ctx, o.RequestID, o.UserID, record.Timestamp)
		if err != nil {
			e.release(o.RequestID)
			return record, fmt.Errorf("failed to claim outcome for %s: %w", o.RequestID, err)
		}
		if !claimed {
			e.forget(o.RequestID)
			return record, fmt.Errorf("%w: request %s", ErrOutcomeRecorded, o.RequestID)
		}
	}

	// The claim is kept when the write fails: an outcome is dropped rather than counted twice.
	e.forget(o.RequestID)
	return record, e.memory.RecordFlow(ctx, o.UserID, record)
}

// Decision returns a decision by request id, from memory or the decision log.
func (e *Engine) Decision(ctx context.Context, requestID string) (models.RoutingDecision, error) {
	return e.lookup(ctx, requestID)
}

// Memory exposes the flow memory for read-only surfaces.
func (e *Engine) Memory() *memory.FlowMemory {
	return e.memory
}

func (e *Engine) lookup(ctx context.Context, requestID string) (models.RoutingDecision, error) {
	e.mu.Lock()
	p, ok := e.pending[requestID]
	e.mu.Unlock()
	if ok && e.now().Before(p.expires) {
		return p.decision, nil
	}

	if e.decisions != nil {
		d, err := e.decisions.GetDecision(ctx, requestID)
		if err == nil {
			return *d, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return models.RoutingDecision{}, fmt.Errorf("failed to look up decision %s: %w", requestID, err)
		}
	}
	return models.RoutingDecision{}, fmt.Errorf("%w: %s", ErrUnknownDecision, requestID)
}

func (e *Engine) remember(d models.RoutingDecision) {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit := e.cfg.MaxPendingDecisions; limit > 0 && len(e.pending) >= limit {
		e.pruneLocked(now)
		for len(e.pending) >= limit {
			e.evictOldestLocked()
		}
	}
	e.pending[d.RequestID] = pendingDecision{decision: d, expires: now.Add(e.cfg.PendingDecisionTTL)}
}

func (e *Engine) forget(requestID string) {
	e.mu.Lock()
	delete(e.pending, requestID)
	e.mu.Unlock()
}

func (e *Engine) isConsumed(requestID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.consumed[requestID]
	return ok
}

// consume marks requestID as having an outcome. It reports false if another caller got there first.
func (e *Engine) consume(requestID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.consumed[requestID]; ok {
		return false
	}
	e.consumed[requestID] = e.now().Add(e.cfg.PendingDecisionTTL)
	return true
}

func (e *Engine) release(requestID string) {
	e.mu.Lock()
	delete(e.consumed, requestID)
	e.mu.Unlock()
}

// PruneExpired drops pending decisions past their TTL and returns how many were removed.
func (e *Engine) PruneExpired() int {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	before := len(e.pending)
	e.pruneLocked(now)
	return before - len(e.pending)
}

func (e *Engine) pruneLocked(now time.Time) {
	for id, p := range e.pending {
		if !now.Before(p.expires) {
			delete(e.pending, id)
		}
	}
	for id, expires := range e.consumed {
		if !now.Before(expires) {
			delete(e.consumed, id)
		}
	}
}

func (e *Engine) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, p := range e.pending {
		if oldestID == "" || p.expires.Before(oldest) {
			oldestID, oldest = id, p.expires
		}
	}
	delete(e.pending, oldestID)
}

// PendingDecisions reports how many decisions await feedback.
func (e *Engine) PendingDecisions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
