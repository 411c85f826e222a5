// Package store provides storage backends for OracleRouter.
//
// This file implements a PostgreSQL-backed store for profiles, flow records and decisions.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) LoadProfile(ctx context.Context, userID string) (*models.UserFlowProfile, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT profile_json FROM flow_profiles WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("PostgresStore LoadProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load profile for %s: %w", userID, err)
	}
	return decodeProfile(userID, raw)
}

func (s *PostgresStore) SaveProfile(ctx context.Context, profile *models.UserFlowProfile) error {
	if profile == nil || profile.UserID == "" {
		return models.ErrEmptyUserID
	}
	raw, err := encodeProfile(profile)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_profiles (user_id, profile_json, current_phase, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			profile_json = EXCLUDED.profile_json,
			current_phase = EXCLUDED.current_phase,
			updated_at = EXCLUDED.updated_at`,
		profile.UserID, raw, string(profile.CurrentPhase.Current), profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile for %s: %w", profile.UserID, err)
	}
	slog.Debug("PostgresStore SaveProfile succeeded", "userID", profile.UserID, "history", len(profile.FlowHistory))
	return nil
}

func (s *PostgresStore) AppendFlowRecord(ctx context.Context, userID string, r models.FlowRecord) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_records (user_id, flow_type, recorded_at, emotional_impact, effectiveness, safety_level)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, string(r.FlowType), r.Timestamp, r.EmotionalImpact, r.Effectiveness, nilIfEmpty(string(r.SafetyLevel)))
	if err != nil {
		slog.Error("PostgresStore AppendFlowRecord failed", "error", err, "userID", userID, "flow", r.FlowType)
		return fmt.Errorf("failed to append flow record for %s: %w", userID, err)
	}
	return nil
}

// FlowRecords returns up to limit of the most recent records, oldest first. limit <= 0 returns all.
func (s *PostgresStore) FlowRecords(ctx context.Context, userID string, limit int) ([]models.FlowRecord, error) {
	query := `
		SELECT flow_type, recorded_at, emotional_impact, effectiveness, safety_level
		FROM flow_records WHERE user_id = $1
		ORDER BY recorded_at DESC, id DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore FlowRecords query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query flow records: %w", err)
	}
	defer rows.Close()
	return scanFlowRecords(rows)
}

func (s *PostgresStore) SaveDecision(ctx context.Context, d models.RoutingDecision) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal decision %s: %w", d.RequestID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO routing_decisions (request_id, user_id, selected_agent, selected_flow, confidence, decision_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_id) DO UPDATE SET
			decision_json = EXCLUDED.decision_json,
			confidence = EXCLUDED.confidence`,
		d.RequestID, d.UserID, d.SelectedAgent, string(d.SelectedFlow), d.Metadata.ConfidenceScore, string(raw), d.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveDecision failed", "error", err, "requestID", d.RequestID)
		return fmt.Errorf("failed to save decision %s: %w", d.RequestID, err)
	}
	return nil
}

func (s *PostgresStore) GetDecision(ctx context.Context, requestID string) (*models.RoutingDecision, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT decision_json FROM routing_decisions WHERE request_id = $1`, requestID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetDecision failed", "error", err, "requestID", requestID)
		return nil, fmt.Errorf("failed to load decision %s: %w", requestID, err)
	}
	return decodeDecision(raw)
}

func (s *PostgresStore) ClaimOutcome(ctx context.Context, requestID, userID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_outcomes (request_id, user_id, recorded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id) DO NOTHING`, requestID, userID, at)
	if err != nil {
		slog.Error("PostgresStore ClaimOutcome failed", "error", err, "requestID", requestID)
		return false, fmt.Errorf("failed to claim outcome %s: %w", requestID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim outcome %s: %w", requestID, err)
	}
	return n == 1, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
