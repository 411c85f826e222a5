// Package store provides storage backends for OracleRouter.
//
// This file implements an SQLite-backed store for profiles, flow records and decisions.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single connection serialises writers and avoids SQLITE_BUSY under the write-behind queue.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dsn", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadProfile(ctx context.Context, userID string) (*models.UserFlowProfile, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT profile_json FROM flow_profiles WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore LoadProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load profile for %s: %w", userID, err)
	}
	return decodeProfile(userID, raw)
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, profile *models.UserFlowProfile) error {
	if profile == nil || profile.UserID == "" {
		return models.ErrEmptyUserID
	}
	raw, err := encodeProfile(profile)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_profiles (user_id, profile_json, current_phase, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			profile_json = excluded.profile_json,
			current_phase = excluded.current_phase,
			updated_at = excluded.updated_at`,
		profile.UserID, raw, string(profile.CurrentPhase.Current), profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile for %s: %w", profile.UserID, err)
	}
	slog.Debug("SQLiteStore SaveProfile succeeded", "userID", profile.UserID, "history", len(profile.FlowHistory))
	return nil
}

func (s *SQLiteStore) AppendFlowRecord(ctx context.Context, userID string, r models.FlowRecord) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_records (user_id, flow_type, recorded_at, emotional_impact, effectiveness, safety_level)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, string(r.FlowType), r.Timestamp, r.EmotionalImpact, r.Effectiveness, nilIfEmpty(string(r.SafetyLevel)))
	if err != nil {
		slog.Error("SQLiteStore AppendFlowRecord failed", "error", err, "userID", userID, "flow", r.FlowType)
		return fmt.Errorf("failed to append flow record for %s: %w", userID, err)
	}
	return nil
}

// FlowRecords returns up to limit of the most recent records, oldest first. limit <= 0 returns all.
func (s *SQLiteStore) FlowRecords(ctx context.Context, userID string, limit int) ([]models.FlowRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_type, recorded_at, emotional_impact, effectiveness, safety_level
		FROM flow_records WHERE user_id = ?
		ORDER BY recorded_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		slog.Error("SQLiteStore FlowRecords query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query flow records: %w", err)
	}
	defer rows.Close()
	return scanFlowRecords(rows)
}

func (s *SQLiteStore) SaveDecision(ctx context.Context, d models.RoutingDecision) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal decision %s: %w", d.RequestID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO routing_decisions (request_id, user_id, selected_agent, selected_flow, confidence, decision_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.RequestID, d.UserID, d.SelectedAgent, string(d.SelectedFlow), d.Metadata.ConfidenceScore, string(raw), d.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveDecision failed", "error", err, "requestID", d.RequestID)
		return fmt.Errorf("failed to save decision %s: %w", d.RequestID, err)
	}
	return nil
}

func (s *SQLiteStore) GetDecision(ctx context.Context, requestID string) (*models.RoutingDecision, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT decision_json FROM routing_decisions WHERE request_id = ?`, requestID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetDecision failed", "error", err, "requestID", requestID)
		return nil, fmt.Errorf("failed to load decision %s: %w", requestID, err)
	}
	return decodeDecision(raw)
}

func (s *SQLiteStore) ClaimOutcome(ctx context.Context, requestID, userID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_outcomes (request_id, user_id, recorded_at)
		VALUES (?, ?, ?)
		ON CONFLICT (request_id) DO NOTHING`, requestID, userID, at)
	if err != nil {
		slog.Error("SQLiteStore ClaimOutcome failed", "error", err, "requestID", requestID)
		return false, fmt.Errorf("failed to claim outcome %s: %w", requestID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim outcome %s: %w", requestID, err)
	}
	return n == 1, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	} else {
		slog.Debug("SQLite database connection closed successfully")
	}
	return err
}
