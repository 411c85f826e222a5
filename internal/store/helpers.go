package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func encodeProfile(p *models.UserFlowProfile) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal profile for %s: %w", p.UserID, err)
	}
	return string(data), nil
}

// decodeProfile wraps decoding failures in ErrCorruptProfile.
func decodeProfile(userID, raw string) (*models.UserFlowProfile, error) {
	var p models.UserFlowProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: user %s: %v", ErrCorruptProfile, userID, err)
	}
	if p.UserID == "" {
		p.UserID = userID
	}
	p.Normalize()
	return &p, nil
}

func decodeDecision(raw string) (*models.RoutingDecision, error) {
	var d models.RoutingDecision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
	}
	return &d, nil
}

// scanFlowRecords scans flow_records rows (flow_type, recorded_at, emotional_impact,
// effectiveness, safety_level) and returns them oldest first.
func scanFlowRecords(rows *sql.Rows) ([]models.FlowRecord, error) {
	var records []models.FlowRecord
	for rows.Next() {
		var r models.FlowRecord
		var flowType string
		var safety sql.NullString
		if err := rows.Scan(&flowType, &r.Timestamp, &r.EmotionalImpact, &r.Effectiveness, &safety); err != nil {
			return nil, fmt.Errorf("scan flow record failed: %w", err)
		}
		r.FlowType = models.FlowType(flowType)
		r.SafetyLevel = models.RiskLevel(safety.String)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flow record rows: %w", err)
	}
	// Queries select newest first so LIMIT keeps the most recent rows.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}
