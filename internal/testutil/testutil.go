// Package testutil provides common fixtures and helpers for OracleRouter tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/OracleRouter/internal/config"
	"github.com/BTreeMap/OracleRouter/internal/models"
	"github.com/BTreeMap/OracleRouter/internal/registry"
	"github.com/BTreeMap/OracleRouter/internal/store"
)

// Epoch is a fixed morning timestamp shared by fixtures.
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// NewTestRegistry loads the embedded agent catalog and fails the test on error.
func NewTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	return reg
}

// NewTestConfig returns the default thresholds.
func NewTestConfig() *config.Config {
	return config.DefaultConfig()
}

// FlowRecords builds one record per flow, step apart starting at start.
func FlowRecords(start time.Time, step time.Duration, effectiveness float64, flows ...models.FlowType) []models.FlowRecord {
	out := make([]models.FlowRecord, len(flows))
	for i, ft := range flows {
		out[i] = models.FlowRecord{
			FlowType:        ft,
			Timestamp:       start.Add(time.Duration(i) * step),
			EmotionalImpact: 0.1,
			Effectiveness:   effectiveness,
			SafetyLevel:     models.RiskMinimal,
		}
	}
	return out
}

// SeedProfile stores a profile whose history holds the given records.
func SeedProfile(t *testing.T, s store.Store, userID string, records []models.FlowRecord) *models.UserFlowProfile {
	t.Helper()
	p := models.NewUserFlowProfile(userID, Epoch)
	p.FlowHistory = append(p.FlowHistory, records...)
	if err := s.SaveProfile(t.Context(), p); err != nil {
		t.Fatalf("failed to seed profile: %v", err)
	}
	return p
}

// Risk builds a risk assessment at the given level.
func Risk(level models.RiskLevel, needsSupport bool) *models.RiskAssessment {
	return &models.RiskAssessment{
		RiskLevel: level,
		EmotionalState: models.EmotionalProfile{
			Primary:      models.PrimaryEmotion{Emotion: "neutral", Valence: 0, Arousal: 0.3},
			Intensity:    0.5,
			NeedsSupport: needsSupport,
		},
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
