// Package models defines the core data structures for OracleRouter.
//
// It includes flow types, state assessments, agent profiles, routing decisions and
// the per-user flow history records shared across modules.
package models

import (
	"errors"
)

// Validation errors shared by the flow memory, the engine and the API.
var (
	ErrEmptyUserID          = errors.New("user id cannot be empty")
	ErrUnknownFlowType      = errors.New("unknown flow type")
	ErrUnknownRiskLevel     = errors.New("unknown risk level")
	ErrEffectivenessRange   = errors.New("effectiveness must be within [0,1]")
	ErrEmotionalImpactRange = errors.New("emotional impact must be within [-1,1]")
	ErrMissingTimestamp     = errors.New("timestamp is required")
)

// APIStatus is the envelope status of every HTTP response.
type APIStatus string

const (
	APIStatusOK       APIStatus = "ok"
	APIStatusError    APIStatus = "error"
	APIStatusRecorded APIStatus = "recorded"
)

// APIResponse is the JSON envelope shared by all API endpoints.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success wraps a result.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// Error wraps a client-facing error message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}

// RecordedWithMessage acknowledges an accepted write.
func RecordedWithMessage(message string) APIResponse {
	return APIResponse{Status: APIStatusRecorded, Message: message}
}
