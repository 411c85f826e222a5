package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/OracleRouter/internal/engine"
	"github.com/BTreeMap/OracleRouter/internal/models"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]int{"pending_decisions": s.engine.PendingDecisions()}))
}

func (s *Server) routeHandler(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server.routeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: user_id"))
		return
	}
	if req.Risk != nil && !models.IsValidRiskLevel(req.Risk.RiskLevel) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown risk level: "+string(req.Risk.RiskLevel)))
		return
	}

	decision := s.engine.Route(r.Context(), req)
	writeJSONResponse(w, http.StatusOK, models.Success(decision))
}

func (s *Server) outcomeHandler(w http.ResponseWriter, r *http.Request) {
	var o engine.Outcome
	if err := decodeJSON(r, &o); err != nil {
		slog.Warn("Server.outcomeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if o.RequestID == "" && o.Flow == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Either request_id or flow is required"))
		return
	}

	err := s.engine.RecordOutcome(r.Context(), o)
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusCreated, models.RecordedWithMessage("Outcome recorded"))
	case errors.Is(err, engine.ErrUnknownDecision):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	case errors.Is(err, engine.ErrUserMismatch):
		writeJSONResponse(w, http.StatusForbidden, models.Error(err.Error()))
	case errors.Is(err, engine.ErrOutcomeRecorded):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	case errors.Is(err, models.ErrEmptyUserID),
		errors.Is(err, models.ErrUnknownFlowType),
		errors.Is(err, models.ErrEffectivenessRange),
		errors.Is(err, models.ErrEmotionalImpactRange):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	default:
		slog.Error("Server.outcomeHandler: failed to record outcome", "error", err, "userID", o.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record outcome"))
	}
}

func (s *Server) decisionHandler(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	d, err := s.engine.Decision(r.Context(), requestID)
	if errors.Is(err, engine.ErrUnknownDecision) {
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
		return
	}
	if err != nil {
		slog.Error("Server.decisionHandler: lookup failed", "error", err, "requestID", requestID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load decision"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(d))
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	p, err := s.engine.Memory().Profile(r.Context(), userID)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

// recommendationsHandler accepts optional needs_support and valence query parameters
// to adjust the baseline state.
func (s *Server) recommendationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	state := models.BaselineState()

	q := r.URL.Query()
	if v := q.Get("needs_support"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("needs_support must be a boolean"))
			return
		}
		state.Emotional.NeedsSupport = b
	}
	if v := q.Get("valence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < -1 || f > 1 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("valence must be a number within [-1,1]"))
			return
		}
		state.Emotional.Valence = f
	}

	rec, err := s.engine.Memory().Recommendations(r.Context(), userID, state)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rec))
}
