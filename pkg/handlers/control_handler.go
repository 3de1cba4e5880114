package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/models"
	"github.com/cadencehq/cadence-engine/pkg/services"
)

// ControlHandler exposes the human control surface over HTTP: campaign
// setup, overrides, emergency stop, recommendation triage, and the
// read-only status views.
type ControlHandler struct {
	control     services.ControlService
	automations services.AutomationService
	logger      *zap.Logger
}

// NewControlHandler creates a new control handler.
func NewControlHandler(control services.ControlService, automations services.AutomationService, logger *zap.Logger) *ControlHandler {
	return &ControlHandler{
		control:     control,
		automations: automations,
		logger:      logger,
	}
}

// RegisterRoutes registers the control handler's routes on the given mux.
func (h *ControlHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/automations", h.Setup)
	mux.HandleFunc("GET /api/automations/{id}", h.Status)
	mux.HandleFunc("POST /api/automations/{id}/trigger", h.Trigger)
	mux.HandleFunc("POST /api/automations/{id}/override", h.Override)
	mux.HandleFunc("POST /api/emergency-stop", h.EmergencyStop)
	mux.HandleFunc("GET /api/dashboard", h.Dashboard)
	mux.HandleFunc("GET /api/decisions", h.Decisions)
	mux.HandleFunc("GET /api/recommendations", h.Recommendations)
	mux.HandleFunc("POST /api/recommendations/{id}", h.HandleRecommendation)
}

type setupAutomationRequest struct {
	ProjectID     uuid.UUID       `json:"project_id"`
	Name          string          `json:"name"`
	TriggerType   string          `json:"trigger_type"`
	TriggerConfig models.JSONBMap `json:"trigger_config"`
	Rules         models.JSONBMap `json:"rules"`
}

// Setup handles POST /api/automations
func (h *ControlHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req setupAutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.ProjectID == uuid.Nil || req.Name == "" {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "project_id and name are required")
		return
	}

	automation, err := h.control.SetupAutomation(r.Context(), &models.Automation{
		ProjectID:     req.ProjectID,
		Name:          req.Name,
		TriggerType:   models.TriggerType(req.TriggerType),
		TriggerConfig: req.TriggerConfig,
		Rules:         req.Rules,
	})
	if err != nil {
		h.logger.Error("Failed to set up automation", zap.Error(err))
		ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, automation); err != nil {
		h.logger.Error("Failed to write automation response", zap.Error(err))
	}
}

// Status handles GET /api/automations/{id}
func (h *ControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDPathValue(w, r)
	if !ok {
		return
	}

	status, err := h.control.CampaignStatus(r.Context(), id)
	if err != nil {
		ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, status); err != nil {
		h.logger.Error("Failed to write status response", zap.Error(err))
	}
}

// Trigger handles POST /api/automations/{id}/trigger
func (h *ControlHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDPathValue(w, r)
	if !ok {
		return
	}

	// The HTTP trigger is the human escape hatch: it forces the run
	// even when the automation is paused or inside cooldown.
	result, err := h.automations.Trigger(r.Context(), id, true)
	if err != nil {
		h.logger.Error("Failed to trigger automation",
			zap.String("automation_id", id.String()),
			zap.Error(err))
		ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to write trigger response", zap.Error(err))
	}
}

type overrideRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// Override handles POST /api/automations/{id}/override
func (h *ControlHandler) Override(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDPathValue(w, r)
	if !ok {
		return
	}

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.control.Override(r.Context(), id, req.Action, req.Reason, req.Actor); err != nil {
		ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		h.logger.Error("Failed to write override response", zap.Error(err))
	}
}

type emergencyStopRequest struct {
	Actor string `json:"actor"`
}

// EmergencyStop handles POST /api/emergency-stop
func (h *ControlHandler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req emergencyStopRequest
	if r.Body != nil {
		// Body is optional; a bare POST stops everything anonymously.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	count, err := h.control.EmergencyStop(r.Context(), req.Actor)
	if err != nil {
		h.logger.Error("Emergency stop failed", zap.Error(err))
		ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]int{"automations_stopped": count}); err != nil {
		h.logger.Error("Failed to write emergency stop response", zap.Error(err))
	}
}

// Dashboard handles GET /api/dashboard
func (h *ControlHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.control.DashboardStats(r.Context())
	if err != nil {
		h.logger.Error("Failed to load dashboard stats", zap.Error(err))
		ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, stats); err != nil {
		h.logger.Error("Failed to write dashboard response", zap.Error(err))
	}
}

type decisionListResponse struct {
	Decisions []*models.DecisionLogEntry `json:"decisions"`
	Total     int                        `json:"total"`
}

// Decisions handles GET /api/decisions?automation_id=&limit=&offset=
func (h *ControlHandler) Decisions(w http.ResponseWriter, r *http.Request) {
	var automationID *uuid.UUID
	if raw := r.URL.Query().Get("automation_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid automation_id")
			return
		}
		automationID = &id
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	decisions, total, err := h.control.DecisionHistory(r.Context(), automationID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to load decision history", zap.Error(err))
		ServiceError(w, err)
		return
	}

	resp := decisionListResponse{Decisions: decisions, Total: total}
	if resp.Decisions == nil {
		resp.Decisions = []*models.DecisionLogEntry{}
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write decisions response", zap.Error(err))
	}
}

// Recommendations handles GET /api/recommendations?limit=
func (h *ControlHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recs, err := h.control.PendingRecommendations(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to load recommendations", zap.Error(err))
		ServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []*models.Recommendation{}
	}

	if err := WriteJSON(w, http.StatusOK, recs); err != nil {
		h.logger.Error("Failed to write recommendations response", zap.Error(err))
	}
}

type handleRecommendationRequest struct {
	Action string `json:"action"`
	Actor  string `json:"actor"`
}

// HandleRecommendation handles POST /api/recommendations/{id}
func (h *ControlHandler) HandleRecommendation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDPathValue(w, r)
	if !ok {
		return
	}

	var req handleRecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	rec, err := h.control.HandleRecommendation(r.Context(), id, req.Action, req.Actor)
	if err != nil {
		ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, rec); err != nil {
		h.logger.Error("Failed to write recommendation response", zap.Error(err))
	}
}

func parseIDPathValue(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}
