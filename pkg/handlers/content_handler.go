package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/models"
	"github.com/cadencehq/cadence-engine/pkg/services"
)

// ContentHandler exposes content-version tracking and impact ingestion.
type ContentHandler struct {
	tracking services.TrackingService
	impact   services.ImpactService
	logger   *zap.Logger
}

// NewContentHandler creates a new content handler.
func NewContentHandler(tracking services.TrackingService, impact services.ImpactService, logger *zap.Logger) *ContentHandler {
	return &ContentHandler{
		tracking: tracking,
		impact:   impact,
		logger:   logger,
	}
}

// RegisterRoutes registers the content handler's routes on the given mux.
func (h *ContentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/content/{id}/lineage", h.Lineage)
	mux.HandleFunc("POST /api/content/{id}/revisions", h.CreateRevision)
	mux.HandleFunc("POST /api/content/{id}/publish", h.Publish)
	mux.HandleFunc("POST /api/content/{id}/impact", h.RecordImpact)
	mux.HandleFunc("GET /api/content/{id}/metrics", h.Metrics)
}

// Lineage handles GET /api/content/{id}/lineage
func (h *ContentHandler) Lineage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDPathValue(w, r)
	if !ok {
		return
	}

	versions, err := h.tracking.Lineage(r.Context(), id)
	if err != nil {
		ServiceError(w, err)
		return
	}
	if versions == nil {
		versions = []*models.ContentVersion{}
	}

	if err := WriteJSON(w, http.StatusOK, versions); err != nil {
		h.logger.Error("Failed to write lineage response", zap.Error(err))
	}
}

// CreateRevision handles POST /api/content/{id}/revisions
func (h *ContentHandler) CreateRevision(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDPathValue(w, r)
	if !ok {
		return
	}

	revision, err := h.tracking.RecordRevision(r.Context(), id)
	if err != nil {
		ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, revision); err != nil {
		h.logger.Error("Failed to write revision response", zap.Error(err))
	}
}

// Publish handles POST /api/content/{id}/publish
func (h *ContentHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDPathValue(w, r)
	if !ok {
		return
	}

	if err := h.tracking.PublishContent(r.Context(), id); err != nil {
		ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": models.ContentStatusPublished}); err != nil {
		h.logger.Error("Failed to write publish response", zap.Error(err))
	}
}

type recordImpactRequest struct {
	Impressions int64  `json:"impressions"`
	Clicks      int64  `json:"clicks"`
	Reactions   int64  `json:"reactions"`
	Comments    int64  `json:"comments"`
	Shares      int64  `json:"shares"`
	Source      string `json:"source"`
}

// RecordImpact handles POST /api/content/{id}/impact
func (h *ContentHandler) RecordImpact(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDPathValue(w, r)
	if !ok {
		return
	}

	var req recordImpactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Impressions < 0 || req.Clicks < 0 || req.Reactions < 0 || req.Comments < 0 || req.Shares < 0 {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Counters must be non-negative")
		return
	}

	snap := &models.ImpactSnapshot{
		ContentID:   id,
		Impressions: req.Impressions,
		Clicks:      req.Clicks,
		Reactions:   req.Reactions,
		Comments:    req.Comments,
		Shares:      req.Shares,
		Source:      req.Source,
	}
	if err := h.impact.RecordSnapshot(r.Context(), snap); err != nil {
		h.logger.Error("Failed to record impact snapshot",
			zap.String("content_id", id.String()),
			zap.Error(err))
		ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, snap); err != nil {
		h.logger.Error("Failed to write impact response", zap.Error(err))
	}
}

// Metrics handles GET /api/content/{id}/metrics
func (h *ContentHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDPathValue(w, r)
	if !ok {
		return
	}

	metrics, err := h.impact.AggregatedMetrics(r.Context(), id)
	if err != nil {
		ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, metrics); err != nil {
		h.logger.Error("Failed to write metrics response", zap.Error(err))
	}
}
