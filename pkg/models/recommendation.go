package models

import (
	"time"

	"github.com/google/uuid"
)

// RecommendationType classifies what a recommendation proposes.
type RecommendationType string

const (
	RecommendationVersionRollback     RecommendationType = "VERSION_ROLLBACK"
	RecommendationStyleLock           RecommendationType = "STYLE_LOCK"
	RecommendationFrequencyAdjustment RecommendationType = "FREQUENCY_ADJUSTMENT"
	RecommendationContentTypeChange   RecommendationType = "CONTENT_TYPE_CHANGE"
	RecommendationPlatformChange      RecommendationType = "PLATFORM_CHANGE"
)

// Valid reports whether t is a known recommendation type.
func (t RecommendationType) Valid() bool {
	switch t {
	case RecommendationVersionRollback, RecommendationStyleLock,
		RecommendationFrequencyAdjustment, RecommendationContentTypeChange,
		RecommendationPlatformChange:
		return true
	}
	return false
}

// RecommendationStatus is the human-review lifecycle of a recommendation.
type RecommendationStatus string

const (
	RecommendationPending  RecommendationStatus = "PENDING"
	RecommendationApplied  RecommendationStatus = "APPLIED"
	RecommendationRejected RecommendationStatus = "REJECTED"
	RecommendationArchived RecommendationStatus = "ARCHIVED"
)

// Valid reports whether s is a known recommendation status.
func (s RecommendationStatus) Valid() bool {
	switch s {
	case RecommendationPending, RecommendationApplied,
		RecommendationRejected, RecommendationArchived:
		return true
	}
	return false
}

// Recommendation is a machine-generated, human-reviewable suggestion.
// It is never applied automatically; approval only acknowledges it.
// At most one PENDING recommendation may exist per
// (automation, content, type) triple.
type Recommendation struct {
	ID           uuid.UUID  `json:"id"`
	AutomationID uuid.UUID  `json:"automation_id"`
	ContentID    *uuid.UUID `json:"content_id,omitempty"`

	Type           RecommendationType   `json:"type"`
	SuggestedValue JSONBMap             `json:"suggested_value,omitempty"`
	Reasoning      string               `json:"reasoning"`
	Status         RecommendationStatus `json:"status"`

	HandledBy *string    `json:"handled_by,omitempty"`
	HandledAt *time.Time `json:"handled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
