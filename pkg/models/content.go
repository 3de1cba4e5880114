package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentStatus tracks a content version through its lifecycle.
const (
	ContentStatusGenerated = "generated"
	ContentStatusPublished = "published"
)

// ContentVersion is one generated piece of content. Versions form a
// singly-linked lineage: the root has a nil ParentID, edits point back
// to the root and share its correlation id, and VersionNumber increases
// monotonically along the chain.
type ContentVersion struct {
	ID            uuid.UUID  `json:"id"`
	ProjectID     uuid.UUID  `json:"project_id"`
	AutomationID  *uuid.UUID `json:"automation_id,omitempty"`
	Platform      string     `json:"platform"`
	Topic         string     `json:"topic"`
	Status        string     `json:"status"`
	CorrelationID uuid.UUID  `json:"correlation_id"`
	ParentID      *uuid.UUID `json:"parent_id,omitempty"`
	VersionNumber int        `json:"version_number"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ImpactSnapshot is one point-in-time capture of a content version's
// raw engagement counters.
type ImpactSnapshot struct {
	ID          uuid.UUID `json:"id"`
	ContentID   uuid.UUID `json:"content_id"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Reactions   int64     `json:"reactions"`
	Comments    int64     `json:"comments"`
	Shares      int64     `json:"shares"`
	Source      string    `json:"source"`
	CapturedAt  time.Time `json:"captured_at"`
}

// AggregatedMetrics are the derived KPIs for a content version,
// computed from its latest impact snapshot. HasData is false when no
// snapshot exists or impressions are zero, in which case both rates
// are zero and consumers should treat the version as unmeasured.
type AggregatedMetrics struct {
	CTRPercent            float64 `json:"ctr_percent"`
	EngagementRatePercent float64 `json:"engagement_rate_percent"`
	HasData               bool    `json:"has_data"`
}
