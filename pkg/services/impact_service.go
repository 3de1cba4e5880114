package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/models"
	"github.com/cadencehq/cadence-engine/pkg/repositories"
)

// ImpactService records impact snapshots and derives the aggregated
// KPIs the feedback loop scores versions with.
type ImpactService interface {
	// RecordSnapshot appends one snapshot of raw engagement counters.
	RecordSnapshot(ctx context.Context, snap *models.ImpactSnapshot) error

	// AggregatedMetrics returns the KPIs derived from the latest
	// snapshot of a content version. HasData is false when no snapshot
	// exists or impressions are zero.
	AggregatedMetrics(ctx context.Context, contentID uuid.UUID) (*models.AggregatedMetrics, error)
}

type impactService struct {
	impactRepo repositories.ImpactRepository
	logger     *zap.Logger
}

// NewImpactService creates a new impact service.
func NewImpactService(impactRepo repositories.ImpactRepository, logger *zap.Logger) ImpactService {
	return &impactService{
		impactRepo: impactRepo,
		logger:     logger.Named("impact-service"),
	}
}

var _ ImpactService = (*impactService)(nil)

func (s *impactService) RecordSnapshot(ctx context.Context, snap *models.ImpactSnapshot) error {
	if err := s.impactRepo.Create(ctx, snap); err != nil {
		return fmt.Errorf("failed to record impact snapshot: %w", err)
	}

	s.logger.Debug("Recorded impact snapshot",
		zap.String("content_id", snap.ContentID.String()),
		zap.Int64("impressions", snap.Impressions),
		zap.String("source", snap.Source))
	return nil
}

func (s *impactService) AggregatedMetrics(ctx context.Context, contentID uuid.UUID) (*models.AggregatedMetrics, error) {
	latest, err := s.impactRepo.LatestByContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	if latest == nil || latest.Impressions == 0 {
		return &models.AggregatedMetrics{}, nil
	}

	engagement := latest.Reactions + latest.Comments + latest.Shares
	return &models.AggregatedMetrics{
		CTRPercent:            float64(latest.Clicks) / float64(latest.Impressions) * 100,
		EngagementRatePercent: float64(engagement) / float64(latest.Impressions) * 100,
		HasData:               true,
	}, nil
}
