package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/models"
	"github.com/cadencehq/cadence-engine/pkg/repositories"
)

// Version score weights and regression thresholds. A version's score is
// ctr_percent*0.7 + engagement_rate_percent*0.3; the ratio of the
// latest score to the previous one decides whether the edit regressed
// or improved.
const (
	ScoreWeightCTR        = 0.7
	ScoreWeightEngagement = 0.3
	RegressionRatio       = 0.8
	ImprovementRatio      = 1.2
)

// FeedbackService walks the version lineages of an automation's
// generated content, scores each lineage's latest edit against its
// predecessor, and persists recommendations for a human to review.
// Recommendations are never applied automatically.
type FeedbackService interface {
	// AnalyzeAutomationPerformance analyzes all lineages of the
	// automation's project and returns the newly persisted
	// recommendations. Repeated calls with unchanged data return
	// nothing: a pending recommendation for the same
	// (automation, content, type) is never duplicated.
	AnalyzeAutomationPerformance(ctx context.Context, automationID uuid.UUID) ([]*models.Recommendation, error)
}

type feedbackService struct {
	automationRepo     repositories.AutomationRepository
	contentRepo        repositories.ContentRepository
	recommendationRepo repositories.RecommendationRepository
	impact             ImpactService
	logger             *zap.Logger
}

// NewFeedbackService creates a new feedback service.
func NewFeedbackService(
	automationRepo repositories.AutomationRepository,
	contentRepo repositories.ContentRepository,
	recommendationRepo repositories.RecommendationRepository,
	impact ImpactService,
	logger *zap.Logger,
) FeedbackService {
	return &feedbackService{
		automationRepo:     automationRepo,
		contentRepo:        contentRepo,
		recommendationRepo: recommendationRepo,
		impact:             impact,
		logger:             logger.Named("feedback-service"),
	}
}

var _ FeedbackService = (*feedbackService)(nil)

func (s *feedbackService) AnalyzeAutomationPerformance(ctx context.Context, automationID uuid.UUID) ([]*models.Recommendation, error) {
	automation, err := s.automationRepo.GetByID(ctx, automationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load automation: %w", err)
	}

	roots, err := s.contentRepo.ListRoots(ctx, automation.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list content roots: %w", err)
	}

	var saved []*models.Recommendation
	for _, root := range roots {
		candidate, err := s.analyzeLineage(ctx, root.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to analyze lineage %s: %w", root.ID, err)
		}
		if candidate == nil {
			continue
		}
		candidate.AutomationID = automationID

		exists, err := s.recommendationRepo.PendingExists(ctx, automationID, candidate.ContentID, candidate.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to check pending recommendation: %w", err)
		}
		if exists {
			continue
		}

		if err := s.recommendationRepo.Create(ctx, candidate); err != nil {
			return nil, fmt.Errorf("failed to save recommendation: %w", err)
		}
		saved = append(saved, candidate)
	}

	if len(saved) > 0 {
		s.logger.Info("Feedback analysis produced recommendations",
			zap.String("automation_id", automationID.String()),
			zap.Int("count", len(saved)))
	}
	return saved, nil
}

// analyzeLineage compares the two most recent versions of one lineage
// and returns at most one recommendation candidate.
func (s *feedbackService) analyzeLineage(ctx context.Context, rootID uuid.UUID) (*models.Recommendation, error) {
	versions, err := s.contentRepo.Lineage(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lineage: %w", err)
	}
	if len(versions) < 2 {
		return nil, nil
	}

	latest := versions[len(versions)-1]
	previous := versions[len(versions)-2]

	latestMetrics, err := s.impact.AggregatedMetrics(ctx, latest.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics for latest version: %w", err)
	}
	previousMetrics, err := s.impact.AggregatedMetrics(ctx, previous.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics for previous version: %w", err)
	}

	latestScore := versionScore(latestMetrics)
	previousScore := versionScore(previousMetrics)
	if previousScore == 0 {
		// Insufficient data to compare against.
		return nil, nil
	}

	ratio := latestScore / previousScore
	switch {
	case ratio < RegressionRatio:
		s.logger.Warn("Performance regression detected",
			zap.String("content_id", latest.ID.String()),
			zap.Int("latest_version", latest.VersionNumber),
			zap.Int("previous_version", previous.VersionNumber),
			zap.Float64("ratio", ratio))

		return &models.Recommendation{
			ContentID:      &latest.ID,
			Type:           models.RecommendationVersionRollback,
			SuggestedValue: models.JSONBMap{"rollback_to_version": previous.VersionNumber},
			Reasoning: fmt.Sprintf(
				"Performance dropped by %.1f%%. Score V%d: %.2f vs V%d: %.2f",
				(1-ratio)*100, latest.VersionNumber, latestScore,
				previous.VersionNumber, previousScore),
		}, nil

	case ratio > ImprovementRatio:
		s.logger.Info("Performance improvement detected",
			zap.String("content_id", latest.ID.String()),
			zap.Float64("ratio", ratio))

		return &models.Recommendation{
			ContentID:      &latest.ID,
			Type:           models.RecommendationStyleLock,
			SuggestedValue: models.JSONBMap{"keep_elements": []interface{}{"tone", "hashtags"}},
			Reasoning: fmt.Sprintf(
				"Performance improved by %.1f%%. Winning formula.", (ratio-1)*100),
		}, nil
	}

	// Stable performance, nothing to suggest.
	return nil, nil
}

func versionScore(m *models.AggregatedMetrics) float64 {
	return m.CTRPercent*ScoreWeightCTR + m.EngagementRatePercent*ScoreWeightEngagement
}
