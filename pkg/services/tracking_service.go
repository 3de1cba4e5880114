package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/apperrors"
	"github.com/cadencehq/cadence-engine/pkg/models"
	"github.com/cadencehq/cadence-engine/pkg/repositories"
)

// TrackingService owns the content-version records generated content
// leaves behind: new roots, edit revisions, lineage reads, and the
// latest-version-only publishing rule.
type TrackingService interface {
	// RecordGeneration inserts a new root content version.
	RecordGeneration(ctx context.Context, c *models.ContentVersion) error

	// RecordRevision creates the next version in the lineage rooted at
	// the given content, sharing its correlation id.
	RecordRevision(ctx context.Context, rootID uuid.UUID) (*models.ContentVersion, error)

	// Roots returns the lineage roots for a project.
	Roots(ctx context.Context, projectID uuid.UUID) ([]*models.ContentVersion, error)

	// Lineage returns all versions of the lineage rooted at rootID,
	// ordered by version number.
	Lineage(ctx context.Context, rootID uuid.UUID) ([]*models.ContentVersion, error)

	// PublishContent marks a content version published. Only the latest
	// version of a lineage may be published; older versions return
	// ErrStaleVersion.
	PublishContent(ctx context.Context, id uuid.UUID) error
}

type trackingService struct {
	contentRepo repositories.ContentRepository
	logger      *zap.Logger
}

// NewTrackingService creates a new tracking service.
func NewTrackingService(contentRepo repositories.ContentRepository, logger *zap.Logger) TrackingService {
	return &trackingService{
		contentRepo: contentRepo,
		logger:      logger.Named("tracking-service"),
	}
}

var _ TrackingService = (*trackingService)(nil)

func (s *trackingService) RecordGeneration(ctx context.Context, c *models.ContentVersion) error {
	if c.CorrelationID == uuid.Nil {
		c.CorrelationID = uuid.New()
	}
	if err := s.contentRepo.Create(ctx, c); err != nil {
		return fmt.Errorf("failed to record generation: %w", err)
	}

	s.logger.Info("Recorded generated content",
		zap.String("content_id", c.ID.String()),
		zap.String("project_id", c.ProjectID.String()),
		zap.String("platform", c.Platform))
	return nil
}

func (s *trackingService) RecordRevision(ctx context.Context, rootID uuid.UUID) (*models.ContentVersion, error) {
	lineage, err := s.contentRepo.Lineage(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lineage: %w", err)
	}
	if len(lineage) == 0 {
		return nil, apperrors.ErrNotFound
	}

	root := lineage[0]
	latest := lineage[len(lineage)-1]

	revision := &models.ContentVersion{
		ProjectID:     root.ProjectID,
		AutomationID:  root.AutomationID,
		Platform:      root.Platform,
		Topic:         root.Topic,
		CorrelationID: root.CorrelationID,
		ParentID:      &root.ID,
		VersionNumber: latest.VersionNumber + 1,
	}
	if err := s.contentRepo.Create(ctx, revision); err != nil {
		return nil, fmt.Errorf("failed to record revision: %w", err)
	}

	s.logger.Info("Recorded content revision",
		zap.String("root_id", root.ID.String()),
		zap.Int("version", revision.VersionNumber))
	return revision, nil
}

func (s *trackingService) Roots(ctx context.Context, projectID uuid.UUID) ([]*models.ContentVersion, error) {
	return s.contentRepo.ListRoots(ctx, projectID)
}

func (s *trackingService) Lineage(ctx context.Context, rootID uuid.UUID) ([]*models.ContentVersion, error) {
	return s.contentRepo.Lineage(ctx, rootID)
}

func (s *trackingService) PublishContent(ctx context.Context, id uuid.UUID) error {
	latest, err := s.contentRepo.IsLatestVersion(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check content version: %w", err)
	}
	if !latest {
		return apperrors.ErrStaleVersion
	}

	if err := s.contentRepo.SetStatus(ctx, id, models.ContentStatusPublished); err != nil {
		return fmt.Errorf("failed to publish content: %w", err)
	}
	return nil
}
