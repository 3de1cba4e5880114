package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/apperrors"
	"github.com/cadencehq/cadence-engine/pkg/models"
)

func TestTrackingService_RecordGeneration(t *testing.T) {
	repo := &mockContentRepository{}
	svc := NewTrackingService(repo, zap.NewNop())

	content := &models.ContentVersion{
		ProjectID: uuid.New(),
		Platform:  "linkedin",
		Topic:     "Product launch",
	}
	err := svc.RecordGeneration(context.Background(), content)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, content.ID)
	assert.NotEqual(t, uuid.Nil, content.CorrelationID, "new roots get a fresh correlation id")
	assert.Equal(t, 1, content.VersionNumber)
	assert.Nil(t, content.ParentID)
}

func TestTrackingService_RecordRevision(t *testing.T) {
	repo := &mockContentRepository{}
	svc := NewTrackingService(repo, zap.NewNop())
	projectID := uuid.New()

	root := &models.ContentVersion{ProjectID: projectID, Platform: "linkedin", Topic: "Launch"}
	require.NoError(t, svc.RecordGeneration(context.Background(), root))

	v2, err := svc.RecordRevision(context.Background(), root.ID)
	require.NoError(t, err)
	v3, err := svc.RecordRevision(context.Background(), root.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, v2.VersionNumber)
	assert.Equal(t, 3, v3.VersionNumber)
	assert.Equal(t, root.CorrelationID, v2.CorrelationID, "revisions share the root correlation id")
	assert.Equal(t, root.CorrelationID, v3.CorrelationID)
	require.NotNil(t, v3.ParentID)
	assert.Equal(t, root.ID, *v3.ParentID, "revisions point back at the root")

	lineage, err := svc.Lineage(context.Background(), root.ID)
	require.NoError(t, err)
	require.Len(t, lineage, 3)
	assert.Equal(t, root.ID, lineage[0].ID)
	assert.Equal(t, v3.ID, lineage[2].ID)
}

func TestTrackingService_RecordRevision_UnknownRoot(t *testing.T) {
	repo := &mockContentRepository{}
	svc := NewTrackingService(repo, zap.NewNop())

	_, err := svc.RecordRevision(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTrackingService_PublishContent_LatestOnly(t *testing.T) {
	repo := &mockContentRepository{}
	svc := NewTrackingService(repo, zap.NewNop())

	root := &models.ContentVersion{ProjectID: uuid.New(), Platform: "linkedin"}
	require.NoError(t, svc.RecordGeneration(context.Background(), root))
	v2, err := svc.RecordRevision(context.Background(), root.ID)
	require.NoError(t, err)

	// Publishing the superseded root must fail.
	err = svc.PublishContent(context.Background(), root.ID)
	assert.ErrorIs(t, err, apperrors.ErrStaleVersion)
	assert.Equal(t, models.ContentStatusGenerated, root.Status)

	// The newest version publishes fine.
	require.NoError(t, svc.PublishContent(context.Background(), v2.ID))
	assert.Equal(t, models.ContentStatusPublished, v2.Status)
}
