package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cadencehq/cadence-engine/pkg/apperrors"
	"github.com/cadencehq/cadence-engine/pkg/database"
	"github.com/cadencehq/cadence-engine/pkg/models"
)

// ContentRepository provides data access for content versions and
// their lineages.
type ContentRepository interface {
	Create(ctx context.Context, c *models.ContentVersion) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ContentVersion, error)

	// ListRoots returns content versions without a parent for a project.
	ListRoots(ctx context.Context, projectID uuid.UUID) ([]*models.ContentVersion, error)

	// Lineage returns the root and all its descendants ordered by
	// version number.
	Lineage(ctx context.Context, rootID uuid.UUID) ([]*models.ContentVersion, error)

	// LatestByProject returns the most recently created content version
	// for a project, or nil when the project has no content.
	LatestByProject(ctx context.Context, projectID uuid.UUID) (*models.ContentVersion, error)

	// IsLatestVersion reports whether id is the highest version number
	// in its lineage.
	IsLatestVersion(ctx context.Context, id uuid.UUID) (bool, error)

	// SetStatus updates a content version's lifecycle status.
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

type contentRepository struct {
	db *database.DB
}

// NewContentRepository creates a new content repository.
func NewContentRepository(db *database.DB) ContentRepository {
	return &contentRepository{db: db}
}

var _ ContentRepository = (*contentRepository)(nil)

const contentColumns = `
	id, project_id, automation_id, platform, topic, status,
	correlation_id, parent_id, version_number, created_at`

func (r *contentRepository) Create(ctx context.Context, c *models.ContentVersion) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.ContentStatusGenerated
	}
	if c.VersionNumber == 0 {
		c.VersionNumber = 1
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO content_versions (
			id, project_id, automation_id, platform, topic, status,
			correlation_id, parent_id, version_number, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		c.ID, c.ProjectID, c.AutomationID, c.Platform, c.Topic, c.Status,
		c.CorrelationID, c.ParentID, c.VersionNumber, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create content version: %w", err)
	}
	return nil
}

func (r *contentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ContentVersion, error) {
	query := `SELECT ` + contentColumns + ` FROM content_versions WHERE id = $1`
	c, err := scanContentVersion(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get content version: %w", err)
	}
	return c, nil
}

func (r *contentRepository) ListRoots(ctx context.Context, projectID uuid.UUID) ([]*models.ContentVersion, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM content_versions
		WHERE project_id = $1 AND parent_id IS NULL
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query content roots: %w", err)
	}
	defer rows.Close()

	return collectContentVersions(rows)
}

func (r *contentRepository) Lineage(ctx context.Context, rootID uuid.UUID) ([]*models.ContentVersion, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM content_versions
		WHERE id = $1 OR parent_id = $1
		ORDER BY version_number`

	rows, err := r.db.Query(ctx, query, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to query content lineage: %w", err)
	}
	defer rows.Close()

	return collectContentVersions(rows)
}

func (r *contentRepository) LatestByProject(ctx context.Context, projectID uuid.UUID) (*models.ContentVersion, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM content_versions
		WHERE project_id = $1
		ORDER BY created_at DESC, version_number DESC
		LIMIT 1`

	c, err := scanContentVersion(r.db.QueryRow(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest content: %w", err)
	}
	return c, nil
}

func (r *contentRepository) IsLatestVersion(ctx context.Context, id uuid.UUID) (bool, error) {
	// The lineage root is either the row itself or its parent.
	query := `
		WITH target AS (
			SELECT id, COALESCE(parent_id, id) AS root_id, version_number
			FROM content_versions WHERE id = $1
		)
		SELECT NOT EXISTS (
			SELECT 1
			FROM content_versions c, target t
			WHERE (c.id = t.root_id OR c.parent_id = t.root_id)
			  AND c.version_number > t.version_number
		)`

	var latest bool
	err := r.db.QueryRow(ctx, query, id).Scan(&latest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, apperrors.ErrNotFound
		}
		return false, fmt.Errorf("failed to check latest version: %w", err)
	}
	return latest, nil
}

func (r *contentRepository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE content_versions SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to set content status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func collectContentVersions(rows pgx.Rows) ([]*models.ContentVersion, error) {
	var versions []*models.ContentVersion
	for rows.Next() {
		c, err := scanContentVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content version: %w", err)
		}
		versions = append(versions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content versions: %w", err)
	}
	return versions, nil
}

func scanContentVersion(row pgx.Row) (*models.ContentVersion, error) {
	var c models.ContentVersion
	err := row.Scan(
		&c.ID, &c.ProjectID, &c.AutomationID, &c.Platform, &c.Topic, &c.Status,
		&c.CorrelationID, &c.ParentID, &c.VersionNumber, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
