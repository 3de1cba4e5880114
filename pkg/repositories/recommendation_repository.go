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

// RecommendationRepository provides data access for optimization
// recommendations.
type RecommendationRepository interface {
	Create(ctx context.Context, rec *models.Recommendation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recommendation, error)

	// PendingExists reports whether a PENDING recommendation already
	// exists for the (automation, content, type) triple.
	PendingExists(ctx context.Context, automationID uuid.UUID, contentID *uuid.UUID, recType models.RecommendationType) (bool, error)

	// ListPendingByType returns PENDING recommendations of one type for
	// an automation.
	ListPendingByType(ctx context.Context, automationID uuid.UUID, recType models.RecommendationType) ([]*models.Recommendation, error)

	// List returns recommendations filtered by status, newest first.
	List(ctx context.Context, status models.RecommendationStatus, limit int) ([]*models.Recommendation, error)

	// SetStatus transitions a recommendation and stamps who handled it.
	SetStatus(ctx context.Context, id uuid.UUID, status models.RecommendationStatus, handledBy string) error
}

type recommendationRepository struct {
	db *database.DB
}

// NewRecommendationRepository creates a new recommendation repository.
func NewRecommendationRepository(db *database.DB) RecommendationRepository {
	return &recommendationRepository{db: db}
}

var _ RecommendationRepository = (*recommendationRepository)(nil)

const recommendationColumns = `
	id, automation_id, content_id, type, suggested_value, reasoning,
	status, handled_by, handled_at, created_at, updated_at`

func (r *recommendationRepository) Create(ctx context.Context, rec *models.Recommendation) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = models.RecommendationPending
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	query := `
		INSERT INTO recommendations (
			id, automation_id, content_id, type, suggested_value, reasoning,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.AutomationID, rec.ContentID, rec.Type, rec.SuggestedValue,
		rec.Reasoning, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create recommendation: %w", err)
	}
	return nil
}

func (r *recommendationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE id = $1`
	rec, err := scanRecommendation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return rec, nil
}

func (r *recommendationRepository) PendingExists(ctx context.Context, automationID uuid.UUID, contentID *uuid.UUID, recType models.RecommendationType) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM recommendations
			WHERE automation_id = $1
			  AND content_id IS NOT DISTINCT FROM $2
			  AND type = $3
			  AND status = $4
		)`

	var exists bool
	err := r.db.QueryRow(ctx, query, automationID, contentID, recType, models.RecommendationPending).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending recommendation: %w", err)
	}
	return exists, nil
}

func (r *recommendationRepository) ListPendingByType(ctx context.Context, automationID uuid.UUID, recType models.RecommendationType) ([]*models.Recommendation, error) {
	query := `
		SELECT ` + recommendationColumns + `
		FROM recommendations
		WHERE automation_id = $1 AND type = $2 AND status = $3
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, automationID, recType, models.RecommendationPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending recommendations: %w", err)
	}
	defer rows.Close()

	return collectRecommendations(rows)
}

func (r *recommendationRepository) List(ctx context.Context, status models.RecommendationStatus, limit int) ([]*models.Recommendation, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + recommendationColumns + `
		FROM recommendations
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	return collectRecommendations(rows)
}

func (r *recommendationRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.RecommendationStatus, handledBy string) error {
	query := `
		UPDATE recommendations
		SET status = $2, handled_by = $3, handled_at = NOW(), updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status, handledBy)
	if err != nil {
		return fmt.Errorf("failed to update recommendation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func collectRecommendations(rows pgx.Rows) ([]*models.Recommendation, error) {
	var recs []*models.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recommendations: %w", err)
	}
	return recs, nil
}

func scanRecommendation(row pgx.Row) (*models.Recommendation, error) {
	var rec models.Recommendation
	err := row.Scan(
		&rec.ID, &rec.AutomationID, &rec.ContentID, &rec.Type, &rec.SuggestedValue,
		&rec.Reasoning, &rec.Status, &rec.HandledBy, &rec.HandledAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
