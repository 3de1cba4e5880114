package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cadencehq/cadence-engine/pkg/database"
	"github.com/cadencehq/cadence-engine/pkg/models"
)

// ImpactRepository provides data access for impact snapshots.
type ImpactRepository interface {
	Create(ctx context.Context, snap *models.ImpactSnapshot) error

	// LatestByContent returns the most recent snapshot for a content
	// version, or nil when none exist.
	LatestByContent(ctx context.Context, contentID uuid.UUID) (*models.ImpactSnapshot, error)

	// CountByContent returns how many snapshots exist for a content version.
	CountByContent(ctx context.Context, contentID uuid.UUID) (int, error)
}

type impactRepository struct {
	db *database.DB
}

// NewImpactRepository creates a new impact repository.
func NewImpactRepository(db *database.DB) ImpactRepository {
	return &impactRepository{db: db}
}

var _ ImpactRepository = (*impactRepository)(nil)

func (r *impactRepository) Create(ctx context.Context, snap *models.ImpactSnapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.Source == "" {
		snap.Source = "manual"
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now()
	}

	query := `
		INSERT INTO impact_snapshots (
			id, content_id, impressions, clicks, reactions, comments, shares, source, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		snap.ID, snap.ContentID, snap.Impressions, snap.Clicks,
		snap.Reactions, snap.Comments, snap.Shares, snap.Source, snap.CapturedAt)
	if err != nil {
		return fmt.Errorf("failed to create impact snapshot: %w", err)
	}
	return nil
}

func (r *impactRepository) LatestByContent(ctx context.Context, contentID uuid.UUID) (*models.ImpactSnapshot, error) {
	query := `
		SELECT id, content_id, impressions, clicks, reactions, comments, shares, source, captured_at
		FROM impact_snapshots
		WHERE content_id = $1
		ORDER BY captured_at DESC
		LIMIT 1`

	var snap models.ImpactSnapshot
	err := r.db.QueryRow(ctx, query, contentID).Scan(
		&snap.ID, &snap.ContentID, &snap.Impressions, &snap.Clicks,
		&snap.Reactions, &snap.Comments, &snap.Shares, &snap.Source, &snap.CapturedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest impact snapshot: %w", err)
	}
	return &snap, nil
}

func (r *impactRepository) CountByContent(ctx context.Context, contentID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM impact_snapshots WHERE content_id = $1`, contentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count impact snapshots: %w", err)
	}
	return count, nil
}
