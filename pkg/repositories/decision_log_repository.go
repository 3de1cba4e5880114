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

// DecisionLogRepository provides data access for the append-only
// decision audit trail. Entries are never updated or deleted.
type DecisionLogRepository interface {
	Create(ctx context.Context, entry *models.DecisionLogEntry) error

	// List returns decision entries newest first, optionally filtered to
	// one automation, along with the total matching count.
	List(ctx context.Context, automationID *uuid.UUID, limit, offset int) ([]*models.DecisionLogEntry, int, error)

	// LatestForAutomation returns the most recent entry for an
	// automation, or nil when none exist.
	LatestForAutomation(ctx context.Context, automationID uuid.UUID) (*models.DecisionLogEntry, error)

	// LastHumanAction returns the most recent manual-override or
	// emergency-stop entry, or nil when none exist.
	LastHumanAction(ctx context.Context) (*models.DecisionLogEntry, error)
}

type decisionLogRepository struct {
	db *database.DB
}

// NewDecisionLogRepository creates a new decision log repository.
func NewDecisionLogRepository(db *database.DB) DecisionLogRepository {
	return &decisionLogRepository{db: db}
}

var _ DecisionLogRepository = (*decisionLogRepository)(nil)

const decisionLogColumns = `id, automation_id, decision, reason, metrics_snapshot, created_at`

func (r *decisionLogRepository) Create(ctx context.Context, entry *models.DecisionLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO decision_logs (id, automation_id, decision, reason, metrics_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.AutomationID, entry.Decision, entry.Reason,
		entry.MetricsSnapshot, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create decision log entry: %w", err)
	}
	return nil
}

func (r *decisionLogRepository) List(ctx context.Context, automationID *uuid.UUID, limit, offset int) ([]*models.DecisionLogEntry, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM decision_logs WHERE ($1::uuid IS NULL OR automation_id = $1)`
	if err := r.db.QueryRow(ctx, countQuery, automationID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count decision log entries: %w", err)
	}

	query := `
		SELECT ` + decisionLogColumns + `
		FROM decision_logs
		WHERE ($1::uuid IS NULL OR automation_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, automationID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query decision log: %w", err)
	}
	defer rows.Close()

	var entries []*models.DecisionLogEntry
	for rows.Next() {
		entry, err := scanDecisionLogEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan decision log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating decision log entries: %w", err)
	}
	return entries, total, nil
}

func (r *decisionLogRepository) LatestForAutomation(ctx context.Context, automationID uuid.UUID) (*models.DecisionLogEntry, error) {
	query := `
		SELECT ` + decisionLogColumns + `
		FROM decision_logs
		WHERE automation_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	entry, err := scanDecisionLogEntry(r.db.QueryRow(ctx, query, automationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest decision: %w", err)
	}
	return entry, nil
}

func (r *decisionLogRepository) LastHumanAction(ctx context.Context) (*models.DecisionLogEntry, error) {
	query := `
		SELECT ` + decisionLogColumns + `
		FROM decision_logs
		WHERE decision LIKE 'MANUAL_OVERRIDE_%' OR decision = $1
		ORDER BY created_at DESC
		LIMIT 1`

	entry, err := scanDecisionLogEntry(r.db.QueryRow(ctx, query, models.DecisionEmergencyStop))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last human action: %w", err)
	}
	return entry, nil
}

func scanDecisionLogEntry(row pgx.Row) (*models.DecisionLogEntry, error) {
	var entry models.DecisionLogEntry
	err := row.Scan(
		&entry.ID, &entry.AutomationID, &entry.Decision, &entry.Reason,
		&entry.MetricsSnapshot, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
