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

// AutomationRepository defines the interface for automation data access.
type AutomationRepository interface {
	Create(ctx context.Context, a *models.Automation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Automation, error)
	GetByProject(ctx context.Context, projectID uuid.UUID) (*models.Automation, error)
	Update(ctx context.Context, a *models.Automation) error

	// ListDue returns active automations whose next_run_at has passed.
	ListDue(ctx context.Context, now time.Time) ([]*models.Automation, error)

	// Counts returns aggregate counters for the dashboard.
	Counts(ctx context.Context) (*AutomationCounts, error)

	// UpdateExecutionState sets last_run_at and next_run_at after a
	// trigger, clearing any previous error.
	UpdateExecutionState(ctx context.Context, id uuid.UUID, lastRunAt time.Time, nextRunAt *time.Time) error

	// RecordError stores a failed trigger's error while still advancing
	// next_run_at so the automation is retried rather than stuck.
	RecordError(ctx context.Context, id uuid.UUID, errMsg string, at time.Time, nextRunAt *time.Time) error

	// PauseAutonomyUnlessOverridden atomically moves an automation to
	// autonomous_paused, but only when it is not under manual override.
	// Returns whether the row changed. The guard lives in the UPDATE
	// predicate so a concurrent override cannot be overturned.
	PauseAutonomyUnlessOverridden(ctx context.Context, id uuid.UUID) (bool, error)

	// ApplyOverride atomically sets the full
	// (status, autonomy_status, is_manually_overridden, override_reason)
	// group in one statement.
	ApplyOverride(ctx context.Context, id uuid.UUID, status models.AutomationStatus, autonomy models.AutonomyStatus, reason string) error

	// SetStyleLocked toggles the style lock flag.
	SetStyleLocked(ctx context.Context, id uuid.UUID, locked bool) error

	// EmergencyStopAll forces every active automation to
	// paused/autonomous_paused/overridden and returns the affected ids.
	EmergencyStopAll(ctx context.Context, reason string) ([]uuid.UUID, error)
}

// AutomationCounts holds dashboard aggregates over all automations.
type AutomationCounts struct {
	Total           int `json:"total"`
	Active          int `json:"active"`
	Paused          int `json:"paused"`
	AutonomyActive  int `json:"autonomy_active"`
	AutonomyPaused  int `json:"autonomy_paused"`
	AutonomyBlocked int `json:"autonomy_blocked"`
	Overridden      int `json:"overridden"`
	Errored         int `json:"errored"`
}

type automationRepository struct {
	db *database.DB
}

// NewAutomationRepository creates a new automation repository.
func NewAutomationRepository(db *database.DB) AutomationRepository {
	return &automationRepository{db: db}
}

var _ AutomationRepository = (*automationRepository)(nil)

const automationColumns = `
	id, project_id, name, trigger_type, trigger_config, rules,
	status, autonomy_status, is_manually_overridden, override_reason, style_locked,
	last_run_at, next_run_at, last_error, error_at, created_at, updated_at`

func (r *automationRepository) Create(ctx context.Context, a *models.Automation) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	query := `
		INSERT INTO automations (
			id, project_id, name, trigger_type, trigger_config, rules,
			status, autonomy_status, is_manually_overridden, override_reason, style_locked,
			last_run_at, next_run_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.Exec(ctx, query,
		a.ID, a.ProjectID, a.Name, a.TriggerType, a.TriggerConfig, a.Rules,
		a.Status, a.AutonomyStatus, a.IsManuallyOverridden, a.OverrideReason, a.StyleLocked,
		a.LastRunAt, a.NextRunAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create automation: %w", err)
	}
	return nil
}

func (r *automationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE id = $1`
	a, err := scanAutomation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get automation: %w", err)
	}
	return a, nil
}

func (r *automationRepository) GetByProject(ctx context.Context, projectID uuid.UUID) (*models.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE project_id = $1 ORDER BY created_at LIMIT 1`
	a, err := scanAutomation(r.db.QueryRow(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get automation by project: %w", err)
	}
	return a, nil
}

func (r *automationRepository) Update(ctx context.Context, a *models.Automation) error {
	a.UpdatedAt = time.Now()

	query := `
		UPDATE automations SET
			name = $2, trigger_type = $3, trigger_config = $4, rules = $5,
			status = $6, autonomy_status = $7,
			is_manually_overridden = $8, override_reason = $9, style_locked = $10,
			next_run_at = $11, updated_at = $12
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		a.ID, a.Name, a.TriggerType, a.TriggerConfig, a.Rules,
		a.Status, a.AutonomyStatus,
		a.IsManuallyOverridden, a.OverrideReason, a.StyleLocked,
		a.NextRunAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update automation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *automationRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Automation, error) {
	query := `SELECT ` + automationColumns + `
		FROM automations
		WHERE status = $1 AND next_run_at IS NOT NULL AND next_run_at <= $2
		ORDER BY next_run_at`

	rows, err := r.db.Query(ctx, query, models.AutomationStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due automations: %w", err)
	}
	defer rows.Close()

	var automations []*models.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}
		automations = append(automations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due automations: %w", err)
	}
	return automations, nil
}

func (r *automationRepository) Counts(ctx context.Context) (*AutomationCounts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'paused'),
			COUNT(*) FILTER (WHERE autonomy_status = 'autonomous_active'),
			COUNT(*) FILTER (WHERE autonomy_status = 'autonomous_paused'),
			COUNT(*) FILTER (WHERE autonomy_status = 'autonomous_blocked'),
			COUNT(*) FILTER (WHERE is_manually_overridden),
			COUNT(*) FILTER (WHERE last_error IS NOT NULL)
		FROM automations`

	var c AutomationCounts
	err := r.db.QueryRow(ctx, query).Scan(
		&c.Total, &c.Active, &c.Paused,
		&c.AutonomyActive, &c.AutonomyPaused, &c.AutonomyBlocked,
		&c.Overridden, &c.Errored,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count automations: %w", err)
	}
	return &c, nil
}

func (r *automationRepository) UpdateExecutionState(ctx context.Context, id uuid.UUID, lastRunAt time.Time, nextRunAt *time.Time) error {
	query := `
		UPDATE automations
		SET last_run_at = $2, next_run_at = $3, last_error = NULL, error_at = NULL, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, lastRunAt, nextRunAt)
	if err != nil {
		return fmt.Errorf("failed to update execution state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *automationRepository) RecordError(ctx context.Context, id uuid.UUID, errMsg string, at time.Time, nextRunAt *time.Time) error {
	query := `
		UPDATE automations
		SET last_error = $2, error_at = $3, next_run_at = $4, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, errMsg, at, nextRunAt)
	if err != nil {
		return fmt.Errorf("failed to record automation error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *automationRepository) PauseAutonomyUnlessOverridden(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE automations
		SET autonomy_status = $2, updated_at = NOW()
		WHERE id = $1 AND is_manually_overridden = FALSE`

	tag, err := r.db.Exec(ctx, query, id, models.AutonomyPaused)
	if err != nil {
		return false, fmt.Errorf("failed to pause autonomy: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *automationRepository) ApplyOverride(ctx context.Context, id uuid.UUID, status models.AutomationStatus, autonomy models.AutonomyStatus, reason string) error {
	query := `
		UPDATE automations
		SET status = $2, autonomy_status = $3,
			is_manually_overridden = TRUE, override_reason = $4, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status, autonomy, reason)
	if err != nil {
		return fmt.Errorf("failed to apply override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *automationRepository) SetStyleLocked(ctx context.Context, id uuid.UUID, locked bool) error {
	// Style locking is a manual override action: it marks the
	// automation manually overridden so the engine will not auto-pause
	// it behind the operator's back.
	tag, err := r.db.Exec(ctx,
		`UPDATE automations SET style_locked = $2, is_manually_overridden = TRUE, updated_at = NOW() WHERE id = $1`,
		id, locked)
	if err != nil {
		return fmt.Errorf("failed to set style lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *automationRepository) EmergencyStopAll(ctx context.Context, reason string) ([]uuid.UUID, error) {
	query := `
		UPDATE automations
		SET status = $1, autonomy_status = $2,
			is_manually_overridden = TRUE, override_reason = $3, updated_at = NOW()
		WHERE status = $4
		RETURNING id`

	rows, err := r.db.Query(ctx, query,
		models.AutomationStatusPaused, models.AutonomyPaused, reason,
		models.AutomationStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to emergency-stop automations: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan automation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stopped automations: %w", err)
	}
	return ids, nil
}

func scanAutomation(row pgx.Row) (*models.Automation, error) {
	var a models.Automation
	err := row.Scan(
		&a.ID, &a.ProjectID, &a.Name, &a.TriggerType, &a.TriggerConfig, &a.Rules,
		&a.Status, &a.AutonomyStatus, &a.IsManuallyOverridden, &a.OverrideReason, &a.StyleLocked,
		&a.LastRunAt, &a.NextRunAt, &a.LastError, &a.ErrorAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
