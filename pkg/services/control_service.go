package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/apperrors"
	"github.com/cadencehq/cadence-engine/pkg/models"
	"github.com/cadencehq/cadence-engine/pkg/repositories"
)

// Override actions accepted by ControlService.Override.
const (
	OverrideForcePause  = "force_pause"
	OverrideForceResume = "force_resume"
	OverrideLockStyle   = "lock_style"
	OverrideUnlockStyle = "unlock_style"
)

// Recommendation actions accepted by HandleRecommendation.
const (
	RecommendationApprove = "approve"
	RecommendationReject  = "reject"
	RecommendationArchive = "archive"
)

// DashboardStats is the operator overview of the whole engine.
type DashboardStats struct {
	Automations     *repositories.AutomationCounts `json:"automations"`
	AutonomyEnabled bool                           `json:"autonomy_enabled"`
	LastHumanAction *models.DecisionLogEntry       `json:"last_human_action,omitempty"`
}

// CampaignStatus is one automation together with the engine's most
// recent decision about it.
type CampaignStatus struct {
	Automation   *models.Automation       `json:"automation"`
	LastDecision *models.DecisionLogEntry `json:"last_decision,omitempty"`
}

// ControlService is the human control surface: overrides, emergency
// stop, recommendation triage, and read-only status views. Every
// mutating action writes its own audit row so the decision log is a
// complete record of both machine and human decisions.
type ControlService interface {
	// SetupAutomation creates the automation, or reconfigures the
	// project's existing one. An explicit reconfiguration clears any
	// manual override: the human has re-stated their intent.
	SetupAutomation(ctx context.Context, a *models.Automation) (*models.Automation, error)

	// Override applies a manual override action. force_pause and
	// force_resume set the statuses, lock_style and unlock_style toggle
	// style locking; all four mark the automation manually overridden.
	// Unknown actions return ErrInvalidAction.
	Override(ctx context.Context, automationID uuid.UUID, action, reason, actor string) error

	// EmergencyStop force-pauses every active automation and returns
	// how many were stopped.
	EmergencyStop(ctx context.Context, actor string) (int, error)

	// HandleRecommendation resolves a pending recommendation. It only
	// records the verdict; applying the suggested change stays with the
	// human.
	HandleRecommendation(ctx context.Context, recommendationID uuid.UUID, action, actor string) (*models.Recommendation, error)

	DashboardStats(ctx context.Context) (*DashboardStats, error)
	CampaignStatus(ctx context.Context, automationID uuid.UUID) (*CampaignStatus, error)
	DecisionHistory(ctx context.Context, automationID *uuid.UUID, limit, offset int) ([]*models.DecisionLogEntry, int, error)
	PendingRecommendations(ctx context.Context, limit int) ([]*models.Recommendation, error)
}

type controlService struct {
	automationRepo     repositories.AutomationRepository
	decisionRepo       repositories.DecisionLogRepository
	recommendationRepo repositories.RecommendationRepository

	autonomyEnabled func() bool
	logger          *zap.Logger
}

// NewControlService creates a new control service.
func NewControlService(
	automationRepo repositories.AutomationRepository,
	decisionRepo repositories.DecisionLogRepository,
	recommendationRepo repositories.RecommendationRepository,
	autonomyEnabled func() bool,
	logger *zap.Logger,
) ControlService {
	return &controlService{
		automationRepo:     automationRepo,
		decisionRepo:       decisionRepo,
		recommendationRepo: recommendationRepo,
		autonomyEnabled:    autonomyEnabled,
		logger:             logger.Named("control-service"),
	}
}

var _ ControlService = (*controlService)(nil)

func (s *controlService) SetupAutomation(ctx context.Context, a *models.Automation) (*models.Automation, error) {
	if !a.TriggerType.Valid() {
		return nil, fmt.Errorf("%w: trigger type %q", apperrors.ErrInvalidAction, a.TriggerType)
	}

	existing, err := s.automationRepo.GetByProject(ctx, a.ProjectID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up automation: %w", err)
	}

	if existing == nil {
		a.Status = models.AutomationStatusActive
		a.AutonomyStatus = models.AutonomyActive
		a.NextRunAt = ComputeNextRun(a, time.Now().UTC())
		if err := s.automationRepo.Create(ctx, a); err != nil {
			return nil, fmt.Errorf("failed to create automation: %w", err)
		}
		s.logger.Info("Automation created",
			zap.String("automation_id", a.ID.String()),
			zap.String("project_id", a.ProjectID.String()))
		return a, nil
	}

	existing.Name = a.Name
	existing.TriggerType = a.TriggerType
	existing.TriggerConfig = a.TriggerConfig
	existing.Rules = a.Rules
	existing.Status = models.AutomationStatusActive
	existing.AutonomyStatus = models.AutonomyActive
	existing.IsManuallyOverridden = false
	existing.OverrideReason = nil
	existing.NextRunAt = ComputeNextRun(existing, time.Now().UTC())
	if err := s.automationRepo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update automation: %w", err)
	}
	s.logger.Info("Automation reconfigured",
		zap.String("automation_id", existing.ID.String()))
	return existing, nil
}

func (s *controlService) Override(ctx context.Context, automationID uuid.UUID, action, reason, actor string) error {
	if _, err := s.automationRepo.GetByID(ctx, automationID); err != nil {
		return err
	}

	switch action {
	case OverrideForcePause:
		if err := s.automationRepo.ApplyOverride(ctx, automationID, models.AutomationStatusPaused, models.AutonomyPaused, reason); err != nil {
			return fmt.Errorf("failed to apply override: %w", err)
		}
	case OverrideForceResume:
		if err := s.automationRepo.ApplyOverride(ctx, automationID, models.AutomationStatusActive, models.AutonomyActive, reason); err != nil {
			return fmt.Errorf("failed to apply override: %w", err)
		}
	case OverrideLockStyle:
		if err := s.automationRepo.SetStyleLocked(ctx, automationID, true); err != nil {
			return fmt.Errorf("failed to lock style: %w", err)
		}
	case OverrideUnlockStyle:
		if err := s.automationRepo.SetStyleLocked(ctx, automationID, false); err != nil {
			return fmt.Errorf("failed to unlock style: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidAction, action)
	}

	entry := &models.DecisionLogEntry{
		AutomationID: automationID,
		Decision:     models.ManualOverrideDecision(strings.ToUpper(action)),
		Reason:       overrideReason(reason, actor),
	}
	if err := s.decisionRepo.Create(ctx, entry); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrAuditWriteFailed, err)
	}

	s.logger.Info("Manual override applied",
		zap.String("automation_id", automationID.String()),
		zap.String("action", action),
		zap.String("actor", actor))
	return nil
}

func (s *controlService) EmergencyStop(ctx context.Context, actor string) (int, error) {
	reason := overrideReason("Emergency stop", actor)
	stopped, err := s.automationRepo.EmergencyStopAll(ctx, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to emergency stop: %w", err)
	}

	for _, id := range stopped {
		entry := &models.DecisionLogEntry{
			AutomationID: id,
			Decision:     models.DecisionEmergencyStop,
			Reason:       reason,
		}
		if err := s.decisionRepo.Create(ctx, entry); err != nil {
			return len(stopped), fmt.Errorf("%w: %v", apperrors.ErrAuditWriteFailed, err)
		}
	}

	s.logger.Warn("Emergency stop executed",
		zap.Int("automations_stopped", len(stopped)),
		zap.String("actor", actor))
	return len(stopped), nil
}

func (s *controlService) HandleRecommendation(ctx context.Context, recommendationID uuid.UUID, action, actor string) (*models.Recommendation, error) {
	rec, err := s.recommendationRepo.GetByID(ctx, recommendationID)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.RecommendationPending {
		return nil, fmt.Errorf("%w: recommendation already %s", apperrors.ErrInvalidAction, rec.Status)
	}

	var status models.RecommendationStatus
	switch action {
	case RecommendationApprove:
		status = models.RecommendationApplied
	case RecommendationReject:
		status = models.RecommendationRejected
	case RecommendationArchive:
		status = models.RecommendationArchived
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidAction, action)
	}

	if err := s.recommendationRepo.SetStatus(ctx, recommendationID, status, actor); err != nil {
		return nil, fmt.Errorf("failed to update recommendation: %w", err)
	}

	rec, err = s.recommendationRepo.GetByID(ctx, recommendationID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Recommendation handled",
		zap.String("recommendation_id", recommendationID.String()),
		zap.String("action", action),
		zap.String("actor", actor))
	return rec, nil
}

func (s *controlService) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	counts, err := s.automationRepo.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count automations: %w", err)
	}

	lastHuman, err := s.decisionRepo.LastHumanAction(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load last human action: %w", err)
	}

	return &DashboardStats{
		Automations:     counts,
		AutonomyEnabled: s.autonomyEnabled(),
		LastHumanAction: lastHuman,
	}, nil
}

func (s *controlService) CampaignStatus(ctx context.Context, automationID uuid.UUID) (*CampaignStatus, error) {
	automation, err := s.automationRepo.GetByID(ctx, automationID)
	if err != nil {
		return nil, err
	}

	last, err := s.decisionRepo.LatestForAutomation(ctx, automationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load last decision: %w", err)
	}

	return &CampaignStatus{Automation: automation, LastDecision: last}, nil
}

func (s *controlService) DecisionHistory(ctx context.Context, automationID *uuid.UUID, limit, offset int) ([]*models.DecisionLogEntry, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.decisionRepo.List(ctx, automationID, limit, offset)
}

func (s *controlService) PendingRecommendations(ctx context.Context, limit int) ([]*models.Recommendation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.recommendationRepo.List(ctx, models.RecommendationPending, limit)
}

func overrideReason(reason, actor string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "No reason given"
	}
	if actor == "" {
		return reason
	}
	return fmt.Sprintf("%s (by %s)", reason, actor)
}
