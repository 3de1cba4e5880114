package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/generation"
	"github.com/cadencehq/cadence-engine/pkg/models"
	"github.com/cadencehq/cadence-engine/pkg/repositories"
)

// Execution outcomes reported by Trigger.
const (
	ExecutionSuccess = "success"
	ExecutionSkipped = "skipped"
	ExecutionFailed  = "failed"
)

// ExecutionResult describes one trigger attempt, whether it produced
// content or was stopped by the decision engine.
type ExecutionResult struct {
	AutomationID  uuid.UUID       `json:"automation_id"`
	Status        string          `json:"status"`
	Decision      models.Decision `json:"decision"`
	Reason        string          `json:"reason"`
	ContentID     *uuid.UUID      `json:"content_id,omitempty"`
	CorrelationID *uuid.UUID      `json:"correlation_id,omitempty"`
	Platform      string          `json:"platform,omitempty"`
	NextRunAt     *time.Time      `json:"next_run_at,omitempty"`
}

// AutomationService runs campaign automations: each trigger asks the
// decision engine for clearance, generates content on allow, records
// the version, and reschedules the automation.
type AutomationService interface {
	// Trigger attempts one run of the automation. With manualOverride
	// false (the scheduler path), an inactive automation is skipped
	// without side effects and an active one goes through the decision
	// engine; a blocked decision is not an error, the result carries
	// the decision and the automation is rescheduled. With
	// manualOverride true (the human path), both the status gate and
	// the decision engine are bypassed so an operator can force-run a
	// paused campaign. Only infrastructure failures return an error.
	Trigger(ctx context.Context, automationID uuid.UUID, manualOverride bool) (*ExecutionResult, error)
}

type automationService struct {
	automationRepo repositories.AutomationRepository
	decisions      DecisionService
	tracking       TrackingService
	generator      generation.Generator

	generationTimeout time.Duration
	clock             func() time.Time
	logger            *zap.Logger
}

// NewAutomationService creates a new automation service.
func NewAutomationService(
	automationRepo repositories.AutomationRepository,
	decisions DecisionService,
	tracking TrackingService,
	generator generation.Generator,
	generationTimeout time.Duration,
	logger *zap.Logger,
) AutomationService {
	if generationTimeout <= 0 {
		generationTimeout = 2 * time.Minute
	}
	return &automationService{
		automationRepo:    automationRepo,
		decisions:         decisions,
		tracking:          tracking,
		generator:         generator,
		generationTimeout: generationTimeout,
		clock:             time.Now,
		logger:            logger.Named("automation-service"),
	}
}

var _ AutomationService = (*automationService)(nil)

func (s *automationService) Trigger(ctx context.Context, automationID uuid.UUID, manualOverride bool) (*ExecutionResult, error) {
	automation, err := s.automationRepo.GetByID(ctx, automationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load automation: %w", err)
	}

	now := s.clock()
	nextRun := ComputeNextRun(automation, now)
	result := &ExecutionResult{
		AutomationID: automationID,
		NextRunAt:    nextRun,
	}

	switch {
	case manualOverride:
		// A human forcing the run. The status gate and the decision
		// engine do not apply; the operator's intent wins.
		result.Decision = models.ManualOverrideDecision("TRIGGER")
		result.Reason = "Manual trigger"
		s.logger.Info("Manual trigger: decision engine bypassed",
			zap.String("automation_id", automationID.String()))

	case automation.Status != models.AutomationStatusActive:
		// Inactive automations are skipped without side effects: no
		// reschedule, no audit row. Forcing one to run is what
		// manualOverride is for.
		result.Status = ExecutionSkipped
		result.Decision = models.DecisionBlockStatus
		result.Reason = fmt.Sprintf("Automation is not active: %s", automation.Status)
		result.NextRunAt = automation.NextRunAt
		s.logger.Info("Automation trigger skipped",
			zap.String("automation_id", automationID.String()),
			zap.String("reason", result.Reason))
		return result, nil

	default:
		decision, reason := s.decisions.Evaluate(ctx, automationID)
		result.Decision = decision
		result.Reason = reason
		if decision != models.DecisionAllowExecution {
			result.Status = ExecutionSkipped
			// Advance the schedule so a blocked automation is retried on
			// its next slot instead of on every scan.
			automation.NextRunAt = nextRun
			if err := s.automationRepo.Update(ctx, automation); err != nil {
				return nil, fmt.Errorf("failed to reschedule automation: %w", err)
			}
			s.logger.Info("Automation trigger skipped",
				zap.String("automation_id", automationID.String()),
				zap.String("decision", string(decision)),
				zap.String("reason", reason))
			return result, nil
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, s.generationTimeout)
	defer cancel()

	req := &generation.Request{
		Platform:    platformFromRules(automation.Rules),
		Topic:       automation.Name,
		Rules:       automation.Rules,
		StyleLocked: automation.StyleLocked,
	}
	genResult, err := s.generator.Generate(genCtx, req)
	if err != nil {
		result.Status = ExecutionFailed
		if recErr := s.automationRepo.RecordError(ctx, automationID, err.Error(), now, nextRun); recErr != nil {
			s.logger.Error("Failed to record trigger error",
				zap.String("automation_id", automationID.String()),
				zap.Error(recErr))
		}
		s.logger.Error("Content generation failed",
			zap.String("automation_id", automationID.String()),
			zap.String("provider", s.generator.Name()),
			zap.Error(err))
		return result, nil
	}

	content := &models.ContentVersion{
		ProjectID:    automation.ProjectID,
		AutomationID: &automation.ID,
		Platform:     req.Platform,
		Topic:        req.Topic,
	}
	if err := s.tracking.RecordGeneration(ctx, content); err != nil {
		result.Status = ExecutionFailed
		if recErr := s.automationRepo.RecordError(ctx, automationID, err.Error(), now, nextRun); recErr != nil {
			s.logger.Error("Failed to record trigger error",
				zap.String("automation_id", automationID.String()),
				zap.Error(recErr))
		}
		return result, nil
	}

	if err := s.automationRepo.UpdateExecutionState(ctx, automationID, now, nextRun); err != nil {
		return nil, fmt.Errorf("failed to update execution state: %w", err)
	}

	result.Status = ExecutionSuccess
	result.ContentID = &content.ID
	result.CorrelationID = &content.CorrelationID
	result.Platform = content.Platform

	s.logger.Info("Automation triggered",
		zap.String("automation_id", automationID.String()),
		zap.String("content_id", content.ID.String()),
		zap.String("provider", genResult.Provider),
		zap.String("model", genResult.Model))
	return result, nil
}

func platformFromRules(rules models.JSONBMap) string {
	if rules != nil {
		if p, ok := rules["platform"].(string); ok && p != "" {
			return p
		}
	}
	return "linkedin"
}

// ComputeNextRun derives the next scheduled run from the automation's
// trigger configuration. Manual automations return nil: they only run
// when a human triggers them. Interval triggers run every
// interval_minutes from now; cron triggers follow a standard 5-field
// expression. An unparseable cron expression falls back to the interval
// default rather than silencing the automation.
func ComputeNextRun(a *models.Automation, now time.Time) *time.Time {
	switch a.TriggerType {
	case models.TriggerManual:
		return nil
	case models.TriggerCron:
		if sched, err := cron.ParseStandard(a.CronExpression()); err == nil {
			next := sched.Next(now)
			return &next
		}
		fallthrough
	case models.TriggerInterval:
		next := now.Add(time.Duration(a.IntervalMinutes()) * time.Minute)
		return &next
	default:
		return nil
	}
}
