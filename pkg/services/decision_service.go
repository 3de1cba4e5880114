package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/models"
	"github.com/cadencehq/cadence-engine/pkg/repositories"
)

// DecisionService is the autonomous decision engine: it decides whether
// an automation may execute right now, and records every decision in
// the append-only audit trail.
//
// Safety invariant: an automation under manual override can be blocked
// mechanically (status, kill switch, cooldown) but never paused by a
// performance signal. The human decision always wins.
type DecisionService interface {
	// Evaluate runs the policy checks in fixed order and returns the
	// first matching decision with its reason. Exactly one audit entry
	// is written per call (except for an unknown automation, which has
	// no row to reference); if that write fails, evaluation fails safe
	// with BLOCK_STATUS.
	Evaluate(ctx context.Context, automationID uuid.UUID) (models.Decision, string)
}

type decisionService struct {
	automationRepo     repositories.AutomationRepository
	decisionRepo       repositories.DecisionLogRepository
	contentRepo        repositories.ContentRepository
	recommendationRepo repositories.RecommendationRepository
	feedback           FeedbackService
	impact             ImpactService

	// autonomyEnabled is the process-wide kill switch, read at
	// evaluation time so a config flip takes effect immediately.
	autonomyEnabled func() bool

	defaultCooldownMinutes int
	clock                  func() time.Time
	logger                 *zap.Logger
}

// NewDecisionService creates a new decision service.
func NewDecisionService(
	automationRepo repositories.AutomationRepository,
	decisionRepo repositories.DecisionLogRepository,
	contentRepo repositories.ContentRepository,
	recommendationRepo repositories.RecommendationRepository,
	feedback FeedbackService,
	impact ImpactService,
	autonomyEnabled func() bool,
	defaultCooldownMinutes int,
	logger *zap.Logger,
) DecisionService {
	if defaultCooldownMinutes <= 0 {
		defaultCooldownMinutes = DefaultCooldownMinutes
	}
	return &decisionService{
		automationRepo:         automationRepo,
		decisionRepo:           decisionRepo,
		contentRepo:            contentRepo,
		recommendationRepo:     recommendationRepo,
		feedback:               feedback,
		impact:                 impact,
		autonomyEnabled:        autonomyEnabled,
		defaultCooldownMinutes: defaultCooldownMinutes,
		clock:                  time.Now,
		logger:                 logger.Named("decision-service"),
	}
}

var _ DecisionService = (*decisionService)(nil)

func (s *decisionService) Evaluate(ctx context.Context, automationID uuid.UUID) (models.Decision, string) {
	automation, err := s.automationRepo.GetByID(ctx, automationID)
	if err != nil {
		// No audit row here: decision_logs requires an existing
		// automation to reference.
		s.logger.Warn("Evaluation requested for unknown automation",
			zap.String("automation_id", automationID.String()),
			zap.Error(err))
		return models.DecisionBlockStatus, "Automation not found"
	}

	if automation.AutonomyStatus != models.AutonomyActive {
		return s.recordDecision(ctx, automationID, models.DecisionBlockStatus,
			fmt.Sprintf("Automation is in state: %s", automation.AutonomyStatus), nil)
	}

	if !s.autonomyEnabled() {
		return s.recordDecision(ctx, automationID, models.DecisionBlockKillswitch,
			"Global autonomy kill switch is off", nil)
	}

	if !CooldownElapsed(automation.LastRunAt, s.cooldownMinutes(automation), s.clock()) {
		return s.recordDecision(ctx, automationID, models.DecisionBlockCooldown,
			fmt.Sprintf("Cooldown period active. Last run: %s", automation.LastRunAt.Format(time.RFC3339)), nil)
	}

	overridden := automation.IsManuallyOverridden

	// Feedback loop: a pending rollback recommendation means the latest
	// edit regressed. Best-effort - a broken analytics path degrades,
	// it does not halt scheduling.
	rollbacks, analysisErr := s.pendingRollbacks(ctx, automationID)
	if analysisErr != nil {
		s.logger.Warn("Feedback analysis failed, continuing without it",
			zap.String("automation_id", automationID.String()),
			zap.Error(analysisErr))
	} else if len(rollbacks) > 0 {
		snapshot := models.JSONBMap{"rollback_recommendations": len(rollbacks)}

		if overridden {
			// The recommendation stays pending for human review; the
			// override only suppresses the automatic pause.
			return s.recordDecision(ctx, automationID, models.DecisionAllowExecution,
				fmt.Sprintf("Manual override active: performance regression pause suppressed (%d rollback recommendations pending)", len(rollbacks)),
				snapshot)
		}

		if _, err := s.automationRepo.PauseAutonomyUnlessOverridden(ctx, automationID); err != nil {
			s.logger.Error("Failed to pause automation after regression",
				zap.String("automation_id", automationID.String()),
				zap.Error(err))
		}
		return s.recordDecision(ctx, automationID, models.DecisionBlockPerformance,
			fmt.Sprintf("Performance regression detected: %d rollback recommendations pending", len(rollbacks)),
			snapshot)
	}

	// Fallback aggregate-metrics check over the project's most recent
	// content, for regressions the lineage analysis cannot see.
	metrics, ok := s.currentMetrics(ctx, automation.ProjectID)
	if ok && ShouldPauseForPerformance(metrics) {
		snapshot := models.JSONBMap{
			MetricCTR:            metrics[MetricCTR],
			MetricEngagementRate: metrics[MetricEngagementRate],
		}

		if overridden {
			s.logger.Warn("Manual override active, ignoring low aggregate metrics",
				zap.String("automation_id", automationID.String()))
		} else {
			if _, err := s.automationRepo.PauseAutonomyUnlessOverridden(ctx, automationID); err != nil {
				s.logger.Error("Failed to pause automation on low metrics",
					zap.String("automation_id", automationID.String()),
					zap.Error(err))
			}
			return s.recordDecision(ctx, automationID, models.DecisionPauseCampaign,
				"Performance below threshold. Campaign auto-paused.", snapshot)
		}
	}

	var snapshot models.JSONBMap
	if ok {
		snapshot = models.JSONBMap{
			MetricCTR:            metrics[MetricCTR],
			MetricEngagementRate: metrics[MetricEngagementRate],
		}
	}
	return s.recordDecision(ctx, automationID, models.DecisionAllowExecution,
		"All autonomy checks passed.", snapshot)
}

func (s *decisionService) cooldownMinutes(a *models.Automation) int {
	if a.Rules != nil {
		if v, ok := a.Rules["cooldown_minutes"].(float64); ok && v > 0 {
			return int(v)
		}
	}
	return s.defaultCooldownMinutes
}

func (s *decisionService) pendingRollbacks(ctx context.Context, automationID uuid.UUID) ([]*models.Recommendation, error) {
	if _, err := s.feedback.AnalyzeAutomationPerformance(ctx, automationID); err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	// Pending rollbacks include both just-created ones and earlier runs'
	// recommendations a human has not handled yet.
	rollbacks, err := s.recommendationRepo.ListPendingByType(ctx, automationID, models.RecommendationVersionRollback)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rollbacks: %w", err)
	}
	return rollbacks, nil
}

// currentMetrics returns the aggregated KPI snapshot for the project's
// most recent content. ok is false when the project has no measured
// content yet (a brand-new campaign is never paused for lack of data).
func (s *decisionService) currentMetrics(ctx context.Context, projectID uuid.UUID) (map[string]float64, bool) {
	latest, err := s.contentRepo.LatestByProject(ctx, projectID)
	if err != nil {
		s.logger.Warn("Failed to load latest content for metrics check", zap.Error(err))
		return nil, false
	}
	if latest == nil {
		return nil, false
	}

	agg, err := s.impact.AggregatedMetrics(ctx, latest.ID)
	if err != nil {
		s.logger.Warn("Failed to aggregate metrics", zap.Error(err))
		return nil, false
	}
	if !agg.HasData {
		return nil, false
	}

	return map[string]float64{
		MetricCTR:            agg.CTRPercent,
		MetricEngagementRate: agg.EngagementRatePercent,
	}, true
}

// recordDecision writes the audit row and returns the decision/reason
// pair. An unauditable action is treated as unsafe: if the write fails
// the returned decision is BLOCK_STATUS regardless of the evaluation.
func (s *decisionService) recordDecision(ctx context.Context, automationID uuid.UUID, decision models.Decision, reason string, snapshot models.JSONBMap) (models.Decision, string) {
	entry := &models.DecisionLogEntry{
		AutomationID:    automationID,
		Decision:        decision,
		Reason:          reason,
		MetricsSnapshot: snapshot,
	}

	if err := s.decisionRepo.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to record autonomy decision",
			zap.String("automation_id", automationID.String()),
			zap.String("decision", string(decision)),
			zap.Error(err))
		return models.DecisionBlockStatus, fmt.Sprintf("Audit log failure: %v", err)
	}

	if decision == models.DecisionAllowExecution {
		s.logger.Info("Autonomy decision",
			zap.String("automation_id", automationID.String()),
			zap.String("decision", string(decision)),
			zap.String("reason", reason))
	} else {
		s.logger.Warn("Autonomy decision",
			zap.String("automation_id", automationID.String()),
			zap.String("decision", string(decision)),
			zap.String("reason", reason))
	}
	return decision, reason
}
