package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/repositories"
)

// SchedulerService drives the autonomy loop: it periodically scans for
// due automations and hands each one to the runner. The scan itself is
// idempotent: every trigger, allowed or blocked, advances the
// automation's next_run_at, so a second scan in the same slot finds
// nothing due. The kill switch is not checked here; it lives inside the
// evaluation so that every blocked automation still gets its audit row.
type SchedulerService interface {
	// RunScheduler starts the background scan loop. It scans once
	// immediately, then on every interval tick. Cancel the context to
	// stop the loop.
	RunScheduler(ctx context.Context, interval time.Duration)

	// ScanOnce performs a single due-automation scan. Exposed for
	// manual kicks and tests; RunScheduler calls it on each tick.
	ScanOnce(ctx context.Context) int
}

type schedulerService struct {
	automationRepo repositories.AutomationRepository
	automations    AutomationService

	clock  func() time.Time
	logger *zap.Logger
}

// NewSchedulerService creates a new scheduler service.
func NewSchedulerService(
	automationRepo repositories.AutomationRepository,
	automations AutomationService,
	logger *zap.Logger,
) SchedulerService {
	return &schedulerService{
		automationRepo: automationRepo,
		automations:    automations,
		clock:          time.Now,
		logger:         logger.Named("scheduler"),
	}
}

var _ SchedulerService = (*schedulerService)(nil)

func (s *schedulerService) RunScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("Autonomy scheduler started",
			zap.Duration("interval", interval))

		// Scan immediately on startup, then at each interval
		s.ScanOnce(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Autonomy scheduler stopped")
				return
			case <-ticker.C:
				s.ScanOnce(ctx)
			}
		}
	}()
}

func (s *schedulerService) ScanOnce(ctx context.Context) int {
	due, err := s.automationRepo.ListDue(ctx, s.clock())
	if err != nil {
		s.logger.Error("Scheduler scan failed to list due automations", zap.Error(err))
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	s.logger.Debug("Scheduler scan found due automations", zap.Int("count", len(due)))

	triggered := 0
	for _, automation := range due {
		if ctx.Err() != nil {
			return triggered
		}
		if s.triggerOne(ctx, automation.ID) {
			triggered++
		}
	}
	return triggered
}

// triggerOne runs a single automation inside its own failure boundary:
// an error or panic from one automation must not abort the rest of the
// batch.
func (s *schedulerService) triggerOne(ctx context.Context, automationID uuid.UUID) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			s.logger.Error("Automation trigger panicked",
				zap.String("automation_id", automationID.String()),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	result, err := s.automations.Trigger(ctx, automationID, false)
	if err != nil {
		s.logger.Error("Scheduler failed to trigger automation",
			zap.String("automation_id", automationID.String()),
			zap.Error(err))
		return false
	}

	s.logger.Info("Scheduler triggered automation",
		zap.String("automation_id", automationID.String()),
		zap.String("status", result.Status),
		zap.String("decision", string(result.Decision)))
	return true
}
