package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/generation"
	"github.com/cadencehq/cadence-engine/pkg/models"
)

type runnerFixture struct {
	svc            AutomationService
	automationRepo *mockAutomationRepository
	contentRepo    *mockContentRepository
	decisionRepo   *mockDecisionLogRepository
	generator      *generation.MockGenerator

	automation *models.Automation
}

func setupRunnerTest(t *testing.T) *runnerFixture {
	t.Helper()

	f := &runnerFixture{
		automationRepo: newMockAutomationRepository(),
		contentRepo:    &mockContentRepository{},
		decisionRepo:   &mockDecisionLogRepository{},
		generator:      generation.NewMockGenerator(),
	}

	f.automation = f.automationRepo.add(&models.Automation{
		ProjectID:      uuid.New(),
		Name:           "Weekly launch posts",
		TriggerType:    models.TriggerInterval,
		TriggerConfig:  models.JSONBMap{"minutes": float64(120)},
		Rules:          models.JSONBMap{"platform": "twitter"},
		Status:         models.AutomationStatusActive,
		AutonomyStatus: models.AutonomyActive,
	})

	impact := NewImpactService(newMockImpactRepository(), zap.NewNop())
	recRepo := &mockRecommendationRepository{}
	feedback := NewFeedbackService(f.automationRepo, f.contentRepo, recRepo, impact, zap.NewNop())
	decisions := NewDecisionService(
		f.automationRepo, f.decisionRepo, f.contentRepo, recRepo,
		feedback, impact,
		func() bool { return true },
		DefaultCooldownMinutes, zap.NewNop())
	tracking := NewTrackingService(f.contentRepo, zap.NewNop())

	f.svc = NewAutomationService(f.automationRepo, decisions, tracking, f.generator, time.Minute, zap.NewNop())
	return f
}

func TestAutomationService_Trigger_Success(t *testing.T) {
	f := setupRunnerTest(t)

	result, err := f.svc.Trigger(context.Background(), f.automation.ID, false)
	require.NoError(t, err)

	assert.Equal(t, ExecutionSuccess, result.Status)
	assert.Equal(t, models.DecisionAllowExecution, result.Decision)
	assert.Equal(t, "twitter", result.Platform)
	require.NotNil(t, result.ContentID)
	require.NotNil(t, result.CorrelationID)
	assert.Equal(t, 1, f.generator.GenerateCalls)

	// Content version recorded and linked back to the automation.
	require.Len(t, f.contentRepo.contents, 1)
	content := f.contentRepo.contents[0]
	assert.Equal(t, *result.ContentID, content.ID)
	require.NotNil(t, content.AutomationID)
	assert.Equal(t, f.automation.ID, *content.AutomationID)

	// Bookkeeping: last run stamped, next run two hours out.
	require.NotNil(t, f.automation.LastRunAt)
	require.NotNil(t, f.automation.NextRunAt)
	assert.InDelta(t, 2*time.Hour, f.automation.NextRunAt.Sub(*f.automation.LastRunAt), float64(time.Second))
	assert.Nil(t, f.automation.LastError)
}

func TestAutomationService_Trigger_SkippedWhenBlocked(t *testing.T) {
	f := setupRunnerTest(t)
	lastRun := time.Now().Add(-10 * time.Minute)
	f.automation.LastRunAt = &lastRun

	result, err := f.svc.Trigger(context.Background(), f.automation.ID, false)
	require.NoError(t, err)

	assert.Equal(t, ExecutionSkipped, result.Status)
	assert.Equal(t, models.DecisionBlockCooldown, result.Decision)
	assert.Zero(t, f.generator.GenerateCalls, "blocked runs never call the provider")
	assert.Empty(t, f.contentRepo.contents)

	// Still rescheduled so the scheduler does not retry every scan.
	require.NotNil(t, f.automation.NextRunAt)
	assert.True(t, f.automation.NextRunAt.After(time.Now()))
}

func TestAutomationService_Trigger_InactiveSkippedWithoutSideEffects(t *testing.T) {
	f := setupRunnerTest(t)
	f.automation.Status = models.AutomationStatusPaused

	result, err := f.svc.Trigger(context.Background(), f.automation.ID, false)
	require.NoError(t, err)

	assert.Equal(t, ExecutionSkipped, result.Status)
	assert.Equal(t, models.DecisionBlockStatus, result.Decision)
	assert.Zero(t, f.generator.GenerateCalls)

	// No side effects: not rescheduled, not evaluated, not audited.
	assert.Nil(t, f.automation.NextRunAt)
	assert.Nil(t, f.automation.LastRunAt)
	assert.Empty(t, f.decisionRepo.entries)
}

func TestAutomationService_ManualTriggerForcesPausedAutomation(t *testing.T) {
	f := setupRunnerTest(t)
	reason := "operator paused"
	f.automation.Status = models.AutomationStatusPaused
	f.automation.AutonomyStatus = models.AutonomyPaused
	f.automation.IsManuallyOverridden = true
	f.automation.OverrideReason = &reason
	lastRun := time.Now().Add(-10 * time.Minute)
	f.automation.LastRunAt = &lastRun // inside cooldown, too

	result, err := f.svc.Trigger(context.Background(), f.automation.ID, true)
	require.NoError(t, err)

	assert.Equal(t, ExecutionSuccess, result.Status)
	assert.Equal(t, models.ManualOverrideDecision("TRIGGER"), result.Decision)
	assert.Equal(t, 1, f.generator.GenerateCalls, "a forced run reaches the provider")
	require.Len(t, f.contentRepo.contents, 1)

	// The decision engine was bypassed entirely, so no engine audit row.
	assert.Empty(t, f.decisionRepo.entries)

	// Execution bookkeeping still applies.
	require.NotNil(t, f.automation.LastRunAt)
	assert.True(t, f.automation.LastRunAt.After(lastRun))
	require.NotNil(t, f.automation.NextRunAt)
}

func TestAutomationService_Trigger_GenerationFailure(t *testing.T) {
	f := setupRunnerTest(t)
	f.generator.GenerateFunc = func(ctx context.Context, req *generation.Request) (*generation.Result, error) {
		return nil, errors.New("provider unavailable")
	}

	result, err := f.svc.Trigger(context.Background(), f.automation.ID, false)
	require.NoError(t, err)

	assert.Equal(t, ExecutionFailed, result.Status)
	assert.Empty(t, f.contentRepo.contents)

	// The error is recorded and the automation still rescheduled.
	require.NotNil(t, f.automation.LastError)
	assert.Equal(t, "provider unavailable", *f.automation.LastError)
	require.NotNil(t, f.automation.NextRunAt)
}

func TestAutomationService_Trigger_UnknownAutomation(t *testing.T) {
	f := setupRunnerTest(t)

	_, err := f.svc.Trigger(context.Background(), uuid.New(), false)
	assert.Error(t, err)
}

func TestAutomationService_Trigger_StyleLockPropagates(t *testing.T) {
	f := setupRunnerTest(t)
	f.automation.StyleLocked = true

	var gotStyleLocked bool
	f.generator.GenerateFunc = func(ctx context.Context, req *generation.Request) (*generation.Result, error) {
		gotStyleLocked = req.StyleLocked
		return &generation.Result{Body: "post", Provider: "mock", Model: "mock-model"}, nil
	}

	_, err := f.svc.Trigger(context.Background(), f.automation.ID, false)
	require.NoError(t, err)
	assert.True(t, gotStyleLocked)
}

func TestComputeNextRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		automation *models.Automation
		want       *time.Time
	}{
		{
			name:       "manual never schedules",
			automation: &models.Automation{TriggerType: models.TriggerManual},
			want:       nil,
		},
		{
			name: "interval from now",
			automation: &models.Automation{
				TriggerType:   models.TriggerInterval,
				TriggerConfig: models.JSONBMap{"minutes": float64(90)},
			},
			want: timePtr(now.Add(90 * time.Minute)),
		},
		{
			name: "interval default when unconfigured",
			automation: &models.Automation{
				TriggerType: models.TriggerInterval,
			},
			want: timePtr(now.Add(60 * time.Minute)),
		},
		{
			name: "cron next slot",
			automation: &models.Automation{
				TriggerType:   models.TriggerCron,
				TriggerConfig: models.JSONBMap{"cron": "CRON_TZ=UTC 0 9 * * *"},
			},
			want: timePtr(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		},
		{
			name: "invalid cron falls back to interval",
			automation: &models.Automation{
				TriggerType:   models.TriggerCron,
				TriggerConfig: models.JSONBMap{"cron": "not a cron"},
			},
			want: timePtr(now.Add(60 * time.Minute)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeNextRun(tt.automation, now)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}
