package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/apperrors"
	"github.com/cadencehq/cadence-engine/pkg/models"
)

type controlFixture struct {
	svc            ControlService
	automationRepo *mockAutomationRepository
	decisionRepo   *mockDecisionLogRepository
	recRepo        *mockRecommendationRepository
}

func setupControlTest(t *testing.T) *controlFixture {
	t.Helper()

	f := &controlFixture{
		automationRepo: newMockAutomationRepository(),
		decisionRepo:   &mockDecisionLogRepository{},
		recRepo:        &mockRecommendationRepository{},
	}
	f.svc = NewControlService(
		f.automationRepo, f.decisionRepo, f.recRepo,
		func() bool { return true }, zap.NewNop())
	return f
}

func (f *controlFixture) addActiveAutomation() *models.Automation {
	return f.automationRepo.add(&models.Automation{
		ProjectID:      uuid.New(),
		Name:           "Weekly launch posts",
		TriggerType:    models.TriggerInterval,
		Status:         models.AutomationStatusActive,
		AutonomyStatus: models.AutonomyActive,
	})
}

func TestControlService_SetupAutomation_Create(t *testing.T) {
	f := setupControlTest(t)

	created, err := f.svc.SetupAutomation(context.Background(), &models.Automation{
		ProjectID:   uuid.New(),
		Name:        "Launch posts",
		TriggerType: models.TriggerInterval,
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, models.AutomationStatusActive, created.Status)
	assert.Equal(t, models.AutonomyActive, created.AutonomyStatus)
	require.NotNil(t, created.NextRunAt, "interval automations get an initial schedule")
}

func TestControlService_SetupAutomation_ReconfigureClearsOverride(t *testing.T) {
	f := setupControlTest(t)
	existing := f.addActiveAutomation()
	reason := "operator paused"
	existing.IsManuallyOverridden = true
	existing.OverrideReason = &reason
	existing.Status = models.AutomationStatusPaused

	updated, err := f.svc.SetupAutomation(context.Background(), &models.Automation{
		ProjectID:   existing.ProjectID,
		Name:        "Renamed campaign",
		TriggerType: models.TriggerCron,
		TriggerConfig: models.JSONBMap{
			"cron": "0 9 * * 1",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, existing.ID, updated.ID, "reconfigures in place")
	assert.Equal(t, "Renamed campaign", updated.Name)
	assert.Equal(t, models.AutomationStatusActive, updated.Status)
	assert.False(t, updated.IsManuallyOverridden, "explicit reconfiguration clears the override")
	assert.Nil(t, updated.OverrideReason)
	require.NotNil(t, updated.NextRunAt, "reconfiguration reschedules from the new trigger")
}

func TestControlService_SetupAutomation_InvalidTrigger(t *testing.T) {
	f := setupControlTest(t)

	_, err := f.svc.SetupAutomation(context.Background(), &models.Automation{
		ProjectID:   uuid.New(),
		TriggerType: "hourly",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidAction)
}

func TestControlService_Override_ForcePause(t *testing.T) {
	f := setupControlTest(t)
	a := f.addActiveAutomation()

	err := f.svc.Override(context.Background(), a.ID, OverrideForcePause, "bad copy going out", "ops@example.com")
	require.NoError(t, err)

	assert.Equal(t, models.AutomationStatusPaused, a.Status)
	assert.Equal(t, models.AutonomyPaused, a.AutonomyStatus)
	assert.True(t, a.IsManuallyOverridden)

	entry := f.decisionRepo.lastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, models.Decision("MANUAL_OVERRIDE_FORCE_PAUSE"), entry.Decision)
	assert.Contains(t, entry.Reason, "bad copy going out")
	assert.Contains(t, entry.Reason, "ops@example.com")
}

func TestControlService_Override_ForceResume(t *testing.T) {
	f := setupControlTest(t)
	a := f.addActiveAutomation()
	a.Status = models.AutomationStatusPaused
	a.AutonomyStatus = models.AutonomyPaused

	err := f.svc.Override(context.Background(), a.ID, OverrideForceResume, "false alarm", "ops@example.com")
	require.NoError(t, err)

	assert.Equal(t, models.AutomationStatusActive, a.Status)
	assert.Equal(t, models.AutonomyActive, a.AutonomyStatus)
	assert.True(t, a.IsManuallyOverridden, "a forced resume pins the automation against auto-pause")
	assert.Equal(t, models.Decision("MANUAL_OVERRIDE_FORCE_RESUME"), f.decisionRepo.lastEntry().Decision)
}

func TestControlService_Override_StyleLock(t *testing.T) {
	f := setupControlTest(t)
	a := f.addActiveAutomation()

	require.NoError(t, f.svc.Override(context.Background(), a.ID, OverrideLockStyle, "", "ops"))
	assert.True(t, a.StyleLocked)
	assert.True(t, a.IsManuallyOverridden, "locking style is a manual override")

	require.NoError(t, f.svc.Override(context.Background(), a.ID, OverrideUnlockStyle, "", "ops"))
	assert.False(t, a.StyleLocked)
	assert.True(t, a.IsManuallyOverridden)
}

func TestControlService_Override_InvalidAction(t *testing.T) {
	f := setupControlTest(t)
	a := f.addActiveAutomation()

	err := f.svc.Override(context.Background(), a.ID, "explode", "", "ops")
	assert.ErrorIs(t, err, apperrors.ErrInvalidAction)
	assert.Empty(t, f.decisionRepo.entries, "invalid actions leave no audit trace")
}

func TestControlService_Override_UnknownAutomation(t *testing.T) {
	f := setupControlTest(t)

	err := f.svc.Override(context.Background(), uuid.New(), OverrideForcePause, "", "ops")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestControlService_EmergencyStop(t *testing.T) {
	f := setupControlTest(t)
	a1 := f.addActiveAutomation()
	a2 := f.addActiveAutomation()
	paused := f.addActiveAutomation()
	paused.Status = models.AutomationStatusPaused

	count, err := f.svc.EmergencyStop(context.Background(), "oncall@example.com")
	require.NoError(t, err)

	assert.Equal(t, 2, count, "only active automations are stopped")
	assert.Equal(t, models.AutomationStatusPaused, a1.Status)
	assert.Equal(t, models.AutomationStatusPaused, a2.Status)
	assert.True(t, a1.IsManuallyOverridden)
	assert.True(t, a2.IsManuallyOverridden)

	// One EMERGENCY_STOP audit row per stopped automation.
	assert.Len(t, f.decisionRepo.entries, 2)
	for _, entry := range f.decisionRepo.entries {
		assert.Equal(t, models.DecisionEmergencyStop, entry.Decision)
	}
}

func TestControlService_HandleRecommendation(t *testing.T) {
	f := setupControlTest(t)
	a := f.addActiveAutomation()

	tests := []struct {
		action string
		want   models.RecommendationStatus
	}{
		{RecommendationApprove, models.RecommendationApplied},
		{RecommendationReject, models.RecommendationRejected},
		{RecommendationArchive, models.RecommendationArchived},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			rec := &models.Recommendation{
				AutomationID: a.ID,
				Type:         models.RecommendationVersionRollback,
				Reasoning:    "score dropped",
			}
			require.NoError(t, f.recRepo.Create(context.Background(), rec))

			handled, err := f.svc.HandleRecommendation(context.Background(), rec.ID, tt.action, "ops@example.com")
			require.NoError(t, err)

			assert.Equal(t, tt.want, handled.Status)
			require.NotNil(t, handled.HandledBy)
			assert.Equal(t, "ops@example.com", *handled.HandledBy)
			assert.NotNil(t, handled.HandledAt)
		})
	}
}

func TestControlService_HandleRecommendation_AlreadyHandled(t *testing.T) {
	f := setupControlTest(t)
	a := f.addActiveAutomation()

	rec := &models.Recommendation{AutomationID: a.ID, Type: models.RecommendationVersionRollback}
	require.NoError(t, f.recRepo.Create(context.Background(), rec))
	rec.Status = models.RecommendationApplied

	_, err := f.svc.HandleRecommendation(context.Background(), rec.ID, RecommendationReject, "ops")
	assert.ErrorIs(t, err, apperrors.ErrInvalidAction)
}

func TestControlService_DashboardStats(t *testing.T) {
	f := setupControlTest(t)
	f.addActiveAutomation()
	a := f.addActiveAutomation()

	require.NoError(t, f.svc.Override(context.Background(), a.ID, OverrideForcePause, "manual stop", "ops"))

	stats, err := f.svc.DashboardStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Automations.Total)
	assert.Equal(t, 1, stats.Automations.Active)
	assert.Equal(t, 1, stats.Automations.Paused)
	assert.Equal(t, 1, stats.Automations.Overridden)
	assert.True(t, stats.AutonomyEnabled)
	require.NotNil(t, stats.LastHumanAction)
	assert.Equal(t, models.Decision("MANUAL_OVERRIDE_FORCE_PAUSE"), stats.LastHumanAction.Decision)
}

func TestControlService_CampaignStatus(t *testing.T) {
	f := setupControlTest(t)
	a := f.addActiveAutomation()

	require.NoError(t, f.decisionRepo.Create(context.Background(), &models.DecisionLogEntry{
		AutomationID: a.ID,
		Decision:     models.DecisionAllowExecution,
		Reason:       "All autonomy checks passed.",
	}))

	status, err := f.svc.CampaignStatus(context.Background(), a.ID)
	require.NoError(t, err)

	assert.Equal(t, a.ID, status.Automation.ID)
	require.NotNil(t, status.LastDecision)
	assert.Equal(t, models.DecisionAllowExecution, status.LastDecision.Decision)
}

func TestControlService_DecisionHistory_Pagination(t *testing.T) {
	f := setupControlTest(t)
	a := f.addActiveAutomation()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.decisionRepo.Create(context.Background(), &models.DecisionLogEntry{
			AutomationID: a.ID,
			Decision:     models.DecisionBlockCooldown,
		}))
	}

	page, total, err := f.svc.DecisionHistory(context.Background(), &a.ID, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)
}

func TestControlService_PendingRecommendations(t *testing.T) {
	f := setupControlTest(t)
	a := f.addActiveAutomation()

	pending := &models.Recommendation{AutomationID: a.ID, Type: models.RecommendationVersionRollback}
	require.NoError(t, f.recRepo.Create(context.Background(), pending))
	handled := &models.Recommendation{AutomationID: a.ID, Type: models.RecommendationStyleLock}
	require.NoError(t, f.recRepo.Create(context.Background(), handled))
	handled.Status = models.RecommendationArchived

	recs, err := f.svc.PendingRecommendations(context.Background(), 10)
	require.NoError(t, err)

	require.Len(t, recs, 1)
	assert.Equal(t, pending.ID, recs[0].ID)
}
