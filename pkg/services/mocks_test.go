package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cadencehq/cadence-engine/pkg/apperrors"
	"github.com/cadencehq/cadence-engine/pkg/models"
	"github.com/cadencehq/cadence-engine/pkg/repositories"
)

// In-memory repository doubles shared by the service tests.

type mockAutomationRepository struct {
	automations map[uuid.UUID]*models.Automation
	err         error
	pauseCalls  []uuid.UUID
}

func newMockAutomationRepository() *mockAutomationRepository {
	return &mockAutomationRepository{automations: make(map[uuid.UUID]*models.Automation)}
}

func (m *mockAutomationRepository) add(a *models.Automation) *models.Automation {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.automations[a.ID] = a
	return a
}

func (m *mockAutomationRepository) Create(ctx context.Context, a *models.Automation) error {
	if m.err != nil {
		return m.err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.automations[a.ID] = a
	return nil
}

func (m *mockAutomationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Automation, error) {
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.automations[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return a, nil
}

func (m *mockAutomationRepository) GetByProject(ctx context.Context, projectID uuid.UUID) (*models.Automation, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.automations {
		if a.ProjectID == projectID {
			return a, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockAutomationRepository) Update(ctx context.Context, a *models.Automation) error {
	if m.err != nil {
		return m.err
	}
	a.UpdatedAt = time.Now()
	m.automations[a.ID] = a
	return nil
}

func (m *mockAutomationRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Automation, error) {
	if m.err != nil {
		return nil, m.err
	}
	var due []*models.Automation
	for _, a := range m.automations {
		if a.Status == models.AutomationStatusActive && a.NextRunAt != nil && !a.NextRunAt.After(now) {
			due = append(due, a)
		}
	}
	return due, nil
}

func (m *mockAutomationRepository) Counts(ctx context.Context) (*repositories.AutomationCounts, error) {
	if m.err != nil {
		return nil, m.err
	}
	counts := &repositories.AutomationCounts{}
	for _, a := range m.automations {
		counts.Total++
		switch a.Status {
		case models.AutomationStatusActive:
			counts.Active++
		case models.AutomationStatusPaused:
			counts.Paused++
		}
		switch a.AutonomyStatus {
		case models.AutonomyActive:
			counts.AutonomyActive++
		case models.AutonomyPaused:
			counts.AutonomyPaused++
		case models.AutonomyBlocked:
			counts.AutonomyBlocked++
		}
		if a.IsManuallyOverridden {
			counts.Overridden++
		}
		if a.LastError != nil {
			counts.Errored++
		}
	}
	return counts, nil
}

func (m *mockAutomationRepository) UpdateExecutionState(ctx context.Context, id uuid.UUID, lastRunAt time.Time, nextRunAt *time.Time) error {
	if m.err != nil {
		return m.err
	}
	a, ok := m.automations[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	a.LastRunAt = &lastRunAt
	a.NextRunAt = nextRunAt
	a.LastError = nil
	a.ErrorAt = nil
	return nil
}

func (m *mockAutomationRepository) RecordError(ctx context.Context, id uuid.UUID, errMsg string, at time.Time, nextRunAt *time.Time) error {
	if m.err != nil {
		return m.err
	}
	a, ok := m.automations[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	a.LastError = &errMsg
	a.ErrorAt = &at
	a.NextRunAt = nextRunAt
	return nil
}

func (m *mockAutomationRepository) PauseAutonomyUnlessOverridden(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.pauseCalls = append(m.pauseCalls, id)
	a, ok := m.automations[id]
	if !ok || a.IsManuallyOverridden {
		return false, nil
	}
	a.AutonomyStatus = models.AutonomyPaused
	return true, nil
}

func (m *mockAutomationRepository) ApplyOverride(ctx context.Context, id uuid.UUID, status models.AutomationStatus, autonomy models.AutonomyStatus, reason string) error {
	if m.err != nil {
		return m.err
	}
	a, ok := m.automations[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	a.Status = status
	a.AutonomyStatus = autonomy
	a.IsManuallyOverridden = true
	a.OverrideReason = &reason
	return nil
}

func (m *mockAutomationRepository) SetStyleLocked(ctx context.Context, id uuid.UUID, locked bool) error {
	if m.err != nil {
		return m.err
	}
	a, ok := m.automations[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	a.StyleLocked = locked
	a.IsManuallyOverridden = true
	return nil
}

func (m *mockAutomationRepository) EmergencyStopAll(ctx context.Context, reason string) ([]uuid.UUID, error) {
	if m.err != nil {
		return nil, m.err
	}
	var stopped []uuid.UUID
	for _, a := range m.automations {
		if a.Status != models.AutomationStatusActive {
			continue
		}
		a.Status = models.AutomationStatusPaused
		a.AutonomyStatus = models.AutonomyPaused
		a.IsManuallyOverridden = true
		a.OverrideReason = &reason
		stopped = append(stopped, a.ID)
	}
	return stopped, nil
}

var _ repositories.AutomationRepository = (*mockAutomationRepository)(nil)

type mockDecisionLogRepository struct {
	entries   []*models.DecisionLogEntry
	createErr error
}

func (m *mockDecisionLogRepository) Create(ctx context.Context, entry *models.DecisionLogEntry) error {
	if m.createErr != nil {
		return m.createErr
	}
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockDecisionLogRepository) List(ctx context.Context, automationID *uuid.UUID, limit, offset int) ([]*models.DecisionLogEntry, int, error) {
	var matched []*models.DecisionLogEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if automationID != nil && e.AutomationID != *automationID {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (m *mockDecisionLogRepository) LatestForAutomation(ctx context.Context, automationID uuid.UUID) (*models.DecisionLogEntry, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].AutomationID == automationID {
			return m.entries[i], nil
		}
	}
	return nil, nil
}

func (m *mockDecisionLogRepository) LastHumanAction(ctx context.Context) (*models.DecisionLogEntry, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		d := string(m.entries[i].Decision)
		if strings.HasPrefix(d, "MANUAL_OVERRIDE_") || m.entries[i].Decision == models.DecisionEmergencyStop {
			return m.entries[i], nil
		}
	}
	return nil, nil
}

// lastEntry returns the most recently created entry, or nil.
func (m *mockDecisionLogRepository) lastEntry() *models.DecisionLogEntry {
	if len(m.entries) == 0 {
		return nil
	}
	return m.entries[len(m.entries)-1]
}

var _ repositories.DecisionLogRepository = (*mockDecisionLogRepository)(nil)

type mockRecommendationRepository struct {
	recs []*models.Recommendation
	err  error
}

func (m *mockRecommendationRepository) Create(ctx context.Context, rec *models.Recommendation) error {
	if m.err != nil {
		return m.err
	}
	rec.ID = uuid.New()
	if rec.Status == "" {
		rec.Status = models.RecommendationPending
	}
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	m.recs = append(m.recs, rec)
	return nil
}

func (m *mockRecommendationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recommendation, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockRecommendationRepository) PendingExists(ctx context.Context, automationID uuid.UUID, contentID *uuid.UUID, recType models.RecommendationType) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, r := range m.recs {
		if r.AutomationID != automationID || r.Type != recType || r.Status != models.RecommendationPending {
			continue
		}
		if sameContentID(r.ContentID, contentID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRecommendationRepository) ListPendingByType(ctx context.Context, automationID uuid.UUID, recType models.RecommendationType) ([]*models.Recommendation, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Recommendation
	for _, r := range m.recs {
		if r.AutomationID == automationID && r.Type == recType && r.Status == models.RecommendationPending {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRecommendationRepository) List(ctx context.Context, status models.RecommendationStatus, limit int) ([]*models.Recommendation, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Recommendation
	for _, r := range m.recs {
		if r.Status == status {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockRecommendationRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.RecommendationStatus, handledBy string) error {
	if m.err != nil {
		return m.err
	}
	for _, r := range m.recs {
		if r.ID == id {
			r.Status = status
			r.HandledBy = &handledBy
			now := time.Now()
			r.HandledAt = &now
			r.UpdatedAt = now
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func sameContentID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

var _ repositories.RecommendationRepository = (*mockRecommendationRepository)(nil)

type mockContentRepository struct {
	contents []*models.ContentVersion
	err      error
}

func (m *mockContentRepository) Create(ctx context.Context, c *models.ContentVersion) error {
	if m.err != nil {
		return m.err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.VersionNumber == 0 {
		c.VersionNumber = 1
	}
	if c.Status == "" {
		c.Status = models.ContentStatusGenerated
	}
	c.CreatedAt = time.Now()
	m.contents = append(m.contents, c)
	return nil
}

func (m *mockContentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ContentVersion, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.contents {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockContentRepository) ListRoots(ctx context.Context, projectID uuid.UUID) ([]*models.ContentVersion, error) {
	if m.err != nil {
		return nil, m.err
	}
	var roots []*models.ContentVersion
	for _, c := range m.contents {
		if c.ProjectID == projectID && c.ParentID == nil {
			roots = append(roots, c)
		}
	}
	return roots, nil
}

func (m *mockContentRepository) Lineage(ctx context.Context, rootID uuid.UUID) ([]*models.ContentVersion, error) {
	if m.err != nil {
		return nil, m.err
	}
	var lineage []*models.ContentVersion
	for _, c := range m.contents {
		if c.ID == rootID || (c.ParentID != nil && *c.ParentID == rootID) {
			lineage = append(lineage, c)
		}
	}
	for i := 0; i < len(lineage); i++ {
		for j := i + 1; j < len(lineage); j++ {
			if lineage[j].VersionNumber < lineage[i].VersionNumber {
				lineage[i], lineage[j] = lineage[j], lineage[i]
			}
		}
	}
	return lineage, nil
}

func (m *mockContentRepository) LatestByProject(ctx context.Context, projectID uuid.UUID) (*models.ContentVersion, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := len(m.contents) - 1; i >= 0; i-- {
		if m.contents[i].ProjectID == projectID {
			return m.contents[i], nil
		}
	}
	return nil, nil
}

func (m *mockContentRepository) IsLatestVersion(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	c, err := m.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	rootID := c.ID
	if c.ParentID != nil {
		rootID = *c.ParentID
	}
	lineage, err := m.Lineage(ctx, rootID)
	if err != nil {
		return false, err
	}
	return len(lineage) > 0 && lineage[len(lineage)-1].ID == id, nil
}

func (m *mockContentRepository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	if m.err != nil {
		return m.err
	}
	for _, c := range m.contents {
		if c.ID == id {
			c.Status = status
			return nil
		}
	}
	return apperrors.ErrNotFound
}

var _ repositories.ContentRepository = (*mockContentRepository)(nil)

type mockImpactRepository struct {
	snaps map[uuid.UUID][]*models.ImpactSnapshot
	err   error
}

func newMockImpactRepository() *mockImpactRepository {
	return &mockImpactRepository{snaps: make(map[uuid.UUID][]*models.ImpactSnapshot)}
}

func (m *mockImpactRepository) Create(ctx context.Context, snap *models.ImpactSnapshot) error {
	if m.err != nil {
		return m.err
	}
	snap.ID = uuid.New()
	snap.CapturedAt = time.Now()
	m.snaps[snap.ContentID] = append(m.snaps[snap.ContentID], snap)
	return nil
}

func (m *mockImpactRepository) LatestByContent(ctx context.Context, contentID uuid.UUID) (*models.ImpactSnapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	snaps := m.snaps[contentID]
	if len(snaps) == 0 {
		return nil, nil
	}
	return snaps[len(snaps)-1], nil
}

func (m *mockImpactRepository) CountByContent(ctx context.Context, contentID uuid.UUID) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return len(m.snaps[contentID]), nil
}

var _ repositories.ImpactRepository = (*mockImpactRepository)(nil)
