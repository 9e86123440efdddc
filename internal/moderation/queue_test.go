package moderation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"campusguard/internal/audit"
	"campusguard/internal/database"
	apperrors "campusguard/internal/errors"
	"campusguard/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu      sync.Mutex
	entries map[string]models.ModerationQueueEntry
}

func newMockStore() *mockStore {
	return &mockStore{entries: make(map[string]models.ModerationQueueEntry)}
}

func (m *mockStore) InsertModerationEntry(_ context.Context, entry *models.ModerationQueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = *entry
	return nil
}

func (m *mockStore) GetModerationEntry(_ context.Context, id string) (*models.ModerationQueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	copied := entry
	return &copied, nil
}

func (m *mockStore) ListModerationEntries(_ context.Context, filter database.ModerationQueueFilter) ([]models.ModerationQueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ModerationQueueEntry
	for _, e := range m.entries {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && e.Priority != filter.Priority {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *mockStore) UpdateModerationEntryCAS(_ context.Context, entry *models.ModerationQueueEntry, expectedVersion int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.entries[entry.ID]
	if !ok || current.Version != expectedVersion {
		return false, nil
	}
	updated := *entry
	updated.Version = expectedVersion + 1
	m.entries[entry.ID] = updated
	return true, nil
}

func (m *mockStore) CountModerationStats(_ context.Context, startOfDay time.Time) (*models.ModerationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats models.ModerationStats
	for _, e := range m.entries {
		if e.Status == models.StatusPending || e.Status == models.StatusEscalated {
			stats.Pending++
		}
		if e.Status != models.StatusResolved && e.Priority.Rank() >= models.PriorityHigh.Rank() {
			stats.HighPriority++
		}
		if e.Resolution != nil && e.ResolvedAt != nil && !e.ResolvedAt.Before(startOfDay) {
			switch *e.Resolution {
			case models.ResolutionApproved:
				stats.ApprovedToday++
			case models.ResolutionBlocked:
				stats.BlockedToday++
			}
		}
	}
	return &stats, nil
}

type mockAuditor struct {
	mu      sync.Mutex
	entries []models.AuditLogEntry
}

func (m *mockAuditor) Enqueue(entry models.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func newTestQueue() (*Queue, *mockStore, *mockAuditor) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	store := newMockStore()
	auditor := &mockAuditor{}
	return NewQueue(store, auditor, audit.NewEntry, logger), store, auditor
}

func highRiskClassification() *models.ClassificationRecord {
	return &models.ClassificationRecord{
		ContentCategory:    models.CategoryGeneral,
		RiskLevel:          models.RiskHigh,
		EncryptionLevel:    models.EncryptionEnhanced,
		ModerationRequired: true,
		AuditRequired:      true,
		FlaggedKeywords:    []string{"bullied"},
	}
}

func strPtr(s string) *string { return &s }

func TestEnqueueCreatesPendingEntry(t *testing.T) {
	q, _, _ := newTestQueue()

	entry, err := q.Enqueue(context.Background(), "msg-1", highRiskClassification())
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, entry.Status)
	assert.Equal(t, models.PriorityHigh, entry.Priority)
	assert.Equal(t, []string{"bullied"}, entry.FlaggedKeywords)
	assert.Nil(t, entry.AssignedModeratorID)
}

func TestClaimAssignsModerator(t *testing.T) {
	q, _, _ := newTestQueue()
	entry, err := q.Enqueue(context.Background(), "msg-1", highRiskClassification())
	require.NoError(t, err)

	claimed, err := q.Claim(context.Background(), entry.ID, "mod-1", entry.Version)
	require.NoError(t, err)

	assert.Equal(t, models.StatusInReview, claimed.Status)
	require.NotNil(t, claimed.AssignedModeratorID)
	assert.Equal(t, "mod-1", *claimed.AssignedModeratorID)
	assert.Equal(t, entry.Version+1, claimed.Version)
}

func TestStaleClaimReturnsConflict(t *testing.T) {
	q, _, _ := newTestQueue()
	entry, err := q.Enqueue(context.Background(), "msg-1", highRiskClassification())
	require.NoError(t, err)

	_, err = q.Claim(context.Background(), entry.ID, "mod-1", entry.Version+5)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeModerationConflict))
}

func TestClaimOfClaimedEntryReturnsConflict(t *testing.T) {
	q, _, _ := newTestQueue()
	entry, err := q.Enqueue(context.Background(), "msg-1", highRiskClassification())
	require.NoError(t, err)

	claimed, err := q.Claim(context.Background(), entry.ID, "mod-1", entry.Version)
	require.NoError(t, err)

	_, err = q.Claim(context.Background(), entry.ID, "mod-2", claimed.Version)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeModerationConflict))
}

func TestConcurrentClaimsOnlyOneWins(t *testing.T) {
	q, _, _ := newTestQueue()
	entry, err := q.Enqueue(context.Background(), "msg-1", highRiskClassification())
	require.NoError(t, err)

	const moderators = 8
	errs := make([]error, moderators)
	var wg sync.WaitGroup
	for i := 0; i < moderators; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = q.Claim(context.Background(), entry.ID, "mod", entry.Version)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		if err == nil {
			wins++
		} else if apperrors.IsCode(err, apperrors.ErrCodeModerationConflict) {
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, moderators-1, conflicts)
}

func TestResolveApproveAndBlock(t *testing.T) {
	q, _, auditor := newTestQueue()
	entry, err := q.Enqueue(context.Background(), "msg-1", highRiskClassification())
	require.NoError(t, err)
	claimed, err := q.Claim(context.Background(), entry.ID, "mod-1", entry.Version)
	require.NoError(t, err)

	resolved, err := q.Resolve(context.Background(), entry.ID, "mod-1", models.ActionApprove, strPtr("reviewed, benign"), claimed.Version)
	require.NoError(t, err)

	assert.Equal(t, models.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, models.ResolutionApproved, *resolved.Resolution)
	assert.NotNil(t, resolved.ResolvedAt)

	auditor.mu.Lock()
	defer auditor.mu.Unlock()
	require.Len(t, auditor.entries, 1)
	assert.Equal(t, models.AuditEventModerationDecision, auditor.entries[0].EventType)
	assert.Equal(t, "msg-1", auditor.entries[0].MessageID)
}

func TestResolveRequiresNotesAtHighPriority(t *testing.T) {
	q, _, _ := newTestQueue()
	entry, err := q.Enqueue(context.Background(), "msg-1", highRiskClassification())
	require.NoError(t, err)
	claimed, err := q.Claim(context.Background(), entry.ID, "mod-1", entry.Version)
	require.NoError(t, err)

	_, err = q.Resolve(context.Background(), entry.ID, "mod-1", models.ActionBlock, nil, claimed.Version)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
}

func TestResolveLowPriorityWithoutNotes(t *testing.T) {
	q, _, _ := newTestQueue()
	cls := highRiskClassification()
	cls.RiskLevel = models.RiskMedium
	entry, err := q.Enqueue(context.Background(), "msg-1", cls)
	require.NoError(t, err)
	claimed, err := q.Claim(context.Background(), entry.ID, "mod-1", entry.Version)
	require.NoError(t, err)

	resolved, err := q.Resolve(context.Background(), entry.ID, "mod-1", models.ActionBlock, nil, claimed.Version)
	require.NoError(t, err)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, models.ResolutionBlocked, *resolved.Resolution)
}

func TestResolveRequiresInReview(t *testing.T) {
	q, _, _ := newTestQueue()
	entry, err := q.Enqueue(context.Background(), "msg-1", highRiskClassification())
	require.NoError(t, err)

	_, err = q.Resolve(context.Background(), entry.ID, "mod-1", models.ActionApprove, strPtr("n"), entry.Version)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeModerationConflict))
}

func TestEscalateRaisesPriorityAndClearsAssignment(t *testing.T) {
	q, _, _ := newTestQueue()
	entry, err := q.Enqueue(context.Background(), "msg-1", highRiskClassification())
	require.NoError(t, err)
	claimed, err := q.Claim(context.Background(), entry.ID, "mod-1", entry.Version)
	require.NoError(t, err)

	escalated, err := q.Escalate(context.Background(), entry.ID, "mod-1", claimed.Version)
	require.NoError(t, err)

	assert.Equal(t, models.StatusEscalated, escalated.Status)
	assert.Equal(t, models.PriorityCritical, escalated.Priority)
	assert.Nil(t, escalated.AssignedModeratorID)

	// The escalated entry re-enters review via a fresh claim.
	reclaimed, err := q.Claim(context.Background(), entry.ID, "mod-2", escalated.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, reclaimed.Status)
	assert.Equal(t, models.PriorityCritical, reclaimed.Priority)
}

func TestEscalatePriorityCapsAtCritical(t *testing.T) {
	q, _, _ := newTestQueue()
	cls := highRiskClassification()
	cls.RiskLevel = models.RiskCritical
	entry, err := q.Enqueue(context.Background(), "msg-1", cls)
	require.NoError(t, err)

	escalated, err := q.Escalate(context.Background(), entry.ID, "mod-1", entry.Version)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityCritical, escalated.Priority)
}

func TestResolvedEntryReturnsNotFound(t *testing.T) {
	q, _, _ := newTestQueue()
	cls := highRiskClassification()
	cls.RiskLevel = models.RiskMedium
	entry, err := q.Enqueue(context.Background(), "msg-1", cls)
	require.NoError(t, err)
	claimed, err := q.Claim(context.Background(), entry.ID, "mod-1", entry.Version)
	require.NoError(t, err)
	_, err = q.Resolve(context.Background(), entry.ID, "mod-1", models.ActionApprove, nil, claimed.Version)
	require.NoError(t, err)

	_, err = q.Claim(context.Background(), entry.ID, "mod-2", claimed.Version+1)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeModerationNotFound))
}

func TestMissingEntryReturnsNotFound(t *testing.T) {
	q, _, _ := newTestQueue()

	_, err := q.Moderate(context.Background(), "nope", "mod-1", models.ActionClaim, nil, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeModerationNotFound))
}

func TestModerateDispatch(t *testing.T) {
	q, _, _ := newTestQueue()
	entry, err := q.Enqueue(context.Background(), "msg-1", highRiskClassification())
	require.NoError(t, err)

	claimed, err := q.Moderate(context.Background(), entry.ID, "mod-1", models.ActionClaim, nil, entry.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, claimed.Status)

	_, err = q.Moderate(context.Background(), entry.ID, "mod-1", models.ModerationAction("PUNT"), nil, claimed.Version)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
}

func TestStatsCountsEscalatedAsPending(t *testing.T) {
	q, _, _ := newTestQueue()
	entry, err := q.Enqueue(context.Background(), "msg-1", highRiskClassification())
	require.NoError(t, err)
	_, err = q.Escalate(context.Background(), entry.ID, "mod-1", entry.Version)
	require.NoError(t, err)

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.HighPriority)
}

func TestHasNewSinceAndSubscribe(t *testing.T) {
	q, _, _ := newTestQueue()

	before := time.Now().UTC().Add(-time.Second)
	assert.False(t, q.HasNewSince(before))

	ch, cancel := q.Subscribe()
	defer cancel()

	_, err := q.Enqueue(context.Background(), "msg-1", highRiskClassification())
	require.NoError(t, err)

	assert.True(t, q.HasNewSince(before))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal after enqueue")
	}
}
