package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"campusguard/internal/audit"
	"campusguard/internal/metrics"
	"campusguard/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu           sync.Mutex
	due          []models.RetentionScheduleEntry
	processed    map[string]bool
	archived     map[string]bool
	purged       map[string]bool
	failures     map[string]int
	auditEntries map[string]int

	archiveErr error
	purgeErr   error
	dueErr     error
}

func newMockStore() *mockStore {
	return &mockStore{
		processed:    make(map[string]bool),
		archived:     make(map[string]bool),
		purged:       make(map[string]bool),
		failures:     make(map[string]int),
		auditEntries: make(map[string]int),
	}
}

func (m *mockStore) GetDueRetentionEntries(_ context.Context, now time.Time, limit int) ([]models.RetentionScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dueErr != nil {
		return nil, m.dueErr
	}
	var out []models.RetentionScheduleEntry
	for _, e := range m.due {
		if e.Due(now) && !m.processed[e.MessageID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) MarkRetentionProcessed(_ context.Context, messageID string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed[messageID] {
		return false, nil
	}
	m.processed[messageID] = true
	return true, nil
}

func (m *mockStore) RecordRetentionFailure(_ context.Context, messageID string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[messageID]++
	return nil
}

func (m *mockStore) ArchiveMessage(_ context.Context, id string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.archiveErr != nil {
		return false, m.archiveErr
	}
	if m.archived[id] {
		return false, nil
	}
	m.archived[id] = true
	return true, nil
}

func (m *mockStore) PurgeMessageContent(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.purgeErr != nil {
		return false, m.purgeErr
	}
	if m.purged[id] {
		return false, nil
	}
	m.purged[id] = true
	return true, nil
}

func (m *mockStore) DeleteAuditEntriesByMessage(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditEntries[messageID] = 0
	return nil
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

func (m *mockAuditor) byMessage(id string) []models.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLogEntry
	for _, e := range m.entries {
		if e.MessageID == id {
			out = append(out, e)
		}
	}
	return out
}

func dueEntry(messageID string, action models.RetentionAction) models.RetentionScheduleEntry {
	return models.RetentionScheduleEntry{
		MessageID: messageID,
		PolicyID:  "policy-records",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
		Action:    action,
	}
}

func newTestScheduler(store *mockStore, auditor *mockAuditor) *Scheduler {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := models.RetentionConfig{IntervalMinutes: 60, BatchSize: 50, MaxAttempts: 3}
	return NewScheduler(store, auditor, audit.NewEntry, cfg, metrics.NewRegistry(), logger)
}

func TestRunSweepArchivesAndDeletes(t *testing.T) {
	store := newMockStore()
	store.due = []models.RetentionScheduleEntry{
		dueEntry("msg-archive", models.RetentionArchive),
		dueEntry("msg-delete", models.RetentionDelete),
	}
	auditor := &mockAuditor{}
	s := newTestScheduler(store, auditor)

	s.RunSweep(context.Background())

	assert.True(t, store.archived["msg-archive"])
	assert.True(t, store.purged["msg-delete"])
	assert.True(t, store.processed["msg-archive"])
	assert.True(t, store.processed["msg-delete"])

	require.Len(t, auditor.byMessage("msg-archive"), 1)
	require.Len(t, auditor.byMessage("msg-delete"), 1)
	assert.Equal(t, models.AuditEventRetentionApplied, auditor.byMessage("msg-archive")[0].EventType)

	snap := s.registry.GetSnapshot()
	assert.Equal(t, float64(1), snap.Counters[metrics.MetricRetentionApplied+"_action:ARCHIVE"].Value)
	assert.Equal(t, float64(1), snap.Counters[metrics.MetricRetentionApplied+"_action:DELETE"].Value)
}

func TestRunSweepDeleteRemovesAuditTrail(t *testing.T) {
	store := newMockStore()
	store.due = []models.RetentionScheduleEntry{
		dueEntry("msg-gone", models.RetentionDelete),
		dueEntry("msg-kept", models.RetentionArchive),
	}
	store.auditEntries["msg-gone"] = 3
	store.auditEntries["msg-kept"] = 2
	auditor := &mockAuditor{}
	s := newTestScheduler(store, auditor)

	s.RunSweep(context.Background())

	assert.Equal(t, 0, store.auditEntries["msg-gone"], "purge must take the audit trail with it")
	assert.Equal(t, 2, store.auditEntries["msg-kept"], "archive leaves the audit trail alone")

	// The retention event itself is the surviving trace of the purge.
	require.Len(t, auditor.byMessage("msg-gone"), 1)
	assert.Equal(t, models.AuditEventRetentionApplied, auditor.byMessage("msg-gone")[0].EventType)
}

func TestRunSweepIsIdempotent(t *testing.T) {
	store := newMockStore()
	store.due = []models.RetentionScheduleEntry{dueEntry("msg-1", models.RetentionDelete)}
	auditor := &mockAuditor{}
	s := newTestScheduler(store, auditor)

	s.RunSweep(context.Background())
	s.RunSweep(context.Background())

	assert.Len(t, auditor.byMessage("msg-1"), 1, "second sweep must not reprocess")
}

func TestRunSweepRecordsFailure(t *testing.T) {
	store := newMockStore()
	store.due = []models.RetentionScheduleEntry{dueEntry("msg-bad", models.RetentionArchive)}
	store.archiveErr = errors.New("disk full")
	auditor := &mockAuditor{}
	s := newTestScheduler(store, auditor)

	s.RunSweep(context.Background())

	assert.Equal(t, 1, store.failures["msg-bad"])
	assert.False(t, store.processed["msg-bad"], "failed entry must stay unprocessed for retry")
	assert.Empty(t, auditor.byMessage("msg-bad"), "no audit event for a failed action")
}

func TestRunSweepAuditsRepeatedAction(t *testing.T) {
	store := newMockStore()
	store.due = []models.RetentionScheduleEntry{dueEntry("msg-2", models.RetentionArchive)}
	// Simulate a crash after the archive landed but before the processed mark.
	store.archived["msg-2"] = true
	auditor := &mockAuditor{}
	s := newTestScheduler(store, auditor)

	s.RunSweep(context.Background())

	assert.True(t, store.processed["msg-2"])
	entries := auditor.byMessage("msg-2")
	require.Len(t, entries, 1)
	assert.Contains(t, string(entries[0].Payload), `"repeated":true`)
}

func TestRunSweepStopsOnCancelledContext(t *testing.T) {
	store := newMockStore()
	for _, id := range []string{"a", "b", "c"} {
		store.due = append(store.due, dueEntry(id, models.RetentionDelete))
	}
	auditor := &mockAuditor{}
	s := newTestScheduler(store, auditor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.RunSweep(ctx)

	assert.Empty(t, store.processed, "cancelled sweep must not process entries")
}

func TestSchedulerStartStop(t *testing.T) {
	store := newMockStore()
	store.due = []models.RetentionScheduleEntry{dueEntry("msg-3", models.RetentionArchive)}
	auditor := &mockAuditor{}
	s := newTestScheduler(store, auditor)

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	// Start runs an immediate sweep before the first tick.
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.processed["msg-3"]
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.False(t, s.IsProcessing())
}

func TestUnknownActionRecordsFailure(t *testing.T) {
	store := newMockStore()
	store.due = []models.RetentionScheduleEntry{dueEntry("msg-odd", models.RetentionAction("SHRED"))}
	auditor := &mockAuditor{}
	s := newTestScheduler(store, auditor)

	s.RunSweep(context.Background())

	assert.Equal(t, 1, store.failures["msg-odd"])
	assert.False(t, store.processed["msg-odd"])
}
