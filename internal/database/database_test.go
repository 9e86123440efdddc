package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"campusguard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "campusguard-test.db")
	db, err := New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testMessage(id string) *models.Message {
	return &models.Message{
		ID:           id,
		AuthorID:     "teacher-1",
		RecipientIDs: []string{"student-1"},
		Content:      "Your grade for the math assignment is 85/100",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func testClassification() *models.ClassificationRecord {
	return &models.ClassificationRecord{
		ContentCategory:     models.CategoryAcademic,
		RiskLevel:           models.RiskLow,
		IsEducationalRecord: true,
		EncryptionLevel:     models.EncryptionRecord,
		AuditRequired:       true,
	}
}

func TestDatabase_SaveAndGetMessage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	msg := testMessage("msg-1")
	require.NoError(t, db.SaveMessage(ctx, msg, "abc123", testClassification()))

	stored, err := db.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, msg.Content, stored.Message.Content)
	assert.Equal(t, []string{"student-1"}, stored.Message.RecipientIDs)
	assert.Equal(t, models.CategoryAcademic, stored.ContentCategory)
	assert.Equal(t, models.EncryptionRecord, stored.EncryptionLevel)
	assert.True(t, stored.IsEducationalRecord)
	assert.False(t, stored.Purged)
}

func TestDatabase_GetMessageMissing(t *testing.T) {
	db := setupTestDB(t)

	stored, err := db.GetMessage(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestDatabase_EncryptedContentRoundTrip(t *testing.T) {
	t.Setenv("CAMPUSGUARD_ENCRYPTION_SECRET", "integration-test-secret-at-least-32-chars")

	db := setupTestDB(t)
	ctx := context.Background()

	msg := testMessage("msg-enc")
	require.NoError(t, db.SaveMessage(ctx, msg, "digest", testClassification()))

	// The raw column must not contain the plaintext.
	var raw string
	require.NoError(t, db.db.QueryRow("SELECT content FROM messages WHERE id = ?", "msg-enc").Scan(&raw))
	assert.NotEqual(t, msg.Content, raw)

	stored, err := db.GetMessage(ctx, "msg-enc")
	require.NoError(t, err)
	assert.Equal(t, msg.Content, stored.Message.Content)
}

func TestDatabase_PurgeMessageContentIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveMessage(ctx, testMessage("msg-2"), "d", testClassification()))

	purged, err := db.PurgeMessageContent(ctx, "msg-2")
	require.NoError(t, err)
	assert.True(t, purged)

	// Second purge is a no-op.
	purged, err = db.PurgeMessageContent(ctx, "msg-2")
	require.NoError(t, err)
	assert.False(t, purged)

	stored, err := db.GetMessage(ctx, "msg-2")
	require.NoError(t, err)
	assert.True(t, stored.Purged)
	assert.Empty(t, stored.Message.Content)
}

func TestDatabase_ArchiveMessageIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveMessage(ctx, testMessage("msg-3"), "d", testClassification()))

	archived, err := db.ArchiveMessage(ctx, "msg-3", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, archived)

	archived, err = db.ArchiveMessage(ctx, "msg-3", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, archived)

	var count int
	require.NoError(t, db.db.QueryRow("SELECT COUNT(*) FROM message_archive WHERE message_id = ?", "msg-3").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestDatabase_AuditEntriesDeduplicated(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := models.AuditLogEntry{
		ID:         "audit-1",
		MessageID:  "msg-1",
		EventType:  models.AuditEventMessageClassified,
		Payload:    []byte(`{"riskLevel":"LOW"}`),
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, db.InsertAuditEntries(ctx, []models.AuditLogEntry{entry}))

	// Same logical event with a fresh entry id must not duplicate.
	duplicate := entry
	duplicate.ID = "audit-2"
	require.NoError(t, db.InsertAuditEntries(ctx, []models.AuditLogEntry{duplicate}))

	entries, err := db.GetAuditEntriesByMessage(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "audit-1", entries[0].ID)
	assert.True(t, entries[0].Flushed)
}

func TestDatabase_ConsentDenialsPersistPerIdentity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Denial entries carry a per-denial identity instead of a message id;
	// denials for different users must both survive the dedupe index.
	batch := []models.AuditLogEntry{
		{ID: "d1", MessageID: "consent:student-1:1", EventType: models.AuditEventConsentDenied, Payload: []byte("{}"), OccurredAt: now},
		{ID: "d2", MessageID: "consent:student-2:2", EventType: models.AuditEventConsentDenied, Payload: []byte("{}"), OccurredAt: now},
	}
	require.NoError(t, db.InsertAuditEntries(ctx, batch))

	var count int
	require.NoError(t, db.db.QueryRow(
		"SELECT COUNT(*) FROM audit_log WHERE event_type = ?",
		models.AuditEventConsentDenied).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestDatabase_AuditEntriesPreserveOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	batch := []models.AuditLogEntry{
		{ID: "a1", MessageID: "m", EventType: models.AuditEventMessageClassified, Payload: []byte("{}"), OccurredAt: time.Now().UTC()},
		{ID: "a2", MessageID: "m", EventType: models.AuditEventDisclosureLogged, Payload: []byte("{}"), OccurredAt: time.Now().UTC()},
		{ID: "a3", MessageID: "m", EventType: models.AuditEventModerationDecision, Payload: []byte("{}"), OccurredAt: time.Now().UTC()},
	}
	require.NoError(t, db.InsertAuditEntries(ctx, batch))

	entries, err := db.GetAuditEntriesByMessage(ctx, "m")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.AuditEventMessageClassified, entries[0].EventType)
	assert.Equal(t, models.AuditEventDisclosureLogged, entries[1].EventType)
	assert.Equal(t, models.AuditEventModerationDecision, entries[2].EventType)
}

func TestDatabase_RetentionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := &models.RetentionScheduleEntry{
		MessageID: "msg-due",
		PolicyID:  "default",
		ExpiresAt: now.Add(-time.Hour),
		Action:    models.RetentionDelete,
	}
	future := &models.RetentionScheduleEntry{
		MessageID: "msg-future",
		PolicyID:  "default",
		ExpiresAt: now.Add(time.Hour),
		Action:    models.RetentionDelete,
	}
	require.NoError(t, db.CreateRetentionEntry(ctx, due))
	require.NoError(t, db.CreateRetentionEntry(ctx, future))

	// Duplicate creation for the same message is ignored.
	require.NoError(t, db.CreateRetentionEntry(ctx, due))

	entries, err := db.GetDueRetentionEntries(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "msg-due", entries[0].MessageID)

	marked, err := db.MarkRetentionProcessed(ctx, "msg-due", now)
	require.NoError(t, err)
	assert.True(t, marked)

	// Already processed: marking again loses, and it is no longer due.
	marked, err = db.MarkRetentionProcessed(ctx, "msg-due", now)
	require.NoError(t, err)
	assert.False(t, marked)

	entries, err = db.GetDueRetentionEntries(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDatabase_RetentionFailureFlagsForReview(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := &models.RetentionScheduleEntry{
		MessageID: "msg-fail",
		PolicyID:  "default",
		ExpiresAt: now.Add(-time.Hour),
		Action:    models.RetentionArchive,
	}
	require.NoError(t, db.CreateRetentionEntry(ctx, entry))

	maxAttempts := 3
	for i := 0; i < maxAttempts; i++ {
		require.NoError(t, db.RecordRetentionFailure(ctx, "msg-fail", maxAttempts))
	}

	stored, err := db.GetRetentionEntry(ctx, "msg-fail")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, maxAttempts, stored.Attempts)
	assert.True(t, stored.NeedsReview)

	// Needs-review entries leave the due set.
	entries, err := db.GetDueRetentionEntries(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func insertQueueEntry(t *testing.T, db *Database, id string, priority models.ModerationPriority, createdAt time.Time) {
	t.Helper()
	require.NoError(t, db.InsertModerationEntry(context.Background(), &models.ModerationQueueEntry{
		ID:              id,
		MessageID:       "msg-" + id,
		Priority:        priority,
		Status:          models.StatusPending,
		FlaggedKeywords: []string{"flagged"},
		CreatedAt:       createdAt,
	}))
}

func TestDatabase_ModerationListOrdering(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	insertQueueEntry(t, db, "low-old", models.PriorityLow, base)
	insertQueueEntry(t, db, "crit-new", models.PriorityCritical, base.Add(3*time.Hour))
	insertQueueEntry(t, db, "high-old", models.PriorityHigh, base.Add(time.Hour))
	insertQueueEntry(t, db, "high-new", models.PriorityHigh, base.Add(2*time.Hour))
	insertQueueEntry(t, db, "med", models.PriorityMedium, base)

	entries, err := db.ListModerationEntries(context.Background(), ModerationQueueFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 5)

	got := make([]string, len(entries))
	for i, e := range entries {
		got[i] = e.ID
	}
	// CRITICAL > HIGH > MEDIUM > LOW, oldest first within a tier.
	assert.Equal(t, []string{"crit-new", "high-old", "high-new", "med", "low-old"}, got)
}

func TestDatabase_ModerationCASConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	insertQueueEntry(t, db, "entry-1", models.PriorityHigh, time.Now().UTC())

	entry, err := db.GetModerationEntry(ctx, "entry-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(1), entry.Version)

	moderator := "mod-1"
	entry.Status = models.StatusInReview
	entry.AssignedModeratorID = &moderator

	ok, err := db.UpdateModerationEntryCAS(ctx, entry, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second transition against the stale version must lose.
	ok, err = db.UpdateModerationEntryCAS(ctx, entry, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	updated, err := db.GetModerationEntry(ctx, "entry-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, models.StatusInReview, updated.Status)
	require.NotNil(t, updated.AssignedModeratorID)
	assert.Equal(t, "mod-1", *updated.AssignedModeratorID)
}

func TestDatabase_ModerationStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insertQueueEntry(t, db, "p1", models.PriorityLow, now)
	insertQueueEntry(t, db, "p2", models.PriorityCritical, now)
	insertQueueEntry(t, db, "resolved", models.PriorityHigh, now)

	entry, err := db.GetModerationEntry(ctx, "resolved")
	require.NoError(t, err)
	approved := models.ResolutionApproved
	resolvedAt := now
	entry.Status = models.StatusResolved
	entry.Resolution = &approved
	entry.ResolvedAt = &resolvedAt

	ok, err := db.UpdateModerationEntryCAS(ctx, entry, entry.Version)
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := db.CountModerationStats(ctx, now.Truncate(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.HighPriority)
	assert.Equal(t, int64(1), stats.ApprovedToday)
	assert.Equal(t, int64(0), stats.BlockedToday)
}

func TestDatabase_ConsentAndProfiles(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertConsentGrant(ctx, &models.ConsentGrant{
		UserID:       "student-1",
		DataCategory: models.DataCategoryMessageContent,
		Granted:      true,
	}))
	require.NoError(t, db.UpsertConsentGrant(ctx, &models.ConsentGrant{
		UserID:       "student-1",
		DataCategory: models.DataCategoryMessageContent,
		Granted:      false,
	}))

	grants, err := db.GetConsentGrants(ctx, "student-1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.False(t, grants[0].Granted)

	profile := &models.UserProfile{
		UserID:    "student-1",
		Role:      models.RoleStudent,
		Birthdate: time.Date(2012, 5, 1, 0, 0, 0, 0, time.UTC),
		Enrolled:  true,
	}
	require.NoError(t, db.UpsertUserProfile(ctx, profile))

	stored, err := db.GetUserProfile(ctx, "student-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.RoleStudent, stored.Role)

	missing, err := db.GetUserProfile(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
