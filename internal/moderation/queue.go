package moderation

import (
	"context"
	"sync"
	"time"

	"campusguard/internal/database"
	apperrors "campusguard/internal/errors"
	"campusguard/internal/models"
	"campusguard/internal/tracing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store is the slice of the database the queue needs.
type Store interface {
	InsertModerationEntry(ctx context.Context, entry *models.ModerationQueueEntry) error
	GetModerationEntry(ctx context.Context, id string) (*models.ModerationQueueEntry, error)
	ListModerationEntries(ctx context.Context, filter database.ModerationQueueFilter) ([]models.ModerationQueueEntry, error)
	UpdateModerationEntryCAS(ctx context.Context, entry *models.ModerationQueueEntry, expectedVersion int64) (bool, error)
	CountModerationStats(ctx context.Context, startOfDay time.Time) (*models.ModerationStats, error)
}

// Auditor records a decision event for every resolved or escalated entry.
type Auditor interface {
	Enqueue(entry models.AuditLogEntry) error
}

type newEntryFunc func(messageID string, eventType models.AuditEventType, payload interface{}) (models.AuditLogEntry, error)

// Queue is the moderation workflow service. Every transition is an
// optimistic compare-and-swap on the stored version, so two moderators
// acting on the same entry cannot overwrite each other; the loser gets a
// conflict and re-fetches.
type Queue struct {
	store    Store
	auditor  Auditor
	newEntry newEntryFunc
	logger   *logrus.Logger
	nowFn    func() time.Time

	mu          sync.Mutex
	lastChange  time.Time
	subscribers map[chan struct{}]struct{}
}

func NewQueue(store Store, auditor Auditor, newEntry func(string, models.AuditEventType, interface{}) (models.AuditLogEntry, error), logger *logrus.Logger) *Queue {
	return &Queue{
		store:       store,
		auditor:     auditor,
		newEntry:    newEntry,
		logger:      logger,
		nowFn:       func() time.Time { return time.Now().UTC() },
		subscribers: make(map[chan struct{}]struct{}),
	}
}

// Enqueue inserts a new PENDING entry for a flagged message. Priority is
// derived from the classification risk level.
func (q *Queue) Enqueue(ctx context.Context, messageID string, cls *models.ClassificationRecord) (*models.ModerationQueueEntry, error) {
	entry := &models.ModerationQueueEntry{
		ID:              uuid.NewString(),
		MessageID:       messageID,
		Priority:        models.PriorityForRisk(cls.RiskLevel),
		Status:          models.StatusPending,
		FlaggedKeywords: cls.FlaggedKeywords,
		CreatedAt:       q.nowFn(),
	}

	if err := q.store.InsertModerationEntry(ctx, entry); err != nil {
		return nil, err
	}

	q.logger.WithFields(logrus.Fields{
		"entry_id":   entry.ID,
		"message_id": messageID,
		"priority":   entry.Priority,
	}).Info("Message entered moderation queue")

	q.touch()
	return entry, nil
}

// Claim moves a waiting entry to IN_REVIEW and assigns it to the
// moderator. The version must match the one the moderator last read.
func (q *Queue) Claim(ctx context.Context, entryID, moderatorID string, version int64) (*models.ModerationQueueEntry, error) {
	entry, err := q.fetch(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if entry.Status != models.StatusPending && entry.Status != models.StatusEscalated {
		return nil, apperrors.NewModerationConflictError(entryID, version).
			WithContext("status", string(entry.Status))
	}

	entry.Status = models.StatusInReview
	entry.AssignedModeratorID = &moderatorID

	return q.apply(ctx, entry, version)
}

// Resolve finalizes an entry under review. APPROVE and BLOCK both end in
// RESOLVED with the path recorded as the resolution; a resolution note is
// mandatory when the entry sits at HIGH or CRITICAL priority.
func (q *Queue) Resolve(ctx context.Context, entryID, moderatorID string, action models.ModerationAction, notes *string, version int64) (*models.ModerationQueueEntry, error) {
	var resolution models.ModerationResolution
	switch action {
	case models.ActionApprove:
		resolution = models.ResolutionApproved
	case models.ActionBlock:
		resolution = models.ResolutionBlocked
	default:
		return nil, apperrors.New(apperrors.ErrCodeValidationFailed, "action does not resolve an entry").
			WithContext("action", string(action))
	}

	entry, err := q.fetch(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if entry.Status != models.StatusInReview {
		return nil, apperrors.NewModerationConflictError(entryID, version).
			WithContext("status", string(entry.Status))
	}
	if entry.Priority.Rank() >= models.PriorityHigh.Rank() && (notes == nil || *notes == "") {
		return nil, apperrors.New(apperrors.ErrCodeValidationFailed, "resolution notes are required at this priority").
			WithContext("priority", string(entry.Priority)).
			WithUserMessage("A resolution note is required for high-priority entries")
	}

	now := q.nowFn()
	entry.Status = models.StatusResolved
	entry.Resolution = &resolution
	entry.ResolutionNotes = notes
	entry.ResolvedAt = &now

	updated, err := q.apply(ctx, entry, version)
	if err != nil {
		return nil, err
	}

	q.recordDecision(updated, moderatorID, action, notes)
	return updated, nil
}

// Escalate raises an entry one priority tier, caps at CRITICAL, clears
// the assignment, and returns it to the claimable pool. No note required.
func (q *Queue) Escalate(ctx context.Context, entryID, moderatorID string, version int64) (*models.ModerationQueueEntry, error) {
	entry, err := q.fetch(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if entry.Status != models.StatusPending && entry.Status != models.StatusInReview {
		return nil, apperrors.NewModerationConflictError(entryID, version).
			WithContext("status", string(entry.Status))
	}

	entry.Status = models.StatusEscalated
	entry.Priority = entry.Priority.Escalated()
	entry.AssignedModeratorID = nil

	updated, err := q.apply(ctx, entry, version)
	if err != nil {
		return nil, err
	}

	q.recordDecision(updated, moderatorID, models.ActionEscalate, nil)
	return updated, nil
}

// Moderate dispatches a moderator command. This is the single entry point
// the moderation surface calls.
func (q *Queue) Moderate(ctx context.Context, entryID, moderatorID string, action models.ModerationAction, notes *string, version int64) (*models.ModerationQueueEntry, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.SpanModerateEntry)
	defer span.End()

	switch action {
	case models.ActionClaim:
		return q.Claim(ctx, entryID, moderatorID, version)
	case models.ActionApprove, models.ActionBlock:
		return q.Resolve(ctx, entryID, moderatorID, action, notes, version)
	case models.ActionEscalate:
		return q.Escalate(ctx, entryID, moderatorID, version)
	default:
		return nil, apperrors.New(apperrors.ErrCodeValidationFailed, "unknown moderation action").
			WithContext("action", string(action))
	}
}

// Get returns one entry, resolved ones included.
func (q *Queue) Get(ctx context.Context, entryID string) (*models.ModerationQueueEntry, error) {
	entry, err := q.store.GetModerationEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperrors.NewModerationNotFoundError(entryID)
	}
	return entry, nil
}

// List returns queue entries ordered by priority descending, then
// createdAt ascending.
func (q *Queue) List(ctx context.Context, filter database.ModerationQueueFilter) ([]models.ModerationQueueEntry, error) {
	return q.store.ListModerationEntries(ctx, filter)
}

// Stats recomputes the aggregate counts, with "today" starting at UTC
// midnight.
func (q *Queue) Stats(ctx context.Context) (*models.ModerationStats, error) {
	now := q.nowFn()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return q.store.CountModerationStats(ctx, startOfDay)
}

// HasNewSince reports whether the queue changed after t. Pollers use this
// to skip a full refetch.
func (q *Queue) HasNewSince(t time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastChange.After(t)
}

// Subscribe returns a channel that receives a signal on every queue
// change, plus a cancel func. Signals are coalesced; a slow consumer sees
// at most one pending signal.
func (q *Queue) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	q.mu.Lock()
	q.subscribers[ch] = struct{}{}
	q.mu.Unlock()

	cancel := func() {
		q.mu.Lock()
		delete(q.subscribers, ch)
		q.mu.Unlock()
	}
	return ch, cancel
}

func (q *Queue) fetch(ctx context.Context, entryID string) (*models.ModerationQueueEntry, error) {
	entry, err := q.store.GetModerationEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Status.Terminal() {
		return nil, apperrors.NewModerationNotFoundError(entryID)
	}
	return entry, nil
}

func (q *Queue) apply(ctx context.Context, entry *models.ModerationQueueEntry, expectedVersion int64) (*models.ModerationQueueEntry, error) {
	ok, err := q.store.UpdateModerationEntryCAS(ctx, entry, expectedVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewModerationConflictError(entry.ID, expectedVersion)
	}

	entry.Version = expectedVersion + 1
	q.touch()
	return entry, nil
}

func (q *Queue) recordDecision(entry *models.ModerationQueueEntry, moderatorID string, action models.ModerationAction, notes *string) {
	payload := map[string]interface{}{
		"entryId":     entry.ID,
		"moderatorId": moderatorID,
		"action":      action,
		"priority":    entry.Priority,
		"status":      entry.Status,
	}
	if notes != nil {
		payload["notes"] = *notes
	}

	auditEntry, err := q.newEntry(entry.MessageID, models.AuditEventModerationDecision, payload)
	if err != nil {
		q.logger.WithError(err).WithField("entry_id", entry.ID).Error("Failed to build moderation audit entry")
		return
	}
	if err := q.auditor.Enqueue(auditEntry); err != nil {
		q.logger.WithError(err).WithField("entry_id", entry.ID).Error("Failed to enqueue moderation audit entry")
	}
}

func (q *Queue) touch() {
	q.mu.Lock()
	q.lastChange = q.nowFn()
	for ch := range q.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()
}
