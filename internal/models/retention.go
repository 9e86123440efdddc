package models

import (
	"time"
)

// RetentionAction is what the scheduler does to a message when its
// retention period expires.
type RetentionAction string

const (
	RetentionArchive RetentionAction = "ARCHIVE"
	RetentionDelete  RetentionAction = "DELETE"
)

func (a RetentionAction) Valid() bool {
	return a == RetentionArchive || a == RetentionDelete
}

// RetentionScheduleEntry is created once per message at classification time
// and consumed exactly once by the retention scheduler.
type RetentionScheduleEntry struct {
	MessageID   string          `db:"message_id"`
	PolicyID    string          `db:"policy_id"`
	ExpiresAt   time.Time       `db:"expires_at"`
	Action      RetentionAction `db:"action"`
	ProcessedAt *time.Time      `db:"processed_at"`
	Attempts    int             `db:"attempts"`
	NeedsReview bool            `db:"needs_review"`
}

// Due reports whether the entry is ready for processing at the given time.
func (e RetentionScheduleEntry) Due(now time.Time) bool {
	return e.ProcessedAt == nil && !e.NeedsReview && !e.ExpiresAt.After(now)
}
