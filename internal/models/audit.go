package models

import (
	"time"
)

// AuditEventType identifies which compliance event an audit entry records.
type AuditEventType string

const (
	AuditEventMessageClassified  AuditEventType = "MESSAGE_CLASSIFIED"
	AuditEventDisclosureLogged   AuditEventType = "DISCLOSURE_LOGGED"
	AuditEventModerationDecision AuditEventType = "MODERATION_DECISION"
	AuditEventRetentionApplied   AuditEventType = "RETENTION_APPLIED"
	AuditEventConsentDenied      AuditEventType = "CONSENT_DENIED"
)

func (t AuditEventType) Valid() bool {
	switch t {
	case AuditEventMessageClassified, AuditEventDisclosureLogged,
		AuditEventModerationDecision, AuditEventRetentionApplied,
		AuditEventConsentDenied:
		return true
	}
	return false
}

// AuditLogEntry is append-only. Entries for the same message keep their
// enqueue order; the store deduplicates on (message_id, event_type).
type AuditLogEntry struct {
	ID         string         `db:"id"`
	MessageID  string         `db:"message_id"`
	EventType  AuditEventType `db:"event_type"`
	Payload    []byte         `db:"payload"`
	OccurredAt time.Time      `db:"occurred_at"`
	Flushed    bool           `db:"flushed"`
}
