package models

import (
	"time"
)

// ModerationPriority orders the moderation queue. It tracks RiskLevel but
// is a separate type because escalation can raise it past the original
// classification.
type ModerationPriority string

const (
	PriorityLow      ModerationPriority = "LOW"
	PriorityMedium   ModerationPriority = "MEDIUM"
	PriorityHigh     ModerationPriority = "HIGH"
	PriorityCritical ModerationPriority = "CRITICAL"
)

func (p ModerationPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank returns the ordinal position of the priority, LOW being 0.
func (p ModerationPriority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return -1
}

// Escalated returns the next priority tier up, capped at CRITICAL.
func (p ModerationPriority) Escalated() ModerationPriority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}

// PriorityForRisk maps a classification risk level onto a queue priority.
func PriorityForRisk(r RiskLevel) ModerationPriority {
	switch r {
	case RiskCritical:
		return PriorityCritical
	case RiskHigh:
		return PriorityHigh
	case RiskMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ModerationStatus is the workflow state of a queue entry.
type ModerationStatus string

const (
	StatusPending   ModerationStatus = "PENDING"
	StatusInReview  ModerationStatus = "IN_REVIEW"
	StatusApproved  ModerationStatus = "APPROVED"
	StatusBlocked   ModerationStatus = "BLOCKED"
	StatusEscalated ModerationStatus = "ESCALATED"
	StatusResolved  ModerationStatus = "RESOLVED"
)

func (s ModerationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInReview, StatusApproved, StatusBlocked,
		StatusEscalated, StatusResolved:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s ModerationStatus) Terminal() bool {
	return s == StatusResolved
}

// ModerationAction is a moderator command against a queue entry.
type ModerationAction string

const (
	ActionClaim    ModerationAction = "CLAIM"
	ActionApprove  ModerationAction = "APPROVE"
	ActionBlock    ModerationAction = "BLOCK"
	ActionEscalate ModerationAction = "ESCALATE"
)

func (a ModerationAction) Valid() bool {
	switch a {
	case ActionClaim, ActionApprove, ActionBlock, ActionEscalate:
		return true
	}
	return false
}

// ModerationResolution records which path reached RESOLVED.
type ModerationResolution string

const (
	ResolutionApproved ModerationResolution = "APPROVED"
	ResolutionBlocked  ModerationResolution = "BLOCKED"
)

// ModerationQueueEntry is the workflow record for one flagged message.
// Version increments on every transition; transitions carry the version
// they read, and a mismatch fails with a conflict instead of overwriting.
type ModerationQueueEntry struct {
	ID                  string                `db:"id" json:"id"`
	MessageID           string                `db:"message_id" json:"messageId"`
	Priority            ModerationPriority    `db:"priority" json:"priority"`
	Status              ModerationStatus      `db:"status" json:"status"`
	FlaggedKeywords     []string              `db:"-" json:"flaggedKeywords"`
	AssignedModeratorID *string               `db:"assigned_moderator_id" json:"assignedModeratorId,omitempty"`
	Resolution          *ModerationResolution `db:"resolution" json:"resolution,omitempty"`
	ResolutionNotes     *string               `db:"resolution_notes" json:"resolutionNotes,omitempty"`
	Version             int64                 `db:"version" json:"version"`
	CreatedAt           time.Time             `db:"created_at" json:"createdAt"`
	ResolvedAt          *time.Time            `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// ModerationStats are the aggregate counts the moderation surface shows.
type ModerationStats struct {
	Pending       int64 `json:"pending"`
	HighPriority  int64 `json:"highPriority"`
	ApprovedToday int64 `json:"approvedToday"`
	BlockedToday  int64 `json:"blockedToday"`
}
