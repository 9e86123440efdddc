package models

import (
	"time"
)

// UserRole identifies a participant's relationship to the institution.
type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleTeacher UserRole = "TEACHER"
	RoleParent  UserRole = "PARENT"
	RoleStaff   UserRole = "STAFF"
	RoleAdmin   UserRole = "ADMIN"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleParent, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Message is immutable once created. Moderation-status annotations live in
// ModerationQueueEntry, never on the message itself.
type Message struct {
	ID           string    `db:"id"`
	AuthorID     string    `db:"author_id"`
	RecipientIDs []string  `db:"-"`
	Content      string    `db:"content"`
	CreatedAt    time.Time `db:"created_at"`
}

// UserProfile carries the participant metadata the pipeline consults.
// Birthdate changes only on correction, which is why age lookups cache well.
type UserProfile struct {
	UserID    string    `db:"user_id"`
	Role      UserRole  `db:"role"`
	Birthdate time.Time `db:"birthdate"`
	Enrolled  bool      `db:"enrolled"`
}

// Participants bundles the sender and recipients of a message send.
type Participants struct {
	Sender     UserProfile
	Recipients []UserProfile
}

// SubmitResult is the only thing the send path blocks on.
type SubmitResult struct {
	MessageID      string                `json:"messageId"`
	Classification *ClassificationRecord `json:"classification"`
}
