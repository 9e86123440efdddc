package validation

import (
	"fmt"
	"strings"
	"unicode"

	"campusguard/internal/constants"
	"campusguard/internal/errors"
	"campusguard/internal/models"
)

// ValidateUserID checks a user identifier from the HTTP surface.
func ValidateUserID(userID string) error {
	if userID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "user ID cannot be empty")
	}
	if len(userID) > constants.MaxUserIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("user ID too long (max %d characters)", constants.MaxUserIDLength))
	}
	for _, char := range userID {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' && char != '.' && char != '@' {
			return errors.New(errors.ErrCodeInvalidInput, "user ID contains invalid characters")
		}
	}
	return nil
}

// ValidateMessageContent checks message body size and content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "message content cannot be empty")
	}
	if len(content) > constants.MaxMessageContentLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("message content too long (max %d bytes)", constants.MaxMessageContentLength))
	}
	if strings.ContainsRune(content, '\x00') {
		return errors.New(errors.ErrCodeInvalidInput, "message content contains invalid characters")
	}
	return nil
}

// ValidateRole checks that a participant role is one of the closed set.
func ValidateRole(role models.UserRole) error {
	if !role.Valid() {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown role %q", string(role))).
			WithUserMessage("Role must be one of STUDENT, TEACHER, PARENT, STAFF, ADMIN")
	}
	return nil
}

// ValidateEntryID checks a moderation entry identifier.
func ValidateEntryID(entryID string) error {
	if entryID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "entry ID cannot be empty")
	}
	if len(entryID) > 64 {
		return errors.New(errors.ErrCodeInvalidInput, "entry ID too long")
	}
	for _, char := range entryID {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '-' {
			return errors.New(errors.ErrCodeInvalidInput, "entry ID contains invalid characters")
		}
	}
	return nil
}

// ValidateResolutionNotes bounds moderator notes.
func ValidateResolutionNotes(notes string) error {
	if len(notes) > constants.MaxResolutionNotesLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("resolution notes too long (max %d characters)", constants.MaxResolutionNotesLength))
	}
	return nil
}

// ValidateRecipients bounds the recipient list of a submit request.
func ValidateRecipients(count int) error {
	if count == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "at least one recipient is required")
	}
	if count > constants.MaxRecipients {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("too many recipients (max %d)", constants.MaxRecipients))
	}
	return nil
}
