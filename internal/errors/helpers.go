package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewConsentLookupError wraps a consent-store failure. Callers must treat
// the result as consent-required and hold the message, never permit.
func NewConsentLookupError(userID string, err error) *AppError {
	return WrapRetryable(err, ErrCodeConsentLookupFailed, "consent lookup failed").
		WithContext("user_id", userID).
		WithUserMessage("Consent could not be verified")
}

// NewConsentDeniedError reports that the sender's consent does not cover
// the data categories this message would process.
func NewConsentDeniedError(userID string) *AppError {
	return New(ErrCodeConsentDenied, "consent does not permit processing").
		WithContext("user_id", userID).
		WithUserMessage("This message cannot be sent without the required consent")
}

// NewAuditWriteError wraps a durable audit write failure. Always retryable;
// audit entries are never dropped.
func NewAuditWriteError(err error, batchSize int) *AppError {
	return WrapRetryable(err, ErrCodeAuditWriteFailed, "audit batch write failed").
		WithContext("batch_size", batchSize)
}

// NewRetentionActionError wraps a failed retention action for one entry.
func NewRetentionActionError(messageID string, err error) *AppError {
	return WrapRetryable(err, ErrCodeRetentionActionFailed, "retention action failed").
		WithContext("message_id", messageID)
}

// NewModerationConflictError reports a stale-version claim or transition.
// The caller should re-fetch the entry and retry with the current version.
func NewModerationConflictError(entryID string, expectedVersion int64) *AppError {
	return New(ErrCodeModerationConflict, "entry was modified by another moderator").
		WithContext("entry_id", entryID).
		WithContext("expected_version", expectedVersion).
		WithUserMessage("Entry was updated by someone else, please refresh")
}

// NewModerationNotFoundError reports a missing or already-resolved entry.
func NewModerationNotFoundError(entryID string) *AppError {
	return New(ErrCodeModerationNotFound, "moderation entry not found").
		WithContext("entry_id", entryID).
		WithUserMessage("Entry does not exist or is already resolved")
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}
