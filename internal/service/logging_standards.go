package service

// Standard field names for structured logging. Use these exact names so
// log queries stay consistent across components.
const (
	LogFieldMessageID   = "message_id"
	LogFieldUserID      = "user_id"
	LogFieldEntryID     = "entry_id"
	LogFieldPolicyID    = "policy_id"
	LogFieldComponent   = "component"
	LogFieldOperation   = "operation"
	LogFieldCategory    = "content_category"
	LogFieldRiskLevel   = "risk_level"
	LogFieldPriority    = "priority"
	LogFieldDuration    = "duration_ms"
	LogFieldCount       = "count"
	LogFieldErrorCode   = "error_code"
	LogFieldCacheResult = "cache_result"

	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldSize       = "size_bytes"
)
