package constants

// Default server configuration values
const (
	DefaultServerPort           = 8084
	DefaultServerReadTimeoutSec = 15
	DefaultServerWriteTimeout   = 15
	DefaultServerIdleTimeoutSec = 60
	DefaultGracefulShutdownSec  = 30
)

// Default audit log configuration values
const (
	DefaultAuditQueueSize        = 1024
	DefaultAuditBatchSize        = 100
	DefaultAuditFlushIntervalSec = 5
	DefaultAuditMaxRetries       = 5
	DefaultAuditEnqueueTimeoutMs = 250
	DefaultAuditBackoffInitialMs = 200
	DefaultAuditBackoffMaxSec    = 30
)

// Default retention scheduler configuration values
const (
	DefaultRetentionIntervalMinutes = 5
	DefaultRetentionBatchSize       = 200
	DefaultRetentionMaxAttempts     = 3
)

// Default cache sizes
const (
	DefaultClassificationCacheSize = 4096
	DefaultConsentCacheSize        = 2048
	DefaultAgeCacheSize            = 2048
)

// Default database retry values
const (
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
)

// Default policy values
const (
	DefaultAdultAgeYears = 18
)

// Input limits for the HTTP surface
const (
	MaxMessageContentLength  = 65536
	MaxUserIDLength          = 128
	MaxResolutionNotesLength = 4096
	MaxRecipients            = 256
)

// DefaultIDMaskLength is how many trailing characters of a user id stay
// visible in masked log output.
const DefaultIDMaskLength = 4

// EncryptionSalt is the pbkdf2 salt for content-encryption key derivation.
const EncryptionSalt = "campusguard-content-v1"
