package models

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

// Config is the root configuration document.
type Config struct {
	LogLevel  string          `json:"logLevel"`
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Audit     AuditConfig     `json:"audit"`
	Retention RetentionConfig `json:"retention"`
	Caches    CachesConfig    `json:"caches"`
	Policy    PolicyConfig    `json:"policy"`
	Tracing   TracingConfig   `json:"tracing"`
}

type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	WriteTimeoutSec int `json:"writeTimeoutSec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type AuditConfig struct {
	QueueSize        int    `json:"queueSize"`
	BatchSize        int    `json:"batchSize"`
	FlushIntervalSec int    `json:"flushIntervalSec"`
	MaxRetries       int    `json:"maxRetries"`
	EnqueueTimeoutMs int    `json:"enqueueTimeoutMs"`
	DeadLetterDir    string `json:"deadLetterDir"`
}

type RetentionConfig struct {
	IntervalMinutes int `json:"intervalMinutes"`
	BatchSize       int `json:"batchSize"`
	MaxAttempts     int `json:"maxAttempts"`
}

type CachesConfig struct {
	ClassificationSize int `json:"classificationSize"`
	ConsentSize        int `json:"consentSize"`
	AgeSize            int `json:"ageSize"`
}

type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}

// PolicyConfig is the versioned compliance policy block. Lexicons and age
// thresholds are configuration, not mechanism: deployments supply them and
// the watcher hot-reloads changes so compliance behavior never drifts
// silently between builds.
type PolicyConfig struct {
	Version   string            `json:"version"`
	AdultAge  int               `json:"adultAge"`
	Lexicon   LexiconConfig     `json:"lexicon"`
	Retention []RetentionPolicy `json:"retention"`
}

// LexiconConfig holds the keyword and phrase lists the classifier compiles
// its matcher from. Terms are matched case-insensitively; multi-word
// entries are matched as phrases.
type LexiconConfig struct {
	Academic          []string `json:"academic"`
	Administrative    []string `json:"administrative"`
	Support           []string `json:"support"`
	EducationalRecord []string `json:"educationalRecord"`
	RiskMedium        []string `json:"riskMedium"`
	RiskHigh          []string `json:"riskHigh"`
	RiskCritical      []string `json:"riskCritical"`
}

// RetentionPolicy maps a content category to a retention period and the
// action applied when it expires.
type RetentionPolicy struct {
	ID       string          `json:"id"`
	Category ContentCategory `json:"category"`
	Days     int             `json:"days"`
	Action   RetentionAction `json:"action"`
}
