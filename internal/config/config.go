package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"campusguard/internal/constants"
	"campusguard/internal/models"
	"campusguard/internal/security"
)

var (
	ErrMissingDBPath        = models.ConfigError{Message: "missing database path"}
	ErrMissingDeadLetterDir = models.ConfigError{Message: "missing audit dead-letter directory"}
	ErrEmptyLexicon         = models.ConfigError{Message: "policy lexicon has no terms"}
	ErrNoRetentionPolicies  = models.ConfigError{Message: "policy has no retention entries"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the invariants a running pipeline depends on. It is
// exported because the watcher re-validates every reloaded document before
// publishing it.
func Validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Audit.DeadLetterDir == "" {
		return ErrMissingDeadLetterDir
	}

	lex := c.Policy.Lexicon
	termCount := len(lex.Academic) + len(lex.Administrative) + len(lex.Support) +
		len(lex.EducationalRecord) + len(lex.RiskMedium) + len(lex.RiskHigh) + len(lex.RiskCritical)
	if termCount == 0 {
		return ErrEmptyLexicon
	}

	if len(c.Policy.Retention) == 0 {
		return ErrNoRetentionPolicies
	}
	seen := make(map[string]bool)
	for i, policy := range c.Policy.Retention {
		if policy.ID == "" {
			return models.ConfigError{Message: fmt.Sprintf("retention policy %d has no id", i)}
		}
		if seen[policy.ID] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate retention policy id: %s", policy.ID)}
		}
		if policy.Days <= 0 {
			return models.ConfigError{Message: fmt.Sprintf("retention policy %s has non-positive days", policy.ID)}
		}
		if !policy.Action.Valid() {
			return models.ConfigError{Message: fmt.Sprintf("retention policy %s has invalid action: %s", policy.ID, policy.Action)}
		}
		if policy.Category != "" && !policy.Category.Valid() {
			return models.ConfigError{Message: fmt.Sprintf("retention policy %s has invalid category: %s", policy.ID, policy.Category)}
		}
		seen[policy.ID] = true
	}

	if c.Policy.AdultAge <= 0 {
		return models.ConfigError{Message: "policy adult age must be positive"}
	}

	return nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeout
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Audit.QueueSize == 0 {
		c.Audit.QueueSize = constants.DefaultAuditQueueSize
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = constants.DefaultAuditBatchSize
	}
	if c.Audit.FlushIntervalSec == 0 {
		c.Audit.FlushIntervalSec = constants.DefaultAuditFlushIntervalSec
	}
	if c.Audit.MaxRetries == 0 {
		c.Audit.MaxRetries = constants.DefaultAuditMaxRetries
	}
	if c.Audit.EnqueueTimeoutMs == 0 {
		c.Audit.EnqueueTimeoutMs = constants.DefaultAuditEnqueueTimeoutMs
	}

	if c.Retention.IntervalMinutes == 0 {
		c.Retention.IntervalMinutes = constants.DefaultRetentionIntervalMinutes
	}
	if c.Retention.BatchSize == 0 {
		c.Retention.BatchSize = constants.DefaultRetentionBatchSize
	}
	if c.Retention.MaxAttempts == 0 {
		c.Retention.MaxAttempts = constants.DefaultRetentionMaxAttempts
	}

	if c.Caches.ClassificationSize == 0 {
		c.Caches.ClassificationSize = constants.DefaultClassificationCacheSize
	}
	if c.Caches.ConsentSize == 0 {
		c.Caches.ConsentSize = constants.DefaultConsentCacheSize
	}
	if c.Caches.AgeSize == 0 {
		c.Caches.AgeSize = constants.DefaultAgeCacheSize
	}

	if c.Policy.AdultAge == 0 {
		c.Policy.AdultAge = constants.DefaultAdultAgeYears
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if v := os.Getenv("CAMPUSGUARD_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CAMPUSGUARD_DEAD_LETTER_DIR"); v != "" {
		c.Audit.DeadLetterDir = v
	}
	if v := os.Getenv("CAMPUSGUARD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CAMPUSGUARD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			c.Server.Port = port
		}
	}
}
