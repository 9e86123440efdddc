package config

import (
	"context"
	"os"
	"sync"
	"time"

	"campusguard/internal/models"

	"github.com/sirupsen/logrus"
)

// PolicyWatcher polls the configuration file and republishes it when it
// changes. Consumers register callbacks; the classifier rebuilds its
// matcher and the compliance caches flush on every policy change, so a
// lexicon edit takes effect without a restart.
type PolicyWatcher struct {
	configPath string
	interval   time.Duration
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
}

// NewPolicyWatcher creates a watcher for the given config file.
func NewPolicyWatcher(configPath string, logger *logrus.Logger) *PolicyWatcher {
	return &PolicyWatcher{
		configPath: configPath,
		interval:   5 * time.Second,
		logger:     logger,
		callbacks:  make([]func(*models.Config), 0),
	}
}

// Start loads the initial configuration and begins polling for changes.
// It blocks until ctx is cancelled.
func (pw *PolicyWatcher) Start(ctx context.Context) error {
	config, err := LoadConfig(pw.configPath)
	if err != nil {
		return err
	}

	pw.mu.Lock()
	pw.config = config
	pw.mu.Unlock()

	stat, err := os.Stat(pw.configPath)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()

	pw.logger.WithField("path", pw.configPath).Info("Policy watcher started")

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			pw.logger.Info("Policy watcher stopping")
			return nil

		case <-ticker.C:
			stat, err := os.Stat(pw.configPath)
			if err != nil {
				pw.logger.WithError(err).Error("Failed to stat configuration file")
				continue
			}

			if stat.ModTime().After(lastModTime) {
				lastModTime = stat.ModTime()

				// Small delay so a partially written file is not parsed
				time.Sleep(100 * time.Millisecond)
				pw.reload()
			}
		}
	}
}

// GetConfig returns the current configuration (thread-safe).
func (pw *PolicyWatcher) GetConfig() *models.Config {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	return pw.config
}

// OnChange registers a callback invoked after every successful reload.
func (pw *PolicyWatcher) OnChange(callback func(*models.Config)) {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	pw.callbacks = append(pw.callbacks, callback)
}

func (pw *PolicyWatcher) reload() {
	newConfig, err := LoadConfig(pw.configPath)
	if err != nil {
		// A bad reload keeps the last good policy; compliance behavior
		// must never degrade because someone fat-fingered a JSON edit.
		pw.logger.WithError(err).Error("Failed to reload configuration, keeping current policy")
		return
	}

	pw.mu.Lock()
	oldConfig := pw.config
	pw.config = newConfig
	callbacks := make([]func(*models.Config), len(pw.callbacks))
	copy(callbacks, pw.callbacks)
	pw.mu.Unlock()

	if oldConfig != nil && oldConfig.Policy.Version != newConfig.Policy.Version {
		pw.logger.WithFields(logrus.Fields{
			"old": oldConfig.Policy.Version,
			"new": newConfig.Policy.Version,
		}).Info("Policy version changed")
	} else {
		pw.logger.Info("Configuration reloaded")
	}

	for _, callback := range callbacks {
		go func(cb func(*models.Config)) {
			defer func() {
				if r := recover(); r != nil {
					pw.logger.WithField("panic", r).Error("Config change callback panicked")
				}
			}()
			cb(newConfig)
		}(callback)
	}
}
