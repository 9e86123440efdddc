package retention

import (
	"context"
	"sync/atomic"
	"time"

	apperrors "campusguard/internal/errors"
	"campusguard/internal/metrics"
	"campusguard/internal/models"
	"campusguard/internal/tracing"

	"github.com/sirupsen/logrus"
)

// Store is the slice of the database the scheduler needs.
type Store interface {
	GetDueRetentionEntries(ctx context.Context, now time.Time, limit int) ([]models.RetentionScheduleEntry, error)
	MarkRetentionProcessed(ctx context.Context, messageID string, processedAt time.Time) (bool, error)
	RecordRetentionFailure(ctx context.Context, messageID string, maxAttempts int) error
	ArchiveMessage(ctx context.Context, id string, archivedAt time.Time) (bool, error)
	PurgeMessageContent(ctx context.Context, id string) (bool, error)
	DeleteAuditEntriesByMessage(ctx context.Context, messageID string) error
}

// Auditor receives a RETENTION_APPLIED event for every action taken.
type Auditor interface {
	Enqueue(entry models.AuditLogEntry) error
}

type newEntryFunc func(messageID string, eventType models.AuditEventType, payload interface{}) (models.AuditLogEntry, error)

// Scheduler sweeps the retention schedule on a fixed interval and applies
// the recorded action to each due message. Every action is idempotent, so
// a crash between the action and the processed mark only costs a repeat
// of work already done, never data.
type Scheduler struct {
	store      Store
	auditor    Auditor
	newEntry   newEntryFunc
	cfg        models.RetentionConfig
	registry   *metrics.Registry
	logger     *logrus.Logger
	stopCh     chan struct{}
	processing atomic.Bool
	nowFn      func() time.Time
}

func NewScheduler(store Store, auditor Auditor, newEntry func(string, models.AuditEventType, interface{}) (models.AuditLogEntry, error), cfg models.RetentionConfig, registry *metrics.Registry, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		auditor:  auditor,
		newEntry: newEntry,
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		stopCh:   make(chan struct{}),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.IntervalMinutes) * time.Minute)
	defer ticker.Stop()

	s.logger.WithFields(logrus.Fields{
		"interval_minutes": s.cfg.IntervalMinutes,
		"batch_size":       s.cfg.BatchSize,
	}).Info("Starting retention scheduler")

	s.RunSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retention scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Retention scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.RunSweep(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// IsProcessing reports whether a sweep is currently running.
func (s *Scheduler) IsProcessing() bool {
	return s.processing.Load()
}

// RunSweep processes one batch of due entries. A sweep that is already
// running makes the call a no-op, so a slow batch never stacks up behind
// the ticker.
func (s *Scheduler) RunSweep(ctx context.Context) {
	if !s.processing.CompareAndSwap(false, true) {
		s.logger.Debug("Retention sweep already in progress, skipping")
		return
	}
	defer s.processing.Store(false)

	ctx, span := tracing.StartSpan(ctx, tracing.SpanRetentionSweep)
	defer span.End()

	now := s.nowFn()
	entries, err := s.store.GetDueRetentionEntries(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load due retention entries")
		return
	}
	if len(entries) == 0 {
		return
	}

	s.logger.WithField("due_count", len(entries)).Info("Running retention sweep")

	var applied, failed int
	for _, entry := range entries {
		if ctx.Err() != nil {
			s.logger.WithFields(logrus.Fields{
				"applied":   applied,
				"remaining": len(entries) - applied - failed,
			}).Warn("Retention sweep interrupted by shutdown")
			return
		}
		if err := s.processEntry(ctx, entry, now); err != nil {
			failed++
		} else {
			applied++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"applied": applied,
		"failed":  failed,
	}).Info("Retention sweep completed")
}

func (s *Scheduler) processEntry(ctx context.Context, entry models.RetentionScheduleEntry, now time.Time) error {
	log := s.logger.WithFields(logrus.Fields{
		"message_id": entry.MessageID,
		"policy_id":  entry.PolicyID,
		"action":     entry.Action,
	})

	acted, err := s.applyAction(ctx, entry, now)
	if err != nil {
		log.WithError(err).Error("Retention action failed")
		if recErr := s.store.RecordRetentionFailure(ctx, entry.MessageID, s.cfg.MaxAttempts); recErr != nil {
			log.WithError(recErr).Error("Failed to record retention failure")
		}
		return apperrors.NewRetentionActionError(entry.MessageID, err)
	}

	// acted is false when the message was already archived or purged by an
	// earlier interrupted sweep. The entry still gets marked processed.
	marked, err := s.store.MarkRetentionProcessed(ctx, entry.MessageID, now)
	if err != nil {
		log.WithError(err).Error("Failed to mark retention entry processed")
		return apperrors.NewRetentionActionError(entry.MessageID, err)
	}
	if !marked {
		log.Debug("Retention entry already processed by a concurrent sweep")
		return nil
	}

	s.recordAudit(entry, now, acted)
	s.registry.IncrementCounter(metrics.MetricRetentionApplied,
		map[string]string{"action": string(entry.Action)}, "Retention actions applied")
	log.Info("Retention action applied")
	return nil
}

func (s *Scheduler) applyAction(ctx context.Context, entry models.RetentionScheduleEntry, now time.Time) (bool, error) {
	switch entry.Action {
	case models.RetentionArchive:
		return s.store.ArchiveMessage(ctx, entry.MessageID, now)
	case models.RetentionDelete:
		acted, err := s.store.PurgeMessageContent(ctx, entry.MessageID)
		if err != nil {
			return false, err
		}
		// The per-message audit trail goes with the content. The
		// RETENTION_APPLIED event recorded afterwards is the surviving trace.
		if err := s.store.DeleteAuditEntriesByMessage(ctx, entry.MessageID); err != nil {
			return acted, err
		}
		return acted, nil
	default:
		return false, apperrors.New(apperrors.ErrCodeValidationFailed, "unknown retention action").
			WithContext("action", string(entry.Action))
	}
}

func (s *Scheduler) recordAudit(entry models.RetentionScheduleEntry, now time.Time, acted bool) {
	payload := map[string]interface{}{
		"policyId":  entry.PolicyID,
		"action":    entry.Action,
		"expiresAt": entry.ExpiresAt,
		"appliedAt": now,
		"repeated":  !acted,
	}
	auditEntry, err := s.newEntry(entry.MessageID, models.AuditEventRetentionApplied, payload)
	if err != nil {
		s.logger.WithError(err).WithField("message_id", entry.MessageID).Error("Failed to build retention audit entry")
		return
	}
	if err := s.auditor.Enqueue(auditEntry); err != nil {
		s.logger.WithError(err).WithField("message_id", entry.MessageID).Error("Failed to enqueue retention audit entry")
	}
}
