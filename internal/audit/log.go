package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"campusguard/internal/constants"
	apperrors "campusguard/internal/errors"
	"campusguard/internal/metrics"
	"campusguard/internal/models"
	"campusguard/internal/tracing"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store is the durable sink for audit batches.
type Store interface {
	InsertAuditEntries(ctx context.Context, entries []models.AuditLogEntry) error
}

// AlertFunc is invoked when a batch exhausts its retries and lands in the
// dead-letter area. Operators wire paging or alerting here.
type AlertFunc func(err error, entries []models.AuditLogEntry)

// Log is a bounded-queue, batched append-only audit writer. Enqueue is
// cheap and safe from many concurrent senders; exactly one flusher
// goroutine drains the queue, which is what preserves per-message entry
// ordering without any locking on the write path.
type Log struct {
	store    Store
	cfg      models.AuditConfig
	registry *metrics.Registry
	logger   *logrus.Logger
	alert    AlertFunc

	queue  chan models.AuditLogEntry
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewLog(store Store, cfg models.AuditConfig, registry *metrics.Registry, alert AlertFunc, logger *logrus.Logger) *Log {
	return &Log{
		store:    store,
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		alert:    alert,
		queue:    make(chan models.AuditLogEntry, cfg.QueueSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// NewEntry builds an audit entry for a message event.
func NewEntry(messageID string, eventType models.AuditEventType, payload interface{}) (models.AuditLogEntry, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.AuditLogEntry{}, fmt.Errorf("failed to marshal audit payload: %w", err)
	}
	return models.AuditLogEntry{
		ID:         uuid.NewString(),
		MessageID:  messageID,
		EventType:  eventType,
		Payload:    body,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// Enqueue hands an entry to the flusher. When the queue is full it applies
// backpressure for a short bounded wait; if the queue is still full after
// that, the entry goes straight to the dead-letter area rather than being
// dropped, and the caller gets an AuditWriteFailed to surface operationally.
func (l *Log) Enqueue(entry models.AuditLogEntry) error {
	select {
	case l.queue <- entry:
		return nil
	default:
	}

	timeout := time.Duration(l.cfg.EnqueueTimeoutMs) * time.Millisecond
	select {
	case l.queue <- entry:
		return nil
	case <-time.After(timeout):
	}

	err := apperrors.NewAuditWriteError(fmt.Errorf("audit queue full"), 1)
	l.deadLetter(err, []models.AuditLogEntry{entry})
	return err
}

// Start runs the flush loop until ctx is cancelled or Stop is called,
// then drains whatever remains in the queue.
func (l *Log) Start(ctx context.Context) {
	defer close(l.doneCh)

	interval := time.Duration(l.cfg.FlushIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.WithFields(logrus.Fields{
		"batch_size":     l.cfg.BatchSize,
		"flush_interval": interval.String(),
	}).Info("Audit flusher started")

	batch := make([]models.AuditLogEntry, 0, l.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			l.drain(batch)
			return
		case <-l.stopCh:
			l.drain(batch)
			return
		case entry := <-l.queue:
			batch = append(batch, entry)
			if len(batch) >= l.cfg.BatchSize {
				l.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// Stop signals the flush loop to drain and exit, and waits for it.
func (l *Log) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

// drain empties the queue into a final batch and flushes it with a fresh
// bounded context, so shutdown never loses accepted entries.
func (l *Log) drain(batch []models.AuditLogEntry) {
	for {
		select {
		case entry := <-l.queue:
			batch = append(batch, entry)
		default:
			if len(batch) > 0 {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				l.flush(ctx, batch)
				cancel()
			}
			l.logger.Info("Audit flusher drained and stopped")
			return
		}
	}
}

// flush writes one batch durably, retrying with exponential backoff. A
// batch that exhausts its retries is dead-lettered, never dropped.
func (l *Log) flush(ctx context.Context, batch []models.AuditLogEntry) {
	ctx, span := tracing.StartSpan(ctx, tracing.SpanAuditFlush)
	defer span.End()

	entries := make([]models.AuditLogEntry, len(batch))
	copy(entries, batch)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = constants.DefaultAuditBackoffInitialMs * time.Millisecond
	expo.MaxInterval = constants.DefaultAuditBackoffMaxSec * time.Second

	start := time.Now()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, l.store.InsertAuditEntries(ctx, entries)
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(uint(l.cfg.MaxRetries)))

	if err != nil {
		appErr := apperrors.NewAuditWriteError(err, len(entries))
		l.logger.WithError(appErr).WithField("batch_size", len(entries)).Error("Audit batch failed after retries, dead-lettering")
		l.deadLetter(appErr, entries)
		return
	}

	l.registry.RecordTimer(metrics.MetricAuditFlushDuration, time.Since(start), nil)
	l.logger.WithFields(logrus.Fields{
		"batch_size":  len(entries),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Audit batch flushed")
}

// deadLetter persists entries as a JSON file in the overflow area and
// raises the operational alert. Files are named so recovery tooling can
// replay them in order.
func (l *Log) deadLetter(cause error, entries []models.AuditLogEntry) {
	if err := os.MkdirAll(l.cfg.DeadLetterDir, 0700); err != nil {
		l.logger.WithError(err).Error("Failed to create dead-letter directory")
	}

	name := fmt.Sprintf("audit-%d-%s.json", time.Now().UTC().UnixNano(), uuid.NewString()[:8])
	path := filepath.Join(l.cfg.DeadLetterDir, name)

	body, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		l.logger.WithError(err).Error("Failed to marshal dead-letter batch")
		return
	}

	if err := os.WriteFile(path, body, 0600); err != nil {
		l.logger.WithError(err).WithField("file_path", path).Error("Failed to write dead-letter batch")
		return
	}

	l.logger.WithFields(logrus.Fields{
		"file_path":  path,
		"batch_size": len(entries),
	}).Warn("Audit batch dead-lettered")

	if l.alert != nil {
		l.alert(cause, entries)
	}
}
