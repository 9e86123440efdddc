package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campusguard/internal/models"
)

// CreateRetentionEntry records the retention schedule for a message.
// Every message gets exactly one entry; a duplicate insert is ignored so
// pipeline retries stay idempotent.
func (d *Database) CreateRetentionEntry(ctx context.Context, entry *models.RetentionScheduleEntry) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertRetentionEntryQuery,
			entry.MessageID,
			entry.PolicyID,
			entry.ExpiresAt,
			string(entry.Action),
		)
		return err
	}, "create retention entry")
}

// GetDueRetentionEntries returns unprocessed entries whose expiry has
// passed, oldest expiry first, up to limit.
func (d *Database) GetDueRetentionEntries(ctx context.Context, now time.Time, limit int) ([]models.RetentionScheduleEntry, error) {
	var entries []models.RetentionScheduleEntry

	err := retryableDBOperation(ctx, func() error {
		rows, err := d.db.QueryContext(ctx, selectDueRetentionEntriesQuery, now, limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		entries = entries[:0]
		for rows.Next() {
			entry, err := scanRetentionEntry(rows)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	}, "get due retention entries")
	if err != nil {
		return nil, fmt.Errorf("failed to get due retention entries: %w", err)
	}

	return entries, nil
}

// GetRetentionEntry loads the schedule entry for one message.
func (d *Database) GetRetentionEntry(ctx context.Context, messageID string) (*models.RetentionScheduleEntry, error) {
	var entry models.RetentionScheduleEntry

	err := retryableDBOperation(ctx, func() error {
		row := d.db.QueryRowContext(ctx, selectRetentionEntryQuery, messageID)
		scanned, err := scanRetentionEntry(row)
		if err != nil {
			return err
		}
		entry = scanned
		return nil
	}, "get retention entry")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get retention entry: %w", err)
	}

	return &entry, nil
}

// MarkRetentionProcessed stamps processed_at. The predicate keeps a second
// run from re-stamping; the return value reports whether this call won.
func (d *Database) MarkRetentionProcessed(ctx context.Context, messageID string, processedAt time.Time) (bool, error) {
	var affected int64
	err := retryableDBOperation(ctx, func() error {
		res, err := d.db.ExecContext(ctx, markRetentionProcessedQuery, processedAt, messageID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	}, "mark retention processed")
	if err != nil {
		return false, fmt.Errorf("failed to mark retention processed: %w", err)
	}
	return affected > 0, nil
}

// RecordRetentionFailure bumps the attempt counter and flags the entry for
// manual review once it reaches maxAttempts.
func (d *Database) RecordRetentionFailure(ctx context.Context, messageID string, maxAttempts int) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, recordRetentionFailureQuery, maxAttempts, messageID)
		return err
	}, "record retention failure")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRetentionEntry(scanner rowScanner) (models.RetentionScheduleEntry, error) {
	var (
		entry       models.RetentionScheduleEntry
		processedAt sql.NullTime
	)
	err := scanner.Scan(
		&entry.MessageID,
		&entry.PolicyID,
		&entry.ExpiresAt,
		&entry.Action,
		&processedAt,
		&entry.Attempts,
		&entry.NeedsReview,
	)
	if err != nil {
		return entry, err
	}
	if processedAt.Valid {
		entry.ProcessedAt = &processedAt.Time
	}
	return entry, nil
}
