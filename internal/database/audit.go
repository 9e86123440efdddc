package database

import (
	"context"
	"fmt"

	"campusguard/internal/models"
)

// InsertAuditEntries writes a batch of audit entries in one transaction,
// preserving slice order. Entries already present under the same
// (message_id, event_type) key are ignored, so re-delivery of a batch
// after a crash or retry never duplicates stored entries.
func (d *Database) InsertAuditEntries(ctx context.Context, entries []models.AuditLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return retryableDBOperation(ctx, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, insertAuditEntryQuery)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, entry := range entries {
			if _, err := stmt.ExecContext(ctx,
				entry.ID,
				entry.MessageID,
				string(entry.EventType),
				entry.Payload,
				entry.OccurredAt,
			); err != nil {
				return err
			}
		}

		return tx.Commit()
	}, "insert audit entries")
}

// GetAuditEntriesByMessage returns all stored audit entries for a message
// in insertion order.
func (d *Database) GetAuditEntriesByMessage(ctx context.Context, messageID string) ([]models.AuditLogEntry, error) {
	var entries []models.AuditLogEntry

	err := retryableDBOperation(ctx, func() error {
		rows, err := d.db.QueryContext(ctx, selectAuditEntriesByMessageQuery, messageID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		entries = entries[:0]
		for rows.Next() {
			var entry models.AuditLogEntry
			if err := rows.Scan(
				&entry.ID,
				&entry.MessageID,
				&entry.EventType,
				&entry.Payload,
				&entry.OccurredAt,
			); err != nil {
				return err
			}
			entry.Flushed = true
			entries = append(entries, entry)
		}
		return rows.Err()
	}, "get audit entries")
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entries: %w", err)
	}

	return entries, nil
}

// DeleteAuditEntriesByMessage removes a message's audit trail. Only the
// retention scheduler calls this, as part of a DELETE action whose
// tombstone row itself carries the final audit trace.
func (d *Database) DeleteAuditEntriesByMessage(ctx context.Context, messageID string) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, deleteAuditEntriesByMessageQuery, messageID)
		return err
	}, "delete audit entries")
}
