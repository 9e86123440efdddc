package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campusguard/internal/models"
)

// InsertModerationEntry adds a new entry to the queue.
func (d *Database) InsertModerationEntry(ctx context.Context, entry *models.ModerationQueueEntry) error {
	keywords, err := json.Marshal(entry.FlaggedKeywords)
	if err != nil {
		return fmt.Errorf("failed to marshal flagged keywords: %w", err)
	}

	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertModerationEntryQuery,
			entry.ID,
			entry.MessageID,
			string(entry.Priority),
			string(entry.Status),
			string(keywords),
			entry.CreatedAt,
		)
		return err
	}, "insert moderation entry")
}

// GetModerationEntry returns one entry, or nil when it does not exist.
func (d *Database) GetModerationEntry(ctx context.Context, id string) (*models.ModerationQueueEntry, error) {
	var entry models.ModerationQueueEntry

	err := retryableDBOperation(ctx, func() error {
		row := d.db.QueryRowContext(ctx, selectModerationEntryQuery, id)
		scanned, err := scanModerationEntry(row)
		if err != nil {
			return err
		}
		entry = scanned
		return nil
	}, "get moderation entry")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get moderation entry: %w", err)
	}

	return &entry, nil
}

// ModerationQueueFilter narrows a queue listing. Empty fields match all.
type ModerationQueueFilter struct {
	Status   models.ModerationStatus
	Priority models.ModerationPriority
	Limit    int
}

// ListModerationEntries returns queue entries ordered by priority
// descending, then createdAt ascending.
func (d *Database) ListModerationEntries(ctx context.Context, filter ModerationQueueFilter) ([]models.ModerationQueueEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var entries []models.ModerationQueueEntry
	err := retryableDBOperation(ctx, func() error {
		rows, err := d.db.QueryContext(ctx, selectModerationQueueQuery,
			string(filter.Status), string(filter.Status),
			string(filter.Priority), string(filter.Priority),
			limit,
		)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		entries = entries[:0]
		for rows.Next() {
			entry, err := scanModerationEntry(rows)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	}, "list moderation entries")
	if err != nil {
		return nil, fmt.Errorf("failed to list moderation entries: %w", err)
	}

	return entries, nil
}

// UpdateModerationEntryCAS applies a transition only when the stored
// version still matches expectedVersion. Returns false on a stale version,
// which the queue surfaces as a Conflict.
func (d *Database) UpdateModerationEntryCAS(ctx context.Context, entry *models.ModerationQueueEntry, expectedVersion int64) (bool, error) {
	var resolution interface{}
	if entry.Resolution != nil {
		resolution = string(*entry.Resolution)
	}

	var affected int64
	err := retryableDBOperation(ctx, func() error {
		res, err := d.db.ExecContext(ctx, updateModerationEntryCASQuery,
			string(entry.Priority),
			string(entry.Status),
			entry.AssignedModeratorID,
			resolution,
			entry.ResolutionNotes,
			entry.ResolvedAt,
			entry.ID,
			expectedVersion,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	}, "update moderation entry")
	if err != nil {
		return false, fmt.Errorf("failed to update moderation entry: %w", err)
	}

	return affected > 0, nil
}

// CountModerationStats recomputes the aggregate counts on demand.
// startOfDay bounds the approved/blocked "today" windows.
func (d *Database) CountModerationStats(ctx context.Context, startOfDay time.Time) (*models.ModerationStats, error) {
	var stats models.ModerationStats

	err := retryableDBOperation(ctx, func() error {
		if err := d.db.QueryRowContext(ctx, countModerationPendingQuery).Scan(&stats.Pending); err != nil {
			return err
		}
		if err := d.db.QueryRowContext(ctx, countModerationHighPriorityQuery).Scan(&stats.HighPriority); err != nil {
			return err
		}
		if err := d.db.QueryRowContext(ctx, countModerationResolvedSinceQuery,
			string(models.ResolutionApproved), startOfDay).Scan(&stats.ApprovedToday); err != nil {
			return err
		}
		return d.db.QueryRowContext(ctx, countModerationResolvedSinceQuery,
			string(models.ResolutionBlocked), startOfDay).Scan(&stats.BlockedToday)
	}, "count moderation stats")
	if err != nil {
		return nil, fmt.Errorf("failed to count moderation stats: %w", err)
	}

	return &stats, nil
}

func scanModerationEntry(scanner rowScanner) (models.ModerationQueueEntry, error) {
	var (
		entry      models.ModerationQueueEntry
		keywords   string
		moderator  sql.NullString
		resolution sql.NullString
		notes      sql.NullString
		resolvedAt sql.NullTime
	)

	err := scanner.Scan(
		&entry.ID,
		&entry.MessageID,
		&entry.Priority,
		&entry.Status,
		&keywords,
		&moderator,
		&resolution,
		&notes,
		&entry.Version,
		&entry.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		return entry, err
	}

	if err := json.Unmarshal([]byte(keywords), &entry.FlaggedKeywords); err != nil {
		return entry, fmt.Errorf("failed to unmarshal flagged keywords: %w", err)
	}
	if moderator.Valid {
		entry.AssignedModeratorID = &moderator.String
	}
	if resolution.Valid {
		r := models.ModerationResolution(resolution.String)
		entry.Resolution = &r
	}
	if notes.Valid {
		entry.ResolutionNotes = &notes.String
	}
	if resolvedAt.Valid {
		entry.ResolvedAt = &resolvedAt.Time
	}

	return entry, nil
}
