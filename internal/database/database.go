package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"campusguard/internal/migrations"
	"campusguard/internal/models"
	"campusguard/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the durable store behind the pipeline. Writes are durable
// once acknowledged; reads reflect the latest committed write for a key.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.Schema()
	if err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := newEncryptor()
	if err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

func closeQuietly(db *sql.DB) {
	_ = db.Close()
}

func (d *Database) Close() error {
	return d.db.Close()
}

// StoredMessage is a message row together with its persisted
// classification columns and lifecycle flags.
type StoredMessage struct {
	Message             models.Message
	ContentDigest       string
	ContentCategory     models.ContentCategory
	RiskLevel           models.RiskLevel
	EncryptionLevel     models.EncryptionLevel
	IsEducationalRecord bool
	Archived            bool
	Purged              bool
}

// SaveMessage persists a message with its classification, encrypting the
// content according to the classification's encryption level.
func (d *Database) SaveMessage(ctx context.Context, msg *models.Message, digest string, cls *models.ClassificationRecord) error {
	recipients, err := json.Marshal(msg.RecipientIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients: %w", err)
	}

	content, err := d.encryptor.EncryptForLevel(msg.Content, cls.EncryptionLevel)
	if err != nil {
		return fmt.Errorf("failed to encrypt content: %w", err)
	}

	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertMessageQuery,
			msg.ID,
			msg.AuthorID,
			string(recipients),
			content,
			digest,
			string(cls.ContentCategory),
			string(cls.RiskLevel),
			string(cls.EncryptionLevel),
			cls.IsEducationalRecord,
			msg.CreatedAt,
		)
		return err
	}, "save message")
}

// GetMessage loads one message, decrypting content unless it was purged.
func (d *Database) GetMessage(ctx context.Context, id string) (*StoredMessage, error) {
	var (
		stored     StoredMessage
		recipients string
		content    string
	)

	err := retryableDBOperation(ctx, func() error {
		row := d.db.QueryRowContext(ctx, selectMessageQuery, id)
		return row.Scan(
			&stored.Message.ID,
			&stored.Message.AuthorID,
			&recipients,
			&content,
			&stored.ContentDigest,
			&stored.ContentCategory,
			&stored.RiskLevel,
			&stored.EncryptionLevel,
			&stored.IsEducationalRecord,
			&stored.Archived,
			&stored.Purged,
			&stored.Message.CreatedAt,
		)
	}, "get message")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	if err := json.Unmarshal([]byte(recipients), &stored.Message.RecipientIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipients: %w", err)
	}

	if !stored.Purged {
		plaintext, err := d.encryptor.DecryptForLevel(content, stored.EncryptionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt content: %w", err)
		}
		stored.Message.Content = plaintext
	}

	return &stored, nil
}

// PurgeMessageContent blanks a message's content, leaving the row as a
// tombstone. Returns true when this call did the purge; false means the
// content was already gone, which makes retention retries idempotent.
func (d *Database) PurgeMessageContent(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := retryableDBOperation(ctx, func() error {
		res, err := d.db.ExecContext(ctx, purgeMessageContentQuery, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	}, "purge message content")
	if err != nil {
		return false, fmt.Errorf("failed to purge message content: %w", err)
	}
	return affected > 0, nil
}

// ArchiveMessage copies a message's content into the archive table and
// marks the source row archived. Safe to re-run: the archive insert
// ignores duplicates and the mark predicate skips already-archived rows.
func (d *Database) ArchiveMessage(ctx context.Context, id string, archivedAt time.Time) (bool, error) {
	var affected int64
	err := retryableDBOperation(ctx, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, archiveMessageQuery, archivedAt, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, markMessageArchivedQuery, id)
		if err != nil {
			return err
		}
		if affected, err = res.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	}, "archive message")
	if err != nil {
		return false, fmt.Errorf("failed to archive message: %w", err)
	}
	return affected > 0, nil
}
