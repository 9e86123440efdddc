package database

// Message queries
const (
	insertMessageQuery = `
		INSERT INTO messages (
			id, author_id, recipient_ids, content, content_digest,
			content_category, risk_level, encryption_level,
			is_educational_record, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectMessageQuery = `
		SELECT id, author_id, recipient_ids, content, content_digest,
		       content_category, risk_level, encryption_level,
		       is_educational_record, archived, purged, created_at
		FROM messages
		WHERE id = ?
	`

	purgeMessageContentQuery = `
		UPDATE messages
		SET content = '', purged = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND purged = 0
	`

	archiveMessageQuery = `
		INSERT OR IGNORE INTO message_archive (message_id, content, archived_at)
		SELECT id, content, ? FROM messages WHERE id = ?
	`

	markMessageArchivedQuery = `
		UPDATE messages
		SET archived = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND archived = 0
	`
)

// Audit log queries
const (
	// INSERT OR IGNORE backs the (message_id, event_type) dedupe contract:
	// re-flushing a previously flushed batch is a durable no-op.
	insertAuditEntryQuery = `
		INSERT OR IGNORE INTO audit_log (id, message_id, event_type, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`

	selectAuditEntriesByMessageQuery = `
		SELECT id, message_id, event_type, payload, occurred_at
		FROM audit_log
		WHERE message_id = ?
		ORDER BY created_at ASC
	`

	deleteAuditEntriesByMessageQuery = `
		DELETE FROM audit_log WHERE message_id = ?
	`
)

// Retention schedule queries
const (
	insertRetentionEntryQuery = `
		INSERT OR IGNORE INTO retention_schedule (message_id, policy_id, expires_at, action)
		VALUES (?, ?, ?, ?)
	`

	selectDueRetentionEntriesQuery = `
		SELECT message_id, policy_id, expires_at, action, processed_at, attempts, needs_review
		FROM retention_schedule
		WHERE expires_at <= ? AND processed_at IS NULL AND needs_review = 0
		ORDER BY expires_at ASC
		LIMIT ?
	`

	selectRetentionEntryQuery = `
		SELECT message_id, policy_id, expires_at, action, processed_at, attempts, needs_review
		FROM retention_schedule
		WHERE message_id = ?
	`

	markRetentionProcessedQuery = `
		UPDATE retention_schedule
		SET processed_at = ?
		WHERE message_id = ? AND processed_at IS NULL
	`

	recordRetentionFailureQuery = `
		UPDATE retention_schedule
		SET attempts = attempts + 1,
		    needs_review = CASE WHEN attempts + 1 >= ? THEN 1 ELSE 0 END
		WHERE message_id = ? AND processed_at IS NULL
	`
)

// Moderation queue queries
const (
	insertModerationEntryQuery = `
		INSERT INTO moderation_queue (
			id, message_id, priority, status, flagged_keywords, version, created_at
		) VALUES (?, ?, ?, ?, ?, 1, ?)
	`

	selectModerationEntryQuery = `
		SELECT id, message_id, priority, status, flagged_keywords,
		       assigned_moderator_id, resolution, resolution_notes, version, created_at, resolved_at
		FROM moderation_queue
		WHERE id = ?
	`

	// Ordering is a hard fairness contract: priority descending, then
	// oldest first within a tier. Priorities are stored as text, so the
	// CASE expression fixes their ordinal rank.
	moderationPriorityRank = `CASE priority
		WHEN 'CRITICAL' THEN 3
		WHEN 'HIGH' THEN 2
		WHEN 'MEDIUM' THEN 1
		ELSE 0
	END`

	selectModerationQueueQuery = `
		SELECT id, message_id, priority, status, flagged_keywords,
		       assigned_moderator_id, resolution, resolution_notes, version, created_at, resolved_at
		FROM moderation_queue
		WHERE (? = '' OR status = ?)
		  AND (? = '' OR priority = ?)
		ORDER BY ` + moderationPriorityRank + ` DESC, created_at ASC
		LIMIT ?
	`

	// Optimistic concurrency: the version predicate makes a stale
	// transition affect zero rows instead of overwriting a newer state.
	updateModerationEntryCASQuery = `
		UPDATE moderation_queue
		SET priority = ?, status = ?, assigned_moderator_id = ?,
		    resolution = ?, resolution_notes = ?, resolved_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	countModerationPendingQuery = `
		SELECT COUNT(*) FROM moderation_queue WHERE status IN ('PENDING', 'ESCALATED')
	`

	countModerationHighPriorityQuery = `
		SELECT COUNT(*) FROM moderation_queue
		WHERE priority IN ('HIGH', 'CRITICAL') AND status != 'RESOLVED'
	`

	countModerationResolvedSinceQuery = `
		SELECT COUNT(*) FROM moderation_queue
		WHERE resolution = ? AND resolved_at IS NOT NULL AND resolved_at >= ?
	`
)

// Consent and profile queries
const (
	selectConsentGrantsQuery = `
		SELECT user_id, data_category, granted
		FROM consent_grants
		WHERE user_id = ?
	`

	upsertConsentGrantQuery = `
		INSERT INTO consent_grants (user_id, data_category, granted, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, data_category)
		DO UPDATE SET granted = excluded.granted, updated_at = CURRENT_TIMESTAMP
	`

	selectUserProfileQuery = `
		SELECT user_id, role, birthdate, enrolled
		FROM user_profiles
		WHERE user_id = ?
	`

	upsertUserProfileQuery = `
		INSERT INTO user_profiles (user_id, role, birthdate, enrolled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id)
		DO UPDATE SET role = excluded.role, birthdate = excluded.birthdate, enrolled = excluded.enrolled
	`
)
