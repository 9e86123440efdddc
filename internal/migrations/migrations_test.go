package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_ContainsAllTables(t *testing.T) {
	schema, err := Schema()
	require.NoError(t, err)

	for _, table := range []string{
		"messages",
		"audit_log",
		"retention_schedule",
		"moderation_queue",
		"message_archive",
		"user_profiles",
		"consent_grants",
	} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table, "missing table %s", table)
	}
}

func TestSchema_AuditDedupeIndex(t *testing.T) {
	schema, err := Schema()
	require.NoError(t, err)

	// The (message_id, event_type) uniqueness is what makes at-least-once
	// audit delivery safe; losing it silently would corrupt the contract.
	assert.True(t, strings.Contains(schema, "UNIQUE(message_id, event_type)"))
}
