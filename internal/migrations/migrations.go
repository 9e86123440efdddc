package migrations

import (
	"embed"
	"fmt"
	"sort"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// Schema returns the full schema DDL, concatenating every migration file
// in lexical order. Migrations are additive and idempotent (IF NOT
// EXISTS), so applying the whole set at startup is safe on an existing
// database.
func Schema() (string, error) {
	entries, err := schemaFS.ReadDir("sql")
	if err != nil {
		return "", fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return "", fmt.Errorf("no embedded migration files found")
	}

	var schema string
	for _, name := range names {
		content, err := schemaFS.ReadFile("sql/" + name)
		if err != nil {
			return "", fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		schema += string(content) + "\n"
	}

	return schema, nil
}
