// Package migrations embeds the SQL schema for the broker's four tables
// and applies it in order. The DDL targets MySQL; PostgreSQL and SQLite
// deployments can read the same files through Files and adjust the
// auto-increment and column-type syntax for their dialect.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
)

//go:embed *.sql
var Files embed.FS

// ApplyAll runs every embedded migration against db, in file-name order.
// Each file holds a single idempotent CREATE TABLE IF NOT EXISTS
// statement, so re-running against an existing schema is safe.
func ApplyAll(db *sql.DB) error {
	entries, err := Files.ReadDir(".")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := Files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}
