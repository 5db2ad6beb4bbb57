package migration

import (
	"embed"
	"strings"
)

const migrationsDir = "migrations/postgres"

//go:embed migrations/postgres/*.sql
var embeddedMigrations embed.FS

//go:embed migrations/sqlite/schema.sql
var sqliteSchema string

// SQLiteSchema returns the statements that create the embedded SQLite schema.
func SQLiteSchema() []string {
	parts := strings.Split(sqliteSchema, ";")
	stmts := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
