package migration

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smallbiznis/moviestore/pkg/db"
	"gorm.io/gorm"
)

var ErrUnsupportedDialect = errors.New("no embedded schema for database type")

// Apply brings the schema for dbType up to date. Postgres reports the
// migration version reached; SQLite always reports 0.
func Apply(conn *gorm.DB, dbType string) (uint, error) {
	switch dbType {
	case db.TypePostgres:
		return migratePostgres(conn)
	case db.TypeSQLite, db.TypePureSQLite:
		return 0, applySQLite(conn)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDialect, dbType)
	}
}

func migratePostgres(conn *gorm.DB) (uint, error) {
	sqlDB, err := conn.DB()
	if err != nil {
		return 0, err
	}
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return 0, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return 0, fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("migration driver: %w", err)
	}
	// The migrator is never closed: that would close the shared pool.
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// applySQLite runs the embedded CREATE ... IF NOT EXISTS statements.
func applySQLite(conn *gorm.DB) error {
	if err := conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	for _, stmt := range SQLiteSchema() {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
