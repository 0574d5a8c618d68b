package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

// SchemaVersion is the only schema version this build understands.
const SchemaVersion = 1

// pageSize is SQLite's default page size, used to turn a byte quota into a
// page limit.
const pageSize = 4096

var ErrIncompatibleSchema = errors.New("incompatible database schema")

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens the album database at dbPath, creating it when absent, and
// brings the schema to SchemaVersion. A quotaBytes greater than zero caps
// the database size; writes that would exceed it fail with SQLITE_FULL.
func Open(dbPath string, quotaBytes int64) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(dbPath, quotaBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, closeOnError(db, fmt.Errorf("failed to ping database: %w", err))
	}

	if err := runMigrations(db); err != nil {
		return nil, closeOnError(db, fmt.Errorf("failed to run migrations: %w", err))
	}

	return db, nil
}

func dsn(dbPath string, quotaBytes int64) string {
	s := fmt.Sprintf("file:%s?mode=rwc&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	if quotaBytes > 0 {
		pages := quotaBytes / pageSize
		if pages < 1 {
			pages = 1
		}
		s += fmt.Sprintf("&_pragma=max_page_count(%d)", pages)
	}
	return s
}

func closeOnError(db *sql.DB, err error) error {
	if cerr := db.Close(); cerr != nil {
		return fmt.Errorf("%w (also failed to close db: %v)", err, cerr)
	}
	return err
}

// runMigrations applies the embedded migrations. A database already at a
// newer version than SchemaVersion is refused rather than touched.
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// The migrate instance is not closed: closing it would also close db.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	case dirty:
		return fmt.Errorf("schema version %d is dirty", version)
	case version > SchemaVersion:
		return fmt.Errorf("%w: found version %d, expected at most %d", ErrIncompatibleSchema, version, SchemaVersion)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
