package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB
	log zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// busy_timeout lets concurrent claimants wait for the writer lock instead
	// of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	var log zerolog.Logger
	if logger != nil {
		log = logger.With().Str("component", "database").Logger()
	}
	log.Info().Str("path", path).Msg("database initialized")

	return &DB{DB: db, log: log}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sync_jobs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            page_id TEXT NOT NULL,
            trigger_type TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            attempt INTEGER NOT NULL DEFAULT 0,
            max_attempts INTEGER NOT NULL DEFAULT 5,
            next_run_at DATETIME,
            locked_at DATETIME,
            locked_by TEXT,
            payload TEXT NOT NULL DEFAULT '',
            dedupe_key TEXT NOT NULL,
            error_message TEXT,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS pages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            external_id TEXT UNIQUE NOT NULL,
            title TEXT NOT NULL,
            slug TEXT NOT NULL,
            blocks TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'published',
            published_at DATETIME,
            synced_at DATETIME NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_sync_jobs_status ON sync_jobs(status, next_run_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_jobs_created_at ON sync_jobs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_jobs_dedupe_key ON sync_jobs(dedupe_key)`,
		// schema-level guarantee: at most one active job per dedupe key
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_jobs_active_dedupe
            ON sync_jobs(dedupe_key) WHERE status IN ('pending', 'processing')`,

		`CREATE INDEX IF NOT EXISTS idx_pages_slug ON pages(slug)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_status ON pages(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// IsConstraintError reports whether err is a sqlite unique/check constraint
// violation, e.g. a racing insert on the active-dedupe index.
func IsConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func (db *DB) Close() error {
	return db.DB.Close()
}
