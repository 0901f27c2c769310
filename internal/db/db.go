// Package db provides SQLite persistence for run history and the event log.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/fenrik/clickseq/internal/logging"
)

// DB wraps the SQLite handle shared by the repositories.
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

// Open opens the database at path, creating the file and its parent
// directory when missing.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	return open(dsn)
}

// OpenInMemory opens a private in-memory database, used by tests.
func OpenInMemory() (*DB, error) {
	return open("file::memory:")
}

func open(dsn string) (*DB, error) {
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps writers from tripping over each other and
	// keeps in-memory databases on the same store.
	handle.SetMaxOpenConns(1)

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{
		DB:     handle,
		logger: logging.Component("db"),
	}, nil
}

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "runs and events",
		sql: `
			CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				sequence_name TEXT NOT NULL,
				status TEXT NOT NULL,
				started_at TEXT NOT NULL,
				ended_at TEXT,
				cycles_completed INTEGER NOT NULL DEFAULT 0,
				clicks INTEGER NOT NULL DEFAULT 0,
				items_clicked INTEGER NOT NULL DEFAULT 0,
				keys_pressed INTEGER NOT NULL DEFAULT 0,
				trigger_timeouts INTEGER NOT NULL DEFAULT 0,
				restarts INTEGER NOT NULL DEFAULT 0,
				error TEXT,
				metadata_json TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_runs_sequence ON runs(sequence_name);
			CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

			CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				timestamp TEXT NOT NULL,
				type TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				payload_json TEXT,
				metadata_json TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_type, entity_id);
			CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
		`,
	},
}

// MigrateUp applies pending schema migrations and returns how many ran.
func (d *DB) MigrateUp(ctx context.Context) (int, error) {
	_, err := d.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("create migrations table: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		var count int
		if err := d.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version).Scan(&count); err != nil {
			return applied, fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := d.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.version, m.name, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit migration %d: %w", m.version, err)
		}

		applied++
		d.logger.Debug().Int("version", m.version).Str("name", m.name).Msg("applied migration")
	}

	return applied, nil
}
