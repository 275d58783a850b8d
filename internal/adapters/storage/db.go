package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "baseline",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS admin_session (
				id TEXT PRIMARY KEY,
				admin_email TEXT NOT NULL,
				admin_token BLOB NOT NULL,
				admin_login_time TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS response_cache (
				key TEXT PRIMARY KEY,
				payload BLOB NOT NULL,
				saved_at INTEGER NOT NULL,
				requested_at INTEGER NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "outbox",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS outbox (
				id TEXT PRIMARY KEY,
				action_type TEXT NOT NULL,
				payload TEXT NOT NULL,
				status TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				max_attempts INTEGER NOT NULL DEFAULT 5,
				last_attempted_at TEXT,
				created_at TEXT NOT NULL,
				external_id TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status)`,
		},
	},
	{
		version: 3,
		name:    "audit",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS audit_event (
				id TEXT PRIMARY KEY,
				timestamp TEXT NOT NULL,
				category TEXT NOT NULL,
				action TEXT NOT NULL,
				severity TEXT NOT NULL DEFAULT 'info',
				actor_email TEXT NOT NULL DEFAULT '',
				session_id TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				ip_address TEXT NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_event_timestamp ON audit_event(timestamp)`,
		},
	},
}

// LatestSchemaVersion returns the version MigrateDB brings a database to.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Open opens a SQLite database with the console's pragmas applied.
// PRE: path is a file path or ":memory:"
// POST: Returns an open *sql.DB with WAL (for files), foreign keys and a busy timeout
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	pragmas := []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	} else {
		// every pooled connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return db, nil
}

// SchemaVersion returns the applied schema version, 0 for an untracked database.
func SchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check schema_version: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}
	var v int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return v, nil
}

// MigrateDB applies every pending migration in its own transaction.
// A file database that already holds data is copied to "<path>.bak-v<N>" first.
// PRE: db is open; path is the file it was opened from (":memory:" skips the backup)
// POST: SchemaVersion(db) == LatestSchemaVersion(), or an error and the failing step rolled back
func MigrateDB(db *sql.DB, path string) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	if current >= LatestSchemaVersion() {
		return nil
	}

	if current > 0 && path != "" && path != ":memory:" {
		backup := fmt.Sprintf("%s.bak-v%d", path, current)
		if _, err := db.Exec(`VACUUM INTO ?`, backup); err != nil {
			return fmt.Errorf("backup before migration: %w", err)
		}
		slog.Info("db_backup", "path", backup, "version", current)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := apply(db, m); err != nil {
			return err
		}
		slog.Info("db_migrated", "version", m.version, "name", m.name)
	}
	return nil
}

func apply(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", m.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %s: %w", m.version, m.name, firstLine(stmt), err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("migration %d: record version: %w", m.version, err)
	}
	return tx.Commit()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
