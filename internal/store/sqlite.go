// ABOUTME: SQLite implementation of the grant and audit stores using modernc.org/sqlite
// ABOUTME: Opens the database in WAL mode and creates the schema on first use

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements GrantStore and SendAuditStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// busy_timeout is per connection, so it rides on the DSN to reach every
	// pooled connection.
	dsn := path
	if path != ":memory:" {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS grants (
			grant_id           TEXT PRIMARY KEY,
			token_hash         TEXT NOT NULL UNIQUE,
			client_id          TEXT NOT NULL,
			inline_user_id     INTEGER NOT NULL,
			scope              TEXT NOT NULL,
			space_ids_json     TEXT NOT NULL DEFAULT '[]',
			allow_dms          INTEGER NOT NULL DEFAULT 0,
			allow_home_threads INTEGER NOT NULL DEFAULT 0,
			inline_token       TEXT NOT NULL,
			expires_at         TEXT NOT NULL,
			created_at         TEXT NOT NULL,
			revoked_at         TEXT
		);

		CREATE TABLE IF NOT EXISTS send_audit (
			audit_id       TEXT PRIMARY KEY,
			outcome        TEXT NOT NULL,
			grant_id       TEXT NOT NULL,
			inline_user_id INTEGER NOT NULL,
			chat_id        INTEGER,
			space_id       INTEGER,
			message_id     INTEGER,
			ts             TEXT NOT NULL,

			CHECK (outcome IN ('success', 'failure'))
		);

		CREATE INDEX IF NOT EXISTS idx_send_audit_ts ON send_audit(ts);
		CREATE INDEX IF NOT EXISTS idx_send_audit_grant ON send_audit(grant_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}
