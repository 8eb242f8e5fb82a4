// Package docstore is the SQLite document-of-record: documents, the entities
// they point at, notes and view grants. The full-text index is rebuilt from it.
package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	serrors "github.com/docsift/docsift/internal/errors"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id       INTEGER PRIMARY KEY,
		username TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS correspondents (
		id                 INTEGER PRIMARY KEY,
		name               TEXT NOT NULL,
		match              TEXT NOT NULL DEFAULT '',
		matching_algorithm INTEGER NOT NULL DEFAULT 0,
		is_insensitive     INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS document_types (
		id                 INTEGER PRIMARY KEY,
		name               TEXT NOT NULL,
		match              TEXT NOT NULL DEFAULT '',
		matching_algorithm INTEGER NOT NULL DEFAULT 0,
		is_insensitive     INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS storage_paths (
		id                 INTEGER PRIMARY KEY,
		name               TEXT NOT NULL,
		match              TEXT NOT NULL DEFAULT '',
		matching_algorithm INTEGER NOT NULL DEFAULT 0,
		is_insensitive     INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id                 INTEGER PRIMARY KEY,
		name               TEXT NOT NULL,
		match              TEXT NOT NULL DEFAULT '',
		matching_algorithm INTEGER NOT NULL DEFAULT 0,
		is_insensitive     INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id                    INTEGER PRIMARY KEY,
		title                 TEXT NOT NULL DEFAULT '',
		content               TEXT NOT NULL DEFAULT '',
		correspondent_id      INTEGER REFERENCES correspondents(id) ON DELETE SET NULL,
		document_type_id      INTEGER REFERENCES document_types(id) ON DELETE SET NULL,
		storage_path_id       INTEGER REFERENCES storage_paths(id) ON DELETE SET NULL,
		owner_id              INTEGER REFERENCES users(id) ON DELETE SET NULL,
		archive_serial_number INTEGER,
		created               TEXT NOT NULL,
		modified              TEXT NOT NULL,
		added                 TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_modified ON documents(modified)`,
	`CREATE TABLE IF NOT EXISTS document_tags (
		document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		tag_id      INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (document_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS notes (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		note        TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS document_viewers (
		document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (document_id, user_id)
	)`,
}

// Store is the SQLite document-of-record.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// checkIntegrity runs PRAGMA integrity_check on an existing database.
// A missing file is fine; it is created on open.
func checkIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Open opens the database at path, creating it and its schema if needed.
// If path is empty an in-memory database is used.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, serrors.New(serrors.ErrCodeDatabase, fmt.Sprintf("cannot create directory %s", dir), err)
		}
		// A corrupt document-of-record is never cleared automatically.
		if err := checkIntegrity(path); err != nil {
			s.logger.Error("Document store corrupted, recreating",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil, serrors.New(serrors.ErrCodeDatabase, fmt.Sprintf("database %s failed its integrity check", path), err).
				WithSuggestion("restore the database from a backup")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeDatabase, "failed to open database", err)
	}

	// Single connection: one writer, and the in-memory database stays alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, serrors.New(serrors.ErrCodeDatabase, "failed to set pragma", err)
		}
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, serrors.New(serrors.ErrCodeDatabase, "failed to create schema", err)
		}
	}

	s.db = db
	s.logger.Debug("Document store opened", slog.String("path", path))
	return s, nil
}

// Path returns the database path ("" for in-memory stores).
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.path != "" {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Warn("Document store checkpoint failed", slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}

func (s *Store) conn() (*sql.DB, error) {
	if s.closed {
		return nil, serrors.New(serrors.ErrCodeDatabase, "document store is closed", nil)
	}
	return s.db, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, serrors.New(serrors.ErrCodeDatabase, fmt.Sprintf("malformed timestamp %q", raw), err)
	}
	return t, nil
}

func dbError(msg string, err error) error {
	return serrors.New(serrors.ErrCodeDatabase, msg, err)
}
