// Package store persists incremental scan state in SQLite: the path -> hash
// manifest, cached per-file analyses keyed by content hash, free-form
// metadata such as the query-pack fingerprint, and the resolved project graph.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
-- Incremental state

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  language        TEXT NOT NULL DEFAULT '',
  hash            TEXT NOT NULL,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS analyses (
  path            TEXT NOT NULL,
  hash            TEXT NOT NULL,
  language        TEXT NOT NULL,
  payload         BLOB NOT NULL,
  analyzed_at     TIMESTAMP,
  PRIMARY KEY (path, hash)
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

-- Resolved project graph

CREATE TABLE IF NOT EXISTS symbols (
  id              TEXT PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  visibility      TEXT,
  qualified_name  TEXT,
  module          TEXT,
  start_line      INTEGER,
  end_line        INTEGER,
  documentation   TEXT
);

CREATE TABLE IF NOT EXISTS relationships (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  from_id         TEXT NOT NULL,
  to_id           TEXT NOT NULL,
  kind            TEXT NOT NULL,
  line            INTEGER,
  confidence      REAL DEFAULT 1.0,
  resolution      TEXT
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_files_language ON files(language);
CREATE INDEX IF NOT EXISTS idx_analyses_path ON analyses(path);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind);
CREATE INDEX IF NOT EXISTS idx_relationships_file ON relationships(file_id);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_id);
CREATE INDEX IF NOT EXISTS idx_relationships_kind ON relationships(kind);
`

// DeleteFileData transactionally removes the graph rows, cached analyses and
// manifest entry of a file. Deletes in reverse-dependency order to respect
// FK constraints.
func (s *Store) DeleteFileData(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteGraphTx(tx, path); err != nil {
		return err
	}
	for _, q := range []string{
		"DELETE FROM analyses WHERE path = ?",
		"DELETE FROM files WHERE path = ?",
	} {
		if _, err := tx.Exec(q, path); err != nil {
			return fmt.Errorf("delete file data: %w", err)
		}
	}
	return tx.Commit()
}

// deleteGraphTx removes the symbols and relationships recorded for path.
func deleteGraphTx(tx *sql.Tx, path string) error {
	for _, q := range []string{
		"DELETE FROM relationships WHERE file_id IN (SELECT id FROM files WHERE path = ?)",
		"DELETE FROM symbols WHERE file_id IN (SELECT id FROM files WHERE path = ?)",
	} {
		if _, err := tx.Exec(q, path); err != nil {
			return fmt.Errorf("delete graph data: %w", err)
		}
	}
	return nil
}
