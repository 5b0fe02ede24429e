package store

import (
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for the task catalog.
type Store struct {
	db *sql.DB
	// gen is bumped on every write so readers can drop derived caches.
	gen atomic.Int64
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

// Generation returns a counter that changes whenever the catalog is written.
func (s *Store) Generation() int64 {
	return s.gen.Load()
}

func (s *Store) touch() {
	s.gen.Add(1)
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
-- Scanned sources

CREATE TABLE IF NOT EXISTS sources (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  language        TEXT NOT NULL,
  hash            TEXT,
  last_indexed    TIMESTAMP
);

-- Catalog tables

CREATE TABLE IF NOT EXISTS types (
  id              INTEGER PRIMARY KEY,
  source_id       INTEGER REFERENCES sources(id),
  name            TEXT NOT NULL UNIQUE,
  kind            TEXT NOT NULL,
  qualified_name  TEXT,
  simple_name     TEXT,
  info            TEXT,
  elements        TEXT,
  super_types     TEXT,
  deprecated      BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS type_fields (
  id              INTEGER PRIMARY KEY,
  type_id         INTEGER NOT NULL REFERENCES types(id),
  ordinal         INTEGER NOT NULL,
  name            TEXT NOT NULL,
  type_ref        TEXT,
  info            TEXT,
  is_enum         BOOLEAN DEFAULT FALSE,
  deprecated      BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS tasks (
  id              INTEGER PRIMARY KEY,
  source_id       INTEGER REFERENCES sources(id),
  name            TEXT NOT NULL UNIQUE,
  info            TEXT,
  returns         TEXT,
  deprecated      BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS task_parameters (
  id              INTEGER PRIMARY KEY,
  task_id         INTEGER NOT NULL REFERENCES tasks(id),
  ordinal         INTEGER NOT NULL,
  name            TEXT NOT NULL,
  aliases         TEXT,
  type_ref        TEXT,
  info            TEXT,
  required        BOOLEAN DEFAULT FALSE,
  deprecated      BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS literals (
  id              INTEGER PRIMARY KEY,
  source_id       INTEGER REFERENCES sources(id),
  literal         TEXT NOT NULL,
  type_ref        TEXT,
  info            TEXT,
  relation        TEXT
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_types_source ON types(source_id);
CREATE INDEX IF NOT EXISTS idx_type_fields_type ON type_fields(type_id);
CREATE INDEX IF NOT EXISTS idx_tasks_source ON tasks(source_id);
CREATE INDEX IF NOT EXISTS idx_task_parameters_task ON task_parameters(task_id);
CREATE INDEX IF NOT EXISTS idx_literals_literal ON literals(literal);
CREATE INDEX IF NOT EXISTS idx_literals_source ON literals(source_id);
`

// DeleteSourceData transactionally removes every catalog row declared by a
// source. Deletes in reverse-dependency order to respect FK constraints.
func (s *Store) DeleteSourceData(sourceID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM task_parameters WHERE task_id IN (SELECT id FROM tasks WHERE source_id = ?)",
		"DELETE FROM type_fields WHERE type_id IN (SELECT id FROM types WHERE source_id = ?)",
		"DELETE FROM tasks WHERE source_id = ?",
		"DELETE FROM types WHERE source_id = ?",
		"DELETE FROM literals WHERE source_id = ?",
	} {
		if _, err := tx.Exec(q, sourceID); err != nil {
			return fmt.Errorf("delete source data: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.touch()
	return nil
}
