// Package store persists documents, generated trees and their flattened
// nodes in SQLite, and owns the per-document generation state machine.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist or, for trees, is
// not completed.
var ErrNotFound = errors.New("not found")

// Timestamps are stored as fixed-width UTC text so they compare lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	document_id  TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	filename     TEXT NOT NULL,
	file_path    TEXT NOT NULL,
	file_type    TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	size_bytes   INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id, created_at);

CREATE TABLE IF NOT EXISTS tree_generations (
	document_id   TEXT PRIMARY KEY,
	id            TEXT NOT NULL,
	status        TEXT NOT NULL,
	error_message TEXT,
	node_count    INTEGER NOT NULL DEFAULT 0,
	tree_json     TEXT,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tree_nodes (
	document_id    TEXT NOT NULL,
	node_id        TEXT NOT NULL,
	title          TEXT NOT NULL,
	summary        TEXT NOT NULL DEFAULT '',
	text_content   TEXT NOT NULL DEFAULT '',
	start_page     INTEGER NOT NULL,
	end_page       INTEGER NOT NULL,
	parent_node_id TEXT,
	depth          INTEGER NOT NULL,
	ordinal        INTEGER NOT NULL,
	PRIMARY KEY (document_id, node_id)
);
CREATE INDEX IF NOT EXISTS idx_tree_nodes_order ON tree_nodes(document_id, ordinal);
`

// Store is safe for concurrent use. SQLite allows one writer, so the pool is
// capped at a single connection and writes queue behind it.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeFormat)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeFormat, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
