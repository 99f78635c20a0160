// Package catalog provides the SQLite-backed catalog of registered models.
package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS models (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	source     TEXT NOT NULL,
	origin     TEXT NOT NULL,
	path       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'committed'
);

CREATE INDEX IF NOT EXISTS idx_models_name ON models(name);
CREATE INDEX IF NOT EXISTS idx_models_origin ON models(origin);
`

// DB wraps a sql.DB with catalog-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite catalog and applies the schema.
//
// Transactions are started with BEGIN IMMEDIATE so that Reserve holds the
// write lock for its whole check-and-insert, across processes too.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.Initialize(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Initialize creates the models table and its indexes if they are absent.
// Safe to call repeatedly.
func (db *DB) Initialize() error {
	if _, err := db.conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("catalog: apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
