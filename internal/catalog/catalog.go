// Package catalog keeps a SQLite index of the recordings saved to the local
// recordings directory, kept in sync with the disk by a file watcher.
package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS recordings (
	filename         TEXT PRIMARY KEY,
	artifact_id      TEXT NOT NULL DEFAULT '',
	checksum         TEXT NOT NULL DEFAULT '',
	size             INTEGER NOT NULL DEFAULT 0,
	mime_type        TEXT NOT NULL DEFAULT '',
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	saved_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_recordings_artifact ON recordings(artifact_id);
CREATE INDEX IF NOT EXISTS idx_recordings_created ON recordings(created_at);
`

// Catalog is the set of operations consumers depend on.
type Catalog interface {
	Record(r Recording) error
	Delete(filename string) error
	Get(filename string) (*Recording, error)
	List(limit, offset int) ([]Recording, int, error)
	ByArtifact(artifactID string) ([]Recording, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

var _ Catalog = (*DB)(nil)

// DB wraps a sql.DB with catalog operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
