// ABOUTME: Database schema definitions
// ABOUTME: A single key/value records table holds every store partition
package db

import (
	"database/sql"
)

// Keys are "<partition>/<id>"; values are JSON documents.
const schema = `
CREATE TABLE IF NOT EXISTS records (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_updated_at ON records(updated_at DESC);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
