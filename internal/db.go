package internal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const transcriptSchema = `
CREATE TABLE IF NOT EXISTS messages (
	session_id INTEGER NOT NULL,
	seq        INTEGER NOT NULL,
	id         TEXT    NOT NULL,
	role       TEXT    NOT NULL,
	content    TEXT    NOT NULL,
	timestamp  TEXT    NOT NULL,
	confidence REAL,
	sources    TEXT,
	complete   INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_messages_id ON messages(session_id, id);
`

// OpenTranscriptDB opens (creating if needed) the local transcript database
func OpenTranscriptDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.Exec(transcriptSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}
