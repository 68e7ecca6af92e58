// Package db persists practice sessions and the vocabulary bank in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const migrationsSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP,
	transcript_text TEXT,
	metadata_json TEXT
);

CREATE TABLE IF NOT EXISTS vocab (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TIMESTAMP NOT NULL,
	source_session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
	english TEXT NOT NULL DEFAULT '',
	chinese TEXT NOT NULL DEFAULT '',
	pinyin TEXT,
	example TEXT,
	seen_count INTEGER NOT NULL DEFAULT 0,
	last_seen_at TIMESTAMP,
	last_result TEXT NOT NULL DEFAULT '',
	UNIQUE (english, chinese)
);

CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_vocab_created_at ON vocab(created_at);
CREATE INDEX IF NOT EXISTS idx_vocab_last_seen_at ON vocab(last_seen_at);
`

// InitDB runs migrations on the given DB connection using the embedded SQL.
func InitDB(db *sql.DB) error {
	stmts := strings.Split(migrationsSQL, ";")
	for _, s := range stmts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Open opens (or creates) the SQLite database at path and applies migrations.
// The connection is limited to a single open conn: SQLite allows only one
// writer, and the store relies on serialized access within the process.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return conn, nil
}
