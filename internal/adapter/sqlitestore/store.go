// Package sqlitestore implements the discovery repositories on SQLite for
// single-node deployments and tests.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS search_jobs (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	topics TEXT NOT NULL DEFAULT '[]',
	competitors TEXT NOT NULL DEFAULT '[]',
	platforms TEXT NOT NULL DEFAULT '[]',
	queries TEXT NOT NULL DEFAULT '[]',
	settings TEXT NOT NULL DEFAULT '{}',
	run_id TEXT NOT NULL DEFAULT '',
	dataset_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	results_count INTEGER NOT NULL DEFAULT 0,
	result_json TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	processing_started_at INTEGER,
	completed_at INTEGER
);

CREATE TABLE IF NOT EXISTS discovered_affiliates (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	job_id TEXT NOT NULL REFERENCES search_jobs (id) ON DELETE CASCADE,
	link TEXT NOT NULL,
	domain TEXT NOT NULL,
	platform TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	snippet TEXT NOT NULL DEFAULT '',
	source_type TEXT NOT NULL,
	source_value TEXT NOT NULL DEFAULT '',
	affiliate_score INTEGER NOT NULL DEFAULT 0,
	host_country TEXT NOT NULL DEFAULT '',
	metadata TEXT,
	created_at INTEGER NOT NULL,
	UNIQUE (owner_id, link)
);

CREATE TABLE IF NOT EXISTS affiliate_settings (
	owner_id TEXT PRIMARY KEY,
	target_country TEXT NOT NULL DEFAULT '',
	target_language TEXT NOT NULL DEFAULT '',
	own_brand TEXT NOT NULL DEFAULT '',
	competitors TEXT NOT NULL DEFAULT '[]',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS credit_balances (
	owner_id TEXT NOT NULL,
	credit_type TEXT NOT NULL,
	balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (owner_id, credit_type)
);

CREATE TABLE IF NOT EXISTS credit_transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id TEXT NOT NULL,
	credit_type TEXT NOT NULL,
	amount INTEGER NOT NULL,
	ref_type TEXT NOT NULL,
	ref_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (ref_type, ref_id, credit_type)
);

CREATE TABLE IF NOT EXISTS discovery_schedules (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	topics TEXT NOT NULL DEFAULT '[]',
	competitors TEXT NOT NULL DEFAULT '[]',
	platforms TEXT NOT NULL DEFAULT '[]',
	affiliate_signals BOOLEAN NOT NULL DEFAULT 1,
	interval_hours INTEGER NOT NULL CHECK (interval_hours > 0),
	next_run_at INTEGER NOT NULL,
	last_run_at INTEGER,
	enabled BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS provider_tokens (
	provider TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	updated_at INTEGER NOT NULL
);
`

// DB owns the SQLite handle shared by the repositories.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// DSN builds a file DSN with the pragmas the store relies on.
func DSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// Open opens dsn and applies the schema.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single connection serializes writers and keeps in-memory databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

// Ping checks the handle.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Jobs() *Jobs             { return &Jobs{d} }
func (d *DB) Affiliates() *Affiliates { return &Affiliates{d} }
func (d *DB) Settings() *Settings     { return &Settings{d} }
func (d *DB) Credits() *Credits       { return &Credits{d} }
func (d *DB) Schedules() *Schedules   { return &Schedules{d} }
func (d *DB) Tokens() *Tokens         { return &Tokens{d} }

func (d *DB) millis() int64 {
	return d.now().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
