// Package storage owns the sqlite database holding scope and variable
// records. The external hierarchy itself is never persisted here, only
// the policy and template-input records the engine layers on top of it.
package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/gravitational/trace"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS scopes (
	id            TEXT PRIMARY KEY,
	node_id       TEXT NOT NULL UNIQUE,
	is_folder     INTEGER NOT NULL DEFAULT 0,
	is_pinned     INTEGER NOT NULL DEFAULT 0,
	access_level  TEXT NOT NULL,
	max_depth     INTEGER,
	created_by    TEXT NOT NULL DEFAULT '',
	updated_by    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS variables (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	scope              TEXT NOT NULL DEFAULT '',
	required           INTEGER NOT NULL DEFAULT 0,
	allow_save         INTEGER NOT NULL DEFAULT 0,
	ord                INTEGER NOT NULL DEFAULT 0,
	value              TEXT,
	validation_schema  TEXT,
	created_by         TEXT NOT NULL DEFAULT '',
	updated_by         TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL,
	UNIQUE (name, scope)
);
CREATE INDEX IF NOT EXISTS variables_scope ON variables (scope);

CREATE TABLE IF NOT EXISTS saved_values (
	principal_id  TEXT NOT NULL,
	variable_id   TEXT NOT NULL REFERENCES variables (id) ON DELETE CASCADE,
	value         TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (principal_id, variable_id)
);
`

// Open opens (creating if needed) the engine database at path and applies
// the schema. Use ":memory:" for an ephemeral test database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, trace.Wrap(err, "open database %s", path)
	}
	// sqlite has a single writer; one pooled connection avoids lock
	// contention and keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, trace.Wrap(err, "enable foreign keys")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, trace.Wrap(err, "apply schema")
	}
	return db, nil
}

// IsUniqueViolation reports whether err is a sqlite uniqueness failure.
// Concurrent creates for the same key get exactly one winner; the loser
// maps this to trace.AlreadyExists.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// InTx runs fn inside a transaction, committing on nil and rolling back on
// error. Bulk schema replacement uses this so a scope's variable set moves
// atomically.
func InTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return trace.Wrap(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return trace.Wrap(err, "commit transaction")
	}
	return nil
}
