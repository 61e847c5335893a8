package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/logging"
)

// schemaStep upgrades the schema by one version. Steps are applied in
// order and the version is tracked in PRAGMA user_version.
type schemaStep struct {
	name string
	sql  string
}

var schema = []schemaStep{
	{"sessions, tasks and execution log", sessionsSQL},
	{"medical task columns", medicalSQL},
	{"report exports", exportsSQL},
}

const sessionsSQL = `
CREATE TABLE sessions (
    id          TEXT PRIMARY KEY,
    objective   TEXT NOT NULL,
    mode        TEXT NOT NULL DEFAULT '',
    agent       TEXT NOT NULL DEFAULT '',
    started_at  TEXT,
    updated_at  TEXT NOT NULL,
    iteration   INTEGER NOT NULL DEFAULT 0,
    end_reason  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE tasks (
    session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    position     INTEGER NOT NULL,
    id           TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    description  TEXT NOT NULL,
    status       TEXT NOT NULL,
    priority     TEXT NOT NULL,
    category     TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL,
    completed_at TEXT,
    result       TEXT NOT NULL DEFAULT '',
    dependencies TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (session_id, id)
);

CREATE TABLE log_entries (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    position   INTEGER NOT NULL,
    id         TEXT NOT NULL,
    timestamp  TEXT NOT NULL,
    type       TEXT NOT NULL,
    message    TEXT NOT NULL,
    icon       TEXT NOT NULL DEFAULT '',
    metadata   TEXT,
    PRIMARY KEY (session_id, position)
);

CREATE INDEX idx_sessions_updated ON sessions(updated_at DESC);
CREATE INDEX idx_tasks_session_status ON tasks(session_id, status);
`

const medicalSQL = `
ALTER TABLE sessions ADD COLUMN specialty TEXT NOT NULL DEFAULT '';
ALTER TABLE tasks ADD COLUMN specialty TEXT NOT NULL DEFAULT '';
ALTER TABLE tasks ADD COLUMN study_type TEXT NOT NULL DEFAULT '';
ALTER TABLE tasks ADD COLUMN evidence_level TEXT NOT NULL DEFAULT '';
ALTER TABLE tasks ADD COLUMN citations_required INTEGER NOT NULL DEFAULT 0;
ALTER TABLE tasks ADD COLUMN ethical_approval INTEGER NOT NULL DEFAULT 0;
`

const exportsSQL = `
CREATE TABLE exports (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    format      TEXT NOT NULL,
    path        TEXT NOT NULL,
    created_at  TEXT NOT NULL
);

CREATE INDEX idx_exports_session ON exports(session_id, created_at DESC);
`

// Migrate applies every schema step newer than the database's
// user_version, each in its own transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	version, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if version > len(schema) {
		return fmt.Errorf("database schema version %d is newer than this binary supports (%d)", version, len(schema))
	}

	logger := logging.Component("db")
	for v := version + 1; v <= len(schema); v++ {
		step := schema[v-1]
		if err := applyStep(ctx, db, v, step); err != nil {
			return fmt.Errorf("schema v%d (%s): %w", v, step.name, err)
		}
		logger.DebugCtx("schema upgraded", map[string]any{"version": v, "step": step.name})
	}
	return nil
}

func applyStep(ctx context.Context, db *sql.DB, version int, step schemaStep) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, step.sql); err != nil {
		return err
	}
	// PRAGMA arguments cannot be bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return err
	}
	return tx.Commit()
}

// SchemaVersion returns the applied schema version, 0 for a new database.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}
