package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/state"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

// Lookup errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAmbiguousID     = errors.New("session id prefix matches more than one session")
)

// SessionMeta describes how a session was run.
type SessionMeta struct {
	Mode      string
	Agent     string
	Specialty string
	EndReason string
}

// SessionSummary is one row of the session history.
type SessionSummary struct {
	ID        string
	Objective string
	StartedAt time.Time
	UpdatedAt time.Time
	Iteration int
	SessionMeta
	tasks.Counts
}

// Export records a report written for a session.
type Export struct {
	SessionID string
	Format    string
	Path      string
	CreatedAt time.Time
}

// SaveSession writes a snapshot, replacing any earlier copy of the same
// session.
func (d *DB) SaveSession(ctx context.Context, snap state.Snapshot, meta SessionMeta) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, objective, mode, agent, specialty, started_at, updated_at, iteration, end_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			objective = excluded.objective,
			mode = excluded.mode,
			agent = excluded.agent,
			specialty = excluded.specialty,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at,
			iteration = excluded.iteration,
			end_reason = excluded.end_reason`,
		snap.SessionID, snap.Objective, meta.Mode, meta.Agent, meta.Specialty,
		nullTime(snap.StartedAt), formatTime(time.Now()), snap.Iteration, meta.EndReason,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", snap.SessionID, err)
	}

	for _, table := range []string{"tasks", "log_entries"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, snap.SessionID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, t := range snap.Tasks {
		deps, err := json.Marshal(t.Dependencies)
		if err != nil {
			return fmt.Errorf("encoding dependencies for %s: %w", t.ID, err)
		}
		var completed any
		if t.CompletedAt != nil {
			completed = formatTime(*t.CompletedAt)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (session_id, position, id, title, description, status, priority, category,
				created_at, completed_at, result, dependencies,
				specialty, study_type, evidence_level, citations_required, ethical_approval)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.SessionID, i, t.ID, t.Title, t.Description, string(t.Status), t.Priority.String(), string(t.Category),
			formatTime(t.CreatedAt), completed, t.Result, string(deps),
			t.Specialty, t.StudyType, t.EvidenceLevel, t.CitationsRequired, t.EthicalApproval,
		)
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}

	for i, e := range snap.Log {
		var metadata any
		if len(e.Metadata) > 0 {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("encoding log metadata: %w", err)
			}
			metadata = string(raw)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO log_entries (session_id, position, id, timestamp, type, message, icon, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.SessionID, i, e.ID, formatTime(e.Timestamp), string(e.Type), e.Message, e.Icon, metadata,
		)
		if err != nil {
			return fmt.Errorf("insert log entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save session: %w", err)
	}
	return nil
}

// LoadSession reads a session back. The returned snapshot is never running.
func (d *DB) LoadSession(ctx context.Context, id string) (state.Snapshot, SessionMeta, error) {
	var (
		snap    state.Snapshot
		meta    SessionMeta
		started sql.NullString
	)
	row := d.sql.QueryRowContext(ctx, `
		SELECT id, objective, mode, agent, specialty, started_at, iteration, end_reason
		FROM sessions WHERE id = ?`, id)
	err := row.Scan(&snap.SessionID, &snap.Objective, &meta.Mode, &meta.Agent, &meta.Specialty,
		&started, &snap.Iteration, &meta.EndReason)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, meta, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return snap, meta, fmt.Errorf("query session %s: %w", id, err)
	}
	if snap.StartedAt, err = parseNullTime(started); err != nil {
		return snap, meta, err
	}

	if snap.Tasks, err = d.loadTasks(ctx, id); err != nil {
		return snap, meta, err
	}
	if snap.Log, err = d.loadLog(ctx, id); err != nil {
		return snap, meta, err
	}
	return snap, meta, nil
}

func (d *DB) loadTasks(ctx context.Context, sessionID string) ([]tasks.Task, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT id, title, description, status, priority, category, created_at, completed_at, result, dependencies,
			specialty, study_type, evidence_level, citations_required, ethical_approval
		FROM tasks WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []tasks.Task
	for rows.Next() {
		var (
			t                 tasks.Task
			status, category  string
			priority, created string
			completed         sql.NullString
			deps              string
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &category, &created, &completed,
			&t.Result, &deps, &t.Specialty, &t.StudyType, &t.EvidenceLevel, &t.CitationsRequired, &t.EthicalApproval); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = tasks.Status(status)
		t.Category = tasks.Category(category)
		if t.Priority, err = tasks.ParsePriority(priority); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if completed.Valid {
			at, err := parseTime(completed.String)
			if err != nil {
				return nil, err
			}
			t.CompletedAt = &at
		}
		if err := json.Unmarshal([]byte(deps), &t.Dependencies); err != nil {
			return nil, fmt.Errorf("decoding dependencies for %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows tasks: %w", err)
	}
	return out, nil
}

func (d *DB) loadLog(ctx context.Context, sessionID string) ([]state.LogEntry, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT id, timestamp, type, message, icon, metadata
		FROM log_entries WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query log entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []state.LogEntry
	for rows.Next() {
		var (
			e        state.LogEntry
			ts, typ  string
			metadata sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &typ, &e.Message, &e.Icon, &metadata); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Type = state.LogType(typ)
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decoding log metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows log entries: %w", err)
	}
	return out, nil
}

// ListSessions returns the most recently updated sessions first. A limit of
// zero or less returns all sessions.
func (d *DB) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.sql.QueryContext(ctx, `
		SELECT s.id, s.objective, s.mode, s.agent, s.specialty, s.started_at, s.updated_at, s.iteration, s.end_reason,
			COUNT(t.id),
			COALESCE(SUM(t.status = 'pending'), 0),
			COALESCE(SUM(t.status = 'running'), 0),
			COALESCE(SUM(t.status = 'completed'), 0),
			COALESCE(SUM(t.status = 'failed'), 0)
		FROM sessions s
		LEFT JOIN tasks t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC, s.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionSummary
	for rows.Next() {
		var (
			s       SessionSummary
			started sql.NullString
			updated string
		)
		if err := rows.Scan(&s.ID, &s.Objective, &s.Mode, &s.Agent, &s.Specialty, &started, &updated,
			&s.Iteration, &s.EndReason, &s.Total, &s.Pending, &s.Running, &s.Completed, &s.Failed); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if s.StartedAt, err = parseNullTime(started); err != nil {
			return nil, err
		}
		if s.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows sessions: %w", err)
	}
	return out, nil
}

// ResolveID expands an id prefix to the full session id.
func (d *DB) ResolveID(ctx context.Context, prefix string) (string, error) {
	pattern := strings.NewReplacer("%", `\%`, "_", `\_`).Replace(prefix) + "%"
	rows, err := d.sql.QueryContext(ctx, `SELECT id FROM sessions WHERE id LIKE ? ESCAPE '\' LIMIT 2`, pattern)
	if err != nil {
		return "", fmt.Errorf("resolve session %s: %w", prefix, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows session ids: %w", err)
	}

	switch {
	case len(ids) == 0:
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, prefix)
	case len(ids) > 1:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	}
	return ids[0], nil
}

// DeleteSession removes a session with its tasks, log and exports.
func (d *DB) DeleteSession(ctx context.Context, id string) error {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// RecordExport notes that a report was written for a session.
func (d *DB) RecordExport(ctx context.Context, e Export) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO exports (session_id, format, path, created_at) VALUES (?, ?, ?, ?)`,
		e.SessionID, e.Format, e.Path, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("record export: %w", err)
	}
	return nil
}

// Exports lists the reports written for a session, newest first.
func (d *DB) Exports(ctx context.Context, sessionID string) ([]Export, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT session_id, format, path, created_at FROM exports WHERE session_id = ? ORDER BY created_at DESC, id DESC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Export
	for rows.Next() {
		var (
			e       Export
			created string
		)
		if err := rows.Scan(&e.SessionID, &e.Format, &e.Path, &created); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows exports: %w", err)
	}
	return out, nil
}

// timeLayout has a fixed-width fraction so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// nullTime stores the zero time as NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return parseTime(s.String)
}
