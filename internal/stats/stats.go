// Package stats computes aggregate statistics over archived babyagi sessions.
// It reads the sessions, tasks and exports tables.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/db"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/logging"
)

// Duration is a time.Duration that encodes as whole seconds in JSON.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(d.Seconds()))
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var secs int64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration seconds: %w", err)
	}
	d.Duration = time.Duration(secs) * time.Second
	return nil
}

// String renders the two most significant units, e.g. "2m 15s" or "1d 3h".
func (d Duration) String() string {
	secs := int64(d.Seconds())
	days, secs := secs/86400, secs%86400
	hours, secs := secs/3600, secs%3600
	mins, secs := secs/60, secs%60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

// Result holds all computed statistics, JSON-serializable.
type Result struct {
	// Session overview
	TotalSessions   int        `json:"total_sessions"`
	FirstRunAt      *time.Time `json:"first_run_at,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	TotalDuration   Duration   `json:"total_duration"`
	AvgRunDuration  Duration   `json:"avg_run_duration"`
	TotalIterations int        `json:"total_iterations"`
	AvgIterations   float64    `json:"avg_iterations"`

	// Task outcomes
	TasksTotal     int     `json:"tasks_total"`
	TasksCompleted int     `json:"tasks_completed"`
	TasksFailed    int     `json:"tasks_failed"`
	TasksPending   int     `json:"tasks_pending"`
	SuccessRate    float64 `json:"success_rate"`

	// Breakdowns
	OutcomeBreakdown  map[string]int   `json:"outcome_breakdown,omitempty"`
	ModeBreakdown     map[string]int   `json:"mode_breakdown,omitempty"`
	CategoryBreakdown map[string]int   `json:"category_breakdown,omitempty"`
	Specialties       []SpecialtyStats `json:"specialties,omitempty"`

	// Reports
	TotalExports    int            `json:"total_exports"`
	ExportsByFormat map[string]int `json:"exports_by_format,omitempty"`
}

// SpecialtyStats summarizes medical sessions for one specialty.
type SpecialtyStats struct {
	Name           string `json:"name"`
	Sessions       int    `json:"sessions"`
	TasksCompleted int    `json:"tasks_completed"`
}

// Stats computes aggregate statistics from the session archive.
type Stats struct {
	db      *db.DB
	nowFunc func() time.Time
	logger  *logging.Logger
}

// New creates a Stats instance.
func New(database *db.DB) *Stats {
	return &Stats{
		db:      database,
		nowFunc: time.Now,
		logger:  logging.Component("stats"),
	}
}

// Period names accepted by Since.
const (
	PeriodAll     = "all"
	PeriodLast7d  = "last-7d"
	PeriodLast30d = "last-30d"
)

// Since returns the cutoff for a period name. The zero time means no cutoff.
func (s *Stats) Since(period string) (time.Time, error) {
	now := s.nowFunc()
	switch period {
	case "", PeriodAll:
		return time.Time{}, nil
	case PeriodLast7d:
		return now.AddDate(0, 0, -7), nil
	case PeriodLast30d:
		return now.AddDate(0, 0, -30), nil
	default:
		return time.Time{}, fmt.Errorf("unknown period %q (want all, last-7d or last-30d)", period)
	}
}

// Compute aggregates sessions started at or after since.
func (s *Stats) Compute(ctx context.Context, since time.Time) (*Result, error) {
	result := &Result{
		OutcomeBreakdown:  make(map[string]int),
		ModeBreakdown:     make(map[string]int),
		CategoryBreakdown: make(map[string]int),
		ExportsByFormat:   make(map[string]int),
	}

	sessions, err := s.db.ListSessions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	ids := make(map[string]bool, len(sessions))
	bySpecialty := make(map[string]*SpecialtyStats)
	for _, sess := range sessions {
		if !since.IsZero() && sess.StartedAt.Before(since) {
			continue
		}
		ids[sess.ID] = true
		result.TotalSessions++
		result.TotalIterations += sess.Iteration

		if !sess.StartedAt.IsZero() {
			started := sess.StartedAt
			if result.FirstRunAt == nil || started.Before(*result.FirstRunAt) {
				result.FirstRunAt = &started
			}
			if result.LastRunAt == nil || started.After(*result.LastRunAt) {
				result.LastRunAt = &started
			}
			if d := sess.UpdatedAt.Sub(started); d > 0 {
				result.TotalDuration.Duration += d
			}
		}

		result.TasksTotal += sess.Total
		result.TasksCompleted += sess.Completed
		result.TasksFailed += sess.Failed
		result.TasksPending += sess.Pending

		result.OutcomeBreakdown[orUnknown(sess.EndReason)]++
		result.ModeBreakdown[orUnknown(sess.Mode)]++

		if sess.Specialty != "" {
			sp, ok := bySpecialty[sess.Specialty]
			if !ok {
				sp = &SpecialtyStats{Name: sess.Specialty}
				bySpecialty[sess.Specialty] = sp
			}
			sp.Sessions++
			sp.TasksCompleted += sess.Completed
		}
	}

	if len(ids) > 0 {
		if err := s.computeCategories(ctx, result, ids); err != nil {
			s.logger.WarnCtx("category breakdown unavailable", map[string]any{"error": err.Error()})
		}
		if err := s.computeExports(ctx, result, ids); err != nil {
			s.logger.WarnCtx("export breakdown unavailable", map[string]any{"error": err.Error()})
		}
	}

	for _, sp := range bySpecialty {
		result.Specialties = append(result.Specialties, *sp)
	}
	sort.Slice(result.Specialties, func(i, j int) bool {
		a, b := result.Specialties[i], result.Specialties[j]
		if a.Sessions != b.Sessions {
			return a.Sessions > b.Sessions
		}
		return a.Name < b.Name
	})

	if result.TotalSessions > 0 {
		result.AvgRunDuration = Duration{time.Duration(int64(result.TotalDuration.Duration) / int64(result.TotalSessions))}
		result.AvgIterations = float64(result.TotalIterations) / float64(result.TotalSessions)
	}
	// pending tasks have no outcome yet
	if finished := result.TasksCompleted + result.TasksFailed; finished > 0 {
		result.SuccessRate = float64(result.TasksCompleted) / float64(finished) * 100
	}

	return result, nil
}

// computeCategories counts tasks per category for the selected sessions.
func (s *Stats) computeCategories(ctx context.Context, result *Result, ids map[string]bool) error {
	rows, err := s.db.SQL().QueryContext(ctx, `SELECT session_id, category FROM tasks`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sessionID, category string
		if err := rows.Scan(&sessionID, &category); err != nil {
			return err
		}
		if ids[sessionID] {
			result.CategoryBreakdown[orUnknown(category)]++
		}
	}
	return rows.Err()
}

// computeExports counts recorded exports per format for the selected sessions.
func (s *Stats) computeExports(ctx context.Context, result *Result, ids map[string]bool) error {
	rows, err := s.db.SQL().QueryContext(ctx, `SELECT session_id, format FROM exports`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sessionID, format string
		if err := rows.Scan(&sessionID, &format); err != nil {
			return err
		}
		if ids[sessionID] {
			result.TotalExports++
			result.ExportsByFormat[format]++
		}
	}
	return rows.Err()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
