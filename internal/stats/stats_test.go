package stats

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/db"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/state"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

// saveSession archives a session with the given task statuses.
func saveSession(t *testing.T, database *db.DB, id string, started time.Time, meta db.SessionMeta, statuses ...tasks.Status) {
	t.Helper()
	snap := state.Snapshot{SessionID: id, Objective: "objective " + id, StartedAt: started, Iteration: len(statuses)}
	for i, st := range statuses {
		snap.Tasks = append(snap.Tasks, tasks.Task{
			ID:          id + "-" + string(rune('a'+i)),
			Description: "task",
			Status:      st,
			Priority:    tasks.Level(5),
			Category:    tasks.CategoryResearch,
			CreatedAt:   started,
		})
	}
	if err := database.SaveSession(context.Background(), snap, meta); err != nil {
		t.Fatalf("save session %s: %v", id, err)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		dur      time.Duration
		json     string
		readable string
	}{
		{0, "0", "0s"},
		{45 * time.Second, "45", "45s"},
		{2*time.Minute + 15*time.Second, "135", "2m 15s"},
		{3 * time.Hour, "10800", "3h 0m"},
		{26*time.Hour + 30*time.Minute, "95400", "1d 2h"},
		{1500 * time.Millisecond, "1", "1s"},
	}
	for _, tt := range tests {
		t.Run(tt.readable, func(t *testing.T) {
			d := Duration{tt.dur}
			b, err := json.Marshal(d)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(b) != tt.json {
				t.Errorf("JSON = %s, want %s", b, tt.json)
			}
			if got := d.String(); got != tt.readable {
				t.Errorf("String() = %q, want %q", got, tt.readable)
			}

			var back Duration
			if err := json.Unmarshal(b, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back.Duration != tt.dur.Truncate(time.Second) {
				t.Errorf("round trip = %v, want %v", back.Duration, tt.dur.Truncate(time.Second))
			}
		})
	}

	var d Duration
	if err := json.Unmarshal([]byte(`"ten minutes"`), &d); err == nil {
		t.Error("expected error for non-numeric seconds")
	}
}

func TestCompute_NoData(t *testing.T) {
	s := New(openTestDB(t))
	result, err := s.Compute(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.TotalSessions != 0 {
		t.Errorf("TotalSessions = %d, want 0", result.TotalSessions)
	}
	if result.TasksCompleted != 0 || result.TasksFailed != 0 {
		t.Errorf("tasks = %d/%d, want 0/0", result.TasksCompleted, result.TasksFailed)
	}
	if result.SuccessRate != 0 {
		t.Errorf("SuccessRate = %f, want 0", result.SuccessRate)
	}
	if result.FirstRunAt != nil || result.LastRunAt != nil {
		t.Error("expected no run times")
	}
}

func TestCompute_Sessions(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	saveSession(t, database, "s1", day, db.SessionMeta{Mode: "simulated", EndReason: "completed"},
		tasks.StatusCompleted, tasks.StatusCompleted, tasks.StatusFailed)
	saveSession(t, database, "s2", day.Add(24*time.Hour), db.SessionMeta{Mode: "ai", Specialty: "cardiology", EndReason: "max_iterations"},
		tasks.StatusCompleted, tasks.StatusPending)
	saveSession(t, database, "s3", day.Add(48*time.Hour), db.SessionMeta{Mode: "ai", Specialty: "cardiology", EndReason: "completed"},
		tasks.StatusCompleted)

	if err := database.RecordExport(ctx, db.Export{SessionID: "s2", Format: "markdown", Path: "/tmp/a.md", CreatedAt: day}); err != nil {
		t.Fatalf("record export: %v", err)
	}
	if err := database.RecordExport(ctx, db.Export{SessionID: "s3", Format: "markdown", Path: "/tmp/b.md", CreatedAt: day}); err != nil {
		t.Fatalf("record export: %v", err)
	}

	result, err := New(database).Compute(ctx, time.Time{})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if result.TotalSessions != 3 {
		t.Errorf("TotalSessions = %d, want 3", result.TotalSessions)
	}
	if result.TasksTotal != 6 || result.TasksCompleted != 4 || result.TasksFailed != 1 || result.TasksPending != 1 {
		t.Errorf("tasks = %d total, %d completed, %d failed, %d pending",
			result.TasksTotal, result.TasksCompleted, result.TasksFailed, result.TasksPending)
	}
	if result.SuccessRate != 80 {
		t.Errorf("SuccessRate = %f, want 80", result.SuccessRate)
	}
	if result.TotalIterations != 6 || result.AvgIterations != 2 {
		t.Errorf("iterations = %d (avg %f), want 6 (avg 2)", result.TotalIterations, result.AvgIterations)
	}
	if !result.FirstRunAt.Equal(day) || !result.LastRunAt.Equal(day.Add(48*time.Hour)) {
		t.Errorf("run range = %v..%v", result.FirstRunAt, result.LastRunAt)
	}
	if result.OutcomeBreakdown["completed"] != 2 || result.OutcomeBreakdown["max_iterations"] != 1 {
		t.Errorf("OutcomeBreakdown = %v", result.OutcomeBreakdown)
	}
	if result.ModeBreakdown["ai"] != 2 || result.ModeBreakdown["simulated"] != 1 {
		t.Errorf("ModeBreakdown = %v", result.ModeBreakdown)
	}
	if result.CategoryBreakdown[string(tasks.CategoryResearch)] != 6 {
		t.Errorf("CategoryBreakdown = %v", result.CategoryBreakdown)
	}
	if len(result.Specialties) != 1 || result.Specialties[0] != (SpecialtyStats{Name: "cardiology", Sessions: 2, TasksCompleted: 2}) {
		t.Errorf("Specialties = %+v", result.Specialties)
	}
	if result.TotalExports != 2 || result.ExportsByFormat["markdown"] != 2 {
		t.Errorf("exports = %d %v", result.TotalExports, result.ExportsByFormat)
	}
	if result.TotalDuration.Duration <= 0 {
		t.Errorf("TotalDuration = %v, want > 0", result.TotalDuration)
	}
}

func TestCompute_Since(t *testing.T) {
	database := openTestDB(t)
	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	saveSession(t, database, "old", day, db.SessionMeta{}, tasks.StatusFailed)
	saveSession(t, database, "new", day.Add(10*24*time.Hour), db.SessionMeta{}, tasks.StatusCompleted)

	s := New(database)
	s.nowFunc = func() time.Time { return day.Add(12 * 24 * time.Hour) }
	since, err := s.Since(PeriodLast7d)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}

	result, err := s.Compute(context.Background(), since)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.TotalSessions != 1 || result.TasksFailed != 0 || result.SuccessRate != 100 {
		t.Errorf("result = %+v", result)
	}
	if result.OutcomeBreakdown["unknown"] != 1 {
		t.Errorf("OutcomeBreakdown = %v", result.OutcomeBreakdown)
	}
}

func TestSince(t *testing.T) {
	now := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	s := &Stats{nowFunc: func() time.Time { return now }}

	tests := []struct {
		period  string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{PeriodAll, time.Time{}, false},
		{PeriodLast7d, now.AddDate(0, 0, -7), false},
		{PeriodLast30d, now.AddDate(0, 0, -30), false},
		{"last-night", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := s.Since(tt.period)
		if (err != nil) != tt.wantErr {
			t.Errorf("Since(%q) error = %v", tt.period, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("Since(%q) = %v, want %v", tt.period, got, tt.want)
		}
	}
}

func TestResult_JSON(t *testing.T) {
	r := Result{TotalSessions: 2, TotalDuration: Duration{90 * time.Second}}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["total_duration"] != float64(90) {
		t.Errorf("total_duration = %v, want 90", decoded["total_duration"])
	}
	if _, ok := decoded["first_run_at"]; ok {
		t.Error("first_run_at should be omitted when unset")
	}
}
