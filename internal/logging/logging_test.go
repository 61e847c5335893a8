package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"json file", Config{Path: dir, Level: "info", Format: "json"}, false},
		{"text file", Config{Path: dir, Level: "debug", Format: "text"}, false},
		{"console only", Config{Console: &bytes.Buffer{}}, false},
		{"warning alias", Config{Level: "WARNING", Console: &bytes.Buffer{}}, false},
		{"bad level", Config{Level: "verbose"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if logger != nil {
				_ = logger.Close()
			}
		})
	}
}

func TestLogger_WritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Path: dir, Level: "debug"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.DebugCtx("planning", map[string]any{"tasks": 3})
	logger.Info("run started")
	logger.ErrorCtx("task failed", map[string]any{"error": errors.New("timeout"), "task_id": "t1"})

	data, err := os.ReadFile(filepath.Join(dir, FileName(time.Now())))
	if err != nil {
		t.Fatalf("daily file missing: %v", err)
	}
	lines := decodeLines(t, data)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), data)
	}
	last := lines[2]
	if last["level"] != "error" || last["error"] != "timeout" || last["task_id"] != "t1" {
		t.Errorf("error line = %v", last)
	}
	if lines[0]["tasks"] != float64(3) {
		t.Errorf("debug line = %v", lines[0])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Console: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.InfoCtx("hidden", nil)
	logger.Log(zerolog.WarnLevel, "shown", map[string]any{"n": 1})

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn line missing")
	}
}

func TestComponentAndSession(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Console: &buf}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() {
		globalMu.Lock()
		globalLogger = nil
		globalMu.Unlock()
	})

	Component("orchestrator").WithSession("0b6f3c1e").Info("tick")
	Component("scheduler").WithSession("").Info("idle")

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["component"] != "orchestrator" || lines[0]["session"] != "0b6f3c1e" {
		t.Errorf("first line = %v", lines[0])
	}
	if _, ok := lines[1]["session"]; ok {
		t.Errorf("empty session should not be tagged: %v", lines[1])
	}
}

func TestDailyFile_RotatesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	d := &dailyFile{dir: dir, now: func() time.Time { return now }}
	defer func() { _ = d.Close() }()

	if _, err := d.Write([]byte("before midnight\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := d.Write([]byte("after midnight\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	for day, want := range map[string]string{
		"babyagi-2025-06-01.log": "before midnight\n",
		"babyagi-2025-06-02.log": "after midnight\n",
	} {
		got, err := os.ReadFile(filepath.Join(dir, day))
		if err != nil {
			t.Fatalf("read %s: %v", day, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", day, got, want)
		}
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	for _, daysAgo := range []int{12, 8, 3, 0} {
		name := filepath.Join(dir, FileName(now.AddDate(0, 0, -daysAgo)))
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	prune(dir, 7, now)

	files, err := Files(dir)
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	want := []string{"babyagi-2025-06-20.log", "babyagi-2025-06-17.log"}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i, f := range files {
		if filepath.Base(f) != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, filepath.Base(f), want[i])
		}
	}
}

func TestFilesAndLatest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"babyagi-2025-01-02.log",
		"babyagi-2025-01-10.log",
		"babyagi-2024-12-31.log",
		"babyagi-latest.log",  // bad date
		"other-2025-01-03.log", // wrong prefix
		"babyagi-2025-01-04.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := Files(dir)
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("Files() = %v, want 3 files", files)
	}
	latest, err := Latest(dir)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if filepath.Base(latest) != "babyagi-2025-01-10.log" {
		t.Errorf("Latest() = %s", latest)
	}

	if _, err := Latest(t.TempDir()); err == nil {
		t.Error("Latest() on an empty dir should fail")
	}
	if files, err := Files(""); err != nil || files != nil {
		t.Errorf("Files(\"\") = %v, %v", files, err)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("discarded")
	l.WithSession("abc").ErrorCtx("discarded", map[string]any{"k": "v"})
	if err := l.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"trace", zerolog.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
