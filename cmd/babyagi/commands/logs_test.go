package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/logging"
)

func writeLogFile(t *testing.T, dir string, day time.Time, lines ...string) {
	t.Helper()
	path := filepath.Join(dir, logging.FileName(day))
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
}

func TestReadLastLines_AcrossFiles(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	writeLogFile(t, dir, day.AddDate(0, 0, -1), "old-1", "old-2", "old-3")
	writeLogFile(t, dir, day, "new-1", "new-2")

	files, err := logFiles(dir)
	if err != nil {
		t.Fatalf("logFiles: %v", err)
	}
	got := readLastLines(files, 4, nil)
	want := []string{"old-2", "old-3", "new-1", "new-2"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("readLastLines = %v, want %v", got, want)
	}
}

func TestLogFiles_MissingDir(t *testing.T) {
	files, err := logFiles(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("logFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("files = %v, want none", files)
	}
}

func TestLogView_Print(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "json entry",
			line: `{"level":"warn","time":"2026-03-01T09:00:00Z","message":"task failed","component":"orchestrator","session":"0123456789ab","error":"boom"}`,
			want: []string{"WRN", "[orchestrator]", "task failed", "session=01234567", "error=boom"},
		},
		{
			name: "plain text",
			line: "not json at all",
			want: []string{"not json at all"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			v := &logView{w: &buf, styles: newRunStyles()}
			v.print(tt.line)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output %q missing %q", buf.String(), w)
				}
			}
		})
	}
}

func TestLogFilter(t *testing.T) {
	lines := map[string]string{
		"debug-a": `{"level":"debug","time":"2026-03-01T09:00:00Z","message":"thinking","session":"aaaa1111"}`,
		"info-a":  `{"level":"info","time":"2026-03-01T09:00:01Z","message":"task done","session":"aaaa1111"}`,
		"error-b": `{"level":"error","time":"2026-03-01T09:00:02Z","message":"task failed","session":"bbbb2222"}`,
		"plain":   "panic: something",
	}

	tests := []struct {
		name    string
		session string
		level   string
		want    []string
	}{
		{"no filter", "", "", []string{"debug-a", "error-b", "info-a", "plain"}},
		{"session", "aaaa", "", []string{"debug-a", "info-a"}},
		{"level", "", "info", []string{"error-b", "info-a"}},
		{"session and level", "aaaa", "WARN", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := newLogFilter(tt.session, tt.level)
			if err != nil {
				t.Fatalf("newLogFilter: %v", err)
			}
			var got []string
			for _, name := range []string{"debug-a", "error-b", "info-a", "plain"} {
				if f.match(lines[name]) {
					got = append(got, name)
				}
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("matched %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := newLogFilter("", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogView_ShowFiltersBeforeTail(t *testing.T) {
	dir := t.TempDir()
	writeLogFile(t, dir, time.Now(),
		`{"level":"info","time":"2026-03-01T09:00:00Z","message":"first","session":"aaaa1111"}`,
		`{"level":"info","time":"2026-03-01T09:00:01Z","message":"other","session":"bbbb2222"}`,
		`{"level":"info","time":"2026-03-01T09:00:02Z","message":"other","session":"bbbb2222"}`,
	)

	f, _ := newLogFilter("aaaa", "")
	var buf bytes.Buffer
	v := &logView{w: &buf, filter: f, styles: newRunStyles()}
	if err := v.show(dir, 1); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(buf.String(), "first") || strings.Contains(buf.String(), "other") {
		t.Errorf("show output = %q", buf.String())
	}

	buf.Reset()
	v.filter, _ = newLogFilter("cccc", "")
	if err := v.show(dir, 5); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(buf.String(), "No matching log lines.") {
		t.Errorf("show output = %q", buf.String())
	}
}

func TestTailer_KeepsPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "babyagi.log")
	if err := os.WriteFile(path, []byte("one\ntw"), 0644); err != nil {
		t.Fatal(err)
	}
	tl := &tailer{}
	defer tl.close()
	tl.open(path, false)

	if got := tl.readLines(); strings.Join(got, ",") != "one" {
		t.Fatalf("first read = %v", got)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("o\nthree\n")
	_ = f.Close()

	if got := tl.readLines(); strings.Join(got, ",") != "two,three" {
		t.Errorf("second read = %v", got)
	}
}

func TestFormatLogLevel(t *testing.T) {
	tests := map[string]string{
		"debug": "DBG",
		"info":  "INF",
		"warn":  "WRN",
		"error": "ERR",
		"fatal": "FAT",
		"":      "???",
	}
	for in, want := range tests {
		if got := formatLogLevel(in); got != want {
			t.Errorf("formatLogLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExportLogs(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	writeLogFile(t, dir, day, "second")
	writeLogFile(t, dir, day.AddDate(0, 0, -1), "first")

	out := filepath.Join(t.TempDir(), "all.log")
	var buf bytes.Buffer
	if err := exportLogs(&buf, dir, out); err != nil {
		t.Fatalf("exportLogs: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("export = %q, want oldest first", data)
	}
	if !strings.Contains(buf.String(), "Exported 2 log lines from 2 files") {
		t.Errorf("confirmation = %q", buf.String())
	}

	if err := exportLogs(&buf, t.TempDir(), out); err == nil {
		t.Error("expected error with no log files")
	}
}
