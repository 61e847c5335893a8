package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View logs",
	Long: `View babyagi logs.

Shows the most recent entries across the daily log files. Filter by
session id prefix or minimum level, stream new entries with --follow,
or write every file to one export with --export.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		follow, _ := cmd.Flags().GetBool("follow")
		export, _ := cmd.Flags().GetString("export")
		session, _ := cmd.Flags().GetString("session")
		level, _ := cmd.Flags().GetString("level")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir := cfg.Logging.Path

		if export != "" {
			return exportLogs(cmd.OutOrStdout(), dir, export)
		}

		f, err := newLogFilter(session, level)
		if err != nil {
			return err
		}
		view := &logView{w: cmd.OutOrStdout(), filter: f, styles: newRunStyles()}
		if follow {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return view.follow(ctx, dir, tail)
		}
		return view.show(dir, tail)
	},
}

func init() {
	logsCmd.Flags().IntP("tail", "n", 50, "Number of log lines to show")
	logsCmd.Flags().BoolP("follow", "f", false, "Stream new log lines")
	logsCmd.Flags().StringP("export", "e", "", "Write all log files, oldest first, to this path")
	logsCmd.Flags().String("session", "", "Only lines for sessions with this id prefix")
	logsCmd.Flags().String("level", "", "Minimum level: debug, info, warn, error")
	rootCmd.AddCommand(logsCmd)
}

// logEntry is the subset of a zerolog JSON line the viewer shows.
type logEntry struct {
	Level     string    `json:"level"`
	Time      time.Time `json:"time"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	SessionID string    `json:"session,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func parseLogLine(line string) (logEntry, bool) {
	var e logEntry
	if err := json.Unmarshal([]byte(line), &e); err != nil || e.Message == "" {
		return logEntry{}, false
	}
	return e, true
}

// logFilter selects lines by session prefix and minimum level. Lines that
// are not JSON pass only when no filter is set.
type logFilter struct {
	session  string
	minLevel zerolog.Level
	active   bool
}

func newLogFilter(session, level string) (logFilter, error) {
	f := logFilter{session: session, minLevel: zerolog.TraceLevel}
	if level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil || l == zerolog.NoLevel {
			return logFilter{}, fmt.Errorf("invalid --level %q", level)
		}
		f.minLevel = l
	}
	f.active = session != "" || level != ""
	return f, nil
}

func (f logFilter) match(line string) bool {
	if !f.active {
		return true
	}
	e, ok := parseLogLine(line)
	if !ok {
		return false
	}
	if f.session != "" && !strings.HasPrefix(e.SessionID, f.session) {
		return false
	}
	l, err := zerolog.ParseLevel(e.Level)
	return err == nil && l >= f.minLevel
}

// logView renders log lines to w.
type logView struct {
	w      io.Writer
	filter logFilter
	styles runStyles
}

func (v *logView) show(dir string, n int) error {
	files, err := logFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(v.w, "No log files found.")
		return nil
	}
	lines := readLastLines(files, n, v.filter.match)
	if len(lines) == 0 {
		fmt.Fprintln(v.w, "No matching log lines.")
		return nil
	}
	for _, line := range lines {
		v.print(line)
	}
	return nil
}

func (v *logView) follow(ctx context.Context, dir string, backlog int) error {
	if err := v.show(dir, backlog); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	t := &tailer{}
	defer t.close()
	if latest, err := logging.Latest(dir); err == nil {
		t.open(latest, true)
	}

	fmt.Fprintln(v.w, v.styles.Muted.Render("--- following logs, Ctrl+C to stop ---"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// The logger moves to a new file at midnight.
			if latest, err := logging.Latest(dir); err == nil && latest != t.path {
				t.open(latest, false)
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			for _, line := range t.readLines() {
				if v.filter.match(line) {
					v.print(line)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Component("logs").WarnCtx("watcher error", map[string]any{"error": err})
		}
	}
}

func (v *logView) print(line string) {
	e, ok := parseLogLine(line)
	if !ok {
		fmt.Fprintln(v.w, line)
		return
	}

	var b strings.Builder
	b.WriteString(v.styles.Muted.Render(e.Time.Local().Format(time.TimeOnly)))
	b.WriteString(" ")
	b.WriteString(v.levelStyle(e.Level).Render(formatLogLevel(e.Level)))
	if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.SessionID != "" {
		b.WriteString(v.styles.Muted.Render(" session=" + shortID(e.SessionID)))
	}
	if e.Error != "" {
		b.WriteString(v.styles.Error.Render(" error=" + e.Error))
	}
	fmt.Fprintln(v.w, b.String())
}

func (v *logView) levelStyle(level string) lipgloss.Style {
	switch level {
	case "error", "fatal", "panic":
		return v.styles.Error
	case "warn":
		return v.styles.Warn
	case "debug", "trace":
		return v.styles.Muted
	default:
		return v.styles.Value
	}
}

func formatLogLevel(level string) string {
	switch level {
	case "debug":
		return "DBG"
	case "info":
		return "INF"
	case "warn":
		return "WRN"
	case "error":
		return "ERR"
	case "":
		return "???"
	}
	if len(level) > 3 {
		level = level[:3]
	}
	return strings.ToUpper(level)
}

// tailer reads lines appended to the current log file.
type tailer struct {
	path   string
	file   *os.File
	reader *bufio.Reader
}

func (t *tailer) open(path string, atEnd bool) {
	t.close()
	t.path = path
	f, err := os.Open(path)
	if err != nil {
		return
	}
	if atEnd {
		_, _ = f.Seek(0, io.SeekEnd)
	}
	t.file = f
	t.reader = bufio.NewReader(f)
}

// readLines returns complete lines written since the last call. A partial
// trailing line stays buffered until its newline arrives.
func (t *tailer) readLines() []string {
	if t.reader == nil {
		return nil
	}
	var lines []string
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			if line != "" {
				_, _ = t.file.Seek(-int64(len(line)), io.SeekCurrent)
				t.reader.Reset(t.file)
			}
			return lines
		}
		lines = append(lines, strings.TrimSuffix(line, "\n"))
	}
}

func (t *tailer) close() {
	if t.file != nil {
		_ = t.file.Close()
	}
	t.file, t.reader = nil, nil
}

func logFiles(dir string) ([]string, error) {
	files, err := logging.Files(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading log dir: %w", err)
	}
	return files, nil
}

func exportLogs(w io.Writer, dir, path string) error {
	files, err := logFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no log files found")
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export: %w", err)
	}
	defer func() { _ = out.Close() }()

	bw := bufio.NewWriter(out)
	total := 0
	for _, file := range slices.Backward(files) {
		for _, line := range readFileLines(file) {
			if _, err := bw.WriteString(line + "\n"); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			total++
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	fmt.Fprintf(w, "Exported %d log lines from %d files to %s\n", total, len(files), path)
	return nil
}

// readLastLines returns the last n lines accepted by keep from files, which
// are ordered newest first. The result is oldest first.
func readLastLines(files []string, n int, keep func(string) bool) []string {
	var lines []string
	for _, file := range files {
		if len(lines) >= n {
			break
		}
		var kept []string
		for _, line := range readFileLines(file) {
			if keep == nil || keep(line) {
				kept = append(kept, line)
			}
		}
		if remaining := n - len(lines); len(kept) > remaining {
			kept = kept[len(kept)-remaining:]
		}
		lines = append(kept, lines...)
	}
	return lines
}

func readFileLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
