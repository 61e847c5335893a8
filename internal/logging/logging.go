// Package logging writes structured zerolog output to daily files named
// babyagi-YYYY-MM-DD.log, optionally mirrored to the console.
package logging

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FilePrefix and FileExt frame the date in log file names.
const (
	FilePrefix = "babyagi-"
	FileExt    = ".log"
	dateLayout = "2006-01-02"
)

// Config holds logging configuration.
type Config struct {
	Level         string    // debug, info, warn, error
	Path          string    // log directory; empty logs to Console only
	Format        string    // json, text
	RetentionDays int       // days of files to keep, default 7
	Console       io.Writer // extra sink, e.g. os.Stderr for --verbose
}

// Logger is a zerolog logger bound to a component and optionally a session.
type Logger struct {
	zl   zerolog.Logger
	file *dailyFile
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// Init replaces the global logger, closing the previous one's file.
func Init(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}

	globalMu.Lock()
	prev := globalLogger
	globalLogger = logger
	globalMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// New builds a logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}

	l := &Logger{}
	var sinks []io.Writer
	if cfg.Path != "" {
		dir := expandPath(cfg.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
		l.file = &dailyFile{dir: dir, now: time.Now}
		if err := l.file.rotate(time.Now()); err != nil {
			return nil, err
		}
		sinks = append(sinks, l.file)
		go prune(dir, cfg.RetentionDays, time.Now())
	}
	if cfg.Console != nil {
		sinks = append(sinks, cfg.Console)
	}

	var out io.Writer = os.Stderr
	if len(sinks) > 0 {
		out = io.MultiWriter(sinks...)
	}
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}

	l.zl = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Get returns the global logger, or a stderr logger before Init.
func Get() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return &Logger{zl: zerolog.New(os.Stderr).With().Timestamp().Logger()}
	}
	return globalLogger
}

// Component returns the global logger tagged with a component name.
func Component(name string) *Logger {
	return Get().with("component", name)
}

// WithSession tags every line with a session id, which 'babyagi logs'
// shows next to the message.
func (l *Logger) WithSession(id string) *Logger {
	if id == "" {
		return l
	}
	return l.with("session", id)
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger(), file: l.file}
}

// Info logs a message at info level.
func (l *Logger) Info(msg string) {
	l.zl.Info().Msg(msg)
}

// DebugCtx logs msg with fields at debug level.
func (l *Logger) DebugCtx(msg string, fields map[string]any) {
	l.Log(zerolog.DebugLevel, msg, fields)
}

// InfoCtx logs msg with fields at info level.
func (l *Logger) InfoCtx(msg string, fields map[string]any) {
	l.Log(zerolog.InfoLevel, msg, fields)
}

// WarnCtx logs msg with fields at warn level.
func (l *Logger) WarnCtx(msg string, fields map[string]any) {
	l.Log(zerolog.WarnLevel, msg, fields)
}

// ErrorCtx logs msg with fields at error level.
func (l *Logger) ErrorCtx(msg string, fields map[string]any) {
	l.Log(zerolog.ErrorLevel, msg, fields)
}

// Log writes msg at level. Fields are added in key order so lines are
// stable across runs.
func (l *Logger) Log(level zerolog.Level, msg string, fields map[string]any) {
	event := l.zl.WithLevel(level)
	if event == nil {
		return
	}
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		switch v := fields[k].(type) {
		case error:
			event = event.AnErr(k, v)
		default:
			event = event.Interface(k, v)
		}
	}
	event.Msg(msg)
}

// Close closes the current log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// dailyFile appends to the file for the current day and moves to a new
// file when the date changes.
type dailyFile struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	day string
	f   *os.File
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if now.Format(dateLayout) != d.day || d.f == nil {
		if err := d.rotateLocked(now); err != nil {
			return 0, err
		}
	}
	return d.f.Write(p)
}

func (d *dailyFile) rotate(now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rotateLocked(now)
}

func (d *dailyFile) rotateLocked(now time.Time) error {
	f, err := os.OpenFile(filepath.Join(d.dir, FileName(now)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	if d.f != nil {
		_ = d.f.Close()
	}
	d.f, d.day = f, now.Format(dateLayout)
	return nil
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// FileName returns the log file name for day.
func FileName(day time.Time) string {
	return FilePrefix + day.Format(dateLayout) + FileExt
}

func fileDate(name string) (time.Time, bool) {
	date, ok := strings.CutPrefix(name, FilePrefix)
	if !ok {
		return time.Time{}, false
	}
	date, ok = strings.CutSuffix(date, FileExt)
	if !ok {
		return time.Time{}, false
	}
	d, err := time.Parse(dateLayout, date)
	return d, err == nil
}

// prune removes files older than retentionDays.
func prune(dir string, retentionDays int, now time.Time) {
	files, err := Files(dir)
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	for _, path := range files {
		if d, ok := fileDate(filepath.Base(path)); ok && d.Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}

// Files returns the log files in dir, newest first.
func Files(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	dir = expandPath(dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := fileDate(e.Name()); ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	// Names embed ISO dates, so lexical order is date order.
	slices.Sort(files)
	slices.Reverse(files)
	return files, nil
}

// Latest returns the newest log file in dir.
func Latest(dir string) (string, error) {
	files, err := Files(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no log files in %s", dir)
	}
	return files[0], nil
}

func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

func expandPath(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
