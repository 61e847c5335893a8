// Package audit keeps an append-only JSONL trail of research sessions:
// runs started and finished, reports exported, sessions deleted and config
// changes. One file per day.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes audit events.
type EventType string

const (
	EventRunStart      EventType = "run_start"
	EventRunEnd        EventType = "run_end"
	EventReportExport  EventType = "report_export"
	EventSessionDelete EventType = "session_delete"
	EventConfigChange  EventType = "config_change"
)

const (
	filePrefix = "audit-"
	fileExt    = ".jsonl"
	dateLayout = "2006-01-02"
)

// Event is a single audit log entry.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"event_type"`
	RequestID string            `json:"request_id"`
	SessionID string            `json:"session_id,omitempty"`
	Agent     string            `json:"agent,omitempty"`
	Specialty string            `json:"specialty,omitempty"`
	Target    string            `json:"target,omitempty"`
	Result    string            `json:"result,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Logger writes audit events. A nil *Logger discards everything.
type Logger struct {
	dir  string
	now  func() time.Time
	mu   sync.Mutex
	file *os.File
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// Open creates dir if needed and opens today's audit file.
func Open(dir string, opts ...Option) (*Logger, error) {
	if dir == "" {
		return nil, fmt.Errorf("audit dir is empty")
	}
	// restricted: entries name research objectives
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}
	l := &Logger{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.openFile(l.now()); err != nil {
		return nil, err
	}
	return l, nil
}

// FileName returns the audit file name for day.
func FileName(day time.Time) string {
	return filePrefix + day.Format(dateLayout) + fileExt
}

func (l *Logger) openFile(day time.Time) error {
	path := filepath.Join(l.dir, FileName(day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	l.file = f
	return nil
}

// rotateLocked switches files when the day changes.
func (l *Logger) rotateLocked(now time.Time) error {
	want := filepath.Join(l.dir, FileName(now))
	if l.file != nil {
		if l.file.Name() == want {
			return nil
		}
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("closing old audit log: %w", err)
		}
		l.file = nil
	}
	return l.openFile(now)
}

// Log appends e and syncs it to disk.
func (l *Logger) Log(e Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if e.RequestID == "" {
		e.RequestID = uuid.NewString()
	}
	if err := l.rotateLocked(e.Timestamp); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	data = append(data, '\n')
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing audit log: %w", err)
	}
	return nil
}

// RunStart records the start of a run.
func (l *Logger) RunStart(sessionID, agent, specialty, objective string) error {
	return l.Log(Event{Type: EventRunStart, SessionID: sessionID, Agent: agent, Specialty: specialty, Target: objective})
}

// RunEnd records how a run finished.
func (l *Logger) RunEnd(sessionID, agent, reason string, d time.Duration, iterations int) error {
	return l.Log(Event{
		Type:      EventRunEnd,
		SessionID: sessionID,
		Agent:     agent,
		Result:    reason,
		Duration:  d,
		Metadata:  map[string]string{"iterations": fmt.Sprint(iterations)},
	})
}

// Export records a report written to path.
func (l *Logger) Export(sessionID, format, path string) error {
	return l.Log(Event{Type: EventReportExport, SessionID: sessionID, Target: path, Metadata: map[string]string{"format": format}})
}

// SessionDeleted records removal of an archived session.
func (l *Logger) SessionDeleted(sessionID string) error {
	return l.Log(Event{Type: EventSessionDelete, SessionID: sessionID})
}

// ConfigChanged records a config write. Secret values are not recorded.
func (l *Logger) ConfigChanged(path, key, value string) error {
	if isSecretKey(key) {
		value = "[redacted]"
	}
	return l.Log(Event{Type: EventConfigChange, Target: path, Metadata: map[string]string{"key": key, "value": value}})
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "api_key") || strings.Contains(key, "token") || strings.Contains(key, "secret")
}

// Close closes the current audit file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Files returns audit files in dir, newest first.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading audit dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExt) {
			files = append(files, filepath.Join(dir, name))
		}
	}
	slices.Sort(files)
	slices.Reverse(files)
	return files, nil
}

// ReadEvents reads events from one audit file. Malformed lines are skipped.
func ReadEvents(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}
