// Package state holds the run state of one agent session: the objective,
// the task queue, the execution log and the loop control flags.
// All mutation goes through Session methods; readers get copies.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

// LogType classifies execution log entries.
type LogType string

const (
	LogInfo      LogType = "info"
	LogSuccess   LogType = "success"
	LogWarning   LogType = "warning"
	LogError     LogType = "error"
	LogTask      LogType = "task"
	LogResult    LogType = "result"
	LogThinking  LogType = "thinking"
	LogMilestone LogType = "milestone"
)

var defaultIcons = map[LogType]string{
	LogInfo:      "📝",
	LogSuccess:   "✅",
	LogWarning:   "⚠️",
	LogError:     "❌",
	LogTask:      "▶️",
	LogResult:    "📊",
	LogThinking:  "🔍",
	LogMilestone: "🎯",
}

// DefaultIcon returns the icon used when an entry is appended without one.
func DefaultIcon(t LogType) string {
	return defaultIcons[t]
}

// LogEntry is one line of the execution log.
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      LogType        `json:"type"`
	Message   string         `json:"message"`
	Icon      string         `json:"icon"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	SessionID string       `json:"sessionId"`
	Objective string       `json:"objective"`
	StartedAt time.Time    `json:"startedAt"`
	Tasks     []tasks.Task `json:"tasks"`
	Log       []LogEntry   `json:"executionLog"`
	Iteration int          `json:"currentIteration"`
	Running   bool         `json:"isRunning"`
	Paused    bool         `json:"isPaused"`
}

// Session is the mutable state of one agent run.
type Session struct {
	mu         sync.RWMutex
	id         string
	objective  string
	startedAt  time.Time
	tasks      []tasks.Task
	index      map[string]int
	log        []LogEntry
	lastLogAt  time.Time
	iteration  int
	running    bool
	paused     bool
	generation uint64

	now func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the time source for log timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New creates an empty session with a fresh id.
func New(opts ...Option) *Session {
	s := &Session{
		id:    uuid.NewString(),
		index: make(map[string]int),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Objective returns the current objective.
func (s *Session) Objective() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objective
}

// SetObjective sets the objective. It is read-only once a run has started.
func (s *Session) SetObjective(objective string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objective = objective
}

// AddTasks appends tasks to the queue in order. Tasks with a duplicate id
// are ignored.
func (s *Session) AddTasks(ts ...tasks.Task) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, t := range ts {
		if _, dup := s.index[t.ID]; dup {
			continue
		}
		s.index[t.ID] = len(s.tasks)
		s.tasks = append(s.tasks, t.Clone())
		added++
	}
	return added
}

// Tasks returns a copy of the queue in insertion order.
func (s *Session) Tasks() []tasks.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTasks(s.tasks)
}

// Task returns a copy of the task with the given id.
func (s *Session) Task(id string) (tasks.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return tasks.Task{}, false
	}
	return s.tasks[i].Clone(), true
}

// Pending returns pending tasks in insertion order.
func (s *Session) Pending() []tasks.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []tasks.Task
	for _, t := range s.tasks {
		if t.Status == tasks.StatusPending {
			out = append(out, t.Clone())
		}
	}
	return out
}

// NextPending returns the first pending task in insertion order.
func (s *Session) NextPending() (tasks.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.Status == tasks.StatusPending {
			return t.Clone(), true
		}
	}
	return tasks.Task{}, false
}

// MarkRunning moves a pending task to running.
func (s *Session) MarkRunning(id string) error {
	return s.transition(id, func(t *tasks.Task) error {
		if t.Status != tasks.StatusPending {
			return fmt.Errorf("task %s is %s, not pending", id, t.Status)
		}
		t.Status = tasks.StatusRunning
		return nil
	})
}

// Complete moves a running task to completed and records its result.
func (s *Session) Complete(id, result string, at time.Time) error {
	return s.transition(id, func(t *tasks.Task) error {
		if t.Status != tasks.StatusRunning {
			return fmt.Errorf("task %s is %s, not running", id, t.Status)
		}
		t.Status = tasks.StatusCompleted
		t.Result = result
		t.CompletedAt = &at
		return nil
	})
}

// Fail moves a running task to failed with the error message as result.
func (s *Session) Fail(id, message string) error {
	return s.transition(id, func(t *tasks.Task) error {
		if t.Status != tasks.StatusRunning {
			return fmt.Errorf("task %s is %s, not running", id, t.Status)
		}
		t.Status = tasks.StatusFailed
		t.Result = message
		return nil
	})
}

func (s *Session) transition(id string, fn func(*tasks.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	return fn(&s.tasks[i])
}

// AppendLog appends an entry and returns it with id, timestamp and icon
// filled in. Timestamps never go backwards.
func (s *Session) AppendLog(typ LogType, message, icon string, metadata map[string]any) LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	if ts.Before(s.lastLogAt) {
		ts = s.lastLogAt
	}
	s.lastLogAt = ts

	if icon == "" {
		icon = DefaultIcon(typ)
	}
	e := LogEntry{
		ID:        "log-" + uuid.NewString(),
		Timestamp: ts,
		Type:      typ,
		Message:   message,
		Icon:      icon,
		Metadata:  metadata,
	}
	s.log = append(s.log, e)
	return e
}

// Log returns a copy of the execution log.
func (s *Session) Log() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.log)
}

// HasLog reports whether an entry with the given type and message exists.
func (s *Session) HasLog(typ LogType, message string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.log, func(e LogEntry) bool {
		return e.Type == typ && e.Message == message
	})
}

// Iteration returns the number of dequeued tasks.
func (s *Session) Iteration() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iteration
}

// IncrementIteration bumps the iteration counter and returns the new value.
func (s *Session) IncrementIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iteration++
	return s.iteration
}

// SetRunning sets the running flag. Starting a run records the start time;
// stopping also clears the paused flag.
func (s *Session) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if running && !s.running {
		s.startedAt = s.now()
	}
	s.running = running
	if !running {
		s.paused = false
	}
}

// SetPaused sets the paused flag.
func (s *Session) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Running reports whether a run is active (possibly paused).
func (s *Session) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Paused reports whether the active run is paused.
func (s *Session) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Generation changes on every Reset. Work started under an older
// generation must not be applied.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Progress returns completed and total task counts.
func (s *Session) Progress() (completed, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.Status == tasks.StatusCompleted {
			completed++
		}
	}
	return completed, len(s.tasks)
}

// Reset discards the objective, tasks, log and counters and issues a new
// session id.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.NewString()
	s.objective = ""
	s.startedAt = time.Time{}
	s.tasks = nil
	s.index = make(map[string]int)
	s.log = nil
	s.lastLogAt = time.Time{}
	s.iteration = 0
	s.running = false
	s.paused = false
	s.generation++
}

// Snapshot returns a deep copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		SessionID: s.id,
		Objective: s.objective,
		StartedAt: s.startedAt,
		Tasks:     cloneTasks(s.tasks),
		Log:       slices.Clone(s.log),
		Iteration: s.iteration,
		Running:   s.running,
		Paused:    s.paused,
	}
}

// WriteFile saves a snapshot as indented JSON, atomically via a temp file.
func (snap Snapshot) WriteFile(path string) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot written by WriteFile.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parsing snapshot: %w", err)
	}
	return snap, nil
}

func cloneTasks(ts []tasks.Task) []tasks.Task {
	if ts == nil {
		return nil
	}
	out := make([]tasks.Task, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}
