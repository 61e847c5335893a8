// Package tasks defines the task model, task generation and display ordering.
// Tasks are produced from an objective, executed one at a time by the
// orchestrator, and spawn follow-up tasks from their results.
package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Status is the lifecycle state of a task.
//
// Lifecycle: pending -> running -> completed | failed
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority labels used by medical templates.
const (
	LabelHigh   = "high"
	LabelMedium = "medium"
	LabelLow    = "low"
)

// Priority bounds for numeric priorities.
const (
	MinPriority = 1
	MaxPriority = 10
)

// Priority is either a numeric level (1-10, 10 highest) or a coarse label.
// The zero value has a numeric value of 5, same as "medium".
type Priority struct {
	level int
	label string
}

// Level returns a numeric priority clamped to [1,10].
func Level(n int) Priority {
	return Priority{level: ClampPriority(n)}
}

// Label returns a label priority. Unknown labels map to 5 when compared.
func Label(label string) Priority {
	return Priority{label: label}
}

// ClampPriority bounds n to [MinPriority, MaxPriority].
func ClampPriority(n int) int {
	return max(MinPriority, min(MaxPriority, n))
}

// Value returns the numeric value used for ordering: labels map
// high=10, medium=5, low=1.
func (p Priority) Value() int {
	if p.label == "" {
		if p.level == 0 {
			return 5
		}
		return p.level
	}
	switch p.label {
	case LabelHigh:
		return 10
	case LabelLow:
		return 1
	default:
		return 5
	}
}

// IsLabel reports whether the priority was given as a label.
func (p Priority) IsLabel() bool {
	return p.label != ""
}

// String renders the label or the numeric level.
func (p Priority) String() string {
	if p.label != "" {
		return p.label
	}
	return strconv.Itoa(p.Value())
}

// MarshalJSON encodes labels as strings and levels as numbers.
func (p Priority) MarshalJSON() ([]byte, error) {
	if p.label != "" {
		return json.Marshal(p.label)
	}
	return json.Marshal(p.Value())
}

// UnmarshalJSON accepts either a number or a label string.
func (p *Priority) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return err
		}
		*p = Label(label)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("priority: %w", err)
	}
	*p = Level(n)
	return nil
}

// ParsePriority parses "high"/"medium"/"low" or an integer.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case LabelHigh, LabelMedium, LabelLow:
		return Label(s), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Priority{}, fmt.Errorf("invalid priority %q", s)
	}
	return Level(n), nil
}

// Task is a unit of work for the agent loop.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description"`
	Status       Status     `json:"status"`
	Priority     Priority   `json:"priority"`
	Category     Category   `json:"category,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt"`
	Result       string     `json:"result,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`

	// Medical research fields; opaque to the agent loop.
	Specialty         string `json:"specialty,omitempty"`
	StudyType         string `json:"studyType,omitempty"`
	EvidenceLevel     string `json:"evidenceLevel,omitempty"`
	CitationsRequired bool   `json:"citationsRequired,omitempty"`
	EthicalApproval   bool   `json:"ethicalApproval,omitempty"`
}

// DisplayTitle returns the title, falling back to the description.
func (t Task) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.Description
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	c := t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	if t.Dependencies != nil {
		c.Dependencies = append([]string(nil), t.Dependencies...)
	}
	return c
}

// Counts tallies tasks by status.
type Counts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Count returns status totals for ts.
func Count(ts []Task) Counts {
	c := Counts{Total: len(ts)}
	for _, t := range ts {
		switch t.Status {
		case StatusPending:
			c.Pending++
		case StatusRunning:
			c.Running++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}
