// Package reporting exports a session as a medical research report.
// Supported formats are Markdown, JSON, CSV and a PubMed-style digest.
package reporting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/medical"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/state"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

// Export formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatPubMed   = "pubmed"
)

// ErrUnknownFormat is returned for formats other than the four above.
var ErrUnknownFormat = errors.New("unknown export format")

var extensions = map[string]string{
	FormatMarkdown: ".md",
	FormatJSON:     ".json",
	FormatCSV:      ".csv",
	FormatPubMed:   ".txt",
}

// Report is the input to every exporter.
type Report struct {
	Objective     string
	Specialty     string
	CitationStyle string
	Tasks         []tasks.Task
	Log           []state.LogEntry
	GeneratedAt   time.Time
}

// FromSnapshot builds a report from a session snapshot.
func FromSnapshot(snap state.Snapshot, specialty, citationStyle string) Report {
	return Report{
		Objective:     snap.Objective,
		Specialty:     specialty,
		CitationStyle: citationStyle,
		Tasks:         snap.Tasks,
		Log:           snap.Log,
	}
}

func (r Report) generatedAt() time.Time {
	if r.GeneratedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.GeneratedAt.UTC()
}

func (r Report) citationStyle() medical.CitationFormat {
	return medical.CitationStyle(r.CitationStyle)
}

// Formats returns the supported format names.
func Formats() []string {
	return []string{FormatMarkdown, FormatJSON, FormatCSV, FormatPubMed}
}

// ParseFormat normalizes a format name. "md" and "txt" are accepted aliases.
func ParseFormat(s string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(s))
	switch f {
	case "md":
		f = FormatMarkdown
	case "txt":
		f = FormatPubMed
	}
	if !slices.Contains(Formats(), f) {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	return f, nil
}

// Extension returns the file extension for a format.
func Extension(format string) string {
	return extensions[format]
}

// Export renders r in the given format.
func Export(format string, r Report) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return []byte(RenderMarkdown(r)), nil
	case FormatJSON:
		return RenderJSON(r)
	case FormatCSV:
		return RenderCSV(r.Tasks)
	case FormatPubMed:
		return []byte(RenderPubMed(r.Tasks)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// CitationList returns one placeholder reference per completed task that
// requires citations, numbered from 1.
func CitationList(ts []tasks.Task, style medical.CitationFormat) string {
	var lines []string
	for _, t := range ts {
		if !t.CitationsRequired || t.Status != tasks.StatusCompleted {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. [Generated from task: %s] - %s", len(lines)+1, t.DisplayTitle(), style.Example))
	}
	return strings.Join(lines, "\n")
}

// DefaultReportsDir returns the default directory for exported reports.
func DefaultReportsDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "babyagi", "reports")
}

// DefaultExportPath returns the default path for an export file.
func DefaultExportPath(format string, ts time.Time) string {
	return filepath.Join(DefaultReportsDir(),
		fmt.Sprintf("medical-research-%s%s", ts.Format("2006-01-02-150405"), Extension(format)))
}

// Save writes an export to disk, creating the directory if needed.
func Save(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// evidenceLevels returns the distinct non-empty evidence levels in order of
// first appearance.
func evidenceLevels(ts []tasks.Task) []string {
	return distinct(ts, func(t tasks.Task) string { return t.EvidenceLevel })
}

func specialtiesOf(ts []tasks.Task) []string {
	return distinct(ts, func(t tasks.Task) string { return t.Specialty })
}

func distinct(ts []tasks.Task, field func(tasks.Task) string) []string {
	out := []string{}
	for _, t := range ts {
		if v := field(t); v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func filterStatus(ts []tasks.Task, status tasks.Status) []tasks.Task {
	var out []tasks.Task
	for _, t := range ts {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}
