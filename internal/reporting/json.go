package reporting

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/state"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

// isoLayout matches JavaScript's toISOString: UTC with milliseconds.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

func isoTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// Document is the JSON export.
type Document struct {
	Metadata          Metadata         `json:"metadata"`
	Tasks             []tasks.Task     `json:"tasks"`
	ExecutionLog      []state.LogEntry `json:"executionLog"`
	Citations         string           `json:"citations"`
	MedicalCompliance Compliance       `json:"medicalCompliance"`
}

// Metadata summarizes the export.
type Metadata struct {
	ExportDate     time.Time `json:"exportDate"`
	Objective      string    `json:"objective"`
	Specialty      string    `json:"specialty,omitempty"`
	CitationStyle  string    `json:"citationStyle,omitempty"`
	TotalTasks     int       `json:"totalTasks"`
	CompletedTasks int       `json:"completedTasks"`
	PendingTasks   int       `json:"pendingTasks"`
	FailedTasks    int       `json:"failedTasks"`
}

// Compliance aggregates the medical flags of all tasks.
type Compliance struct {
	EthicalApprovalRequired bool     `json:"ethicalApprovalRequired"`
	CitationsRequired       bool     `json:"citationsRequired"`
	EvidenceLevels          []string `json:"evidenceLevels"`
	Specialties             []string `json:"specialties"`
}

// NewDocument builds the JSON document for r. Timestamps are normalized to UTC.
func NewDocument(r Report) Document {
	counts := tasks.Count(r.Tasks)

	ts := make([]tasks.Task, len(r.Tasks))
	for i, t := range r.Tasks {
		c := t.Clone()
		c.CreatedAt = c.CreatedAt.UTC()
		if c.CompletedAt != nil {
			at := c.CompletedAt.UTC()
			c.CompletedAt = &at
		}
		ts[i] = c
	}

	log := make([]state.LogEntry, len(r.Log))
	for i, e := range r.Log {
		e.Timestamp = e.Timestamp.UTC()
		log[i] = e
	}

	doc := Document{
		Metadata: Metadata{
			ExportDate:     r.generatedAt(),
			Objective:      r.Objective,
			Specialty:      r.Specialty,
			CitationStyle:  r.CitationStyle,
			TotalTasks:     len(r.Tasks),
			CompletedTasks: counts.Completed,
			PendingTasks:   counts.Pending,
			FailedTasks:    counts.Failed,
		},
		Tasks:        ts,
		ExecutionLog: log,
		Citations:    CitationList(r.Tasks, r.citationStyle()),
		MedicalCompliance: Compliance{
			EvidenceLevels: evidenceLevels(r.Tasks),
			Specialties:    specialtiesOf(r.Tasks),
		},
	}
	for _, t := range r.Tasks {
		doc.MedicalCompliance.EthicalApprovalRequired = doc.MedicalCompliance.EthicalApprovalRequired || t.EthicalApproval
		doc.MedicalCompliance.CitationsRequired = doc.MedicalCompliance.CitationsRequired || t.CitationsRequired
	}
	return doc
}

// RenderJSON renders the JSON export, indented by two spaces.
func RenderJSON(r Report) ([]byte, error) {
	payload, err := json.MarshalIndent(NewDocument(r), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return payload, nil
}

// ParseJSON reads a JSON export back.
func ParseJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &doc, nil
}

// Report converts a parsed document back into a Report.
func (d *Document) Report() Report {
	return Report{
		Objective:     d.Metadata.Objective,
		Specialty:     d.Metadata.Specialty,
		CitationStyle: d.Metadata.CitationStyle,
		Tasks:         d.Tasks,
		Log:           d.ExecutionLog,
		GeneratedAt:   d.Metadata.ExportDate,
	}
}
