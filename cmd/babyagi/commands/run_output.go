package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/orchestrator"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/state"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

// runStyles holds lipgloss styles for colored run output.
type runStyles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Accent  lipgloss.Style
}

func newRunStyles() runStyles {
	return runStyles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Success: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Accent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
	}
}

// eventPrinter streams orchestrator log entries as they are appended.
// It runs inside the orchestrator's event handler and only writes to out.
type eventPrinter struct {
	out      io.Writer
	styles   runStyles
	thinking bool
}

func newEventPrinter(out io.Writer, thinking bool) *eventPrinter {
	return &eventPrinter{out: out, styles: newRunStyles(), thinking: thinking}
}

func (p *eventPrinter) handle(e orchestrator.Event) {
	switch e.Type {
	case orchestrator.EventLog:
		if e.Entry.Type == state.LogThinking && !p.thinking {
			return
		}
		p.printEntry(e.Entry)
	case orchestrator.EventTaskStart:
		fmt.Fprintf(p.out, "%s\n", p.styles.Accent.Render(fmt.Sprintf("── iteration %d/%d ──", e.Iteration, e.MaxIter)))
	}
}

func (p *eventPrinter) printEntry(entry state.LogEntry) {
	fmt.Fprintf(p.out, "%s %s %s\n",
		p.styles.Muted.Render(entry.Timestamp.Format(time.TimeOnly)),
		entry.Icon,
		p.entryStyle(entry.Type).Render(entry.Message),
	)
}

func (p *eventPrinter) entryStyle(t state.LogType) lipgloss.Style {
	switch t {
	case state.LogError:
		return p.styles.Error
	case state.LogWarning:
		return p.styles.Warn
	case state.LogSuccess, state.LogMilestone:
		return p.styles.Success
	case state.LogThinking:
		return p.styles.Muted
	case state.LogTask:
		return p.styles.Title
	default:
		return p.styles.Value
	}
}

// endReasonText describes why a run ended.
func endReasonText(reason string) string {
	switch reason {
	case orchestrator.ReasonCompleted:
		return "objective achieved"
	case orchestrator.ReasonMaxIterations:
		return "iteration cap reached"
	case orchestrator.ReasonStopped:
		return "stopped"
	case orchestrator.ReasonCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// printRunSummary prints the closing summary for a finished run.
func printRunSummary(out io.Writer, res *runResult) {
	s := newRunStyles()
	c := tasks.Count(res.Snapshot.Tasks)

	fmt.Fprintln(out)
	fmt.Fprintln(out, s.Title.Render("Run summary"))
	fmt.Fprintf(out, "  %s %s\n", s.Label.Render("Session:   "), s.Value.Render(res.Snapshot.SessionID))
	fmt.Fprintf(out, "  %s %s\n", s.Label.Render("Objective: "), s.Value.Render(res.Snapshot.Objective))
	fmt.Fprintf(out, "  %s %s\n", s.Label.Render("Outcome:   "), s.Value.Render(endReasonText(res.Reason)))
	fmt.Fprintf(out, "  %s %d\n", s.Label.Render("Iterations:"), res.Snapshot.Iteration)
	fmt.Fprintf(out, "  %s %s\n", s.Label.Render("Tasks:     "), formatCounts(s, c))
	if res.ExportPath != "" {
		fmt.Fprintf(out, "  %s %s\n", s.Label.Render("Report:    "), s.Value.Render(res.ExportPath))
	}
}

func formatCounts(s runStyles, c tasks.Counts) string {
	text := fmt.Sprintf("%d total, %s, %d pending",
		c.Total, s.Success.Render(fmt.Sprintf("%d completed", c.Completed)), c.Pending)
	if c.Failed > 0 {
		text += ", " + s.Error.Render(fmt.Sprintf("%d failed", c.Failed))
	}
	return text
}
