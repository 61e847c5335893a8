// Package ui is the Bubble Tea dashboard for a live run: status and
// progress, the task queue with per-task details, and the execution log.
// Keys pause, resume, stop and reset the run through a Controller.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/orchestrator"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/state"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

// Focus names the pane that receives navigation keys.
type Focus int

const (
	FocusStatus Focus = iota
	FocusTasks
	FocusLog

	focusCount
)

// RefreshInterval is how often the model polls the controller.
const RefreshInterval = 250 * time.Millisecond

// Controller is the part of the orchestrator the UI drives.
type Controller interface {
	Pause() error
	Resume() error
	Stop() error
	Reset()
	State() orchestrator.State
	Snapshot() state.Snapshot
}

// Model holds the TUI state.
type Model struct {
	ctrl Controller

	width    int
	height   int
	focus    Focus
	quitting bool

	// Run state, refreshed from the controller
	snap          state.Snapshot
	runState      orchestrator.State
	maxIterations int
	label         string
	lastErr       string

	// tasks is the queue in display order; detail shows the selected
	// task in full instead of the list.
	tasks    []tasks.Task
	selected int
	detail   bool

	// logScroll is the index of the last visible log entry.
	logScroll int
	follow    bool

	progressTick int

	keys   KeyMap
	styles *Styles
}

// Styles holds lipgloss styles for the UI.
type Styles struct {
	ActiveBorder   lipgloss.Style
	InactiveBorder lipgloss.Style

	Title     lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Highlight lipgloss.Style
	Muted     lipgloss.Style

	StatusOK      lipgloss.Style
	StatusWarn    lipgloss.Style
	StatusError   lipgloss.Style
	StatusRunning lipgloss.Style

	TaskSelected lipgloss.Style

	LogThinking  lipgloss.Style
	LogInfo      lipgloss.Style
	LogSuccess   lipgloss.Style
	LogWarn      lipgloss.Style
	LogError     lipgloss.Style
	LogMilestone lipgloss.Style

	HelpKey  lipgloss.Style
	HelpText lipgloss.Style
}

func newStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green := lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#b08800", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}
	blue := lipgloss.AdaptiveColor{Light: "#0366d6", Dark: "#58a6ff"}
	purple := lipgloss.AdaptiveColor{Light: "#6f42c1", Dark: "#d2a8ff"}

	return &Styles{
		ActiveBorder:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(highlight),
		InactiveBorder: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(subtle),

		Title:     lipgloss.NewStyle().Bold(true).Foreground(highlight).MarginBottom(1),
		Label:     lipgloss.NewStyle().Foreground(subtle),
		Value:     lipgloss.NewStyle().Bold(true),
		Highlight: lipgloss.NewStyle().Foreground(highlight).Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(subtle),

		StatusOK:      lipgloss.NewStyle().Foreground(green).Bold(true),
		StatusWarn:    lipgloss.NewStyle().Foreground(yellow).Bold(true),
		StatusError:   lipgloss.NewStyle().Foreground(red).Bold(true),
		StatusRunning: lipgloss.NewStyle().Foreground(blue).Bold(true),

		TaskSelected: lipgloss.NewStyle().Background(highlight).Foreground(lipgloss.Color("#fff")).Bold(true),

		LogThinking:  lipgloss.NewStyle().Foreground(subtle),
		LogInfo:      lipgloss.NewStyle().Foreground(blue),
		LogSuccess:   lipgloss.NewStyle().Foreground(green),
		LogWarn:      lipgloss.NewStyle().Foreground(yellow),
		LogError:     lipgloss.NewStyle().Foreground(red),
		LogMilestone: lipgloss.NewStyle().Foreground(purple).Bold(true),

		HelpKey:  lipgloss.NewStyle().Foreground(highlight).Bold(true),
		HelpText: lipgloss.NewStyle().Foreground(subtle),
	}
}

// tickMsg drives the spinner and the refresh poll.
type tickMsg time.Time

// snapshotMsg carries a fresh copy of the run.
type snapshotMsg struct {
	snap  state.Snapshot
	state orchestrator.State
}

// errMsg reports a failed control action.
type errMsg struct{ err error }

// Option configures a Model.
type Option func(*Model)

// WithMaxIterations sets the cap shown next to the iteration counter.
func WithMaxIterations(n int) Option {
	return func(m *Model) {
		m.maxIterations = n
	}
}

// WithLabel sets a subtitle such as the medical specialty.
func WithLabel(label string) Option {
	return func(m *Model) {
		m.label = label
	}
}

// New creates a model driving ctrl. A nil controller gives a static view.
func New(ctrl Controller, opts ...Option) *Model {
	m := &Model{
		ctrl:     ctrl,
		width:    80,
		height:   24,
		focus:    FocusStatus,
		runState: orchestrator.StateIdle,
		follow:   true,
		keys:     DefaultKeyMap(),
		styles:   newStyles(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.refresh())
}

func tickCmd() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh polls the controller off the update goroutine.
func (m Model) refresh() tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		return snapshotMsg{snap: ctrl.Snapshot(), state: ctrl.State()}
	}
}

// action runs a control call off the update goroutine and refreshes.
func (m Model) action(fn func() error) tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := fn(); err != nil {
			return errMsg{err}
		}
		return snapshotMsg{snap: ctrl.Snapshot(), state: ctrl.State()}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.progressTick++
		return m, tea.Batch(tickCmd(), m.refresh())

	case snapshotMsg:
		m.apply(msg.snap, msg.state)
		return m, nil

	case errMsg:
		m.lastErr = msg.err.Error()
		return m, nil
	}

	return m, nil
}

// apply replaces the displayed run with snap.
func (m *Model) apply(snap state.Snapshot, st orchestrator.State) {
	m.snap = snap
	m.runState = st
	m.lastErr = ""
	m.tasks = tasks.Prioritize(snap.Tasks)
	if m.selected >= len(m.tasks) {
		m.selected = max(len(m.tasks)-1, 0)
	}
	if m.follow {
		m.logScroll = max(len(snap.Log)-1, 0)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Pause):
		if m.ctrl == nil {
			return m, nil
		}
		if m.runState == orchestrator.StatePaused {
			return m, m.action(m.ctrl.Resume)
		}
		return m, m.action(m.ctrl.Pause)

	case key.Matches(msg, m.keys.Stop):
		if m.ctrl == nil {
			return m, nil
		}
		return m, m.action(m.ctrl.Stop)

	case key.Matches(msg, m.keys.Reset):
		if m.ctrl == nil {
			return m, nil
		}
		ctrl := m.ctrl
		return m, m.action(func() error { ctrl.Reset(); return nil })

	case key.Matches(msg, m.keys.NextPane):
		m.focus = (m.focus + 1) % focusCount
		m.detail = false
		return m, nil

	case key.Matches(msg, m.keys.PrevPane):
		m.focus = (m.focus + focusCount - 1) % focusCount
		m.detail = false
		return m, nil

	case key.Matches(msg, m.keys.Detail):
		if m.focus == FocusTasks && len(m.tasks) > 0 {
			m.detail = !m.detail
		}
		return m, nil

	case key.Matches(msg, m.keys.Back):
		m.detail = false
		return m, nil

	case key.Matches(msg, m.keys.Up):
		return m.move(-1), nil

	case key.Matches(msg, m.keys.Down):
		return m.move(1), nil

	case key.Matches(msg, m.keys.Top):
		return m.jump(false), nil

	case key.Matches(msg, m.keys.Bottom):
		return m.jump(true), nil
	}

	return m, nil
}

// move shifts the selection in the focused pane by delta. Scrolling the
// log back stops it following new entries; reaching the end resumes.
func (m Model) move(delta int) Model {
	switch m.focus {
	case FocusTasks:
		m.selected = clamp(m.selected+delta, 0, len(m.tasks)-1)
	case FocusLog:
		last := len(m.snap.Log) - 1
		m.logScroll = clamp(m.logScroll+delta, 0, last)
		m.follow = m.logScroll == last
	}
	return m
}

// jump moves to the first or last item of the focused pane.
func (m Model) jump(end bool) Model {
	switch m.focus {
	case FocusTasks:
		m.selected = 0
		if end {
			m.selected = max(len(m.tasks)-1, 0)
		}
	case FocusLog:
		m.logScroll = 0
		if end {
			m.logScroll = max(len(m.snap.Log)-1, 0)
		}
		m.follow = end
	}
	return m
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	topHeight := m.height / 2
	bottomHeight := m.height - topHeight - 3
	leftWidth := m.width / 2
	rightWidth := m.width - leftWidth

	statusBorder := m.border(FocusStatus).Width(leftWidth - 2).Height(topHeight - 2)
	taskBorder := m.border(FocusTasks).Width(rightWidth - 2).Height(topHeight - 2)
	logBorder := m.border(FocusLog).Width(m.width - 2).Height(bottomHeight - 2)

	taskPane := m.renderTaskPanel(rightWidth-2, topHeight-2)
	if m.detail && m.selected < len(m.tasks) {
		taskPane = m.renderTaskDetail(m.tasks[m.selected], rightWidth-2)
	}
	topRow := lipgloss.JoinHorizontal(
		lipgloss.Top,
		statusBorder.Render(m.renderStatusPanel(leftWidth-2)),
		taskBorder.Render(taskPane),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		topRow,
		logBorder.Render(m.renderLogPanel(m.width-2, bottomHeight-2)),
		m.renderHelpBar(),
	)
}

func (m Model) border(f Focus) lipgloss.Style {
	if m.focus == f {
		return m.styles.ActiveBorder
	}
	return m.styles.InactiveBorder
}

func (m Model) renderStatusPanel(width int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("BabyAGI"))
	if m.label != "" {
		b.WriteString(" " + m.styles.Muted.Render(m.label))
	}
	b.WriteString("\n\n")

	b.WriteString(m.styles.Label.Render("Objective: "))
	if m.snap.Objective != "" {
		b.WriteString(m.styles.Value.Render(truncate(m.snap.Objective, width-12)))
	} else {
		b.WriteString(m.styles.Muted.Render("None"))
	}
	b.WriteString("\n\n")

	b.WriteString(m.styles.Label.Render("State: "))
	b.WriteString(m.stateStyle().Render(stateLabel(m.runState)))
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Iteration: "))
	iter := fmt.Sprintf("%d", m.snap.Iteration)
	if m.maxIterations > 0 {
		iter += fmt.Sprintf(" / %d", m.maxIterations)
	}
	b.WriteString(m.styles.Value.Render(iter))
	b.WriteString("\n\n")

	c := tasks.Count(m.snap.Tasks)
	pct := 0
	if c.Total > 0 {
		pct = c.Completed * 100 / c.Total
	}
	b.WriteString(m.styles.Label.Render("Progress: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d/%d tasks (%d%%)", c.Completed, c.Total, pct)))
	if c.Failed > 0 {
		b.WriteString(" " + m.styles.StatusError.Render(fmt.Sprintf("%d failed", c.Failed)))
	}
	b.WriteString("\n")
	b.WriteString(m.renderProgressBar(pct, width-4))

	if !m.snap.StartedAt.IsZero() {
		b.WriteString("\n\n")
		b.WriteString(m.styles.Label.Render("Elapsed: "))
		b.WriteString(m.styles.Value.Render(formatDuration(time.Since(m.snap.StartedAt))))
	}

	if m.lastErr != "" {
		b.WriteString("\n\n")
		b.WriteString(m.styles.StatusError.Render(m.lastErr))
	}

	return b.String()
}

func (m Model) stateStyle() lipgloss.Style {
	switch m.runState {
	case orchestrator.StateRunning:
		return m.styles.StatusRunning
	case orchestrator.StatePaused:
		return m.styles.StatusWarn
	case orchestrator.StateStopped:
		return m.styles.StatusOK
	default:
		return m.styles.Muted
	}
}

func stateLabel(s orchestrator.State) string {
	switch s {
	case orchestrator.StateRunning:
		return "Running"
	case orchestrator.StatePaused:
		return "Paused"
	case orchestrator.StateStopped:
		return "Stopped"
	default:
		return "Idle"
	}
}

func (m Model) renderProgressBar(pct, width int) string {
	width = max(width, 10)
	filled := min(width*pct/100, width)

	style := m.styles.StatusRunning
	if pct >= 100 {
		style = m.styles.StatusOK
	}
	return style.Render(strings.Repeat("█", filled)) + m.styles.Muted.Render(strings.Repeat("░", width-filled))
}

func (m Model) renderTaskPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Tasks"))
	b.WriteString("\n\n")

	if len(m.tasks) == 0 {
		b.WriteString(m.styles.Muted.Render("No tasks queued"))
		return b.String()
	}

	// Keep the selection on screen.
	visible := max(height-4, 1)
	scroll := max(m.selected-visible+1, 0)

	for i := scroll; i < len(m.tasks) && i < scroll+visible; i++ {
		t := m.tasks[i]
		icon, style := m.taskIcon(t.Status)
		line := fmt.Sprintf(" %s %s %s",
			style.Render(icon),
			m.styles.Muted.Render(fmt.Sprintf("[%s]", t.Priority)),
			truncate(t.DisplayTitle(), width-12),
		)
		if i == m.selected && m.focus == FocusTasks {
			line = m.styles.TaskSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(m.tasks) > visible {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" [%d/%d]", scroll+1, len(m.tasks))))
	}
	return b.String()
}

// renderTaskDetail shows one task with its medical metadata and result.
func (m Model) renderTaskDetail(t tasks.Task, width int) string {
	var b strings.Builder
	icon, style := m.taskIcon(t.Status)
	b.WriteString(m.styles.Title.Render("Task " + t.ID))
	b.WriteString("\n\n")

	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(m.styles.Label.Render(label + ": "))
		b.WriteString(truncate(value, width-len(label)-2))
		b.WriteString("\n")
	}
	b.WriteString(style.Render(icon) + " " + m.styles.Value.Render(truncate(t.DisplayTitle(), width-2)) + "\n")
	if t.Title != "" {
		field("Description", t.Description)
	}
	field("Priority", t.Priority.String())
	field("Category", string(t.Category))
	field("Specialty", t.Specialty)
	field("Study type", t.StudyType)
	field("Evidence", t.EvidenceLevel)
	var flags []string
	if t.CitationsRequired {
		flags = append(flags, "citations required")
	}
	if t.EthicalApproval {
		flags = append(flags, "ethics approval")
	}
	field("Requires", strings.Join(flags, ", "))
	if t.Result != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Label.Render("Result:"))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(max(width-2, 10)).Render(t.Result))
	}
	b.WriteString("\n\n")
	b.WriteString(m.styles.Muted.Render("esc to go back"))
	return b.String()
}

func (m Model) taskIcon(s tasks.Status) (string, lipgloss.Style) {
	switch s {
	case tasks.StatusRunning:
		return m.spinner(), m.styles.StatusRunning
	case tasks.StatusCompleted:
		return "*", m.styles.StatusOK
	case tasks.StatusFailed:
		return "x", m.styles.StatusError
	default:
		return "o", m.styles.Muted
	}
}

func (m Model) spinner() string {
	frames := []string{"|", "/", "-", "\\"}
	return frames[m.progressTick%len(frames)]
}

func (m Model) renderLogPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Execution Log"))
	b.WriteString("\n\n")

	entries := m.snap.Log
	if len(entries) == 0 {
		b.WriteString(m.styles.Muted.Render("No log entries yet"))
		return b.String()
	}

	visible := max(height-4, 1)
	end := min(m.logScroll+1, len(entries))
	start := max(end-visible, 0)

	for _, e := range entries[start:end] {
		line := fmt.Sprintf("%s %s %s",
			m.styles.Muted.Render(e.Timestamp.Format(time.TimeOnly)),
			e.Icon,
			m.logStyle(e.Type).Render(truncate(e.Message, width-16)),
		)
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(entries) > visible {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" [%d/%d]", end, len(entries))))
	}
	return b.String()
}

func (m Model) logStyle(t state.LogType) lipgloss.Style {
	switch t {
	case state.LogThinking:
		return m.styles.LogThinking
	case state.LogSuccess, state.LogResult:
		return m.styles.LogSuccess
	case state.LogWarning:
		return m.styles.LogWarn
	case state.LogError:
		return m.styles.LogError
	case state.LogMilestone:
		return m.styles.LogMilestone
	default:
		return m.styles.LogInfo
	}
}

func (m Model) renderHelpBar() string {
	items := m.helpBindings()
	parts := make([]string, len(items))
	for i, b := range items {
		h := b.Help()
		parts[i] = m.styles.HelpKey.Render(h.Key) + " " + m.styles.HelpText.Render(h.Desc)
	}
	return " " + strings.Join(parts, m.styles.Muted.Render(" · "))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// Run starts the TUI and blocks until the user quits or ctx is done.
func (m *Model) Run(ctx context.Context) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
