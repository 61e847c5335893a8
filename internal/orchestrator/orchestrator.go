// Package orchestrator drives the agent loop: it dequeues pending tasks one
// at a time, runs them through an agent, records results and follow-ups, and
// stops when the queue drains or the iteration cap is reached.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/agents"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/config"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/logging"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/medical"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/metrics"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/state"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

// Fixed log messages.
const (
	MsgNoObjective  = "Please enter an objective first"
	MsgObjectiveSet = "Objective set successfully"
	MsgThinking     = "Processing task..."
	MsgAchieved     = "🎉 All tasks completed! Objective achieved!"
	MsgPaused       = "Agent paused"
	MsgResumed      = "Agent resumed"
	MsgStopped      = "Agent stopped"
	MsgReset        = "Agent reset"
)

// Run end reasons.
const (
	ReasonCompleted     = "completed"
	ReasonMaxIterations = "max_iterations"
	ReasonStopped       = "stopped"
	ReasonCancelled     = "cancelled"
)

// Milestones are the exact completion percentages that get a log entry.
var Milestones = []int{25, 50, 75, 100}

var (
	ErrEmptyObjective = errors.New("objective is empty")
	ErrAlreadyRunning = errors.New("agent is already running")
	ErrNotRunning     = errors.New("agent is not running")
	ErrNoAgent        = errors.New("no agent configured")
)

// State is the loop state derived from the session flags.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Config holds orchestrator configuration.
type Config struct {
	Settings config.Settings
	Medical  config.MedicalConfig
}

// DefaultConfig returns default orchestrator config.
func DefaultConfig() Config {
	return Config{Settings: config.DefaultSettings()}
}

// Orchestrator runs one session at a time.
type Orchestrator struct {
	agent        agents.Agent
	gen          *tasks.Generator
	session      *state.Session
	config       Config
	logger       *logging.Logger
	metrics      *metrics.Recorder
	eventHandler EventHandler // optional callback for real-time events
	now          func() time.Time

	// tickMu is held for a whole tick, including the executor call.
	tickMu sync.Mutex

	mu      sync.Mutex
	run     uint64 // bumped on start, stop and reset; loops exit when it moves
	runCfg  Config // settings snapshot for the active run
	stopped bool
	wake    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAgent sets the agent for task execution.
func WithAgent(a agents.Agent) Option {
	return func(o *Orchestrator) {
		o.agent = a
	}
}

// WithGenerator sets the task generator.
func WithGenerator(g *tasks.Generator) Option {
	return func(o *Orchestrator) {
		o.gen = g
	}
}

// WithSession sets the session the orchestrator mutates.
func WithSession(s *state.Session) Option {
	return func(o *Orchestrator) {
		o.session = s
	}
}

// WithConfig sets orchestrator configuration.
func WithConfig(c Config) Option {
	return func(o *Orchestrator) {
		o.config = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithEventHandler sets an optional callback for real-time orchestrator events.
func WithEventHandler(h EventHandler) Option {
	return func(o *Orchestrator) {
		o.eventHandler = h
	}
}

// WithClock sets the time source for completion timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator with the given options.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config: DefaultConfig(),
		logger: logging.Component("orchestrator"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.gen == nil {
		o.gen = tasks.NewGenerator(tasks.WithClock(o.now))
	}
	if o.session == nil {
		o.session = state.New(state.WithClock(o.now))
	}
	return o
}

// emit sends an event to the registered handler, if any.
func (o *Orchestrator) emit(e Event) {
	if o.eventHandler != nil {
		e.Time = o.now()
		e.SessionID = o.session.ID()
		o.eventHandler(e)
	}
}

// Session returns the session being driven.
func (o *Orchestrator) Session() *state.Session {
	return o.session
}

// Snapshot returns a copy of the session.
func (o *Orchestrator) Snapshot() state.Snapshot {
	return o.session.Snapshot()
}

// UpdateSettings replaces the settings. A running loop keeps the snapshot it
// took at start; the new values apply to the next run.
func (o *Orchestrator) UpdateSettings(s config.Settings) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.config.Settings = s
}

// UpdateMedical replaces the medical configuration for the next run.
func (o *Orchestrator) UpdateMedical(m config.MedicalConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.config.Medical = m
}

// State returns the current loop state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked()
}

func (o *Orchestrator) stateLocked() State {
	switch {
	case o.session.Running() && o.session.Paused():
		return StatePaused
	case o.session.Running():
		return StateRunning
	case o.stopped:
		return StateStopped
	default:
		return StateIdle
	}
}

// Start generates the initial tasks for objective and starts the loop in a
// new goroutine. The first tick fires immediately. An empty objective is
// logged and rejected without changing state.
func (o *Orchestrator) Start(ctx context.Context, objective string) error {
	objective = strings.TrimSpace(objective)

	o.mu.Lock()
	defer o.mu.Unlock()

	if objective == "" {
		o.log(state.LogError, MsgNoObjective, "", nil)
		return ErrEmptyObjective
	}
	if o.session.Running() {
		return ErrAlreadyRunning
	}
	if o.agent == nil {
		return ErrNoAgent
	}

	// A finished run's tasks and counters do not carry over.
	if len(o.session.Tasks()) > 0 || o.session.Iteration() > 0 {
		o.session.Reset()
	}
	hadObjectiveError := o.session.HasLog(state.LogError, MsgNoObjective)
	o.session.SetObjective(objective)
	if hadObjectiveError {
		o.log(state.LogInfo, MsgObjectiveSet, "✅", nil)
	}

	cfg := o.config
	initial, source := o.initialTasks(objective, cfg.Medical)
	added := o.session.AddTasks(initial...)
	o.log(state.LogInfo, fmt.Sprintf("Generated %d initial tasks", added), "", nil)
	o.metrics.TasksQueued(source, added)
	o.emit(Event{Type: EventTasksAdded, Count: added, Message: source})

	o.runCfg = cfg
	o.stopped = false
	o.run++
	token := o.run
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.wake = make(chan struct{}, 1)
	o.done = make(chan struct{})
	o.session.SetRunning(true)
	o.metrics.SetPending(len(o.session.Pending()))

	o.logger.InfoCtx("run started", map[string]any{
		"session":        o.session.ID(),
		"agent":          o.agent.Name(),
		"objective":      objective,
		"tasks":          added,
		"max_iterations": o.maxIterations(),
	})
	o.emit(Event{Type: EventRunStart, Message: objective, MaxIter: o.maxIterations(), State: StateRunning})

	go o.loop(runCtx, token, o.wake, o.done)
	return nil
}

// initialTasks returns the starting queue in generator order and its source
// label. Medical mode falls back to the generic generator when the catalog
// has no templates for the selection.
func (o *Orchestrator) initialTasks(objective string, m config.MedicalConfig) ([]tasks.Task, string) {
	if m.Enabled {
		if ts := medical.DefaultCatalog().Generate(objective, m.Specialty, m.StudyType, o.now()); len(ts) > 0 {
			return ts, "medical"
		}
	}
	return o.gen.Initial(objective), "initial"
}

// Run starts the loop and blocks until it finishes. Cancelling ctx stops the
// run and waits for any in-flight task to be recorded.
func (o *Orchestrator) Run(ctx context.Context, objective string) error {
	if err := o.Start(ctx, objective); err != nil {
		return err
	}
	done := o.Done()
	select {
	case <-done:
		return ctx.Err()
	case <-ctx.Done():
		_ = o.Stop()
		<-done
		return ctx.Err()
	}
}

// Done returns a channel closed when the current loop goroutine exits.
// It is nil before the first Start.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Wait blocks until the current loop goroutine exits.
func (o *Orchestrator) Wait() {
	if done := o.Done(); done != nil {
		<-done
	}
}

func (o *Orchestrator) loop(ctx context.Context, token uint64, wake <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer o.abandon(token)

	for {
		if o.isPaused(token) {
			select {
			case <-wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		if !o.tick(ctx, token) {
			return
		}

		timer := time.NewTimer(o.delay())
		select {
		case <-timer.C:
		case <-wake:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// abandon marks a run stopped when its context ended without Stop.
func (o *Orchestrator) abandon(token uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if token == o.run && o.session.Running() {
		o.finishLocked(ReasonCancelled)
	}
}

func (o *Orchestrator) isPaused(token uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return token == o.run && o.session.Paused()
}

func (o *Orchestrator) delay() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return max(0, o.runCfg.Settings.Delay())
}

// maxIterations is the run's cap. Zero stops the run on its first tick.
func (o *Orchestrator) maxIterations() int {
	return max(0, o.runCfg.Settings.MaxIterations)
}

// Tick runs one loop step for the active run and reports whether the loop
// should continue. Ticks never overlap.
func (o *Orchestrator) Tick(ctx context.Context) bool {
	o.mu.Lock()
	token := o.run
	o.mu.Unlock()
	return o.tick(ctx, token)
}

func (o *Orchestrator) tick(ctx context.Context, token uint64) bool {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	o.mu.Lock()
	if token != o.run || !o.session.Running() {
		o.mu.Unlock()
		return false
	}
	if o.session.Paused() {
		o.mu.Unlock()
		return true
	}

	generation := o.session.Generation()
	maxIter := o.maxIterations()

	if o.session.Iteration() >= maxIter {
		o.log(state.LogWarning, fmt.Sprintf("Reached maximum iterations (%d)", maxIter), "", nil)
		o.finishLocked(ReasonMaxIterations)
		o.mu.Unlock()
		return false
	}
	task, ok := o.session.NextPending()
	if !ok {
		o.log(state.LogMilestone, MsgAchieved, "", nil)
		o.finishLocked(ReasonCompleted)
		o.mu.Unlock()
		return false
	}

	if err := o.session.MarkRunning(task.ID); err != nil {
		o.logger.ErrorCtx("cannot start task", map[string]any{"task_id": task.ID, "error": err})
		o.mu.Unlock()
		return false
	}
	iteration := o.session.IncrementIteration()
	o.metrics.TaskStarted()
	o.emit(Event{
		Type:      EventTaskStart,
		Iteration: iteration,
		MaxIter:   maxIter,
		TaskID:    task.ID,
		TaskTitle: task.DisplayTitle(),
		Message:   task.Description,
	})
	o.log(state.LogTask, "Starting: "+task.Description, "", map[string]any{"task_id": task.ID, "iteration": iteration})
	o.log(state.LogThinking, MsgThinking, "", nil)

	objective := o.session.Objective()
	settings := o.runCfg.Settings
	o.mu.Unlock()

	// Stop cancels ctx; the in-flight call is still allowed to finish.
	start := o.now()
	res, err := o.agent.Execute(context.WithoutCancel(ctx), agents.ExecuteOptions{
		Description: task.Description,
		Objective:   objective,
		Settings:    settings,
	})
	elapsed := o.now().Sub(start)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session.Generation() != generation {
		o.logger.InfoCtx("discarding result from reset session", map[string]any{"task_id": task.ID})
		return false
	}

	if msg, failed := failure(res, err); failed {
		if ferr := o.session.Fail(task.ID, msg); ferr != nil {
			o.logger.ErrorCtx("cannot fail task", map[string]any{"task_id": task.ID, "error": ferr})
		}
		o.log(state.LogError, fmt.Sprintf("Failed: %s - %s", task.Description, msg), "", map[string]any{"task_id": task.ID})
		o.metrics.TaskFinished(o.agent.Name(), string(tasks.StatusFailed), elapsed)
		o.metrics.SetPending(len(o.session.Pending()))
		o.emit(Event{Type: EventTaskEnd, Iteration: iteration, TaskID: task.ID, TaskTitle: task.DisplayTitle(), Status: tasks.StatusFailed, Duration: elapsed, Error: msg})
		return token == o.run && o.session.Running()
	}

	if cerr := o.session.Complete(task.ID, res.Output, o.now()); cerr != nil {
		o.logger.ErrorCtx("cannot complete task", map[string]any{"task_id": task.ID, "error": cerr})
	}
	o.log(state.LogSuccess, "Completed: "+task.Description, "", map[string]any{"task_id": task.ID})
	o.log(state.LogResult, "Result: "+res.Output, "", nil)
	o.metrics.TaskFinished(o.agent.Name(), string(tasks.StatusCompleted), elapsed)
	o.emit(Event{Type: EventTaskEnd, Iteration: iteration, TaskID: task.ID, TaskTitle: task.DisplayTitle(), Status: tasks.StatusCompleted, Duration: elapsed})

	done, _ := o.session.Task(task.ID)
	if added := o.session.AddTasks(o.gen.FollowUps(done, res.Output, objective)...); added > 0 {
		o.log(state.LogInfo, fmt.Sprintf("Generated %d follow-up task(s)", added), "", nil)
		o.metrics.TasksQueued("follow_up", added)
		o.emit(Event{Type: EventTasksAdded, Count: added, Message: "follow_up"})
	}
	o.metrics.SetPending(len(o.session.Pending()))

	completed, total := o.session.Progress()
	for _, p := range Milestones {
		if completed*100 == p*total {
			o.log(state.LogMilestone, fmt.Sprintf("Milestone: %d%% complete!", p), "", nil)
			break
		}
	}

	return token == o.run && o.session.Running()
}

// failure extracts the failure message from an executor outcome.
func failure(res *agents.ExecuteResult, err error) (string, bool) {
	switch {
	case err != nil:
		return err.Error(), true
	case res == nil:
		return "Unknown error", true
	case !res.IsSuccess():
		return res.Error, true
	default:
		return "", false
	}
}

// finishLocked ends the active run. Callers hold o.mu.
func (o *Orchestrator) finishLocked(reason string) {
	o.session.SetRunning(false)
	o.stopped = true
	o.run++
	if o.cancel != nil {
		o.cancel()
	}
	o.metrics.RunFinished(reason)
	completed, total := o.session.Progress()
	o.logger.InfoCtx("run finished", map[string]any{
		"session":   o.session.ID(),
		"reason":    reason,
		"iteration": o.session.Iteration(),
		"completed": completed,
		"total":     total,
	})
	o.emit(Event{Type: EventRunEnd, Reason: reason, Iteration: o.session.Iteration(), State: StateStopped})
}

// Pause suspends the loop between ticks. An in-flight task still finishes.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.session.Running() {
		return ErrNotRunning
	}
	if o.session.Paused() {
		return nil
	}
	o.session.SetPaused(true)
	o.log(state.LogInfo, MsgPaused, "⏸️", nil)
	o.emit(Event{Type: EventStateChange, State: StatePaused})
	return nil
}

// Resume continues a paused loop; the next tick fires immediately.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.session.Running() {
		return ErrNotRunning
	}
	if !o.session.Paused() {
		return nil
	}
	o.session.SetPaused(false)
	o.log(state.LogInfo, MsgResumed, "▶️", nil)
	o.emit(Event{Type: EventStateChange, State: StateRunning})
	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// Stop ends the run. A task already executing is recorded when it returns.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.session.Running() {
		return ErrNotRunning
	}
	o.log(state.LogInfo, MsgStopped, "⏹️", nil)
	o.finishLocked(ReasonStopped)
	o.emit(Event{Type: EventStateChange, State: StateStopped})
	return nil
}

// Reset stops any run and clears the session: objective, tasks, log and
// iteration counter. The session gets a new id and results of in-flight
// tasks are discarded.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.Running() {
		o.metrics.RunFinished(ReasonStopped)
	}
	o.session.Reset()
	o.stopped = false
	o.run++
	if o.cancel != nil {
		o.cancel()
	}
	o.metrics.SetPending(0)
	o.log(state.LogInfo, MsgReset, "🔄", nil)
	o.emit(Event{Type: EventStateChange, State: StateIdle})
}

// log appends an execution log entry, mirrors it to the structured logger
// and emits it. Callers hold o.mu.
func (o *Orchestrator) log(typ state.LogType, msg, icon string, fields map[string]any) {
	entry := o.session.AppendLog(typ, msg, icon, fields)
	o.logger.WithSession(o.session.ID()).Log(logLevel(typ), msg, fields)

	o.emit(Event{
		Type:    EventLog,
		Message: msg,
		Entry:   entry,
	})
}

// logLevel maps an execution log type to the structured log level.
func logLevel(typ state.LogType) zerolog.Level {
	switch typ {
	case state.LogError:
		return zerolog.ErrorLevel
	case state.LogWarning:
		return zerolog.WarnLevel
	case state.LogThinking:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}
