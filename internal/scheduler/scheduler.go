// Package scheduler runs recurring research jobs on a cron expression or a
// fixed interval, optionally restricted to a time-of-day window.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/config"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/logging"
)

// Errors returned by the scheduler.
var (
	ErrNoSchedule     = errors.New("no cron expression or interval configured")
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
	ErrInvalidTime    = errors.New("time of day must be HH:MM")
)

// Job is a unit of scheduled work. Errors are logged and do not stop the
// scheduler.
type Job func(ctx context.Context) error

// TimeOfDay is a wall clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (a single digit hour is accepted).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Window is a daily [Start, End) range. End before Start wraps midnight.
type Window struct {
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.Location != nil {
		t = t.In(w.Location)
	}
	now := t.Hour()*60 + t.Minute()
	start, end := w.Start.Minutes(), w.End.Minutes()
	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// Scheduler triggers its jobs on a cron expression or fixed interval.
type Scheduler struct {
	mu       sync.Mutex
	cronExpr string
	interval time.Duration
	window   *Window
	jobs     []Job
	logger   *logging.Logger

	running bool
	cron    *cron.Cron
	entry   cron.EntryID
	nextRun time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{logger: logging.Component("scheduler")}
}

// NewFromConfig builds a scheduler from the schedule section of the config.
func NewFromConfig(cfg *config.ScheduleConfig) (*Scheduler, error) {
	if cfg == nil || (cfg.Cron == "" && cfg.Interval == "") {
		return nil, ErrNoSchedule
	}
	s := New()
	if cfg.Cron != "" {
		if err := s.SetCron(cfg.Cron); err != nil {
			return nil, err
		}
	}
	if cfg.Interval != "" {
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("parsing interval %q: %w", cfg.Interval, err)
		}
		if err := s.SetInterval(d); err != nil {
			return nil, err
		}
	}
	if cfg.Window != nil {
		if err := s.SetWindow(cfg.Window); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetCron sets a standard five-field cron expression, replacing any
// interval.
func (s *Scheduler) SetCron(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("parsing cron %q: %w", expr, err)
	}
	s.mu.Lock()
	s.cronExpr = expr
	s.interval = 0
	s.mu.Unlock()
	return nil
}

// SetInterval sets a fixed interval between runs, replacing any cron
// expression.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %v", d)
	}
	s.mu.Lock()
	s.interval = d
	s.cronExpr = ""
	s.mu.Unlock()
	return nil
}

// SetWindow restricts runs to a daily window. An empty timezone means local.
func (s *Scheduler) SetWindow(cfg *config.WindowConfig) error {
	start, err := ParseTimeOfDay(cfg.Start)
	if err != nil {
		return fmt.Errorf("window start: %w", err)
	}
	end, err := ParseTimeOfDay(cfg.End)
	if err != nil {
		return fmt.Errorf("window end: %w", err)
	}
	loc := time.Local
	if cfg.Timezone != "" {
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("window timezone: %w", err)
		}
	}
	s.mu.Lock()
	s.window = &Window{Start: start, End: end, Location: loc}
	s.mu.Unlock()
	return nil
}

// AddJob registers a job. Jobs run sequentially in registration order.
func (s *Scheduler) AddJob(job Job) {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
}

// Start begins triggering jobs. The scheduler stops triggering when ctx is
// cancelled; Stop must still be called to release it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.cronExpr == "" && s.interval <= 0 {
		return ErrNoSchedule
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	if s.cronExpr != "" {
		logger := cronLogger{l: s.logger}
		c := cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		)
		id, err := c.AddFunc(s.cronExpr, func() { s.trigger(runCtx) })
		if err != nil {
			cancel()
			return fmt.Errorf("parsing cron %q: %w", s.cronExpr, err)
		}
		s.cron, s.entry = c, id
		c.Start()
		go func(done chan struct{}) {
			defer close(done)
			<-runCtx.Done()
			<-c.Stop().Done()
		}(s.done)
	} else {
		s.nextRun = time.Now().Add(s.interval)
		go s.loop(runCtx, s.interval, s.done)
	}

	s.running = true
	s.logger.InfoCtx("scheduler started", map[string]any{
		"cron":     s.cronExpr,
		"interval": s.interval.String(),
		"jobs":     len(s.jobs),
	})
	return nil
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.mu.Lock()
			s.nextRun = t.Add(interval)
			s.mu.Unlock()
			s.trigger(ctx)
		}
	}
}

// trigger runs every job once unless now is outside the window.
func (s *Scheduler) trigger(ctx context.Context) {
	now := time.Now()
	if !s.IsInWindow(now) {
		s.logger.DebugCtx("outside window, skipping run", map[string]any{"time": now.Format(time.TimeOnly)})
		return
	}

	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	for i, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if err := job(ctx); err != nil {
			s.logger.ErrorCtx("scheduled job failed", map[string]any{"job": i, "error": err.Error()})
		}
	}
}

// Stop stops triggering and waits for a running job to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.cron = nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next trigger time, or zero when not running.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	if s.cron != nil {
		return s.cron.Entry(s.entry).Next
	}
	return s.nextRun
}

// IsInWindow reports whether t is inside the configured window. Without a
// window every time qualifies.
func (s *Scheduler) IsInWindow(t time.Time) bool {
	s.mu.Lock()
	w := s.window
	s.mu.Unlock()
	return w == nil || w.Contains(t)
}

// cronLogger adapts the structured logger to cron.Logger.
type cronLogger struct {
	l *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.DebugCtx("cron: "+msg, kvFields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := kvFields(keysAndValues)
	fields["error"] = err.Error()
	c.l.ErrorCtx("cron: "+msg, fields)
}

func kvFields(kv []any) map[string]any {
	fields := make(map[string]any, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	return fields
}
