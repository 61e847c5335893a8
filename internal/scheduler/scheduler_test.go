package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/config"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{"06:15", TimeOfDay{6, 15}, false},
		{"7:05", TimeOfDay{7, 5}, false},
		{"00:00", TimeOfDay{0, 0}, false},
		{"23:59", TimeOfDay{23, 59}, false},
		{"24:00", TimeOfDay{}, true},
		{"08:75", TimeOfDay{}, true},
		{"0815", TimeOfDay{}, true},
		{"ab:cd", TimeOfDay{}, true},
		{"", TimeOfDay{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTime) {
					t.Errorf("ParseTimeOfDay(%q) error = %v, want ErrInvalidTime", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeOfDay(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTimeOfDay(t *testing.T) {
	tod := TimeOfDay{Hour: 7, Minute: 5}
	if got := tod.String(); got != "07:05" {
		t.Errorf("String() = %q, want 07:05", got)
	}
	if got := tod.Minutes(); got != 425 {
		t.Errorf("Minutes() = %d, want 425", got)
	}
}

func TestWindow_Contains(t *testing.T) {
	day := Window{Start: TimeOfDay{8, 0}, End: TimeOfDay{18, 30}, Location: time.UTC}
	night := Window{Start: TimeOfDay{21, 0}, End: TimeOfDay{5, 0}, Location: time.UTC}
	at := func(h, m int) time.Time { return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name   string
		window Window
		time   time.Time
		want   bool
	}{
		{"day start is inclusive", day, at(8, 0), true},
		{"day midday", day, at(12, 45), true},
		{"day end is exclusive", day, at(18, 30), false},
		{"day before start", day, at(7, 59), false},
		{"night late evening", night, at(23, 10), true},
		{"night after midnight", night, at(2, 0), true},
		{"night end is exclusive", night, at(5, 0), false},
		{"night afternoon", night, at(15, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Contains(tt.time); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", tt.time.Format(time.TimeOnly), got, tt.want)
			}
		})
	}
}

func TestWindow_ContainsConvertsLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	w := Window{Start: TimeOfDay{9, 0}, End: TimeOfDay{10, 0}, Location: tokyo}

	// 00:30 UTC is 09:30 in Tokyo.
	if !w.Contains(time.Date(2025, 3, 10, 0, 30, 0, 0, time.UTC)) {
		t.Error("window should be evaluated in its own location")
	}
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name         string
		cfg          *config.ScheduleConfig
		wantCron     string
		wantInterval time.Duration
		wantWindow   bool
		wantErr      error
	}{
		{
			name:     "cron",
			cfg:      &config.ScheduleConfig{Cron: "30 6 * * 1-5"},
			wantCron: "30 6 * * 1-5",
		},
		{
			name:         "interval",
			cfg:          &config.ScheduleConfig{Interval: "90m"},
			wantInterval: 90 * time.Minute,
		},
		{
			name: "cron with window",
			cfg: &config.ScheduleConfig{
				Cron:   "0 * * * *",
				Window: &config.WindowConfig{Start: "20:00", End: "04:00", Timezone: "UTC"},
			},
			wantCron:   "0 * * * *",
			wantWindow: true,
		},
		{name: "nil", cfg: nil, wantErr: ErrNoSchedule},
		{name: "empty", cfg: &config.ScheduleConfig{}, wantErr: ErrNoSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewFromConfig(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewFromConfig() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFromConfig() error = %v", err)
			}
			if s.cronExpr != tt.wantCron {
				t.Errorf("cronExpr = %q, want %q", s.cronExpr, tt.wantCron)
			}
			if s.interval != tt.wantInterval {
				t.Errorf("interval = %v, want %v", s.interval, tt.wantInterval)
			}
			if (s.window != nil) != tt.wantWindow {
				t.Errorf("window set = %v, want %v", s.window != nil, tt.wantWindow)
			}
		})
	}
}

func TestNewFromConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.ScheduleConfig
	}{
		{"bad cron", &config.ScheduleConfig{Cron: "every morning"}},
		{"bad interval", &config.ScheduleConfig{Interval: "soon"}},
		{"zero interval", &config.ScheduleConfig{Interval: "0s"}},
		{"bad window start", &config.ScheduleConfig{Cron: "0 2 * * *", Window: &config.WindowConfig{Start: "26:00", End: "04:00"}}},
		{"bad window end", &config.ScheduleConfig{Cron: "0 2 * * *", Window: &config.WindowConfig{Start: "20:00", End: "late"}}},
		{"bad timezone", &config.ScheduleConfig{Cron: "0 2 * * *", Window: &config.WindowConfig{Start: "20:00", End: "04:00", Timezone: "Mars/Olympus"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFromConfig(tt.cfg); err == nil {
				t.Error("NewFromConfig() expected error")
			}
		})
	}
}

func TestSetInterval_RejectsNonPositive(t *testing.T) {
	s := New()
	for _, d := range []time.Duration{0, -time.Minute} {
		if err := s.SetInterval(d); err == nil {
			t.Errorf("SetInterval(%v) expected error", d)
		}
	}
	if err := s.SetInterval(15 * time.Minute); err != nil {
		t.Errorf("SetInterval(15m) error = %v", err)
	}
}

func TestScheduler_Lifecycle(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Scheduler) error
	}{
		{"cron", func(s *Scheduler) error { return s.SetCron("* * * * *") }},
		{"interval", func(s *Scheduler) error { return s.SetInterval(time.Hour) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			if err := tt.setup(s); err != nil {
				t.Fatalf("setup error = %v", err)
			}
			if err := s.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			if !s.IsRunning() {
				t.Error("IsRunning() = false after Start")
			}
			if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
				t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
			}

			next := s.NextRun()
			now := time.Now()
			if next.Before(now) || next.After(now.Add(time.Hour+time.Second)) {
				t.Errorf("NextRun() = %v, want within the next hour", next)
			}

			if err := s.Stop(); err != nil {
				t.Errorf("Stop() error = %v", err)
			}
			if s.IsRunning() {
				t.Error("IsRunning() = true after Stop")
			}
			if !s.NextRun().IsZero() {
				t.Error("NextRun() should be zero after Stop")
			}
			if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
				t.Errorf("second Stop() error = %v, want ErrNotRunning", err)
			}
		})
	}
}

func TestScheduler_StartWithoutSchedule(t *testing.T) {
	if err := New().Start(context.Background()); !errors.Is(err, ErrNoSchedule) {
		t.Errorf("Start() error = %v, want ErrNoSchedule", err)
	}
}

func TestScheduler_IsInWindow(t *testing.T) {
	s := New()
	if !s.IsInWindow(time.Now()) {
		t.Error("IsInWindow() = false without a window")
	}

	if err := s.SetWindow(&config.WindowConfig{Start: "21:00", End: "05:00", Timezone: "UTC"}); err != nil {
		t.Fatalf("SetWindow() error = %v", err)
	}
	for hour, want := range map[int]bool{21: true, 0: true, 4: true, 5: false, 13: false, 20: false} {
		at := time.Date(2025, 3, 10, hour, 0, 0, 0, time.UTC)
		if got := s.IsInWindow(at); got != want {
			t.Errorf("IsInWindow(%02d:00) = %v, want %v", hour, got, want)
		}
	}
}

func TestScheduler_RunsJobsOnInterval(t *testing.T) {
	s := New()
	_ = s.SetInterval(20 * time.Millisecond)

	var runs atomic.Int32
	s.AddJob(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if runs.Load() < 1 {
		t.Errorf("job ran %d times, want at least 1", runs.Load())
	}
}

func TestScheduler_CronAndIntervalReplaceEachOther(t *testing.T) {
	// "0 0 1 1 *" only fires on New Year, so any run came from the interval.
	tests := []struct {
		name     string
		setup    func(*Scheduler)
		wantRuns bool
	}{
		{
			name: "interval after cron",
			setup: func(s *Scheduler) {
				_ = s.SetCron("0 0 1 1 *")
				_ = s.SetInterval(10 * time.Millisecond)
			},
			wantRuns: true,
		},
		{
			name: "cron after interval",
			setup: func(s *Scheduler) {
				_ = s.SetInterval(10 * time.Millisecond)
				_ = s.SetCron("0 0 1 1 *")
			},
			wantRuns: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			tt.setup(s)

			var runs atomic.Int32
			s.AddJob(func(ctx context.Context) error {
				runs.Add(1)
				return nil
			})
			if err := s.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			time.Sleep(150 * time.Millisecond)
			if err := s.Stop(); err != nil {
				t.Fatalf("Stop() error = %v", err)
			}

			if got := runs.Load() > 0; got != tt.wantRuns {
				t.Errorf("job ran %d times, want runs = %v", runs.Load(), tt.wantRuns)
			}
		})
	}
}

func TestScheduler_SkipsOutsideWindow(t *testing.T) {
	s := New()
	_ = s.SetInterval(20 * time.Millisecond)

	// A one hour window twelve hours away never contains now.
	hour := (time.Now().UTC().Hour() + 12) % 24
	_ = s.SetWindow(&config.WindowConfig{
		Start:    fmt.Sprintf("%02d:00", hour),
		End:      fmt.Sprintf("%02d:00", (hour+1)%24),
		Timezone: "UTC",
	})

	var runs atomic.Int32
	s.AddJob(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if runs.Load() != 0 {
		t.Errorf("job ran %d times outside the window, want 0", runs.Load())
	}
}

func TestScheduler_FailingJobDoesNotBlockOthers(t *testing.T) {
	s := New()
	_ = s.SetInterval(20 * time.Millisecond)

	var second atomic.Int32
	s.AddJob(func(ctx context.Context) error {
		return errors.New("provider unavailable")
	})
	s.AddJob(func(ctx context.Context) error {
		second.Add(1)
		return nil
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if second.Load() < 1 {
		t.Error("second job never ran after the first failed")
	}
}

func TestScheduler_StopWaitsForJob(t *testing.T) {
	s := New()
	_ = s.SetInterval(10 * time.Millisecond)

	started := make(chan struct{})
	var finished atomic.Bool
	var once sync.Once
	s.AddJob(func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		finished.Store(true)
		return ctx.Err()
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("job never started")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !finished.Load() {
		t.Error("Stop() returned before the running job finished")
	}
}

func TestScheduler_ParentCancelStopsTriggering(t *testing.T) {
	s := New()
	_ = s.SetInterval(10 * time.Millisecond)

	var runs atomic.Int32
	s.AddJob(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()
	time.Sleep(30 * time.Millisecond)
	before := runs.Load()
	time.Sleep(60 * time.Millisecond)
	if after := runs.Load(); after != before {
		t.Errorf("job ran %d more times after cancel", after-before)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
