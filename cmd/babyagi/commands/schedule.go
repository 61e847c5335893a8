package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/config"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/logging"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule [objective]",
	Short: "Run an objective on a recurring schedule",
	Long: `Run the objective repeatedly on a cron expression or a fixed interval,
archiving each run as its own session. Runs in the foreground until
interrupted.

The schedule, objective and window default to the schedule section of the
config. A run that is still going when the next one is due delays it.

Examples:
  babyagi schedule --cron "0 6 * * 1-5" --medical --specialty oncology \
      --export pubmed "Immunotherapy response biomarkers"
  babyagi schedule --interval 6h --window 22:00-06:00 "Summarize new RAG papers"`,
	RunE: runSchedule,
}

func init() {
	addRunFlags(scheduleCmd)
	scheduleCmd.Flags().String("cron", "", "Cron expression (standard five fields)")
	scheduleCmd.Flags().String("interval", "", "Fixed interval between runs (e.g. 6h)")
	scheduleCmd.Flags().String("window", "", "Only start runs between these times (e.g. 22:00-06:00)")
	rootCmd.AddCommand(scheduleCmd)
}

// applyScheduleFlags overrides the schedule section with flags that were
// set. A flag for cron or interval replaces the other one.
func applyScheduleFlags(cmd *cobra.Command, sc *config.ScheduleConfig, args []string) error {
	f := cmd.Flags()
	if v, _ := f.GetString("cron"); v != "" {
		sc.Cron = v
		sc.Interval = ""
	}
	if v, _ := f.GetString("interval"); v != "" {
		if cron, _ := f.GetString("cron"); cron != "" {
			return config.ErrCronAndInterval
		}
		sc.Interval = v
		sc.Cron = ""
	}
	if v, _ := f.GetString("window"); v != "" {
		start, end, ok := strings.Cut(v, "-")
		if !ok {
			return fmt.Errorf("--window must be START-END, got %q", v)
		}
		tz := ""
		if sc.Window != nil {
			tz = sc.Window.Timezone
		}
		sc.Window = &config.WindowConfig{Start: strings.TrimSpace(start), End: strings.TrimSpace(end), Timezone: tz}
	}
	if objective := strings.TrimSpace(strings.Join(args, " ")); objective != "" {
		sc.Objective = objective
	}
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyScheduleFlags(cmd, &cfg.Schedule, args); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cfg.Schedule.Objective == "" {
		return fmt.Errorf("no objective: pass one as an argument or set schedule.objective")
	}
	if err := initLogging(cmd, cfg); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	p, err := runParamsFromFlags(cmd, cfg.Schedule.Objective)
	if err != nil {
		return err
	}

	sched, err := scheduler.NewFromConfig(&cfg.Schedule)
	if err != nil {
		return err
	}

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	log := logging.Component("schedule")
	out := cmd.OutOrStdout()
	s := newRunStyles()

	sched.AddJob(func(ctx context.Context) error {
		// each run gets its own report file unless a fixed path was given
		res, err := executeRun(ctx, cfg, database, p)
		if err != nil {
			return err
		}
		printRunSummary(out, res)
		if next := sched.NextRun(); !next.IsZero() {
			fmt.Fprintf(out, "%s %s\n", s.Label.Render("Next run:"), next.Local().Format(time.DateTime))
		}
		return nil
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	log.InfoCtx("schedule started", map[string]any{
		"cron":      cfg.Schedule.Cron,
		"interval":  cfg.Schedule.Interval,
		"objective": cfg.Schedule.Objective,
	})

	fmt.Fprintln(out, s.Title.Render("Scheduled: "+cfg.Schedule.Objective))
	fmt.Fprintf(out, "  %s %s\n", s.Label.Render("Schedule:"), describeSchedule(cfg.Schedule))
	if next := sched.NextRun(); !next.IsZero() {
		fmt.Fprintf(out, "  %s %s\n", s.Label.Render("Next run:"), next.Local().Format(time.DateTime))
	}
	fmt.Fprintln(out, s.Muted.Render("Press Ctrl+C to stop."))

	<-ctx.Done()
	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
		return err
	}
	log.Info("schedule stopped")
	return nil
}

func describeSchedule(sc config.ScheduleConfig) string {
	var desc string
	if sc.Cron != "" {
		desc = "cron " + sc.Cron
	} else {
		desc = "every " + sc.Interval
	}
	if sc.Window != nil && sc.Window.Start != "" {
		desc += fmt.Sprintf(", between %s and %s", sc.Window.Start, sc.Window.End)
		if sc.Window.Timezone != "" {
			desc += " " + sc.Window.Timezone
		}
	}
	return desc
}
