package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/audit"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/config"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/db"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/logging"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/metrics"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/orchestrator"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/reporting"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/state"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run [objective]",
	Short: "Work toward an objective",
	Long: `Break the objective into tasks and execute them until the queue is
drained, the iteration cap is reached, or the run is interrupted.

The objective can be given as arguments or read from schedule.objective in
the config. Flags override the config for this run only.

Examples:
  babyagi run "Plan a product launch"
  babyagi run --mode ai --provider ollama --model llama3.1 "Summarize RAG papers"
  babyagi run --medical --specialty cardiology --study-type systematic_review \
      --export markdown "Anticoagulation in atrial fibrillation"
  babyagi run --tui "Write a grant proposal outline"`,
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
	runCmd.Flags().Bool("tui", false, "Interactive terminal UI (p pause/resume, s stop, r reset, q quit)")
	rootCmd.AddCommand(runCmd)
}

// addRunFlags registers the flags shared by run and schedule.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "Executor mode: simulated or ai")
	cmd.Flags().String("provider", "", "AI provider: openrouter, openai, anthropic, ollama")
	cmd.Flags().String("model", "", "Model name")
	cmd.Flags().Int("max-iterations", 0, "Iteration cap (0 keeps the config value)")
	cmd.Flags().Duration("delay", -1, "Delay between iterations (e.g. 500ms)")
	cmd.Flags().Bool("medical", false, "Seed the queue with medical research tasks")
	cmd.Flags().String("specialty", "", "Medical specialty (see 'babyagi medical list')")
	cmd.Flags().String("study-type", "", "Study design (see 'babyagi medical list')")
	cmd.Flags().String("citation-style", "", "Citation style for reports")
	cmd.Flags().String("export", "", "Export a report when the run ends: markdown, json, csv, pubmed")
	cmd.Flags().StringP("output", "o", "", "Report path (default under the reports dir)")
	cmd.Flags().String("snapshot", "", "Write the final session snapshot as JSON to this path")
	cmd.Flags().Bool("no-save", false, "Do not archive the session")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

// applyRunFlags overrides cfg with flags that were set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if v, _ := f.GetString("mode"); v != "" {
		cfg.Mode = v
	}
	if v, _ := f.GetString("provider"); v != "" {
		cfg.Settings.Provider = v
		if cfg.Settings.APIKey == "" {
			cfg.Settings.APIKey = config.APIKeyFromEnv(v)
		}
	}
	if v, _ := f.GetString("model"); v != "" {
		cfg.Settings.Model = v
	}
	if v, _ := f.GetInt("max-iterations"); v > 0 {
		cfg.Settings.MaxIterations = v
	}
	if v, _ := f.GetDuration("delay"); v >= 0 {
		cfg.Settings.IterationDelay = int(v / time.Millisecond)
	}
	if v, _ := f.GetBool("medical"); v {
		cfg.Medical.Enabled = true
	}
	if v, _ := f.GetString("specialty"); v != "" {
		cfg.Medical.Specialty = v
		cfg.Medical.Enabled = true
	}
	if v, _ := f.GetString("study-type"); v != "" {
		cfg.Medical.StudyType = v
		cfg.Medical.Enabled = true
	}
	if v, _ := f.GetString("citation-style"); v != "" {
		cfg.Medical.CitationStyle = v
	}
	if v, _ := f.GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
	return config.Validate(cfg)
}

// runParams configures one run.
type runParams struct {
	objective    string
	exportFormat string
	output       string
	snapshotPath string
	save         bool
	tui          bool
	verbose      bool
	out          io.Writer
}

// runResult is what a finished run leaves behind.
type runResult struct {
	Snapshot   state.Snapshot
	Reason     string
	Agent      string
	ExportPath string
}

func runParamsFromFlags(cmd *cobra.Command, objective string) (runParams, error) {
	f := cmd.Flags()
	p := runParams{objective: objective, out: cmd.OutOrStdout()}
	p.exportFormat, _ = f.GetString("export")
	p.output, _ = f.GetString("output")
	p.snapshotPath, _ = f.GetString("snapshot")
	noSave, _ := f.GetBool("no-save")
	p.save = !noSave
	p.verbose, _ = f.GetBool("verbose")
	if f.Lookup("tui") != nil {
		p.tui, _ = f.GetBool("tui")
	}
	if p.exportFormat != "" {
		format, err := reporting.ParseFormat(p.exportFormat)
		if err != nil {
			return p, err
		}
		p.exportFormat = format
	}
	return p, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := initLogging(cmd, cfg); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	objective := strings.TrimSpace(strings.Join(args, " "))
	if objective == "" {
		objective = cfg.Schedule.Objective
	}
	p, err := runParamsFromFlags(cmd, objective)
	if err != nil {
		return err
	}
	if p.tui && !isInteractive() {
		return fmt.Errorf("--tui requires a terminal")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var database *db.DB
	if p.save || p.exportFormat != "" {
		if database, err = openDB(cfg); err != nil {
			return err
		}
		defer func() { _ = database.Close() }()
	}

	res, err := executeRun(ctx, cfg, database, p)
	if err != nil {
		return err
	}
	if !p.tui || res.ExportPath != "" {
		printRunSummary(p.out, res)
	}
	return nil
}

// executeRun drives one orchestrator run to completion, then archives and
// exports it. The metrics server, when configured, lives as long as the run.
func executeRun(ctx context.Context, cfg *config.Config, database *db.DB, p runParams) (*runResult, error) {
	log := logging.Component("run")

	agent, err := newAgent(cfg)
	if err != nil {
		return nil, err
	}

	rec := metrics.New()
	var printer *eventPrinter
	if !p.tui && p.out != nil {
		printer = newEventPrinter(p.out, p.verbose)
	}

	trail := openAudit(cfg)
	defer func() { _ = trail.Close() }()
	specialty := ""
	if cfg.Medical.Enabled {
		specialty = cfg.Medical.Specialty
	}

	res := &runResult{Agent: agent.Name()}
	started := time.Now()
	o := orchestrator.New(
		orchestrator.WithAgent(agent),
		orchestrator.WithConfig(orchestrator.Config{Settings: cfg.Settings, Medical: cfg.Medical}),
		orchestrator.WithMetrics(rec),
		orchestrator.WithLogger(log),
		orchestrator.WithEventHandler(func(e orchestrator.Event) {
			switch e.Type {
			case orchestrator.EventRunStart:
				recordAudit(trail.RunStart(e.SessionID, res.Agent, specialty, p.objective))
			case orchestrator.EventRunEnd:
				res.Reason = e.Reason
			}
			if printer != nil {
				printer.handle(e)
			}
		}),
	)

	log.InfoCtx("run starting", map[string]any{
		"objective": p.objective,
		"mode":      cfg.Mode,
		"agent":     agent.Name(),
		"medical":   cfg.Medical.Enabled,
	})

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			if err := metrics.Serve(runCtx, cfg.MetricsAddr, rec); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancelRun()
		if p.tui {
			return runTUI(runCtx, o, cfg, p.objective)
		}
		err := o.Run(runCtx, p.objective)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Snapshot = o.Snapshot()
	if res.Reason == "" {
		res.Reason = orchestrator.ReasonCancelled
	}
	if res.Snapshot.SessionID != "" {
		recordAudit(trail.RunEnd(res.Snapshot.SessionID, res.Agent, res.Reason, time.Since(started), res.Snapshot.Iteration))
	}

	// The run context may be cancelled by now; persistence must still happen.
	persistCtx := context.WithoutCancel(ctx)
	if err := persistRun(persistCtx, cfg, database, trail, p, res); err != nil {
		return res, err
	}
	return res, nil
}

// runTUI starts the loop and hands control to the terminal UI. Quitting
// the UI stops a run that is still going.
func runTUI(ctx context.Context, o *orchestrator.Orchestrator, cfg *config.Config, objective string) error {
	if err := o.Start(ctx, objective); err != nil {
		return err
	}

	opts := []ui.Option{ui.WithMaxIterations(cfg.Settings.MaxIterations)}
	if cfg.Medical.Enabled && cfg.Medical.Specialty != "" {
		opts = append(opts, ui.WithLabel(cfg.Medical.Specialty))
	}
	err := ui.New(o, opts...).Run(ctx)

	if st := o.State(); st == orchestrator.StateRunning || st == orchestrator.StatePaused {
		_ = o.Stop()
	}
	o.Wait()
	return err
}

// persistRun archives the session and writes the requested outputs.
func persistRun(ctx context.Context, cfg *config.Config, database *db.DB, trail *audit.Logger, p runParams, res *runResult) error {
	log := logging.Component("run")
	snap := res.Snapshot
	if snap.Objective == "" && len(snap.Tasks) == 0 {
		// reset from the UI before quitting
		return nil
	}

	if p.snapshotPath != "" {
		if err := snap.WriteFile(p.snapshotPath); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}

	specialty := ""
	if cfg.Medical.Enabled {
		specialty = cfg.Medical.Specialty
	}

	if p.save && database != nil {
		meta := db.SessionMeta{Mode: cfg.Mode, Agent: res.Agent, Specialty: specialty, EndReason: res.Reason}
		if err := database.SaveSession(ctx, snap, meta); err != nil {
			return fmt.Errorf("archive session: %w", err)
		}
		log.InfoCtx("session archived", map[string]any{"session_id": snap.SessionID, "reason": res.Reason})
	}

	if p.exportFormat == "" {
		return nil
	}
	path, err := writeReport(snap, specialty, cfg.Medical.CitationStyle, p.exportFormat, p.output)
	if err != nil {
		return err
	}
	res.ExportPath = path
	recordAudit(trail.Export(snap.SessionID, p.exportFormat, path))
	if p.save && database != nil {
		if err := database.RecordExport(ctx, db.Export{
			SessionID: snap.SessionID,
			Format:    p.exportFormat,
			Path:      path,
			CreatedAt: time.Now(),
		}); err != nil {
			log.WarnCtx("could not record export", map[string]any{"error": err.Error()})
		}
	}
	return nil
}

// writeReport renders snap in format and saves it. An empty path picks a
// timestamped file under the reports dir.
func writeReport(snap state.Snapshot, specialty, citationStyle, format, path string) (string, error) {
	r := reporting.FromSnapshot(snap, specialty, citationStyle)
	data, err := reporting.Export(format, r)
	if err != nil {
		return "", fmt.Errorf("render %s report: %w", format, err)
	}
	if path == "" {
		path = reporting.DefaultExportPath(format, time.Now())
	}
	if err := reporting.Save(path, data); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}
