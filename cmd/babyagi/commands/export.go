package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/db"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/reporting"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/state"
)

var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export a session report",
	Long: `Render an archived session as a report.

Formats:
  markdown  Medical research report with references and ethics appendix
  json      Structured export (metadata, tasks, log, citations, compliance)
  csv       One row per task
  pubmed    Study digest of completed tasks

Without a session id the most recent session is exported. Use --from to
export a snapshot file written by 'babyagi run --snapshot'. Use -o - to
print to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringP("format", "f", reporting.FormatMarkdown, "Report format: markdown, json, csv, pubmed")
	exportCmd.Flags().StringP("output", "o", "", "Output path (default under the reports dir, - for stdout)")
	exportCmd.Flags().String("from", "", "Export a snapshot JSON file instead of an archived session")
	exportCmd.Flags().String("citation-style", "", "Citation style (default from config)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	from, _ := cmd.Flags().GetString("from")
	style, _ := cmd.Flags().GetString("citation-style")

	format, err := reporting.ParseFormat(format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if style == "" {
		style = cfg.Medical.CitationStyle
	}

	if from != "" {
		snap, err := state.ReadSnapshot(from)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		return exportSnapshot(cmd.OutOrStdout(), snap, cfg.Medical.Specialty, style, format, output)
	}

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	snap, meta, err := loadSessionOrLatest(ctx, database, id)
	if err != nil {
		return err
	}

	if output == "-" {
		return exportSnapshot(cmd.OutOrStdout(), snap, meta.Specialty, style, format, output)
	}
	path, err := writeReport(snap, meta.Specialty, style, format, output)
	if err != nil {
		return err
	}
	trail := openAudit(cfg)
	defer func() { _ = trail.Close() }()
	recordAudit(trail.Export(snap.SessionID, format, path))
	if err := database.RecordExport(ctx, db.Export{
		SessionID: snap.SessionID,
		Format:    format,
		Path:      path,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("record export: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s report for session %s to %s\n", format, snap.SessionID, path)
	return nil
}

// exportSnapshot renders snap to output, or to w when output is "-".
func exportSnapshot(w io.Writer, snap state.Snapshot, specialty, style, format, output string) error {
	if output != "-" {
		path, err := writeReport(snap, specialty, style, format, output)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Exported %s report to %s\n", format, path)
		return nil
	}
	data, err := reporting.Export(format, reporting.FromSnapshot(snap, specialty, style))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// loadSessionOrLatest loads the session whose id starts with id, or the
// most recent one when id is empty.
func loadSessionOrLatest(ctx context.Context, database *db.DB, id string) (state.Snapshot, db.SessionMeta, error) {
	if id == "" {
		recent, err := database.ListSessions(ctx, 1)
		if err != nil {
			return state.Snapshot{}, db.SessionMeta{}, fmt.Errorf("list sessions: %w", err)
		}
		if len(recent) == 0 {
			return state.Snapshot{}, db.SessionMeta{}, errors.New("no archived sessions; run 'babyagi run' first")
		}
		id = recent[0].ID
	} else {
		full, err := database.ResolveID(ctx, id)
		if err != nil {
			return state.Snapshot{}, db.SessionMeta{}, err
		}
		id = full
	}
	snap, meta, err := database.LoadSession(ctx, id)
	if errors.Is(err, db.ErrSessionNotFound) {
		return state.Snapshot{}, db.SessionMeta{}, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return state.Snapshot{}, db.SessionMeta{}, fmt.Errorf("load session: %w", err)
	}
	return snap, meta, nil
}
