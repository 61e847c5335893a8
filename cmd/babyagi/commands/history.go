package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/db"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/state"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived sessions",
	Long: `List sessions archived by 'babyagi run', newest first.

Use 'history show <id>' for the task list and execution log of one session
and 'history delete <id>' to remove it. Any unique id prefix is accepted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return withDB(cmd, func(ctx context.Context, database *db.DB) error {
			sessions, err := database.ListSessions(ctx, limit)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), sessions)
			}
			renderHistory(cmd.OutOrStdout(), sessions)
			return nil
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one archived session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return withDB(cmd, func(ctx context.Context, database *db.DB) error {
			snap, meta, err := loadSessionOrLatest(ctx, database, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			exports, err := database.Exports(ctx, snap.SessionID)
			if err != nil {
				return fmt.Errorf("list exports: %w", err)
			}
			renderSession(cmd.OutOrStdout(), snap, meta, exports)
			return nil
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete an archived session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		trail := openAudit(cfg)
		defer func() { _ = trail.Close() }()

		return withDB(cmd, func(ctx context.Context, database *db.DB) error {
			id, err := database.ResolveID(ctx, args[0])
			if err != nil {
				return err
			}
			if err := database.DeleteSession(ctx, id); err != nil {
				return err
			}
			recordAudit(trail.SessionDeleted(id))
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", id)
			return nil
		})
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of sessions to list (0 for all)")
	historyCmd.Flags().Bool("json", false, "Output as JSON")
	historyShowCmd.Flags().Bool("json", false, "Output the snapshot as JSON")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

// withDB loads config, opens the archive and runs fn.
func withDB(cmd *cobra.Command, fn func(ctx context.Context, database *db.DB) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
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
	return fn(ctx, database)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderHistory(w io.Writer, sessions []db.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No archived sessions.")
		return
	}
	s := newRunStyles()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tMODE\tTASKS\tITER\tOUTCOME\tOBJECTIVE")
	for _, sess := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			shortID(sess.ID),
			sess.StartedAt.Local().Format("2006-01-02 15:04"),
			sessionMode(sess.SessionMeta),
			sess.Completed, sess.Total,
			sess.Iteration,
			endReasonText(sess.EndReason),
			truncateText(sess.Objective, 60),
		)
	}
	_ = tw.Flush()
	fmt.Fprintln(w, s.Muted.Render("Use 'babyagi history show <session>' for details."))
}

func renderSession(w io.Writer, snap state.Snapshot, meta db.SessionMeta, exports []db.Export) {
	s := newRunStyles()

	fmt.Fprintln(w, s.Title.Render("Session "+snap.SessionID))
	fmt.Fprintf(w, "  %s %s\n", s.Label.Render("Objective:"), snap.Objective)
	fmt.Fprintf(w, "  %s %s\n", s.Label.Render("Started:  "), snap.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  %s %s (%s)\n", s.Label.Render("Mode:     "), sessionMode(meta), meta.Agent)
	fmt.Fprintf(w, "  %s %s after %d iterations\n", s.Label.Render("Outcome:  "), endReasonText(meta.EndReason), snap.Iteration)
	fmt.Fprintf(w, "  %s %s\n", s.Label.Render("Tasks:    "), formatCounts(s, tasks.Count(snap.Tasks)))

	fmt.Fprintln(w)
	fmt.Fprintln(w, s.Title.Render("Tasks"))
	for _, t := range tasks.Prioritize(snap.Tasks) {
		fmt.Fprintf(w, "  %s [%s] %s\n", statusMark(s, t.Status), t.Priority, t.DisplayTitle())
		if t.Result != "" {
			fmt.Fprintf(w, "      %s\n", s.Muted.Render(truncateText(t.Result, 100)))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, s.Title.Render("Execution log"))
	for _, e := range snap.Log {
		fmt.Fprintf(w, "  %s %s %s\n", s.Muted.Render(e.Timestamp.Local().Format(time.TimeOnly)), e.Icon, e.Message)
	}

	if len(exports) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, s.Title.Render("Exports"))
		for _, e := range exports {
			fmt.Fprintf(w, "  %s %-8s %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Format, e.Path)
		}
	}
}

func statusMark(s runStyles, st tasks.Status) string {
	switch st {
	case tasks.StatusCompleted:
		return s.Success.Render("✓")
	case tasks.StatusFailed:
		return s.Error.Render("✗")
	case tasks.StatusRunning:
		return s.Accent.Render("▶")
	default:
		return s.Muted.Render("○")
	}
}

func sessionMode(meta db.SessionMeta) string {
	mode := meta.Mode
	if mode == "" {
		mode = "simulated"
	}
	if meta.Specialty != "" {
		mode += "/" + meta.Specialty
	}
	return mode
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
