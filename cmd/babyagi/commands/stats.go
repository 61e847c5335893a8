package commands

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/db"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics",
	Long: `Display aggregate statistics over archived sessions.

Shows session counts, task outcomes, end reasons, medical specialties and
exported reports. Use --json for machine-readable output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		period, _ := cmd.Flags().GetString("period")
		return withDB(cmd, func(ctx context.Context, database *db.DB) error {
			s := stats.New(database)
			since, err := s.Since(period)
			if err != nil {
				return err
			}
			result, err := s.Compute(ctx, since)
			if err != nil {
				return fmt.Errorf("computing stats: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			renderStats(cmd.OutOrStdout(), result)
			return nil
		})
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "Output as JSON")
	statsCmd.Flags().StringP("period", "p", stats.PeriodAll, "Time period: all, last-7d, last-30d")
	rootCmd.AddCommand(statsCmd)
}

func renderStats(w io.Writer, r *stats.Result) {
	s := newRunStyles()

	fmt.Fprintln(w, s.Title.Render("Sessions"))
	fmt.Fprintf(w, "  Total:        %d sessions\n", r.TotalSessions)
	if r.TotalSessions == 0 {
		return
	}
	if r.FirstRunAt != nil {
		fmt.Fprintf(w, "  First run:    %s\n", r.FirstRunAt.Local().Format("Jan 2, 2006"))
	}
	if r.LastRunAt != nil {
		fmt.Fprintf(w, "  Last run:     %s\n", r.LastRunAt.Local().Format("Jan 2, 2006"))
	}
	if r.AvgRunDuration.Duration > 0 {
		fmt.Fprintf(w, "  Avg duration: %s per session\n", r.AvgRunDuration.String())
	}
	fmt.Fprintf(w, "  Iterations:   %d (%.1f per session)\n", r.TotalIterations, r.AvgIterations)
	fmt.Fprintln(w)

	fmt.Fprintln(w, s.Title.Render("Tasks"))
	fmt.Fprintf(w, "  Completed:    %d", r.TasksCompleted)
	if r.TasksCompleted+r.TasksFailed > 0 {
		fmt.Fprintf(w, " (%.0f%% success rate)", r.SuccessRate)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Failed:       %d\n", r.TasksFailed)
	fmt.Fprintf(w, "  Pending:      %d\n", r.TasksPending)
	fmt.Fprintln(w)

	renderCounts(w, s.Title.Render("Outcomes"), r.OutcomeBreakdown, endReasonText)
	renderCounts(w, s.Title.Render("Modes"), r.ModeBreakdown, nil)
	renderCounts(w, s.Title.Render("Task categories"), r.CategoryBreakdown, nil)

	if len(r.Specialties) > 0 {
		fmt.Fprintln(w, s.Title.Render("Specialties"))
		for _, sp := range r.Specialties {
			fmt.Fprintf(w, "  %-20s %d sessions, %d tasks completed\n", sp.Name, sp.Sessions, sp.TasksCompleted)
		}
		fmt.Fprintln(w)
	}

	if r.TotalExports > 0 {
		renderCounts(w, s.Title.Render(fmt.Sprintf("Reports (%d)", r.TotalExports)), r.ExportsByFormat, nil)
	}
}

// renderCounts prints a breakdown sorted by count descending.
func renderCounts(w io.Writer, title string, counts map[string]int, label func(string) string) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Fprintln(w, title)
	for _, k := range keys {
		name := k
		if label != nil {
			name = label(k)
		}
		fmt.Fprintf(w, "  %-22s %d\n", name, counts[k])
	}
	fmt.Fprintln(w)
}
