package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit trail",
	Long: `Show audit events: runs started and finished, reports exported,
sessions deleted and config changes. Newest last.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		session, _ := cmd.Flags().GetString("session")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		events, err := readAuditTrail(cfg.Audit.Path, session, tail)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), events)
		}
		renderAudit(cmd.OutOrStdout(), events)
		return nil
	},
}

func init() {
	auditCmd.Flags().IntP("tail", "n", 50, "Number of events to show (0 for all)")
	auditCmd.Flags().String("session", "", "Only events for sessions starting with this id")
	auditCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(auditCmd)
}

// readAuditTrail returns the last n matching events, oldest first.
func readAuditTrail(dir, session string, n int) ([]audit.Event, error) {
	files, err := audit.Files(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var events []audit.Event
	for _, path := range slices.Backward(files) {
		fileEvents, err := audit.ReadEvents(path)
		if err != nil {
			return nil, err
		}
		for _, e := range fileEvents {
			if session == "" || strings.HasPrefix(e.SessionID, session) {
				events = append(events, e)
			}
		}
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

func renderAudit(w io.Writer, events []audit.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No audit events.")
		return
	}
	s := newRunStyles()
	for _, e := range events {
		var detail string
		switch e.Type {
		case audit.EventRunStart:
			detail = fmt.Sprintf("%s %q", e.Agent, e.Target)
			if e.Specialty != "" {
				detail += " [" + e.Specialty + "]"
			}
		case audit.EventRunEnd:
			detail = fmt.Sprintf("%s after %s, %s iterations", endReasonText(e.Result), e.Duration.Round(time.Second), e.Metadata["iterations"])
		case audit.EventReportExport:
			detail = fmt.Sprintf("%s -> %s", e.Metadata["format"], e.Target)
		case audit.EventConfigChange:
			detail = fmt.Sprintf("%s = %s (%s)", e.Metadata["key"], e.Metadata["value"], e.Target)
		}
		fmt.Fprintf(w, "%s %-15s %-8s %s\n",
			s.Muted.Render(e.Timestamp.Local().Format(time.DateTime)),
			e.Type,
			shortID(e.SessionID),
			detail,
		)
	}
}
