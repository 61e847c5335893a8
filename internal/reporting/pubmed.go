package reporting

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

// RenderPubMed renders one study block per completed task.
func RenderPubMed(ts []tasks.Task) string {
	var buf bytes.Buffer
	buf.WriteString("# PubMed Compatible Research Summary\n\n")

	for i, t := range filterStatus(ts, tasks.StatusCompleted) {
		fmt.Fprintf(&buf, "## Study %d\n", i+1)
		fmt.Fprintf(&buf, "**Title:** %s\n", t.DisplayTitle())
		fmt.Fprintf(&buf, "**Study Type:** %s\n", orDefault(t.StudyType, "Observational"))
		fmt.Fprintf(&buf, "**Evidence Level:** %s\n", orDefault(t.EvidenceLevel, "Level 4"))
		if t.Specialty != "" {
			fmt.Fprintf(&buf, "**Medical Subject Headings (MeSH):** %s\n", strings.Replace(t.Specialty, "_", ", ", 1))
		}
		fmt.Fprintf(&buf, "**Abstract:** %s\n", orDefault(t.Result, "Results pending analysis."))
		fmt.Fprintf(&buf, "**Status:** %s\n\n", t.Status)
	}
	return buf.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
