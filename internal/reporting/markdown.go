package reporting

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

// logTail is the number of execution log entries in the appendix.
const logTail = 20

// RenderMarkdown renders the full research report.
func RenderMarkdown(r Report) string {
	generated := r.generatedAt()
	completed := filterStatus(r.Tasks, tasks.StatusCompleted)

	var buf bytes.Buffer
	buf.WriteString("# Medical Research Report\n\n")
	fmt.Fprintf(&buf, "**Generated Date:** %s\n", generated.Format(time.DateOnly))
	fmt.Fprintf(&buf, "**Objective:** %s\n", r.Objective)
	if r.Specialty != "" {
		fmt.Fprintf(&buf, "**Medical Specialty:** %s\n", strings.ToUpper(strings.Replace(r.Specialty, "_", " ", 1)))
	}
	buf.WriteString("\n---\n\n")

	buf.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&buf, "This report summarizes the medical research findings for: %q. ", r.Objective)
	fmt.Fprintf(&buf, "A total of %d research tasks were completed out of %d planned tasks.\n\n", len(completed), len(r.Tasks))

	buf.WriteString("## Research Methodology\n\n")
	if levels := evidenceLevels(r.Tasks); len(levels) > 0 {
		fmt.Fprintf(&buf, "**Evidence Levels Used:** %s\n", strings.Join(levels, ", "))
	}
	buf.WriteString("**Study Design:** Multi-phase systematic approach following evidence-based medicine principles\n")
	buf.WriteString("**Quality Assurance:** Peer review and validation protocols applied\n\n")

	buf.WriteString("## Research Tasks and Findings\n\n")
	for i, t := range r.Tasks {
		fmt.Fprintf(&buf, "### %d. %s\n\n", i+1, t.DisplayTitle())
		fmt.Fprintf(&buf, "**Status:** %s\n", strings.ToUpper(string(t.Status)))
		fmt.Fprintf(&buf, "**Priority:** %s\n", t.Priority)
		if t.EvidenceLevel != "" {
			fmt.Fprintf(&buf, "**Evidence Level:** %s\n", t.EvidenceLevel)
		}
		if t.Specialty != "" {
			fmt.Fprintf(&buf, "**Specialty:** %s\n", t.Specialty)
		}
		if t.Result != "" {
			fmt.Fprintf(&buf, "**Result:** %s\n", t.Result)
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Clinical Implications\n\n")
	buf.WriteString("The findings from this research have several clinical implications:\n\n")
	for i, t := range completed {
		fmt.Fprintf(&buf, "%d. **%s:** Clinical significance pending further validation.\n", i+1, t.DisplayTitle())
	}
	buf.WriteString("\n")

	buf.WriteString("## Limitations\n\n")
	buf.WriteString("- This research was generated using automated analysis tools\n")
	buf.WriteString("- Findings require peer review and validation by medical experts\n")
	buf.WriteString("- Clinical application should follow established medical guidelines\n")
	buf.WriteString("- Further research may be needed to confirm conclusions\n\n")

	if pending := filterStatus(r.Tasks, tasks.StatusPending); len(pending) > 0 {
		buf.WriteString("## Future Research Directions\n\n")
		for i, t := range pending {
			fmt.Fprintf(&buf, "%d. %s\n", i+1, t.DisplayTitle())
		}
		buf.WriteString("\n")
	}

	style := r.citationStyle()
	if citations := CitationList(r.Tasks, style); citations != "" {
		buf.WriteString("## References\n\n")
		buf.WriteString(citations)
		buf.WriteString("\n\n")
		fmt.Fprintf(&buf, "*Citation format: %s*\n\n", style.Format)
	}

	buf.WriteString("## Appendix A: Execution Log\n\n")
	log := r.Log
	if len(log) > logTail {
		log = log[len(log)-logTail:]
	}
	for _, e := range log {
		fmt.Fprintf(&buf, "**%s** [%s] %s\n\n", e.Timestamp.Format(time.TimeOnly), strings.ToUpper(string(e.Type)), e.Message)
	}

	buf.WriteString("## Appendix B: Ethical Considerations\n\n")
	buf.WriteString("- All research follows ethical guidelines for medical research\n")
	buf.WriteString("- Patient privacy and confidentiality maintained throughout\n")
	buf.WriteString("- No human subjects involved in this computational analysis\n")
	buf.WriteString("- Results intended for research purposes only\n\n")

	buf.WriteString("---\n")
	buf.WriteString("*Report generated by Baby-AGI Medical Research Assistant*\n")
	fmt.Fprintf(&buf, "*Date: %s*\n", generated.Format(isoLayout))

	return buf.String()
}
