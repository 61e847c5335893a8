package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/medical"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

var medicalCmd = &cobra.Command{
	Use:   "medical",
	Short: "Medical research templates",
	Long: `Inspect the medical research catalog used by 'babyagi run --medical'.

Use 'medical list' for the known specialties, study types and citation
styles, and 'medical preview' to see the tasks a run would start with.`,
}

var medicalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List specialties, study types and citation styles",
	RunE: func(cmd *cobra.Command, args []string) error {
		renderMedicalCatalog(cmd.OutOrStdout(), medical.DefaultCatalog())
		return nil
	},
}

var medicalPreviewCmd = &cobra.Command{
	Use:   "preview [objective]",
	Short: "Show the initial task queue for a medical run",
	Long: `Generate the tasks a medical run would be seeded with, without running
anything.

Examples:
  babyagi medical preview --specialty cardiology "Statins in elderly patients"
  babyagi medical preview --study-type meta_analysis "SGLT2 inhibitors"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		specialty, _ := cmd.Flags().GetString("specialty")
		studyType, _ := cmd.Flags().GetString("study-type")
		if specialty != "" && !medical.IsSpecialty(specialty) {
			return fmt.Errorf("unknown specialty %q (see 'babyagi medical list')", specialty)
		}
		if studyType != "" && !medical.IsStudyType(studyType) {
			return fmt.Errorf("unknown study type %q (see 'babyagi medical list')", studyType)
		}

		objective := strings.TrimSpace(strings.Join(args, " "))
		if objective == "" {
			objective = "Medical research objective"
		}
		queue := medical.DefaultCatalog().Generate(objective, specialty, studyType, time.Now())
		renderPreview(cmd.OutOrStdout(), objective, queue)
		return nil
	},
}

func init() {
	medicalPreviewCmd.Flags().String("specialty", "", "Medical specialty")
	medicalPreviewCmd.Flags().String("study-type", "", "Study design")
	medicalCmd.AddCommand(medicalListCmd)
	medicalCmd.AddCommand(medicalPreviewCmd)
	rootCmd.AddCommand(medicalCmd)
}

func renderMedicalCatalog(w io.Writer, c *medical.Catalog) {
	s := newRunStyles()

	fmt.Fprintln(w, s.Title.Render("Specialties"))
	for _, name := range medical.Specialties() {
		tmpl, ok := c.Specialties[name]
		if !ok {
			fmt.Fprintf(w, "  %-20s %s\n", name, s.Muted.Render("general templates"))
			continue
		}
		fmt.Fprintf(w, "  %-20s %s\n", name, s.Muted.Render(fmt.Sprintf("%s, %d templates", tmpl.Category, len(tmpl.Templates))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, s.Title.Render("Study types"))
	for _, name := range medical.StudyTypes() {
		study, ok := c.Studies[name]
		if !ok {
			fmt.Fprintf(w, "  %s\n", name)
			continue
		}
		fmt.Fprintf(w, "  %-28s %s\n", name, s.Muted.Render(fmt.Sprintf("%s (evidence %s)", study.Name, study.EvidenceLevel)))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, s.Title.Render("Citation styles"))
	for _, name := range medical.CitationStyles() {
		f := medical.CitationStyle(name)
		marker := ""
		if name == medical.DefaultCitationStyle {
			marker = " (default)"
		}
		fmt.Fprintf(w, "  %-10s %s\n", name+marker, s.Muted.Render(f.Example))
	}
}

func renderPreview(w io.Writer, objective string, queue []tasks.Task) {
	s := newRunStyles()
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Objective:"), objective)
	if len(queue) == 0 {
		fmt.Fprintln(w, "No medical templates match; a run would fall back to the generic task breakdown.")
		return
	}
	fmt.Fprintf(w, "%s\n", s.Title.Render(fmt.Sprintf("%d initial tasks", len(queue))))
	for i, t := range queue {
		fmt.Fprintf(w, "  %2d. [%s] %s\n", i+1, t.Priority, t.DisplayTitle())
		var tags []string
		if t.EvidenceLevel != "" {
			tags = append(tags, "evidence "+t.EvidenceLevel)
		}
		if t.CitationsRequired {
			tags = append(tags, "citations")
		}
		if t.EthicalApproval {
			tags = append(tags, "ethics review")
		}
		if len(tags) > 0 {
			fmt.Fprintf(w, "      %s\n", s.Muted.Render(strings.Join(tags, ", ")))
		}
	}
}
