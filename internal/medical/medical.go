// Package medical provides medical-research task templates and citation
// formats. Catalogs are embedded YAML; generated tasks plug into the regular
// task queue.
package medical

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Evidence levels (Oxford CEBM style).
const (
	EvidenceLevel1a = "level_1a" // systematic review of RCTs
	EvidenceLevel1b = "level_1b" // individual RCT
	EvidenceLevel2a = "level_2a"
	EvidenceLevel2b = "level_2b"
	EvidenceLevel3a = "level_3a"
	EvidenceLevel3b = "level_3b"
	EvidenceLevel4  = "level_4" // case series
	EvidenceLevel5  = "level_5" // expert opinion
)

// DefaultCitationStyle is used when no style is configured.
const DefaultCitationStyle = "ama"

var specialties = []string{
	"cardiology", "oncology", "neurology", "psychiatry", "pediatrics",
	"surgery", "radiology", "pathology", "emergency_medicine", "internal_medicine",
	"infectious_disease", "endocrinology", "pulmonology", "nephrology", "gastroenterology",
	"dermatology", "ophthalmology", "orthopedics", "anesthesiology", "public_health",
}

var studyTypes = []string{
	"systematic_review", "meta_analysis", "randomized_controlled_trial", "cohort_study",
	"case_control_study", "cross_sectional_study", "case_report", "case_series",
	"clinical_guideline", "literature_review", "experimental_study", "observational_study",
}

// SpecialtyTemplate holds task templates for one specialty.
type SpecialtyTemplate struct {
	Category        string   `yaml:"category"`
	Templates       []string `yaml:"templates"`
	EvidencePrompts []string `yaml:"evidence_prompts"`
	Citations       bool     `yaml:"citations"`
	PeerReview      []string `yaml:"peer_review"`
}

// StudyTemplate describes a research study design.
type StudyTemplate struct {
	Name                  string   `yaml:"name"`
	EvidenceLevel         string   `yaml:"evidence_level"`
	Description           string   `yaml:"description"`
	Objectives            []string `yaml:"objectives"`
	EthicalConsiderations []string `yaml:"ethical_considerations"`
}

// CitationFormat is a reference style with an example entry.
type CitationFormat struct {
	Style   string `yaml:"-"`
	Format  string `yaml:"format"`
	Example string `yaml:"example"`
}

// Catalog is the decoded template catalog.
type Catalog struct {
	Specialties    map[string]SpecialtyTemplate `yaml:"specialties"`
	Studies        map[string]StudyTemplate     `yaml:"studies"`
	General        []string                     `yaml:"general"`
	CitationStyles map[string]CitationFormat    `yaml:"citation_styles"`
}

var loadCatalog = sync.OnceValues(func() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
})

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing medical catalog: %w", err)
	}
	for style, f := range c.CitationStyles {
		f.Style = style
		c.CitationStyles[style] = f
	}
	return &c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := loadCatalog()
	if err != nil {
		// embedded data is fixed at build time
		panic(err)
	}
	return c
}

// Specialties lists all known medical specialties.
func Specialties() []string {
	return slices.Clone(specialties)
}

// StudyTypes lists all known research study types.
func StudyTypes() []string {
	return slices.Clone(studyTypes)
}

// IsSpecialty reports whether s is a known specialty.
func IsSpecialty(s string) bool {
	return slices.Contains(specialties, s)
}

// IsStudyType reports whether s is a known study type.
func IsStudyType(s string) bool {
	return slices.Contains(studyTypes, s)
}

// CitationStyle returns the named citation format, falling back to AMA.
func CitationStyle(style string) CitationFormat {
	styles := DefaultCatalog().CitationStyles
	if f, ok := styles[strings.ToLower(style)]; ok {
		return f
	}
	return styles[DefaultCitationStyle]
}

// CitationStyles lists the supported citation style names.
func CitationStyles() []string {
	names := make([]string, 0, len(DefaultCatalog().CitationStyles))
	for name := range DefaultCatalog().CitationStyles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Generate builds medical research tasks using the embedded catalog.
func Generate(objective, specialty, studyType string) []tasks.Task {
	return DefaultCatalog().Generate(objective, specialty, studyType, time.Now())
}

// Generate builds medical research tasks. With a specialty, one task per
// specialty template; with a study type, one task per study objective;
// with neither, the general research checklist. Specialties or study types
// without templates contribute nothing.
func (c *Catalog) Generate(objective, specialty, studyType string, now time.Time) []tasks.Task {
	var out []tasks.Task

	if tmpl, ok := c.Specialties[specialty]; specialty != "" && ok {
		evidence := EvidenceLevel4
		if tmpl.Category == "research" {
			evidence = EvidenceLevel1b
		}
		prompt := ""
		if len(tmpl.EvidencePrompts) > 0 {
			prompt = tmpl.EvidencePrompts[0]
		}
		ethics := mentionsEthicsReview(tmpl.PeerReview)
		for i, t := range tmpl.Templates {
			out = append(out, tasks.Task{
				ID:                tasks.NewID(),
				Title:             t + " - " + objective,
				Description:       prompt + " for " + objective,
				Status:            tasks.StatusPending,
				Priority:          tasks.Label(labelByIndex(i, 1, 2)),
				CreatedAt:         now,
				Specialty:         specialty,
				EvidenceLevel:     evidence,
				CitationsRequired: tmpl.Citations,
				EthicalApproval:   ethics,
			})
		}
	}

	if tmpl, ok := c.Studies[studyType]; studyType != "" && ok {
		ethics := mentionsEthicsReview(tmpl.EthicalConsiderations)
		for i, o := range tmpl.Objectives {
			p := tasks.LabelMedium
			if i == 0 {
				p = tasks.LabelHigh
			}
			out = append(out, tasks.Task{
				ID:              tasks.NewID(),
				Title:           o,
				Description:     tmpl.Description + " - " + o,
				Status:          tasks.StatusPending,
				Priority:        tasks.Label(p),
				CreatedAt:       now,
				StudyType:       studyType,
				EvidenceLevel:   tmpl.EvidenceLevel,
				EthicalApproval: ethics,
			})
		}
	}

	if specialty == "" && studyType == "" {
		for i, step := range c.General {
			out = append(out, tasks.Task{
				ID:            tasks.NewID(),
				Title:         step + " for " + objective,
				Description:   "Evidence-based approach to " + strings.ToLower(step) + " related to " + objective,
				Status:        tasks.StatusPending,
				Priority:      tasks.Label(labelByIndex(i, 2, 4)),
				CreatedAt:     now,
				EvidenceLevel: EvidenceLevel4,
			})
		}
	}

	return out
}

// labelByIndex maps i < highUntil to high, i < mediumUntil to medium, else low.
func labelByIndex(i, highUntil, mediumUntil int) string {
	switch {
	case i < highUntil:
		return tasks.LabelHigh
	case i < mediumUntil:
		return tasks.LabelMedium
	default:
		return tasks.LabelLow
	}
}

func mentionsEthicsReview(items []string) bool {
	for _, item := range items {
		lower := strings.ToLower(item)
		if strings.Contains(lower, "irb") || strings.Contains(lower, "ethics") {
			return true
		}
	}
	return false
}
