package reporting

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/tasks"
)

// CSVHeader is the column set of the CSV export.
var CSVHeader = []string{
	"Task ID",
	"Title",
	"Description",
	"Status",
	"Priority",
	"Specialty",
	"Study Type",
	"Evidence Level",
	"Citations Required",
	"Ethical Approval",
	"Created At",
	"Completed At",
	"Result",
}

// RenderCSV renders one row per task. Timestamps are ISO-8601 UTC; an unset
// completion time is an empty cell.
func RenderCSV(ts []tasks.Task) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	for _, t := range ts {
		completed := ""
		if t.CompletedAt != nil {
			completed = isoTime(*t.CompletedAt)
		}
		row := []string{
			t.ID,
			t.Title,
			t.Description,
			string(t.Status),
			t.Priority.String(),
			t.Specialty,
			t.StudyType,
			t.EvidenceLevel,
			strconv.FormatBool(t.CitationsRequired),
			strconv.FormatBool(t.EthicalApproval),
			isoTime(t.CreatedAt),
			completed,
			t.Result,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing csv row %s: %w", t.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}
