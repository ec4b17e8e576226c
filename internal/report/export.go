package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/danielpatrickdp/bimcheck/internal/rules"
)

// IssueHeader is the column header of the per-issue block.
var IssueHeader = []string{"Element ID", "Element Name", "Problem Type", "Title", "Description", "Severity", "Recommendation"}

// #region rows
// Rows flattens a report into a summary block, a blank separator row and one
// row per issue under IssueHeader. Rows are ragged; the summary block uses
// two columns.
func Rows(r Report) [][]string {
	rows := [][]string{
		{"BIMCheck Validation Report"},
		{"Report Date", r.StartedAt.Format(time.RFC3339)},
		{"Run ID", r.RunID},
		{"Label", r.Label},
		{"Status", r.StatusLabel()},
		{"Total Elements", strconv.Itoa(r.TotalElements)},
		{"Issues Found", strconv.Itoa(r.TotalProblems)},
		{"Conformity Rate", strconv.Itoa(r.ConformityRate) + "%"},
		{"Processing Time", strconv.FormatFloat(r.ProcessingTime, 'f', 1, 64) + "s"},
	}
	if r.Summary != nil {
		for _, c := range rules.Categories() {
			rows = append(rows, []string{c.Label() + " Issues", strconv.Itoa(r.Summary.IssuesByCategory[c])})
		}
	}
	if r.Error != "" {
		rows = append(rows, []string{"Error", r.Error})
	}
	for _, w := range r.Warnings {
		rows = append(rows, []string{"Warning", w.Code + ": " + w.Message})
	}

	rows = append(rows, []string{""}, IssueHeader)
	for _, is := range r.Issues {
		rows = append(rows, []string{
			is.ElementID,
			is.ElementName,
			is.RuleCategory.Label(),
			is.RuleCategory.Title(),
			is.Description,
			is.Severity.Label(),
			is.Recommendation,
		})
	}
	return rows
}

// #endregion rows

// #region csv
// WriteCSV writes Rows(r) as CSV.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Rows(r)); err != nil {
		return fmt.Errorf("write report csv: %w", err)
	}
	return nil
}

// #endregion csv
