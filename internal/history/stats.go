package history

import (
	"fmt"
	"io"
	"math"

	"github.com/goccy/go-json"

	"github.com/danielpatrickdp/bimcheck/internal/rules"
)

// #region stats
// ComputeStats summarizes the recent runs of st. Average conformity is the mean
// of the runs' conformity rates rounded to one decimal.
func ComputeStats(st DashboardState) Stats {
	s := Stats{TotalValidations: len(st.RecentRuns)}
	if s.TotalValidations == 0 {
		return s
	}

	var conformity float64
	var elapsed int64
	byCategory := make(map[rules.Category]int, 3)
	for _, r := range st.RecentRuns {
		if r.Status == StatusSuccess {
			s.SuccessfulValidations++
		}
		conformity += float64(r.Summary.ConformityRate)
		elapsed += r.ElapsedMs
		for c, n := range r.Summary.IssuesByCategory {
			byCategory[c] += n
		}
	}
	s.AverageConformity = math.Round(conformity/float64(s.TotalValidations)*10) / 10
	s.AverageElapsedMs = elapsed / int64(s.TotalValidations)

	best := 0
	for _, c := range rules.Categories() {
		if byCategory[c] > best {
			best = byCategory[c]
			s.MostCommonIssue = c.Label()
		}
	}
	return s
}

// #endregion stats

// #region export
// ExportJSON writes st as indented JSON for download.
func ExportJSON(w io.Writer, st DashboardState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dashboard: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write dashboard: %w", err)
	}
	return nil
}

// #endregion export
