package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/danielpatrickdp/bimcheck/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	jsonOut := flag.Bool("json", false, "output results as JSON instead of table")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--json]")
		os.Exit(2)
	}
	os.Exit(runFixtureMode(os.Stdout, *fixturePath, *jsonOut))
}

// #endregion main

// #region fixture-mode

func runFixtureMode(w io.Writer, path string, jsonOut bool) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	results, final, err := replay.Replay(context.Background(), f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}
	summary := replay.Summarize(results, final)

	if jsonOut {
		if err := printJSON(w, results, summary); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 2
		}
	} else {
		printComparison(w, f, results, summary)
	}

	if summary.Diverged > 0 {
		return 1
	}
	return 0
}

// #endregion fixture-mode

// #region output

// printComparison outputs one row per run with the expected and replayed status.
func printComparison(w io.Writer, f *replay.Fixture, results []replay.ReplayResult, s replay.ReplaySummary) {
	fmt.Fprintf(w, "%-24s| %-9s| %-9s| %5s | %s\n", "Run", "Expected", "Replayed", "Conf", "Match")
	fmt.Fprintf(w, "%-24s+%-10s+%-10s+%-7s+%s\n",
		"------------------------", "----------", "----------", "-------", "------")

	for i, r := range results {
		exp := f.Runs[i].Expected.Status
		if exp == "" {
			exp = "-"
		}
		match := "OK"
		if !r.Match() {
			match = "DIFF"
		}
		fmt.Fprintf(w, "%-24s| %-9s| %-9s| %4d%% | %s\n", truncate(r.Label, 24), exp, r.Report.Status, r.Report.ConformityRate, match)
		for _, d := range r.Diffs {
			fmt.Fprintf(w, "    %s\n", d)
		}
	}

	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge (%d success, %d warning, %d error)\n",
		s.TotalRuns, s.Matches, s.Diverged, s.Successes, s.Warnings, s.Errors)
	fmt.Fprintf(w, "History: %d recent run(s), %d timeline entries\n", len(s.FinalState.RecentRuns), len(s.FinalState.Timeline))
}

type jsonResult struct {
	Label          string   `json:"label"`
	RunID          string   `json:"run_id"`
	Status         string   `json:"status"`
	ConformityRate int      `json:"conformity_rate"`
	TotalIssues    int      `json:"total_issues"`
	Match          bool     `json:"match"`
	Diffs          []string `json:"diffs,omitempty"`
}

type jsonOutput struct {
	Results  []jsonResult `json:"results"`
	Total    int          `json:"total"`
	Matches  int          `json:"matches"`
	Diverged int          `json:"diverged"`
}

func printJSON(w io.Writer, results []replay.ReplayResult, s replay.ReplaySummary) error {
	out := jsonOutput{Total: s.TotalRuns, Matches: s.Matches, Diverged: s.Diverged}
	for _, r := range results {
		out.Results = append(out.Results, jsonResult{
			Label:          r.Label,
			RunID:          r.Report.RunID,
			Status:         string(r.Report.Status),
			ConformityRate: r.Report.ConformityRate,
			TotalIssues:    r.Report.TotalProblems,
			Match:          r.Match(),
			Diffs:          r.Diffs,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// #endregion output
