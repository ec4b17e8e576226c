package replay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/danielpatrickdp/bimcheck/internal/engine"
	"github.com/danielpatrickdp/bimcheck/internal/history"
	"github.com/danielpatrickdp/bimcheck/internal/report"
	"github.com/danielpatrickdp/bimcheck/internal/rules"
)

// #region types
// ReplayResult captures the outcome of replaying one fixture run through the engine.
type ReplayResult struct {
	Label  string
	Report report.Report
	// Diffs lists the expected fields that did not match; empty means the run matched.
	Diffs []string
}

// Match reports whether every expected field matched.
func (r ReplayResult) Match() bool {
	return len(r.Diffs) == 0
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalRuns  int
	Matches    int
	Diverged   int
	Successes  int
	Warnings   int
	Errors     int
	FinalState history.DashboardState
}

// #endregion types

// #region replay
// epoch is the fixed start of the replay clock; each run starts one minute later.
var epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

// Replay runs every fixture run in order through a fresh engine backed by an
// in-memory history. Clock and run IDs are deterministic so results can be
// compared across versions. The final dashboard state is returned alongside.
func Replay(ctx context.Context, f *Fixture) ([]ReplayResult, history.DashboardState, error) {
	store := history.NewStore(history.NewMemoryBackend(nil), nil)

	var tick, seq int
	clock := func() time.Time {
		tick++
		return epoch.Add(time.Duration(tick) * time.Minute)
	}
	ids := func() string {
		seq++
		return fmt.Sprintf("replay-%03d", seq)
	}

	eng, err := engine.New(f.RuleConfig(), store, engine.Options{Clock: clock, IDs: ids})
	if err != nil {
		return nil, history.EmptyState(), err
	}

	results := make([]ReplayResult, 0, len(f.Runs))
	for i := range f.Runs {
		fr := &f.Runs[i]
		src, err := fr.ToSource()
		if err != nil {
			return results, eng.Dashboard(), err
		}

		rep, err := eng.Run(ctx, fr.Label, src)
		if err != nil && !errors.Is(err, engine.ErrSourceFailure) {
			return results, eng.Dashboard(), fmt.Errorf("run %q: %w", fr.Label, err)
		}
		results = append(results, ReplayResult{
			Label:  fr.Label,
			Report: rep,
			Diffs:  compare(fr.Expected, rep),
		})
	}
	return results, eng.Dashboard(), nil
}

// compare checks rep against the expected fields that are set.
func compare(exp FixtureExpected, rep report.Report) []string {
	var diffs []string
	if exp.Status != "" && exp.Status != string(rep.Status) {
		diffs = append(diffs, fmt.Sprintf("status: expected %s, got %s", exp.Status, rep.Status))
	}
	if exp.ConformityRate != nil && *exp.ConformityRate != rep.ConformityRate {
		diffs = append(diffs, fmt.Sprintf("conformity: expected %d, got %d", *exp.ConformityRate, rep.ConformityRate))
	}
	if exp.TotalIssues != nil && *exp.TotalIssues != rep.TotalProblems {
		diffs = append(diffs, fmt.Sprintf("issues: expected %d, got %d", *exp.TotalIssues, rep.TotalProblems))
	}
	for cat, want := range exp.IssuesByCategory {
		got := 0
		if rep.Summary != nil {
			got = rep.Summary.IssuesByCategory[rules.Category(cat)]
		}
		if got != want {
			diffs = append(diffs, fmt.Sprintf("%s issues: expected %d, got %d", cat, want, got))
		}
	}
	if exp.Warnings != nil {
		got := make([]string, len(rep.Warnings))
		for i, w := range rep.Warnings {
			got[i] = w.Code
		}
		if !slices.Equal(exp.Warnings, got) {
			diffs = append(diffs, fmt.Sprintf("warnings: expected %v, got %v", exp.Warnings, got))
		}
	}
	slices.Sort(diffs)
	return diffs
}

// ExpectedFrom records rep's outcome as the expectation of a baseline fixture run.
func ExpectedFrom(rep report.Report) FixtureExpected {
	conformity, issues := rep.ConformityRate, rep.TotalProblems
	exp := FixtureExpected{
		Status:         string(rep.Status),
		ConformityRate: &conformity,
		TotalIssues:    &issues,
		Warnings:       make([]string, len(rep.Warnings)),
	}
	for i, w := range rep.Warnings {
		exp.Warnings[i] = w.Code
	}
	if rep.Summary != nil {
		exp.IssuesByCategory = make(map[string]int)
		for c, n := range rep.Summary.IssuesByCategory {
			if n > 0 {
				exp.IssuesByCategory[string(c)] = n
			}
		}
	}
	return exp
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult, finalState history.DashboardState) ReplaySummary {
	s := ReplaySummary{
		TotalRuns:  len(results),
		FinalState: finalState,
	}
	for _, r := range results {
		if r.Match() {
			s.Matches++
		} else {
			s.Diverged++
		}
		switch r.Report.Status {
		case history.StatusSuccess:
			s.Successes++
		case history.StatusWarning:
			s.Warnings++
		case history.StatusError:
			s.Errors++
		}
	}
	return s
}

// #endregion replay
