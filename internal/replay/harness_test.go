package replay

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/bimcheck/internal/history"
	"github.com/danielpatrickdp/bimcheck/internal/report"
)

// #region fixture-tests

// TestFixture_Regression loads the regression fixture, replays every run and
// requires each expected outcome to match. If rule or aggregation behaviour
// changes, this catches drift.
func TestFixture_Regression(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "regression.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results, final, err := Replay(context.Background(), f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(results) != len(f.Runs) {
		t.Fatalf("expected %d results, got %d", len(f.Runs), len(results))
	}
	for i, r := range results {
		if r.Label != f.Runs[i].Label {
			t.Errorf("run %d: expected label %q, got %q", i, f.Runs[i].Label, r.Label)
		}
		for _, d := range r.Diffs {
			t.Errorf("run %d (%s): %s", i, r.Label, d)
		}
	}

	s := Summarize(results, final)
	if s.TotalRuns != 5 || s.Matches != 5 || s.Diverged != 0 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.Successes != 2 || s.Warnings != 2 || s.Errors != 1 {
		t.Errorf("unexpected status counts: %+v", s)
	}

	// the failed run never reaches history
	if len(final.RecentRuns) != 4 {
		t.Fatalf("expected 4 recent runs, got %d", len(final.RecentRuns))
	}
	if final.RecentRuns[0].Label != "Annex - broken export" {
		t.Errorf("expected newest run first, got %q", final.RecentRuns[0].Label)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "regression.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	first, _, err := Replay(context.Background(), f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	second, _, err := Replay(context.Background(), f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	for i := range first {
		a, b := first[i].Report, second[i].Report
		if a.RunID != b.RunID || !a.StartedAt.Equal(b.StartedAt) || a.ElapsedMs != b.ElapsedMs {
			t.Errorf("run %d differs between replays: %s@%v vs %s@%v", i, a.RunID, a.StartedAt, b.RunID, b.StartedAt)
		}
	}
	if first[0].Report.RunID != "replay-001" {
		t.Errorf("unexpected first run ID %q", first[0].Report.RunID)
	}
}

func TestReplayReportsDivergence(t *testing.T) {
	ten := 10
	f := &Fixture{
		Runs: []FixtureRun{{
			Label:    "drift",
			Elements: []byte(`[{"id":"a","name":"A","category":"Wall","properties":{"material":"C30","dimensions":"1x1","normCode":"EN 1"}}]`),
			Expected: FixtureExpected{Status: "warning", ConformityRate: &ten, Warnings: []string{}},
		}},
	}

	results, _, err := Replay(context.Background(), f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if results[0].Match() {
		t.Fatal("expected divergence")
	}
	if len(results[0].Diffs) != 2 {
		t.Errorf("expected status and conformity diffs, got %v", results[0].Diffs)
	}
	if s := Summarize(results, history.EmptyState()); s.Diverged != 1 {
		t.Errorf("expected 1 diverged run, got %d", s.Diverged)
	}
}

func TestReplayCustomTokens(t *testing.T) {
	f := &Fixture{
		NormTokens: []string{"DIN"},
		Runs: []FixtureRun{{
			Label:    "din",
			Elements: []byte(`[{"id":"a","category":"Wall","properties":{"material":"C30","dimensions":"1x1","normCode":"DIN 1045"}}]`),
			Expected: FixtureExpected{Status: "success"},
		}},
	}
	results, _, err := Replay(context.Background(), f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !results[0].Match() {
		t.Errorf("unexpected diffs: %v", results[0].Diffs)
	}
}

func TestReplayBadElements(t *testing.T) {
	f := &Fixture{Runs: []FixtureRun{{Label: "bad", Elements: []byte(`{"elements": 3}`)}}}
	if _, _, err := Replay(context.Background(), f); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCompareWarnings(t *testing.T) {
	rep := report.Report{Status: history.StatusWarning, Warnings: []report.Warning{{Code: report.WarnPersistenceWrite}}}
	if d := compare(FixtureExpected{Warnings: []string{report.WarnPersistenceWrite}}, rep); len(d) != 0 {
		t.Errorf("unexpected diffs: %v", d)
	}
	if d := compare(FixtureExpected{Warnings: []string{}}, rep); len(d) != 1 {
		t.Errorf("expected one diff, got %v", d)
	}
	// unset fields are not compared
	if d := compare(FixtureExpected{}, rep); len(d) != 0 {
		t.Errorf("unexpected diffs: %v", d)
	}
}

func TestExpectedFromRoundTrips(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "regression.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	results, _, err := Replay(context.Background(), f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	// a baseline recorded from one replay must match the next
	for i, r := range results {
		f.Runs[i].Expected = ExpectedFrom(r.Report)
	}
	again, _, err := Replay(context.Background(), f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	for _, r := range again {
		if !r.Match() {
			t.Errorf("%s: %v", r.Label, r.Diffs)
		}
	}
	if got := f.Runs[1].Expected.IssuesByCategory["dimensions"]; got != 1 {
		t.Errorf("expected 1 recorded dimensions issue, got %d", got)
	}
}

func TestLoadFixtureMissing(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error")
	}
}

// #endregion fixture-tests
