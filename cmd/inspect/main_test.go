package main

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/danielpatrickdp/bimcheck/internal/aggregate"
	"github.com/danielpatrickdp/bimcheck/internal/history"
	"github.com/danielpatrickdp/bimcheck/internal/runlog"
)

func seedRunLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := runlog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []runlog.Entry{
		{RunID: "11111111-aaaa", Label: "Tower A", Status: "success", TotalElements: 10, ConformityRate: 100, CreatedAt: base},
		{RunID: "22222222-bbbb", Label: "Tower B", Status: "warning", TotalElements: 10, TotalIssues: 4, ConformityRate: 60,
			Warnings: "malformed_element,persistence_write", CreatedAt: base.Add(time.Hour)},
	}
	for _, e := range entries {
		if err := runlog.Record(db, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	return path
}

func openRunLog(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := runlog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestListModeTable(t *testing.T) {
	db := openRunLog(t, seedRunLog(t))
	var buf bytes.Buffer
	if err := runListMode(&buf, db, 20, "", false); err != nil {
		t.Fatalf("runListMode: %v", err)
	}
	out := buf.String()

	// chronological order
	a := strings.Index(out, "11111111")
	b := strings.Index(out, "22222222")
	if a < 0 || b < 0 || a > b {
		t.Fatalf("expected both runs in chronological order:\n%s", out)
	}
	if !strings.Contains(out, "average conformity 80%") {
		t.Errorf("missing average line:\n%s", out)
	}
}

func TestListModeStatusFilterJSON(t *testing.T) {
	db := openRunLog(t, seedRunLog(t))
	var buf bytes.Buffer
	if err := runListMode(&buf, db, 20, "warning", true); err != nil {
		t.Fatalf("runListMode: %v", err)
	}

	var rows []listRow
	if err := json.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, buf.String())
	}
	if len(rows) != 1 || rows[0].RunID != "22222222-bbbb" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestDetailMode(t *testing.T) {
	db := openRunLog(t, seedRunLog(t))
	var buf bytes.Buffer
	if err := runDetailMode(&buf, db, "2222", false); err != nil {
		t.Fatalf("runDetailMode: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Tower B", "Conformity:  60%", "malformed_element", "persistence_write"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}

	if err := runDetailMode(&buf, db, "nope", false); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestHistoryMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	backend, err := history.NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	store := history.NewStore(backend, nil)
	run := history.ValidationRun{
		ID:        "33333333-cccc",
		Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Label:     "Annex",
		Status:    history.StatusSuccess,
		Summary:   aggregate.Summary{TotalElements: 4, ConformityRate: 100},
		ElapsedMs: 12,
	}
	if _, err := store.Append(context.Background(), run); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var buf bytes.Buffer
	if err := runHistoryMode(&buf, history.BackendFile, path, true); err != nil {
		t.Fatalf("runHistoryMode: %v", err)
	}
	var out historyOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.State.RecentRuns) != 1 || out.State.RecentRuns[0].ID != run.ID {
		t.Fatalf("unexpected state: %+v", out.State)
	}
	if out.Stats.TotalValidations != 1 {
		t.Errorf("expected 1 validation, got %d", out.Stats.TotalValidations)
	}

	buf.Reset()
	if err := runHistoryMode(&buf, history.BackendFile, path, false); err != nil {
		t.Fatalf("runHistoryMode: %v", err)
	}
	if !strings.Contains(buf.String(), "Validation completed with 100% conformity") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 20); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("got %q", got)
	}
}
