package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/bimcheck/internal/replay"
)

func TestBuildRecordsBaseline(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a-good.json": `{"label": "Good", "elements": [{"id": "w1", "category": "Wall",
			"properties": {"material": "C30", "dimensions": "1x1", "normCode": "EN 1"}}]}`,
		"b-bad.json": `[{"id": "w2", "category": "Wall", "properties": {"material": "C30", "dimensions": "1x1"}}]`,
		"notes.txt":  "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	fixture, err := build(dir, nil, 1<<20)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(fixture.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(fixture.Runs))
	}
	if fixture.Runs[0].Label != "Good" || fixture.Runs[1].Label != "b-bad.json" {
		t.Errorf("unexpected labels: %q, %q", fixture.Runs[0].Label, fixture.Runs[1].Label)
	}
	if fixture.Runs[0].Expected.Status != "success" || fixture.Runs[1].Expected.Status != "warning" {
		t.Errorf("unexpected statuses: %+v", fixture.Runs)
	}

	// written fixtures replay cleanly
	out := filepath.Join(t.TempDir(), "fixture.json")
	if err := writeFixture(*fixture, out); err != nil {
		t.Fatalf("writeFixture: %v", err)
	}
	loaded, err := replay.LoadFixture(out)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	results, _, err := replay.Replay(context.Background(), loaded)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	for _, r := range results {
		if !r.Match() {
			t.Errorf("%s diverged: %v", r.Label, r.Diffs)
		}
	}
}

func TestBuildEmptyDir(t *testing.T) {
	if _, err := build(t.TempDir(), nil, 1<<20); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestSplitTokens(t *testing.T) {
	got := splitTokens(" EN, ,DIN ")
	if len(got) != 2 || got[0] != "EN" || got[1] != "DIN" {
		t.Errorf("unexpected tokens: %v", got)
	}
	if splitTokens("") != nil {
		t.Error("expected nil for empty input")
	}
}
