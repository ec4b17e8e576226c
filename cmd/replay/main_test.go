package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

const driftFixture = `{
  "runs": [
    {"label": "ok", "elements": [], "expected": {"status": "success"}},
    {"label": "drift", "elements": [{"id": "a", "category": "Wall", "properties": {"material": "C30"}}],
     "expected": {"status": "success"}}
  ]
}`

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestRegressionFixturePasses(t *testing.T) {
	var buf bytes.Buffer
	code := runFixtureMode(&buf, filepath.Join("..", "..", "internal", "replay", "testdata", "regression.json"), false)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d:\n%s", code, buf.String())
	}
	if !strings.Contains(buf.String(), "Summary: 5 total, 5 match, 0 diverge") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestDivergenceExitCode(t *testing.T) {
	var buf bytes.Buffer
	code := runFixtureMode(&buf, writeFixture(t, driftFixture), true)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}

	var out jsonOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, buf.String())
	}
	if out.Total != 2 || out.Diverged != 1 {
		t.Errorf("unexpected totals: %+v", out)
	}
	if out.Results[1].Match || out.Results[1].Status != "warning" {
		t.Errorf("unexpected drift result: %+v", out.Results[1])
	}
}

func TestMissingFixture(t *testing.T) {
	var buf bytes.Buffer
	if code := runFixtureMode(&buf, filepath.Join(t.TempDir(), "nope.json"), false); code != 2 {
		t.Errorf("expected exit 2, got %d", code)
	}
}
