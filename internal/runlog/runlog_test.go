package runlog

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/bimcheck/internal/element"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := Init(db); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// #endregion helpers

// #region record-tests
func TestRecord_Success(t *testing.T) {
	db := setupDB(t)

	entry := Entry{
		RunID:          "r1",
		Label:          "Tower A",
		Source:         "models/tower-a.json",
		Status:         "warning",
		Fingerprint:    "00ff00ff00ff00ff",
		TotalElements:  18,
		TotalIssues:    5,
		ConformityRate: 72,
		ElapsedMs:      40,
		Warnings:       "malformed_element",
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := Record(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := List(db, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if !got.CreatedAt.Equal(entry.CreatedAt) {
		t.Errorf("created_at: got %v, want %v", got.CreatedAt, entry.CreatedAt)
	}
	got.CreatedAt = entry.CreatedAt
	if got != entry {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, entry)
	}
}

func TestRecord_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)

	if err := Record(db, Entry{RunID: "r2", Status: "error", Error: "source failed"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, _ := List(db, 10)
	if len(entries) != 1 || entries[0].CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be filled, got %+v", entries)
	}
	if entries[0].Label != "" || entries[0].Error != "source failed" {
		t.Errorf("unexpected nullable columns: %+v", entries[0])
	}
}

func TestRecord_ClosedDB(t *testing.T) {
	db, _ := sql.Open("sqlite", ":memory:")
	db.Close()

	if err := Record(db, Entry{RunID: "r3", Status: "success"}); err == nil {
		t.Fatal("expected error on closed DB")
	}
	if _, err := List(db, 1); err == nil {
		t.Fatal("expected list error on closed DB")
	}
}

// #endregion record-tests

// #region list-tests
func TestList_NewestFirstAndLimit(t *testing.T) {
	db := setupDB(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := Record(db, Entry{RunID: id, Status: "success"}); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}

	entries, err := List(db, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"d", "c", "b"} {
		if entries[i].RunID != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, entries[i].RunID)
		}
	}
}

func TestGet_PrefixMatch(t *testing.T) {
	db := setupDB(t)
	for _, id := range []string{"abc-1", "abd-2", "abc-3"} {
		if err := Record(db, Entry{RunID: id, Label: "L " + id, Status: "warning"}); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}

	e, err := Get(db, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.RunID != "abc-3" {
		t.Errorf("expected newest match abc-3, got %s", e.RunID)
	}
	if e.Label != "L abc-3" {
		t.Errorf("unexpected label %q", e.Label)
	}

	if _, err := Get(db, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := Get(db, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty prefix, got %v", err)
	}
}

func TestOpen_File(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := Record(db, Entry{RunID: "x", Status: "success"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

// #endregion list-tests

// #region fingerprint-tests
func TestFingerprint(t *testing.T) {
	a := []element.Element{
		{ID: "1", Name: "W", Category: element.Wall, Properties: map[string]string{"material": "C30", "dimensions": "1x2x3"}},
		{ID: "2", Name: "D", Category: element.Door, Properties: map[string]string{}},
	}
	b := []element.Element{
		{ID: "1", Name: "W", Category: element.Wall, Properties: map[string]string{"dimensions": "1x2x3", "material": "C30"}},
		{ID: "2", Name: "D", Category: element.Door, Properties: map[string]string{}},
	}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("property order must not change the fingerprint")
	}
	if len(Fingerprint(a)) != 16 {
		t.Errorf("expected 16 hex chars, got %q", Fingerprint(a))
	}

	reordered := []element.Element{a[1], a[0]}
	if Fingerprint(a) == Fingerprint(reordered) {
		t.Error("element order must change the fingerprint")
	}

	changed := []element.Element{a[0], {ID: "2", Name: "D", Category: element.Door, Properties: map[string]string{"material": "oak"}}}
	if Fingerprint(a) == Fingerprint(changed) {
		t.Error("property values must change the fingerprint")
	}
}

// #endregion fingerprint-tests
