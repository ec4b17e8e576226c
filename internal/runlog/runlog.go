package runlog

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/bimcheck/internal/element"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS run_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	label           TEXT,
	source          TEXT,
	status          TEXT NOT NULL,
	fingerprint     TEXT,
	total_elements  INTEGER NOT NULL DEFAULT 0,
	total_issues    INTEGER NOT NULL DEFAULT 0,
	conformity_rate INTEGER NOT NULL DEFAULT 0,
	elapsed_ms      INTEGER NOT NULL DEFAULT 0,
	warnings        TEXT,
	error           TEXT,
	created_at      TEXT NOT NULL
);
`

// #endregion schema

// #region open
// Open opens the run log database at path and creates the table.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Init creates the run_log table if it does not exist.
func Init(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate run log: %w", err)
	}
	return nil
}

// #endregion open

// #region record
// Record writes one run entry to the run_log table.
func Record(db *sql.DB, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO run_log (run_id, label, source, status, fingerprint, total_elements, total_issues, conformity_rate, elapsed_ms, warnings, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		nullIfEmpty(entry.Label),
		nullIfEmpty(entry.Source),
		entry.Status,
		nullIfEmpty(entry.Fingerprint),
		entry.TotalElements,
		entry.TotalIssues,
		entry.ConformityRate,
		entry.ElapsedMs,
		nullIfEmpty(entry.Warnings),
		nullIfEmpty(entry.Error),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// #endregion record

// #region list
const selectColumns = `SELECT run_id, label, source, status, fingerprint, total_elements, total_issues, conformity_rate, elapsed_ms, warnings, error, created_at FROM run_log`

// ErrNotFound is returned by Get when no entry matches.
var ErrNotFound = errors.New("run not found")

// List returns the newest entries first, at most limit of them.
func List(db *sql.DB, limit int) ([]Entry, error) {
	rows, err := db.Query(selectColumns+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the newest entry whose run ID starts with prefix.
func Get(db *sql.DB, prefix string) (Entry, error) {
	if prefix == "" {
		return Entry{}, ErrNotFound
	}
	row := db.QueryRow(selectColumns+` WHERE substr(run_id, 1, ?) = ? ORDER BY id DESC LIMIT 1`, len(prefix), prefix)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var label, src, fp, warnings, errText sql.NullString
	var createdStr string
	if err := s.Scan(&e.RunID, &label, &src, &e.Status, &fp, &e.TotalElements, &e.TotalIssues,
		&e.ConformityRate, &e.ElapsedMs, &warnings, &errText, &createdStr); err != nil {
		return Entry{}, fmt.Errorf("scan run: %w", err)
	}
	e.Label = label.String
	e.Source = src.String
	e.Fingerprint = fp.String
	e.Warnings = warnings.String
	e.Error = errText.String
	created, err := time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return Entry{}, fmt.Errorf("parse created_at: %w", err)
	}
	e.CreatedAt = created
	return e, nil
}

// #endregion list

// #region fingerprint
// Fingerprint hashes an element set so repeated runs over the same input can
// be spotted in the log. Property order does not affect the result; element
// order does.
func Fingerprint(elements []element.Element) string {
	h := xxhash.New()
	for _, el := range elements {
		h.WriteString(el.ID)
		h.Write([]byte{0})
		h.WriteString(el.Name)
		h.Write([]byte{0})
		h.WriteString(string(el.Category))
		h.Write([]byte{0})

		keys := make([]string, 0, len(el.Properties))
		for k := range el.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.WriteString(k)
			h.Write([]byte{'='})
			h.WriteString(el.Properties[k])
			h.Write([]byte{0})
		}
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// #endregion fingerprint

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
