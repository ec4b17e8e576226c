package runlog

import "time"

// #region run-entry
// Entry is a single row in the run_log table. Every run attempt is logged,
// including failed runs that never reach the history store.
type Entry struct {
	RunID          string
	Label          string
	Source         string
	Status         string // "success" | "warning" | "error"
	Fingerprint    string // xxhash of the element set, empty for failed runs
	TotalElements  int
	TotalIssues    int
	ConformityRate int
	ElapsedMs      int64
	Warnings       string // comma-separated warning codes
	Error          string
	CreatedAt      time.Time
}

// #endregion run-entry
