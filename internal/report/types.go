package report

import (
	"time"

	"github.com/danielpatrickdp/bimcheck/internal/aggregate"
	"github.com/danielpatrickdp/bimcheck/internal/history"
	"github.com/danielpatrickdp/bimcheck/internal/rules"
)

// #region warning
// Warning codes attached to a Report. Warnings never change the run status.
const (
	WarnMalformedElement = "malformed_element"
	WarnPersistenceWrite = "persistence_write"
	WarnPersistenceRead  = "persistence_read"
)

// Warning is a structured, non-fatal condition observed during a run.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// #endregion warning

// #region report
// Report is the read-only result of one run handed to presentation and
// export collaborators. Summary is nil only for failed runs; Issues is never nil.
type Report struct {
	RunID     string             `json:"runId"`
	Label     string             `json:"label"`
	StartedAt time.Time          `json:"startedAt"`
	Summary   *aggregate.Summary `json:"summary"`
	Issues    []rules.Issue      `json:"issues"`
	ElapsedMs int64              `json:"elapsedMs"`
	Status    history.Status     `json:"status"`
	Warnings  []Warning          `json:"warnings"`
	Error     string             `json:"error,omitempty"`

	// Flat dashboard view
	ProcessingTime float64 `json:"processingTime"` // seconds, one decimal
	TotalElements  int     `json:"totalElements"`
	ConformityRate int     `json:"conformityRate"`
	TotalProblems  int     `json:"totalProblems"`
}

// HasWarning reports whether a warning with the given code is attached.
func (r Report) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// StatusLabel is the approval wording used in exported summaries.
func (r Report) StatusLabel() string {
	switch r.Status {
	case history.StatusSuccess:
		return "Approved"
	case history.StatusWarning:
		return "Issues Found"
	}
	return "Failed"
}

// #endregion report
