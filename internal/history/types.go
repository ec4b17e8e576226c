package history

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/bimcheck/internal/aggregate"
)

// #region limits
const (
	MaxRecentRuns = 5
	MaxTimeline   = 10

	// StateKey names the single persisted record holding the dashboard state.
	StateKey = "bimcheck_dashboard_data"
)

// #endregion limits

// #region status
// Status is the terminal outcome of a validation run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Icon maps a status onto its dashboard icon name.
func (s Status) Icon() string {
	switch s {
	case StatusSuccess:
		return "fa-check-circle"
	case StatusWarning:
		return "fa-exclamation-triangle"
	case StatusError:
		return "fa-times-circle"
	}
	return "fa-info-circle"
}

// #endregion status

// #region validation-run
// ValidationRun is one immutable history entry.
type ValidationRun struct {
	ID        string            `json:"id" validate:"required"`
	Timestamp time.Time         `json:"timestamp"`
	Label     string            `json:"label"`
	Status    Status            `json:"status" validate:"oneof=success warning error"`
	Summary   aggregate.Summary `json:"summary"`
	ElapsedMs int64             `json:"elapsedMs" validate:"gte=0"`
}

// Description is the one-line text shown for the run in the recent list.
func (r ValidationRun) Description() string {
	return fmt.Sprintf("Validation completed with %d%% conformity", r.Summary.ConformityRate)
}

// #endregion validation-run

// #region timeline-entry
// TimelineEntry is the compact descriptor of a run kept in the longer timeline.
type TimelineEntry struct {
	RunID       string    `json:"runId" validate:"required"`
	Date        time.Time `json:"date"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

// Entry derives the timeline descriptor of a run.
func (r ValidationRun) Entry() TimelineEntry {
	return TimelineEntry{
		RunID: r.ID,
		Date:  r.Timestamp,
		Title: r.Label,
		Description: fmt.Sprintf("%d elements validated, %d problems found",
			r.Summary.TotalElements, r.Summary.TotalIssues),
	}
}

// #endregion timeline-entry

// #region dashboard-state
// DashboardState is the bounded history owned by Store. Both lists are newest first.
type DashboardState struct {
	RecentRuns []ValidationRun `json:"recentRuns" validate:"max=5,dive"`
	Timeline   []TimelineEntry `json:"timeline" validate:"max=10,dive"`
}

// EmptyState returns the default state used on first start and after load failures.
func EmptyState() DashboardState {
	return DashboardState{
		RecentRuns: []ValidationRun{},
		Timeline:   []TimelineEntry{},
	}
}

// #endregion dashboard-state

// #region stats
// Stats summarizes the recent runs for the dashboard analysis panel.
type Stats struct {
	TotalValidations      int     `json:"totalValidations"`
	SuccessfulValidations int     `json:"successfulValidations"`
	AverageConformity     float64 `json:"averageConformity"`
	AverageElapsedMs      int64   `json:"averageElapsedMs"`
	MostCommonIssue       string  `json:"mostCommonIssue,omitempty"`
}

// #endregion stats
