package engine

import (
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/bimcheck/internal/metrics"
)

// #region errors
var (
	// ErrRunInProgress is returned when a run is requested while another is running.
	// Requests are rejected, not queued.
	ErrRunInProgress = errors.New("validation run already in progress")
	// ErrSourceFailure wraps element source errors. The run ends with status error.
	ErrSourceFailure = errors.New("element source failure")
)

// #endregion errors

// #region run-states
// Run lifecycle states and events. Every run gets a fresh machine starting at StateIdle.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"

	EventStart    = "start"
	EventComplete = "complete"
	EventFail     = "fail"
)

// #endregion run-states

// #region options
// Options carries the engine's optional collaborators. Zero values disable
// the corresponding feature.
type Options struct {
	Metrics *metrics.Metrics
	RunLog  *sql.DB // run_log database, see runlog.Open
	Logger  *zap.SugaredLogger
	Clock   func() time.Time
	IDs     func() string
}

// #endregion options
