package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// #region persistent-store
// ErrNotFound is returned by a PersistentStore that holds no payload.
var ErrNotFound = errors.New("no persisted dashboard state")

// PersistentStore durably holds the single encoded dashboard payload.
// Save must replace the previous payload atomically: a reader observes either
// the old or the new payload in full.
type PersistentStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, payload []byte) error
	Clear(ctx context.Context) error
}

// Backend is a PersistentStore owning resources that must be released.
type Backend interface {
	PersistentStore
	Close() error
}

// #endregion persistent-store

// #region persistence-error
// Persistence operations reported in PersistenceError.Op.
const (
	OpMissing = "missing"
	OpRead    = "read"
	OpDecode  = "decode"
	OpSchema  = "schema"
	OpWrite   = "write"
	OpClear   = "clear"
)

// PersistenceError is a recoverable history persistence failure. The store
// stays usable: reads fall back to the empty state, failed writes leave the
// in-memory state untouched.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// #endregion persistence-error

// #region codec
var validate = validator.New()

func encodeState(st DashboardState) ([]byte, error) {
	return json.Marshal(st)
}

// decodeState parses and validates a persisted payload. Unknown fields are ignored.
func decodeState(payload []byte) (DashboardState, error) {
	var st DashboardState
	if err := json.Unmarshal(payload, &st); err != nil {
		return DashboardState{}, &PersistenceError{Op: OpDecode, Err: err}
	}
	if st.RecentRuns == nil {
		st.RecentRuns = []ValidationRun{}
	}
	if st.Timeline == nil {
		st.Timeline = []TimelineEntry{}
	}
	if err := validateState(st); err != nil {
		return DashboardState{}, &PersistenceError{Op: OpSchema, Err: err}
	}
	return st, nil
}

func validateState(st DashboardState) error {
	if err := validate.Struct(st); err != nil {
		return err
	}
	for i, r := range st.RecentRuns {
		if err := validateRun(r); err != nil {
			return fmt.Errorf("recentRuns[%d]: %w", i, err)
		}
	}
	return nil
}

// validateRun checks the invariants the struct tags cannot express.
func validateRun(r ValidationRun) error {
	if r.Timestamp.IsZero() {
		return errors.New("timestamp is zero")
	}
	sum := 0
	for _, n := range r.Summary.IssuesByCategory {
		sum += n
	}
	if sum != r.Summary.TotalIssues {
		return fmt.Errorf("totalIssues %d does not match category sum %d", r.Summary.TotalIssues, sum)
	}
	return nil
}

// #endregion codec
