package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tiendc/go-deepcopy"
	"go.uber.org/zap"
)

// ErrInvalidRun is returned by Append for runs that would not pass schema validation on reload.
var ErrInvalidRun = errors.New("invalid validation run")

// #region store-struct
// Store owns the DashboardState. All mutations go through Append and Clear,
// which are serialized and written through to the PersistentStore as a full
// replacement of the persisted payload.
type Store struct {
	mu      sync.Mutex
	backend PersistentStore
	state   DashboardState
	logger  *zap.SugaredLogger
}

// #endregion store-struct

// #region constructor
// NewStore wraps a backend. The in-memory state starts empty until Load is called.
func NewStore(backend PersistentStore, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		backend: backend,
		state:   EmptyState(),
		logger:  logger,
	}
}

// #endregion constructor

// #region load
// Load reads the persisted state into memory and returns it. When the payload
// is missing, unreadable or fails validation the store resets to EmptyState
// and returns it together with a *PersistenceError; the returned state is
// usable either way.
func (s *Store) Load(ctx context.Context) (DashboardState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.backend.Load(ctx)
	if err != nil {
		s.state = EmptyState()
		if errors.Is(err, ErrNotFound) {
			return s.snapshotLocked(), &PersistenceError{Op: OpMissing, Err: err}
		}
		s.logger.Warnw("Failed to read dashboard state, using empty state", "error", err)
		return s.snapshotLocked(), &PersistenceError{Op: OpRead, Err: err}
	}

	st, err := decodeState(payload)
	if err != nil {
		s.state = EmptyState()
		s.logger.Warnw("Persisted dashboard state rejected, using empty state", "error", err)
		return s.snapshotLocked(), err
	}

	s.state = st
	s.logger.Debugw("Loaded dashboard state", "recent", len(st.RecentRuns), "timeline", len(st.Timeline))
	return s.snapshotLocked(), nil
}

// #endregion load

// #region append
// Append prepends run to the recent list and its descriptor to the timeline,
// evicting the oldest entries past MaxRecentRuns and MaxTimeline. If the write
// fails the in-memory state is left as it was and the previous state is
// returned with a *PersistenceError.
func (s *Store) Append(ctx context.Context, run ValidationRun) (DashboardState, error) {
	run.Timestamp = run.Timestamp.UTC()
	if err := validate.Struct(run); err != nil {
		return s.Snapshot(), fmt.Errorf("%w: %v", ErrInvalidRun, err)
	}
	if err := validateRun(run); err != nil {
		return s.Snapshot(), fmt.Errorf("%w: %v", ErrInvalidRun, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := DashboardState{
		RecentRuns: prepend(s.state.RecentRuns, run, MaxRecentRuns),
		Timeline:   prepend(s.state.Timeline, run.Entry(), MaxTimeline),
	}
	if err := s.saveLocked(ctx, next); err != nil {
		return s.snapshotLocked(), err
	}
	s.state = next
	return s.snapshotLocked(), nil
}

// #endregion append

// #region clear
// Clear empties the history and removes the persisted payload.
func (s *Store) Clear(ctx context.Context) (DashboardState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Clear(ctx); err != nil {
		s.logger.Warnw("Failed to clear dashboard state", "error", err)
		return s.snapshotLocked(), &PersistenceError{Op: OpClear, Err: err}
	}
	s.state = EmptyState()
	return s.snapshotLocked(), nil
}

// #endregion clear

// #region snapshot
// Snapshot returns a deep copy of the current in-memory state.
func (s *Store) Snapshot() DashboardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() DashboardState {
	var out DashboardState
	if err := deepcopy.Copy(&out, &s.state); err != nil {
		// deepcopy only fails on uncopyable types, none of which appear here
		s.logger.Errorw("Failed to copy dashboard state", "error", err)
		return EmptyState()
	}
	return out
}

// #endregion snapshot

// #region helpers
func (s *Store) saveLocked(ctx context.Context, st DashboardState) error {
	payload, err := encodeState(st)
	if err != nil {
		return &PersistenceError{Op: OpWrite, Err: err}
	}
	if err := s.backend.Save(ctx, payload); err != nil {
		s.logger.Warnw("Failed to persist dashboard state", "error", err)
		return &PersistenceError{Op: OpWrite, Err: err}
	}
	return nil
}

// prepend returns a new slice with v first and at most limit entries. The
// input slice is never modified.
func prepend[T any](list []T, v T, limit int) []T {
	n := len(list) + 1
	if n > limit {
		n = limit
	}
	out := make([]T, 0, n)
	out = append(out, v)
	out = append(out, list[:n-1]...)
	return out
}

// #endregion helpers
