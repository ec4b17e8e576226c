package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/bimcheck/internal/aggregate"
	"github.com/danielpatrickdp/bimcheck/internal/element"
	"github.com/danielpatrickdp/bimcheck/internal/history"
	"github.com/danielpatrickdp/bimcheck/internal/rules"
)

// #region builder
// Builder turns evaluated runs into Reports and is the only component that
// appends to the history store.
type Builder struct {
	store  *history.Store
	now    func() time.Time
	newID  func() string
	logger *zap.SugaredLogger
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the time source used for elapsed time and run timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithIDs overrides run ID generation.
func WithIDs(newID func() string) Option {
	return func(b *Builder) { b.newID = newID }
}

// WithLogger sets the builder's logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(b *Builder) { b.logger = logger }
}

// NewBuilder creates a Builder writing to store.
func NewBuilder(store *history.Store, opts ...Option) *Builder {
	b := &Builder{
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// #endregion builder

// #region build
// Build aggregates a completed run, appends it to history and returns its
// Report. A history write failure does not fail the run: the report is
// returned with a persistence_write warning instead.
func (b *Builder) Build(ctx context.Context, label string, elements []element.Element, issues []rules.Issue, startedAt time.Time) Report {
	if issues == nil {
		issues = []rules.Issue{}
	}
	summary := aggregate.Aggregate(elements, issues)

	status := history.StatusSuccess
	if len(issues) > 0 {
		status = history.StatusWarning
	}

	r := b.base(label, startedAt, status)
	r.Summary = &summary
	r.Issues = issues
	r.TotalElements = summary.TotalElements
	r.ConformityRate = summary.ConformityRate
	r.TotalProblems = summary.TotalIssues

	// the stored run owns its own category maps
	var stored aggregate.Summary
	if err := deepcopy.Copy(&stored, &summary); err != nil {
		b.logger.Errorw("Failed to copy run summary", "run_id", r.RunID, "error", err)
		stored = aggregate.Aggregate(elements, issues)
	}
	run := history.ValidationRun{
		ID:        r.RunID,
		Timestamp: startedAt,
		Label:     label,
		Status:    status,
		Summary:   stored,
		ElapsedMs: r.ElapsedMs,
	}
	if _, err := b.store.Append(ctx, run); err != nil {
		b.logger.Warnw("History not updated for run", "run_id", r.RunID, "error", err)
		r.Warnings = append(r.Warnings, Warning{
			Code:    WarnPersistenceWrite,
			Message: fmt.Sprintf("history not saved: %v", err),
		})
	}
	return r
}

// #endregion build

// #region failure
// Failure builds the error report for a run whose element source failed.
// Nothing is aggregated and history is not touched.
func (b *Builder) Failure(label string, err error, startedAt time.Time) Report {
	r := b.base(label, startedAt, history.StatusError)
	r.Issues = []rules.Issue{}
	if err == nil {
		err = errors.New("unknown failure")
	}
	r.Error = err.Error()
	return r
}

// #endregion failure

// #region helpers
func (b *Builder) base(label string, startedAt time.Time, status history.Status) Report {
	elapsed := b.now().Sub(startedAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return Report{
		RunID:          b.newID(),
		Label:          label,
		StartedAt:      startedAt.UTC(),
		ElapsedMs:      elapsed,
		ProcessingTime: math.Round(float64(elapsed)/100) / 10,
		Status:         status,
		Warnings:       []Warning{},
	}
}

// #endregion helpers
