package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/danielpatrickdp/bimcheck/internal/element"
	"github.com/danielpatrickdp/bimcheck/internal/history"
	"github.com/danielpatrickdp/bimcheck/internal/logger"
	"github.com/danielpatrickdp/bimcheck/internal/metrics"
	"github.com/danielpatrickdp/bimcheck/internal/report"
	"github.com/danielpatrickdp/bimcheck/internal/rules"
	"github.com/danielpatrickdp/bimcheck/internal/runlog"
	"github.com/danielpatrickdp/bimcheck/internal/source"
)

// maxListedMalformed caps the element IDs quoted in a malformed_element warning.
const maxListedMalformed = 10

// #region engine
// Engine runs validations one at a time: source, rules, report, history.
type Engine struct {
	evaluator *rules.Evaluator
	builder   *report.Builder
	store     *history.Store
	sem       *semaphore.Weighted
	metrics   *metrics.Metrics
	runlog    *sql.DB
	logger    *zap.SugaredLogger
	now       func() time.Time

	mu          sync.RWMutex
	state       string
	last        *report.Report
	readWarning *report.Warning
}

// New builds an engine. An invalid rule configuration is fatal.
func New(ruleConfig rules.Config, store *history.Store, opts Options) (*Engine, error) {
	evaluator, err := rules.NewEvaluator(ruleConfig)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if store == nil {
		return nil, errors.New("engine: history store is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	builderOpts := []report.Option{report.WithClock(opts.Clock), report.WithLogger(opts.Logger.Named(logger.ComponentReport))}
	if opts.IDs != nil {
		builderOpts = append(builderOpts, report.WithIDs(opts.IDs))
	}

	return &Engine{
		evaluator: evaluator,
		builder:   report.NewBuilder(store, builderOpts...),
		store:     store,
		sem:       semaphore.NewWeighted(1),
		metrics:   opts.Metrics,
		runlog:    opts.RunLog,
		logger:    opts.Logger,
		now:       opts.Clock,
		state:     StateIdle,
	}, nil
}

// #endregion engine

// #region run
// Run validates the element set supplied by src. label names the run; when
// empty, a source implementing source.Labeler supplies it. On source failure
// the returned report has status error and the error wraps ErrSourceFailure.
func (e *Engine) Run(ctx context.Context, label string, src source.Source) (report.Report, error) {
	if !e.sem.TryAcquire(1) {
		e.metrics.Rejected()
		return report.Report{}, ErrRunInProgress
	}
	defer e.sem.Release(1)

	startedAt := e.now()
	machine := e.newRunFSM()

	elements, err := src.Elements(ctx)
	if label == "" {
		if l, ok := src.(source.Labeler); ok {
			label = l.Label()
		}
	}
	if err != nil {
		e.transition(ctx, machine, EventFail)
		rep := e.builder.Failure(label, err, startedAt)
		e.finish(rep, sourceName(src), "")
		e.logger.Warnw("Element source failed", "run_id", rep.RunID, "label", label, "error", err)
		return rep, fmt.Errorf("%w: %v", ErrSourceFailure, err)
	}

	e.transition(ctx, machine, EventStart)
	issues := e.evaluator.Evaluate(elements)
	// once the source has yielded, the run completes and is recorded
	rep := e.builder.Build(context.WithoutCancel(ctx), label, elements, issues, startedAt)

	if ids := rules.Malformed(elements); len(ids) > 0 {
		rep.Warnings = append(rep.Warnings, malformedWarning(ids))
	}
	if w := e.takeReadWarning(); w != nil {
		rep.Warnings = append(rep.Warnings, *w)
	}
	if rep.HasWarning(report.WarnPersistenceWrite) {
		e.metrics.PersistenceFailure(history.OpWrite)
	}

	e.transition(ctx, machine, EventComplete)
	e.finish(rep, sourceName(src), runlog.Fingerprint(elements))
	e.logger.Infow("Validation completed",
		"run_id", rep.RunID,
		"label", label,
		"status", rep.Status,
		"elements", rep.TotalElements,
		"issues", rep.TotalProblems,
		"conformity", rep.ConformityRate,
		"elapsed_ms", rep.ElapsedMs,
	)
	return rep, nil
}

// Validate runs a static element set. Convenient for callers that already hold elements.
func (e *Engine) Validate(ctx context.Context, label string, elements []element.Element) (report.Report, error) {
	return e.Run(ctx, label, source.Static{Name: label, Items: elements})
}

// #endregion run

// #region history
// LoadHistory loads the persisted dashboard state. A missing payload is not
// an error. Other failures leave an empty history, are returned, and are
// attached as a persistence_read warning to the next report.
func (e *Engine) LoadHistory(ctx context.Context) (history.DashboardState, error) {
	st, err := e.store.Load(ctx)
	var perr *history.PersistenceError
	if errors.As(err, &perr) && perr.Op == history.OpMissing {
		return st, nil
	}
	if err != nil {
		op := history.OpRead
		if perr != nil {
			op = perr.Op
		}
		e.metrics.PersistenceFailure(op)
		e.mu.Lock()
		e.readWarning = &report.Warning{
			Code:    report.WarnPersistenceRead,
			Message: fmt.Sprintf("history reset to empty: %v", err),
		}
		e.mu.Unlock()
		e.logger.Warnw("Dashboard history unavailable, starting empty", "error", err)
	}
	return st, err
}

// Dashboard returns a copy of the current history.
func (e *Engine) Dashboard() history.DashboardState {
	return e.store.Snapshot()
}

// Stats summarizes the current history.
func (e *Engine) Stats() history.Stats {
	return history.ComputeStats(e.store.Snapshot())
}

// ClearHistory empties the history. It is refused while a run is in progress.
func (e *Engine) ClearHistory(ctx context.Context) (history.DashboardState, error) {
	if !e.sem.TryAcquire(1) {
		return e.store.Snapshot(), ErrRunInProgress
	}
	defer e.sem.Release(1)

	st, err := e.store.Clear(ctx)
	if err != nil {
		e.metrics.PersistenceFailure(history.OpClear)
	}
	return st, err
}

// #endregion history

// #region accessors
// Last returns the most recent report, if any run finished since start.
func (e *Engine) Last() (report.Report, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return report.Report{}, false
	}
	return *e.last, true
}

// State is the lifecycle state of the current or latest run.
func (e *Engine) State() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// #endregion accessors

// #region helpers
func (e *Engine) newRunFSM() *fsm.FSM {
	e.setState(StateIdle)
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventStart, Src: []string{StateIdle}, Dst: StateRunning},
			{Name: EventComplete, Src: []string{StateRunning}, Dst: StateCompleted},
			{Name: EventFail, Src: []string{StateIdle, StateRunning}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				e.setState(ev.Dst)
			},
		},
	)
}

// transition fires event on the run machine. Cancellation of the caller's
// context must not leave a run without a terminal state.
func (e *Engine) transition(ctx context.Context, machine *fsm.FSM, event string) {
	if err := machine.Event(context.WithoutCancel(ctx), event); err != nil {
		e.logger.Errorw("Invalid run transition", "event", event, "state", machine.Current(), "error", err)
	}
}

func (e *Engine) setState(s string) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) takeReadWarning() *report.Warning {
	e.mu.Lock()
	defer e.mu.Unlock()
	w := e.readWarning
	e.readWarning = nil
	return w
}

func (e *Engine) finish(rep report.Report, src, fingerprint string) {
	var issues map[rules.Category]int
	if rep.Summary != nil {
		issues = rep.Summary.IssuesByCategory
	}
	e.metrics.ObserveRun(string(rep.Status), time.Duration(rep.ElapsedMs)*time.Millisecond, rep.TotalElements, rep.ConformityRate, issues)

	if e.runlog != nil {
		codes := make([]string, len(rep.Warnings))
		for i, w := range rep.Warnings {
			codes[i] = w.Code
		}
		err := runlog.Record(e.runlog, runlog.Entry{
			RunID:          rep.RunID,
			Label:          rep.Label,
			Source:         src,
			Status:         string(rep.Status),
			Fingerprint:    fingerprint,
			TotalElements:  rep.TotalElements,
			TotalIssues:    rep.TotalProblems,
			ConformityRate: rep.ConformityRate,
			ElapsedMs:      rep.ElapsedMs,
			Warnings:       strings.Join(codes, ","),
			Error:          rep.Error,
			CreatedAt:      rep.StartedAt,
		})
		if err != nil {
			e.logger.Warnw("Failed to record run", "run_id", rep.RunID, "error", err)
		}
	}

	e.mu.Lock()
	e.last = &rep
	e.mu.Unlock()
}

func sourceName(src source.Source) string {
	switch s := src.(type) {
	case *source.JSONFile:
		return s.Path()
	case *source.GRPCClient:
		return "grpc:" + s.Label()
	case source.Static:
		return "static"
	}
	return fmt.Sprintf("%T", src)
}

func malformedWarning(ids []string) report.Warning {
	listed := ids
	suffix := ""
	if len(listed) > maxListedMalformed {
		listed = listed[:maxListedMalformed]
		suffix = fmt.Sprintf(" and %d more", len(ids)-maxListedMalformed)
	}
	return report.Warning{
		Code:    report.WarnMalformedElement,
		Message: fmt.Sprintf("%d element(s) without properties failed every rule: %s%s", len(ids), strings.Join(listed, ", "), suffix),
	}
}

// #endregion helpers
