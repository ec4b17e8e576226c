package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danielpatrickdp/bimcheck/internal/rules"
)

const namespace = "bimcheck"

// #region metrics
// Metrics holds the engine's prometheus collectors.
type Metrics struct {
	// RunsTotal counts finished runs. Labels: status (success, warning, error)
	RunsTotal *prometheus.CounterVec

	// RejectedRunsTotal counts run requests refused because a run was in progress.
	RejectedRunsTotal prometheus.Counter

	// IssuesTotal counts issues found. Labels: category (material, dimensions, normCode)
	IssuesTotal *prometheus.CounterVec

	// ElementsTotal counts elements evaluated across all runs.
	ElementsTotal prometheus.Counter

	// RunDurationSeconds measures source read plus evaluation time.
	RunDurationSeconds prometheus.Histogram

	// LastConformityRate is the conformity rate of the latest completed run.
	LastConformityRate prometheus.Gauge

	// PersistenceFailuresTotal counts history store failures. Labels: op (read, decode, schema, write, clear)
	PersistenceFailuresTotal *prometheus.CounterVec
}

// New registers the collectors on reg. Pass a fresh prometheus.NewRegistry()
// in tests to avoid clashing with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total validation runs by final status",
		}, []string{"status"}),
		RejectedRunsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_rejected_total",
			Help:      "Run requests rejected while another run was in progress",
		}),
		IssuesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_total",
			Help:      "Total issues found by rule category",
		}, []string{"category"}),
		ElementsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elements_total",
			Help:      "Total elements evaluated",
		}),
		RunDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Validation run duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LastConformityRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_conformity_rate",
			Help:      "Conformity rate of the latest completed run (0-100)",
		}),
		PersistenceFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "History store read and write failures by operation",
		}, []string{"op"}),
	}
}

// #endregion metrics

// #region observe
// ObserveRun records a finished run. issues may be nil for failed runs.
func (m *Metrics) ObserveRun(status string, elapsed time.Duration, elements, conformity int, issues map[rules.Category]int) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDurationSeconds.Observe(elapsed.Seconds())
	if issues == nil {
		return
	}
	m.ElementsTotal.Add(float64(elements))
	m.LastConformityRate.Set(float64(conformity))
	for _, c := range rules.Categories() {
		if n := issues[c]; n > 0 {
			m.IssuesTotal.WithLabelValues(string(c)).Add(float64(n))
		}
	}
}

// PersistenceFailure counts one history store failure.
func (m *Metrics) PersistenceFailure(op string) {
	if m == nil {
		return
	}
	m.PersistenceFailuresTotal.WithLabelValues(op).Inc()
}

// Rejected counts one refused run request.
func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.RejectedRunsTotal.Inc()
}

// #endregion observe
