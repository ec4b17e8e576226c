package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/bimcheck/internal/rules"
)

func TestObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun("warning", 40*time.Millisecond, 18, 72, map[rules.Category]int{
		rules.CategoryMaterial:   2,
		rules.CategoryDimensions: 2,
		rules.CategoryNormCode:   1,
	})
	m.ObserveRun("success", 10*time.Millisecond, 25, 100, map[rules.Category]int{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IssuesTotal.WithLabelValues("material")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IssuesTotal.WithLabelValues("normCode")))
	assert.Equal(t, 43.0, testutil.ToFloat64(m.ElementsTotal))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.LastConformityRate))
}

func TestObserveFailedRunKeepsGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRun("success", time.Millisecond, 3, 100, map[rules.Category]int{})
	m.ObserveRun("error", time.Millisecond, 0, 0, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.LastConformityRate))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ElementsTotal))
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.PersistenceFailure("write")
	m.PersistenceFailure("write")
	m.Rejected()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PersistenceFailuresTotal.WithLabelValues("write")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedRunsTotal))

	n, err := testutil.GatherAndCount(reg, "bimcheck_persistence_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRun("success", time.Second, 1, 100, nil)
	m.PersistenceFailure("read")
	m.Rejected()
}
