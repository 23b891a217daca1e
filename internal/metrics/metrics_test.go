package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.QueryFinished(OutcomeOK)
	m.QueryFinished(OutcomeOK)
	m.QueryFinished(OutcomeNoResult)
	m.AddRows(3)
	m.AddRows(0)
	m.ScrollOpened()
	m.ScrollOpened()
	m.ScrollReleased()
	m.ObserveBackend(OpSearch, time.Now(), nil)
	m.ObserveBackend(OpScroll, time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Queries.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues(OutcomeNoResult)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Rows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpenScrolls))
	assert.Equal(t, 2, testutil.CollectAndCount(m.BackendDuration))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.QueryFinished(OutcomeOK)
		m.ObserveBackend(OpSearch, time.Now(), nil)
		m.AddRows(1)
		m.ScrollOpened()
		m.ScrollReleased()
	})
}
