// Package metrics exposes Prometheus instruments for query execution.
//
// A nil *Metrics is valid and records nothing, so callers that do not
// export metrics need no special casing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeNoResult     = "no_result"
	OutcomeCompileError = "compile_error"
	OutcomeBackendError = "backend_error"
)

// Backend operations.
const (
	OpSearch      = "search"
	OpScroll      = "scroll"
	OpClearScroll = "clear_scroll"
)

// Metrics holds the execution instruments.
type Metrics struct {
	// Queries counts executed statements by outcome.
	Queries *prometheus.CounterVec
	// BackendDuration is the latency of backend round trips.
	BackendDuration *prometheus.HistogramVec
	// Rows counts materialized rows handed to callers.
	Rows prometheus.Counter
	// OpenScrolls is the number of scroll cursors held by query states.
	OpenScrolls prometheus.Gauge
}

// New creates the instruments and registers them with reg. A nil reg
// creates unregistered instruments.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Queries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sql4go_queries_total",
				Help: "Total number of executed queries",
			},
			[]string{"outcome"},
		),
		BackendDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sql4go_backend_request_duration_seconds",
				Help:    "Backend request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "status"},
		),
		Rows: f.NewCounter(prometheus.CounterOpts{
			Name: "sql4go_rows_total",
			Help: "Total number of result rows returned",
		}),
		OpenScrolls: f.NewGauge(prometheus.GaugeOpts{
			Name: "sql4go_open_scrolls",
			Help: "Number of scroll cursors currently held",
		}),
	}
}

// QueryFinished records the outcome of one statement.
func (m *Metrics) QueryFinished(outcome string) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(outcome).Inc()
}

// ObserveBackend records a backend call started at start.
func (m *Metrics) ObserveBackend(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BackendDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

// AddRows records n returned rows.
func (m *Metrics) AddRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Rows.Add(float64(n))
}

// ScrollOpened records a newly held scroll cursor.
func (m *Metrics) ScrollOpened() {
	if m == nil {
		return
	}
	m.OpenScrolls.Inc()
}

// ScrollReleased records a released scroll cursor.
func (m *Metrics) ScrollReleased() {
	if m == nil {
		return
	}
	m.OpenScrolls.Dec()
}
