// metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers screening checks and the fallback import job. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Screening checks by source ("api" or "fallback") and outcome
	Checks *prometheus.CounterVec

	// Primary API failures that triggered the fallback
	PrimaryFailures prometheus.Counter

	// Fallback match latency
	MatchLatency prometheus.Histogram

	// Import job runs by result ("imported", "unchanged", "failed")
	ImportRuns *prometheus.CounterVec

	ImportDuration prometheus.Histogram

	// Rows in the Current snapshot after the last successful import
	CurrentRows prometheus.Gauge

	// Unix time of the last import that left a usable Current snapshot
	LastSuccessfulImport prometheus.Gauge
}

// New registers the metrics with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctions_sdn_checks_total",
			Help: "Total SDN checks by answering source and outcome",
		}, []string{"source", "outcome"}), // outcome: "hit", "clear", "error"

		PrimaryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "sanctions_sdn_api_failures_total",
			Help: "Primary SDN API calls that failed and fell back to local data",
		}),

		MatchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sanctions_fallback_match_duration_seconds",
			Help:    "Duration of fallback matches against the Current snapshot",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		ImportRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctions_fallback_import_runs_total",
			Help: "Fallback import job runs by result",
		}, []string{"result"}),

		ImportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sanctions_fallback_import_duration_seconds",
			Help:    "Duration of fallback import job runs",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),

		CurrentRows: f.NewGauge(prometheus.GaugeOpts{
			Name: "sanctions_fallback_current_rows",
			Help: "Rows in the Current fallback snapshot",
		}),

		LastSuccessfulImport: f.NewGauge(prometheus.GaugeOpts{
			Name: "sanctions_fallback_last_success_timestamp_seconds",
			Help: "Unix time of the last successful fallback import run",
		}),
	}
}

// IncrementCheck records a screening check.
func (m *Metrics) IncrementCheck(source, outcome string) {
	if m != nil {
		m.Checks.WithLabelValues(source, outcome).Inc()
	}
}

func (m *Metrics) IncrementPrimaryFailure() {
	if m != nil {
		m.PrimaryFailures.Inc()
	}
}

func (m *Metrics) ObserveMatchLatency(d time.Duration) {
	if m != nil {
		m.MatchLatency.Observe(d.Seconds())
	}
}

// ObserveImport records one import job run.
func (m *Metrics) ObserveImport(result string, d time.Duration) {
	if m != nil {
		m.ImportRuns.WithLabelValues(result).Inc()
		m.ImportDuration.Observe(d.Seconds())
	}
}

// SetCurrentSnapshot records the row count and success time of the
// snapshot that is now Current.
func (m *Metrics) SetCurrentSnapshot(rows int, at time.Time) {
	if m != nil {
		m.CurrentRows.Set(float64(rows))
		m.LastSuccessfulImport.Set(float64(at.Unix()))
	}
}
