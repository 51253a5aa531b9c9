// Package metrics holds the Prometheus collectors observed during runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leapstack-labs/cadac/pkg/core"
)

const namespace = "cadac"

// Metrics are the run and model collectors.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	ModelResults  *prometheus.CounterVec
	ModelDuration *prometheus.HistogramVec
	RunDuration   prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of runs by outcome",
		}, []string{"outcome"}),
		ModelResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_results_total",
			Help:      "Total number of model executions by status",
		}, []string{"status"}),
		ModelDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_duration_seconds",
			Help:      "Duration of model executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of whole runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}),
		gatherer: reg,
	}
}

// ObserveReport records a finished run. Dry runs count as runs but their
// skipped models are not timed.
func (m *Metrics) ObserveReport(report *core.RunReport) {
	if m == nil || report == nil {
		return
	}

	outcome := "success"
	switch {
	case report.DryRun:
		outcome = "dry_run"
	case !report.Success:
		outcome = "failed"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(report.Elapsed.Seconds())

	for _, res := range report.Results {
		status := string(res.Status)
		m.ModelResults.WithLabelValues(status).Inc()
		if res.Status != core.StatusSkipped {
			m.ModelDuration.WithLabelValues(status).Observe(res.Duration.Seconds())
		}
	}
}

// WriteTextfile writes the current values in the node-exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.gatherer)
}
