package ledger

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/tributary/internal/model"
)

// Metrics are the ledger's counters. Sync runs are short-lived batch jobs, so
// they are exported with WriteTextfile for a node exporter to pick up rather
// than scraped.
type Metrics struct {
	gatherer prometheus.Gatherer

	// RunsTotal counts terminal runs by source and status.
	RunsTotal *prometheus.CounterVec

	// EntriesCreated counts entries written by successful runs.
	EntriesCreated *prometheus.CounterVec

	// RunDuration tracks wall time from start to terminal status.
	RunDuration *prometheus.HistogramVec
}

// NewMetrics registers the ledger metrics with reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tributary_sync_runs_total",
			Help: "Total sync runs by source and terminal status",
		}, []string{"source", "status"}),
		EntriesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tributary_sync_entries_created_total",
			Help: "Total entries created by successful sync runs",
		}, []string{"source"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tributary_sync_run_duration_seconds",
			Help:    "Sync run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		}, []string{"source"}),
	}
}

func (m *Metrics) observe(run model.IntegrationRun) {
	source := string(run.SourceType)
	m.RunsTotal.WithLabelValues(source, string(run.Status)).Inc()
	if run.Status == model.RunSuccess {
		m.EntriesCreated.WithLabelValues(source).Add(float64(run.EntriesCreated))
	}
	if run.EndedAt != nil {
		m.RunDuration.WithLabelValues(source).Observe(run.EndedAt.Sub(run.StartedAt).Seconds())
	}
}

// WriteTextfile writes the current metric values in the text exposition
// format to path, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
