// Package metrics instruments translation runs with prometheus
// collectors and writes them in the text exposition format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cellc"

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder collects generation metrics in its own registry. It
// implements pipeline.Observer and is safe for concurrent use.
type Recorder struct {
	registry    *prometheus.Registry
	generations *prometheus.CounterVec
	stages      *prometheus.HistogramVec
	tables      prometheus.Counter
	columns     prometheus.Counter
	issues      *prometheus.CounterVec
}

// New returns a Recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generated classes by variant and outcome.",
		}, []string{"variant", "outcome"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"stage"}),
		tables: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_tables_total",
			Help:      "Lookup tables planned for optimised variants.",
		}),
		columns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_columns_total",
			Help:      "Lookup-table columns planned for optimised variants.",
		}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stability_issues_total",
			Help:      "Ledger stability issues by kind.",
		}, []string{"kind"}),
	}
	r.registry.MustRegister(r.generations, r.stages, r.tables, r.columns, r.issues)
	return r
}

// Registry exposes the registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveStage records the duration of one stage of one task.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stages.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveGeneration counts a finished task.
func (r *Recorder) ObserveGeneration(variant string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.generations.WithLabelValues(variant, outcome).Inc()
}

// ObserveTables counts the tables and columns of an optimised variant.
func (r *Recorder) ObserveTables(tables, columns int) {
	r.tables.Add(float64(tables))
	r.columns.Add(float64(columns))
}

// ObserveIssue counts a ledger stability issue.
func (r *Recorder) ObserveIssue(kind string) {
	r.issues.WithLabelValues(kind).Inc()
}

// WriteFile writes every metric to path in the text exposition format,
// replacing the file atomically.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
