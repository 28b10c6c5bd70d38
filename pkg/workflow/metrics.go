package workflow

import (
	"github.com/davidthor/platctl/pkg/deploy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the workflow collectors. Each instance owns its registry so
// a CLI run can export exactly what it observed.
type Metrics struct {
	registry *prometheus.Registry

	WorkflowRuns     *prometheus.CounterVec
	WorkflowDuration *prometheus.HistogramVec
	TaskRuns         *prometheus.CounterVec
	TaskDuration     *prometheus.HistogramVec
	LastRunSuccess   *prometheus.GaugeVec
}

// NewMetrics creates the workflow metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		WorkflowRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platctl_workflow_runs_total",
				Help: "Total number of workflow runs",
			},
			[]string{"kind", "status"},
		),

		WorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platctl_workflow_duration_seconds",
				Help:    "Duration of workflow runs",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"kind"},
		),

		TaskRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platctl_task_runs_total",
				Help: "Total number of task runs",
			},
			[]string{"kind", "task", "status"},
		),

		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platctl_task_duration_seconds",
				Help:    "Duration of task runs",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"kind", "task"},
		),

		LastRunSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "platctl_workflow_last_run_success",
				Help: "Whether the last workflow run of a kind succeeded (1) or failed (0)",
			},
			[]string{"kind"},
		),
	}
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in text exposition format, for the node
// exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeTask(kind deploy.Kind, tr *TaskResult) {
	m.TaskRuns.WithLabelValues(string(kind), tr.Name, string(tr.Status)).Inc()
	m.TaskDuration.WithLabelValues(string(kind), tr.Name).Observe(tr.Duration.Seconds())
}

func (m *Metrics) observeRun(kind deploy.Kind, r *Result) {
	status, success := "failed", 0.0
	if r.Success {
		status, success = "succeeded", 1.0
	}
	m.WorkflowRuns.WithLabelValues(string(kind), status).Inc()
	m.WorkflowDuration.WithLabelValues(string(kind)).Observe(r.Duration.Seconds())
	m.LastRunSuccess.WithLabelValues(string(kind)).Set(success)
}
