package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains the platform-level metrics for pipeline runs.
// Cache metrics are registered separately by the cache package.
type PipelineMetrics struct {
	// Per-stage outcomes. stage is one of load/resolve/render,
	// status is success/failure.
	StageTotal    *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	// Pipeline outcomes by terminal state, labelled with the failure reason
	// ("" for success).
	RunsTotal *prometheus.CounterVec

	// Instances currently mounted.
	ActiveInstances prometheus.Gauge

	// Dedup effectiveness: callers that shared another caller's in-flight
	// work instead of starting their own.
	SharedWaits *prometheus.CounterVec
}

// NewPipelineMetrics creates the core pipeline metrics.
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		StageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vizflow",
				Subsystem: "pipeline",
				Name:      "stage_total",
				Help:      "Pipeline stage executions by stage and status",
			},
			[]string{"stage", "status"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "vizflow",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vizflow",
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Completed pipeline runs by terminal state and reason",
			},
			[]string{"state", "reason"},
		),
		ActiveInstances: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vizflow",
				Subsystem: "pipeline",
				Name:      "active_instances",
				Help:      "Number of currently mounted visualization instances",
			},
		),
		SharedWaits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vizflow",
				Subsystem: "dedup",
				Name:      "shared_waits_total",
				Help:      "Callers that awaited another caller's in-flight work",
			},
			[]string{"stage"},
		),
	}
}

// register registers all core metrics with the Prometheus registry.
func (m *PipelineMetrics) register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.StageTotal,
		m.StageDuration,
		m.RunsTotal,
		m.ActiveInstances,
		m.SharedWaits,
	)
}

// ObserveStage records one stage execution.
func (m *PipelineMetrics) ObserveStage(stage string, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.StageTotal.WithLabelValues(stage, status).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}
