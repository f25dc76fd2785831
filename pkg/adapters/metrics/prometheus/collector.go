package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	runsSubmitted     *prometheus.CounterVec
	runsCompleted     *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	unitAttempts      *prometheus.CounterVec
	unitDuration      *prometheus.HistogramVec
	layersExecuted    prometheus.Counter
	layerSize         prometheus.Histogram
	activeRuns        prometheus.Gauge
	queueWaitTime     prometheus.Histogram
	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered on reg.
// A nil reg uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		runsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_submitted_total",
				Help: "Total number of runs submitted",
			},
			[]string{"status"},
		),
		runsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_completed_total",
				Help: "Total number of runs that reached a terminal phase",
			},
			[]string{"phase"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_run_duration_seconds",
				Help:    "Run execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"phase"},
		),
		unitAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_unit_attempts_total",
				Help: "Total number of unit attempts",
			},
			[]string{"unit", "outcome"},
		),
		unitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_unit_attempt_duration_seconds",
				Help:    "Unit attempt duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"unit"},
		),
		layersExecuted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_layers_executed_total",
				Help: "Total number of layers executed",
			},
		),
		layerSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_layer_size",
				Help:    "Number of units per executed layer",
				Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16, 32},
			},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_active_runs",
				Help: "Number of currently executing runs",
			},
		),
		queueWaitTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_queue_wait_time_seconds",
				Help:    "Time a submitted run spent waiting for a worker",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// RecordRunSubmitted records a submission attempt, accepted or rejected
func (c *Collector) RecordRunSubmitted(status string) {
	c.runsSubmitted.WithLabelValues(status).Inc()
}

// RecordRunCompleted records a run reaching done or aborted
func (c *Collector) RecordRunCompleted(phase string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(phase).Inc()
	c.runDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordUnitAttempt records one attempt of a unit
func (c *Collector) RecordUnitAttempt(unit, outcome string, duration time.Duration) {
	c.unitAttempts.WithLabelValues(unit, outcome).Inc()
	c.unitDuration.WithLabelValues(unit).Observe(duration.Seconds())
}

// RecordLayerExecuted records a finished layer and its width
func (c *Collector) RecordLayerExecuted(size int) {
	c.layersExecuted.Inc()
	c.layerSize.Observe(float64(size))
}

// SetActiveRuns sets the number of currently executing runs
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}

// ObserveQueueWait records how long a run waited in the worker queue
func (c *Collector) ObserveQueueWait(duration time.Duration) {
	c.queueWaitTime.Observe(duration.Seconds())
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}
