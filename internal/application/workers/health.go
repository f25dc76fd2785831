package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultHealthCheckInterval = 30 * time.Second

// HealthMonitor periodically samples the pool and reports its status.
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	once sync.Once
}

// HealthStatus is a point-in-time view of the pool serving pipeline runs.
type HealthStatus struct {
	TotalWorkers   int `json:"total_workers"`
	IdleWorkers    int `json:"idle_workers"`
	BusyWorkers    int `json:"busy_workers"`
	StoppedWorkers int `json:"stopped_workers"`
	QueuedRuns     int `json:"queued_runs"`
	QueueCapacity  int `json:"queue_capacity"`
	// Saturated is set when every worker is busy and the queue has no free
	// slot, so new submissions are refused.
	Saturated bool `json:"saturated"`
	// Accepting is false once the pool has been shut down.
	Accepting bool      `json:"accepting"`
	Healthy   bool      `json:"healthy"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthMonitor creates a monitor for pool. A non-positive interval uses
// the default of 30s.
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = defaultHealthCheckInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
	}
}

// start samples the pool until ctx is cancelled. Only the first call has an
// effect.
func (h *HealthMonitor) start(ctx context.Context) {
	h.once.Do(func() {
		go h.run(ctx)
	})
}

func (h *HealthMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.check()
		}
	}
}

// check logs the current status and feeds it to metrics
func (h *HealthMonitor) check() {
	status := h.GetStatus()

	h.logger.Debug("worker pool health check",
		zap.Int("idle", status.IdleWorkers),
		zap.Int("busy", status.BusyWorkers),
		zap.Int("stopped", status.StoppedWorkers),
		zap.Int("queued_runs", status.QueuedRuns),
		zap.Bool("healthy", status.Healthy))

	if h.pool.metrics != nil {
		h.pool.metrics.RecordWorkerPoolStatus(status.IdleWorkers, status.BusyWorkers, status.StoppedWorkers)
	}

	switch {
	case !status.Healthy:
		h.logger.Warn("worker pool is unhealthy",
			zap.Int("stopped", status.StoppedWorkers),
			zap.Bool("accepting", status.Accepting))
	case status.Saturated:
		h.logger.Warn("worker pool saturated, run submissions are being refused",
			zap.Int("workers", status.TotalWorkers),
			zap.Int("queue_capacity", status.QueueCapacity))
	}
}

// GetStatus returns the current health status
func (h *HealthMonitor) GetStatus() *HealthStatus {
	status := &HealthStatus{
		QueuedRuns:    h.pool.QueueLength(),
		QueueCapacity: cap(h.pool.jobs),
		Accepting:     !h.pool.isClosed(),
		Timestamp:     time.Now(),
	}

	for _, s := range h.pool.GetStatus() {
		status.TotalWorkers++
		switch s {
		case WorkerStatusIdle:
			status.IdleWorkers++
		case WorkerStatusBusy:
			status.BusyWorkers++
		case WorkerStatusStopped:
			status.StoppedWorkers++
		}
	}

	status.Saturated = status.TotalWorkers > 0 &&
		status.BusyWorkers == status.TotalWorkers &&
		status.QueuedRuns >= status.QueueCapacity
	status.Healthy = status.Accepting && status.TotalWorkers > 0 && status.StoppedWorkers == 0
	return status
}

// IsHealthy reports whether the pool can run submitted pipelines.
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
