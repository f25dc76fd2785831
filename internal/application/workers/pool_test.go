package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type poolMetrics struct {
	mu    sync.Mutex
	calls int
	idle  int
	waits int
}

func (m *poolMetrics) RecordRunCompleted(string, time.Duration)         {}
func (m *poolMetrics) RecordUnitAttempt(string, string, time.Duration) {}
func (m *poolMetrics) RecordLayerExecuted(int)                          {}
func (m *poolMetrics) SetActiveRuns(int)                                {}
func (m *poolMetrics) RecordRunSubmitted(string)                        {}

func (m *poolMetrics) ObserveQueueWait(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waits++
}

func (m *poolMetrics) RecordWorkerPoolStatus(idle, busy, stopped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.idle = idle
}

func TestPool_RunsSubmittedJobs(t *testing.T) {
	pool := NewPool(3, 10, nil, zaptest.NewLogger(t), time.Minute)
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := pool.Dispatch("job", func(ctx context.Context) {
			defer wg.Done()
			ran.Add(1)
		})
		if err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}
	wg.Wait()

	if ran.Load() != 10 {
		t.Errorf("ran = %d, want 10", ran.Load())
	}
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	for id, status := range pool.GetStatus() {
		if status != WorkerStatusStopped {
			t.Errorf("%s status = %s, want stopped", id, status)
		}
	}
}

func TestPool_QueueFull(t *testing.T) {
	// Not started: nothing drains the queue.
	pool := NewPool(1, 1, nil, nil, time.Minute)
	noop := func(context.Context) {}

	if err := pool.Dispatch("a", noop); err != nil {
		t.Fatalf("first Dispatch() error = %v", err)
	}
	if err := pool.Dispatch("b", noop); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second Dispatch() error = %v, want ErrQueueFull", err)
	}
	if pool.QueueLength() != 1 {
		t.Errorf("QueueLength() = %d, want 1", pool.QueueLength())
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(1, 1, nil, nil, time.Minute)
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if err := pool.Dispatch("late", func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Dispatch() error = %v, want ErrPoolClosed", err)
	}
	if err := pool.Start(); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Start() error = %v, want ErrPoolClosed", err)
	}
	// Shutdown is idempotent.
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestPool_RejectsNilFunction(t *testing.T) {
	pool := NewPool(1, 1, nil, nil, time.Minute)
	if err := pool.Submit(Job{ID: "empty"}); err == nil {
		t.Error("expected error for job without function")
	}
}

func TestPool_ShutdownCancelsRunningJobs(t *testing.T) {
	pool := NewPool(1, 1, nil, zaptest.NewLogger(t), time.Minute)
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	started := make(chan struct{})
	cancelled := make(chan struct{})
	err := pool.Dispatch("long", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case <-cancelled:
	default:
		t.Error("running job did not observe cancellation")
	}
}

func TestPool_ShutdownTimeout(t *testing.T) {
	pool := NewPool(1, 1, nil, nil, time.Minute)
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	_ = pool.Dispatch("stubborn", func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want deadline exceeded", err)
	}
}

func TestPool_PanickingJobKeepsWorker(t *testing.T) {
	pool := NewPool(1, 2, nil, zaptest.NewLogger(t), time.Minute)
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer pool.Shutdown(context.Background())

	done := make(chan struct{})
	_ = pool.Dispatch("bad", func(context.Context) { panic("job blew up") })
	_ = pool.Dispatch("good", func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
}

func TestHealthMonitor(t *testing.T) {
	metrics := &poolMetrics{}
	pool := NewPool(2, 1, metrics, zaptest.NewLogger(t), 5*time.Millisecond)

	status := pool.Health().GetStatus()
	if status.TotalWorkers != 2 || status.IdleWorkers != 2 || !status.Healthy {
		t.Errorf("GetStatus() = %+v", status)
	}

	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		metrics.mu.Lock()
		calls := metrics.calls
		metrics.mu.Unlock()
		if calls > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	metrics.mu.Lock()
	if metrics.calls == 0 {
		t.Error("health monitor never recorded pool status")
	}
	metrics.mu.Unlock()

	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if pool.Health().IsHealthy() {
		t.Error("stopped pool should not be healthy")
	}
}

func TestHealthMonitor_Saturation(t *testing.T) {
	pool := NewPool(1, 1, nil, zaptest.NewLogger(t), time.Minute)
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	started := make(chan struct{})
	release := make(chan struct{})
	if err := pool.Dispatch("busy", func(context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	<-started
	if err := pool.Dispatch("queued", func(context.Context) {}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	status := pool.Health().GetStatus()
	if !status.Saturated || !status.Healthy || !status.Accepting {
		t.Errorf("GetStatus() = %+v, want saturated and healthy", status)
	}
	if status.QueuedRuns != 1 || status.QueueCapacity != 1 {
		t.Errorf("queue = %d/%d, want 1/1", status.QueuedRuns, status.QueueCapacity)
	}

	close(release)
}
