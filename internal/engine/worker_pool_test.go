package engine

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/climidx/climidx/internal/logging"
)

func TestDefaultWorkerPoolConfig(t *testing.T) {
	config := DefaultWorkerPoolConfig()

	if config.MaxActiveWorkers != runtime.NumCPU() {
		t.Errorf("MaxActiveWorkers = %d, expected %d", config.MaxActiveWorkers, runtime.NumCPU())
	}
}

func TestNewChunkWorkerPool_InvalidConfig(t *testing.T) {
	pool := NewChunkWorkerPool(WorkerPoolConfig{MaxActiveWorkers: 0}, nil)

	if pool.config.MaxActiveWorkers != runtime.NumCPU() {
		t.Errorf("MaxActiveWorkers = %d, expected default", pool.config.MaxActiveWorkers)
	}
	if pool.logger == nil {
		t.Error("logger is nil")
	}
}

func TestChunkWorkerPool_RunAll(t *testing.T) {
	pool := NewChunkWorkerPool(WorkerPoolConfig{MaxActiveWorkers: 3}, logging.NewNop())

	var ran, active, peak atomic.Int64
	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			ran.Add(1)
			active.Add(-1)
			return nil
		}
	}

	if err := pool.Run(context.Background(), tasks); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ran.Load() != 20 {
		t.Errorf("ran %d tasks, expected 20", ran.Load())
	}
	if peak.Load() > 3 {
		t.Errorf("peak concurrency %d exceeds limit 3", peak.Load())
	}

	stats := pool.Stats()
	if stats["total_processed"].(int64) != 20 {
		t.Errorf("total_processed = %v, expected 20", stats["total_processed"])
	}
	if stats["total_failed"].(int64) != 0 {
		t.Errorf("total_failed = %v, expected 0", stats["total_failed"])
	}
}

func TestChunkWorkerPool_FirstErrorSkipsRemaining(t *testing.T) {
	pool := NewChunkWorkerPool(WorkerPoolConfig{MaxActiveWorkers: 1}, logging.NewNop())
	boom := errors.New("boom")

	var ran atomic.Int64
	tasks := []Task{
		func(ctx context.Context) error { ran.Add(1); return boom },
	}
	for i := 0; i < 5; i++ {
		tasks = append(tasks, func(ctx context.Context) error { ran.Add(1); return nil })
	}

	err := pool.Run(context.Background(), tasks)
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, expected boom", err)
	}
	if ran.Load() != 1 {
		t.Errorf("ran %d tasks after failure, expected only the failing one", ran.Load())
	}

	stats := pool.Stats()
	if stats["total_failed"].(int64) != 1 {
		t.Errorf("total_failed = %v, expected 1", stats["total_failed"])
	}
	if stats["total_skipped"].(int64) != 5 {
		t.Errorf("total_skipped = %v, expected 5", stats["total_skipped"])
	}
}
