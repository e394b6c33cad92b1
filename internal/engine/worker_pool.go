package engine

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/climidx/climidx/internal/logging"
)

// =============================================================================
// ChunkWorkerPool - fixed number of goroutines, one task per spatial tile
// The first failing task cancels the rest
// =============================================================================

// WorkerPoolConfig contains configuration for the chunk worker pool
type WorkerPoolConfig struct {
	// MaxActiveWorkers limits the number of tiles processed at once
	MaxActiveWorkers int
}

// DefaultWorkerPoolConfig returns default configuration
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MaxActiveWorkers: runtime.NumCPU(),
	}
}

// Task is one unit of chunk work
type Task func(ctx context.Context) error

// ChunkWorkerPool runs tasks with bounded parallelism
type ChunkWorkerPool struct {
	config WorkerPoolConfig
	logger *logging.Logger

	// Stats
	totalProcessed int64
	totalFailed    int64
	totalSkipped   int64
	statsMu        sync.RWMutex
}

// NewChunkWorkerPool creates a new chunk worker pool
func NewChunkWorkerPool(config WorkerPoolConfig, logger *logging.Logger) *ChunkWorkerPool {
	if config.MaxActiveWorkers <= 0 {
		config.MaxActiveWorkers = DefaultWorkerPoolConfig().MaxActiveWorkers
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ChunkWorkerPool{
		config: config,
		logger: logger,
	}
}

// Run executes all tasks and waits for them. It returns the first task error;
// tasks not yet started when an error occurs are skipped.
func (p *ChunkWorkerPool) Run(ctx context.Context, tasks []Task) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxActiveWorkers)

	for _, task := range tasks {
		if gctx.Err() != nil {
			p.record(0, 0, 1)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				p.record(0, 0, 1)
				return err
			}
			if err := task(gctx); err != nil {
				p.record(0, 1, 0)
				return err
			}
			p.record(1, 0, 0)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *ChunkWorkerPool) record(processed, failed, skipped int64) {
	p.statsMu.Lock()
	p.totalProcessed += processed
	p.totalFailed += failed
	p.totalSkipped += skipped
	p.statsMu.Unlock()
}

// Stats returns pool statistics
func (p *ChunkWorkerPool) Stats() map[string]interface{} {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()

	return map[string]interface{}{
		"max_active_workers": p.config.MaxActiveWorkers,
		"total_processed":    p.totalProcessed,
		"total_failed":       p.totalFailed,
		"total_skipped":      p.totalSkipped,
	}
}
