package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/climidx/climidx/internal/logging"
	"github.com/climidx/climidx/internal/models"
	"github.com/climidx/climidx/internal/reduce"
)

// bytesPerValue is the resident size of one cube value (float32)
const bytesPerValue = 4

// BlockReader is the read side of a cube as seen by the planner.
// ReadBlock must be safe for concurrent use.
type BlockReader interface {
	Meta() models.CubeMeta
	ReadBlock(ctx context.Context, block models.Block) ([]float32, error)
}

// WholeLayerReader is implemented by cubes that can only slice the time axis.
// Such a cube reads whole layers for every block, so each spatial tile costs a
// full pass over its time span.
type WholeLayerReader interface {
	ReadsWholeLayers() bool
}

// PlannerConfig controls chunking and parallelism
type PlannerConfig struct {
	// Workers is the fixed size of the tile worker pool
	Workers int

	// MaxChunkBytes bounds the values one chunk holds in memory; 0 disables the bound
	MaxChunkBytes int64

	// Chunks is the default chunk-shape hint
	Chunks models.ChunkShape
}

// DefaultPlannerConfig returns default configuration
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Workers:       DefaultWorkerPoolConfig().MaxActiveWorkers,
		MaxChunkBytes: 512 << 20,
		Chunks:        models.ChunkShape{Time: models.WholeAxis, Lat: 1024, Lon: 1024},
	}
}

// Tile is one spatial chunk and the time blocks that cover it
type Tile struct {
	Index  int
	Y0, Y1 int
	X0, X1 int
	Blocks []models.Block
}

// NY returns the tile height
func (t Tile) NY() int { return t.Y1 - t.Y0 }

// NX returns the tile width
func (t Tile) NX() int { return t.X1 - t.X0 }

func (t Tile) String() string {
	return fmt.Sprintf("tile %d y[%d:%d] x[%d:%d] (%d time blocks)", t.Index, t.Y0, t.Y1, t.X0, t.X1, len(t.Blocks))
}

// ExecutionPlan is the tiling of one cube for one reducer
type ExecutionPlan struct {
	Shape     models.ChunkShape // resolved chunk shape
	SplitTime bool
	Tiles     []Tile
}

// Planner cuts cubes into chunks and runs a reducer over them
type Planner struct {
	config PlannerConfig
	logger *logging.Logger

	// OnTile, when set, is called after each tile completes with the number of
	// tiles done so far and the total. It may be called concurrently.
	OnTile func(done, total int, tile Tile)
}

// NewPlanner creates a planner
func NewPlanner(config PlannerConfig, logger *logging.Logger) *Planner {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkerPoolConfig().MaxActiveWorkers
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{config: config, logger: logger}
}

// Config returns the planner configuration
func (p *Planner) Config() PlannerConfig {
	return p.config
}

// Plan resolves hint against meta and enumerates the tiles.
// The time axis stays whole unless r is a Merger.
func (p *Planner) Plan(meta models.CubeMeta, r reduce.Reducer, hint models.ChunkShape) (*ExecutionPlan, error) {
	if err := hint.Validate(); err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	shape := hint.Resolve(meta)
	nt, ny, nx := meta.NumTimes(), meta.NumLat(), meta.NumLon()

	_, mergeable := r.(reduce.Merger)
	if !mergeable {
		shape.Time = nt
	}

	if p.config.MaxChunkBytes > 0 {
		for int64(shape.Time)*int64(shape.Lat)*int64(shape.Lon)*bytesPerValue > p.config.MaxChunkBytes {
			switch {
			case shape.Lat > 1 && shape.Lat >= shape.Lon:
				shape.Lat = (shape.Lat + 1) / 2
			case shape.Lon > 1:
				shape.Lon = (shape.Lon + 1) / 2
			case mergeable && shape.Time > 1:
				shape.Time = (shape.Time + 1) / 2
			default:
				return nil, models.NewValidationError(
					"a single pixel series of %d steps exceeds the chunk budget of %d bytes", shape.Time, p.config.MaxChunkBytes)
			}
		}
	}

	plan := &ExecutionPlan{Shape: shape, SplitTime: shape.Time < nt}

	var timeSpans [][2]int
	for t0 := 0; t0 < nt; t0 += shape.Time {
		timeSpans = append(timeSpans, [2]int{t0, min(t0+shape.Time, nt)})
	}

	for y0 := 0; y0 < ny; y0 += shape.Lat {
		y1 := min(y0+shape.Lat, ny)
		for x0 := 0; x0 < nx; x0 += shape.Lon {
			x1 := min(x0+shape.Lon, nx)
			tile := Tile{Index: len(plan.Tiles), Y0: y0, Y1: y1, X0: x0, X1: x1}
			for _, span := range timeSpans {
				tile.Blocks = append(tile.Blocks, models.Block{
					T0: span[0], T1: span[1],
					Y0: y0, Y1: y1,
					X0: x0, X1: x1,
				})
			}
			plan.Tiles = append(plan.Tiles, tile)
		}
	}

	return plan, nil
}

// Execute runs r over every pixel of cube and returns one grid per reducer
// output. On any failure no grids are returned.
func (p *Planner) Execute(ctx context.Context, cube BlockReader, r reduce.Reducer, hint models.ChunkShape) ([]*models.ResultGrid, error) {
	meta := cube.Meta()
	plan, err := p.Plan(meta, r, hint)
	if err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx)
	if logging.RunID(ctx) == "" {
		logger = p.logger
	}

	outputs := r.Outputs()
	grids := make([]*models.ResultGrid, len(outputs))
	for k, name := range outputs {
		grids[k] = models.NewResultGrid(name, meta)
	}

	merger, _ := r.(reduce.Merger)
	total := len(plan.Tiles)
	var done atomic.Int64
	start := time.Now()

	logger.Debug("Executing reduction plan",
		"reducer", string(r.Kind()),
		"variable", meta.Variable,
		"chunks", plan.Shape.String(),
		"tiles", total,
		"split_time", plan.SplitTime,
		"workers", p.config.Workers)

	if wl, ok := cube.(WholeLayerReader); ok && wl.ReadsWholeLayers() && total > 1 {
		logger.Warn("Cube reads whole layers; every spatial tile re-reads them, use larger latitude/longitude chunks",
			"variable", meta.Variable,
			"chunks", plan.Shape.String(),
			"tiles", total)
	}

	tasks := make([]Task, len(plan.Tiles))
	for i, tile := range plan.Tiles {
		tasks[i] = func(ctx context.Context) error {
			tileOut, err := p.runTile(ctx, cube, r, merger, tile)
			if err != nil {
				return fmt.Errorf("%s: %w", tile, err)
			}
			for k, g := range grids {
				g.PasteTile(tile.Y0, tile.X0, tile.NY(), tile.NX(), tileOut[k])
			}

			n := int(done.Add(1))
			logger.Debug("Tile complete", "tile", tile.Index, "done", n, "total", total)
			if p.OnTile != nil {
				p.OnTile(n, total, tile)
			}
			return nil
		}
	}

	pool := NewChunkWorkerPool(WorkerPoolConfig{MaxActiveWorkers: p.config.Workers}, p.logger)
	if err := pool.Run(ctx, tasks); err != nil {
		logger.Error("Reduction failed", "reducer", string(r.Kind()), "error", err)
		return nil, err
	}

	logger.Info("Reduction complete",
		"reducer", string(r.Kind()),
		"tiles", total,
		"duration", time.Since(start))

	return grids, nil
}

// runTile reads and reduces every time block of a tile, folding partial
// results when the time axis is split
func (p *Planner) runTile(ctx context.Context, cube BlockReader, r reduce.Reducer, merger reduce.Merger, tile Tile) ([][]float32, error) {
	var acc [][]float32
	for i, block := range tile.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		values, err := cube.ReadBlock(ctx, block)
		if err != nil {
			return nil, err
		}
		part, err := Dispatch(values, block, r)
		if err != nil {
			return nil, err
		}

		if i == 0 {
			acc = part
			continue
		}
		if merger == nil {
			return nil, models.NewComputationError("reducer %s cannot merge time blocks", r.Kind())
		}
		if err := mergeTiles(merger, acc, part); err != nil {
			return nil, err
		}
	}
	return acc, nil
}
