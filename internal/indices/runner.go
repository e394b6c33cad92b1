// Package indices computes climate extreme indices over a cube and writes one
// raster per statistic. Each call opens its cube, reduces it on the chunked
// planner, writes its outputs only after every grid is computed and closes
// the cube on every exit path.
package indices

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/climidx/climidx/internal/engine"
	"github.com/climidx/climidx/internal/logging"
	"github.com/climidx/climidx/internal/models"
	"github.com/climidx/climidx/internal/reduce"
	"github.com/climidx/climidx/internal/store"
)

// ContainerWriter writes the combined trend container
type ContainerWriter interface {
	WriteTrend(path string, report *models.TrendReport) error
}

// Exporter writes result grids as tables next to the rasters
type Exporter interface {
	ExportGrids(path, runID string, grids []*models.ResultGrid) error
	ExportTrend(path, runID string, report *models.TrendReport) error
}

// Runner wires the orchestrators to a store, a raster sink and a planner
type Runner struct {
	Opener    store.Opener
	Sink      store.RasterSink
	Container ContainerWriter
	Planner   *engine.Planner
	Logger    *logging.Logger

	// Exporter, when set, also writes each call's grids as a Parquet table
	Exporter Exporter

	// Raster sets the GeoTIFF creation options of every written grid
	Raster models.RasterOptions
}

// Params are the per-call inputs shared by every orchestrator
type Params struct {
	SourcePath      string
	VariableName    string
	TimeDimension   string // defaults to valid_time
	OutputDirectory string

	// Chunks is the chunk-shape hint; the zero value uses the planner default
	Chunks models.ChunkShape
}

// Validate checks the parameters before the cube is opened
func (p Params) Validate() error {
	if p.SourcePath == "" {
		return models.NewValidationError("source path is required")
	}
	if p.VariableName == "" {
		return models.NewValidationError("variable name is required")
	}
	if p.OutputDirectory == "" {
		return models.NewValidationError("output directory is required")
	}
	return p.Chunks.Validate()
}

func (p Params) timeDimension() string {
	if p.TimeDimension == "" {
		return models.DefaultTimeDimension
	}
	return p.TimeDimension
}

// Result describes one completed orchestrator call
type Result struct {
	RunID    string
	Index    string
	Grids    []*models.ResultGrid
	Outputs  []string
	Duration time.Duration
}

// BaseName returns the file name of path up to its first dot
func BaseName(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// compute opens the source cube, optionally transforms it, and reduces it
func (r *Runner) compute(ctx context.Context, p Params, red reduce.Reducer,
	prepare func(context.Context, store.Reader) (store.Reader, error)) ([]*models.ResultGrid, models.CubeMeta, error) {
	logger := logging.FromContext(ctx)

	cube, err := r.Opener.Open(p.SourcePath, store.OpenRequest{
		Variable:      p.VariableName,
		TimeDimension: p.timeDimension(),
	})
	if err != nil {
		return nil, models.CubeMeta{}, err
	}
	defer func() {
		if cerr := cube.Close(); cerr != nil {
			logger.Warn("Failed to close cube", "path", p.SourcePath, "error", cerr)
		}
	}()

	var src store.Reader = cube
	if prepare != nil {
		if src, err = prepare(ctx, cube); err != nil {
			return nil, models.CubeMeta{}, err
		}
	}
	meta := src.Meta()

	logger.Info("Computing index",
		"reducer", string(red.Kind()),
		"source", p.SourcePath,
		"variable", meta.Variable,
		"times", meta.NumTimes(),
		"latitudes", meta.NumLat(),
		"longitudes", meta.NumLon())

	chunks := p.Chunks
	if chunks == (models.ChunkShape{}) {
		chunks = r.Planner.Config().Chunks
	}
	grids, err := r.Planner.Execute(ctx, src, red, chunks)
	if err != nil {
		return nil, meta, err
	}
	return grids, meta, nil
}

// begin tags ctx with a fresh run id and validates the call
func (r *Runner) begin(ctx context.Context, p Params, index string) (context.Context, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.Global()
	}
	ctx = logging.WithLogger(ctx, logger)
	ctx = logging.WithRunID(ctx, "")

	if err := p.Validate(); err != nil {
		return ctx, err
	}
	if r.Opener == nil || r.Sink == nil || r.Planner == nil {
		return ctx, models.NewValidationError("runner for %s is missing its opener, sink or planner", index)
	}
	return ctx, nil
}

// finish logs the outcome of a call
func finish(ctx context.Context, res *Result, err error) (*Result, error) {
	logger := logging.FromContext(ctx)
	if err != nil {
		logger.Error("Index computation failed", "index", res.Index, "error", err, "code", string(models.CodeOf(err)))
		return nil, err
	}
	logger.Info("Index computation complete",
		"index", res.Index,
		"outputs", len(res.Outputs),
		"duration", res.Duration)
	return res, nil
}

// outputSet writes a call's files and removes them again if any write fails
type outputSet struct {
	dir     string
	raster  models.RasterOptions
	written []string
}

// newOutputSet creates dir and resolves the raster options shared by every
// grid written through the set
func newOutputSet(dir string, raster models.RasterOptions) (*outputSet, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, models.WrapIO(err, "create %s", dir)
	}
	if raster.Compress == "" {
		raster.Compress = models.DefaultRasterCompression
	}
	return &outputSet{dir: dir, raster: raster}, nil
}

func (o *outputSet) write(name string, fn func(path string) error) error {
	path := filepath.Join(o.dir, name)
	if err := fn(path); err != nil {
		return err
	}
	o.written = append(o.written, path)
	return nil
}

func (o *outputSet) rollback(logger *logging.Logger) {
	for _, path := range o.written {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove partial output", "path", path, "error", err)
		}
	}
	o.written = nil
}

// writeGrids writes each grid to <base>-<grid name>.tif and the optional
// <base>-<index>.parquet table
func (r *Runner) writeGrids(ctx context.Context, p Params, index string, grids []*models.ResultGrid) (outputs []string, err error) {
	logger := logging.FromContext(ctx)
	out, err := newOutputSet(p.OutputDirectory, r.Raster)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			out.rollback(logger)
		}
	}()

	base := BaseName(p.SourcePath)
	for _, g := range grids {
		if err := out.write(base+"-"+g.Name+".tif", func(path string) error {
			return r.Sink.WriteGrid(path, g, out.raster)
		}); err != nil {
			return nil, err
		}
	}

	if r.Exporter != nil {
		if err := out.write(base+"-"+index+".parquet", func(path string) error {
			return r.Exporter.ExportGrids(path, logging.RunID(ctx), grids)
		}); err != nil {
			return nil, err
		}
	}
	return out.written, nil
}

// single runs one reducer and writes its grids
func (r *Runner) single(ctx context.Context, p Params, index string, red reduce.Reducer, units string) (*Result, error) {
	start := time.Now()
	ctx, err := r.begin(ctx, p, index)
	res := &Result{RunID: logging.RunID(ctx), Index: index}
	if err != nil {
		return finish(ctx, res, err)
	}

	grids, meta, err := r.compute(ctx, p, red, nil)
	if err != nil {
		return finish(ctx, res, err)
	}
	for _, g := range grids {
		g.Units = unitsOf(g.Name, units, meta)
	}

	if res.Outputs, err = r.writeGrids(ctx, p, index, grids); err != nil {
		return finish(ctx, res, err)
	}
	res.Grids = grids
	res.Duration = time.Since(start)
	return finish(ctx, res, nil)
}

// unitsOf returns the units of a count index, or the cube's units for
// statistics measured in the variable itself
func unitsOf(name, countUnits string, meta models.CubeMeta) string {
	switch name {
	case NameTXx, NameTXn:
		return meta.Units
	default:
		return countUnits
	}
}
