// Package store provides gridded time-series cubes: in-memory and compressed
// layer cubes, a netCDF reader and writer, and conversions between cubes and
// dated raster tiles.
package store

import (
	"context"

	"github.com/climidx/climidx/internal/models"
)

// Reader is the read side of a cube (time, latitude, longitude).
// ReadBlock returns the block flattened in (time, lat, lon) order and must be
// safe for concurrent use.
type Reader interface {
	Meta() models.CubeMeta
	ReadBlock(ctx context.Context, block models.Block) ([]float32, error)
}

// Cube is a read-only cube opened for one computation
type Cube interface {
	Reader
	Close() error
}

// OpenRequest names the variable to read and its time dimension
type OpenRequest struct {
	Variable      string
	TimeDimension string
}

// Opener opens cubes from files.
// A missing variable or time dimension is a validation error.
type Opener interface {
	Open(path string, req OpenRequest) (Cube, error)
}

// RasterSink writes one grid as a georeferenced raster file
type RasterSink interface {
	WriteGrid(path string, grid *models.ResultGrid, opts models.RasterOptions) error
}

// RasterSource reads a single-band raster file
type RasterSource interface {
	ReadRaster(path string) (*models.Raster, error)
}

// ReadAll reads the entire cube as one block
func ReadAll(ctx context.Context, r Reader) ([]float32, error) {
	meta := r.Meta()
	return r.ReadBlock(ctx, models.Block{
		T0: 0, T1: meta.NumTimes(),
		Y0: 0, Y1: meta.NumLat(),
		X0: 0, X1: meta.NumLon(),
	})
}

// copyWindow copies the spatial window of block from one full layer (ny x nx
// row-major) into dst, which receives block.Pixels() values
func copyWindow(layer []float32, nx int, block models.Block, dst []float32) {
	w := block.NX()
	for y := block.Y0; y < block.Y1; y++ {
		row := y * nx
		copy(dst[(y-block.Y0)*w:], layer[row+block.X0:row+block.X1])
	}
}

func checkBlock(meta models.CubeMeta, block models.Block) error {
	if !block.Within(meta) {
		return models.NewValidationError("block %s outside cube %q (%d x %d x %d)",
			block, meta.Variable, meta.NumTimes(), meta.NumLat(), meta.NumLon())
	}
	return nil
}
