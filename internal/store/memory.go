package store

import (
	"context"

	"github.com/climidx/climidx/internal/models"
)

// MemoryCube holds all values of a cube in memory
type MemoryCube struct {
	meta models.CubeMeta
	data []float32 // (time, lat, lon)
}

// NewMemoryCube wraps data laid out in (time, lat, lon) order
func NewMemoryCube(meta models.CubeMeta, data []float32) (*MemoryCube, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if want := meta.NumTimes() * meta.Pixels(); len(data) != want {
		return nil, models.NewInputDataError("cube %q expects %d values, got %d", meta.Variable, want, len(data))
	}
	return &MemoryCube{meta: meta, data: data}, nil
}

// Meta returns the cube metadata
func (c *MemoryCube) Meta() models.CubeMeta {
	return c.meta
}

// ReadBlock copies a block out of the cube
func (c *MemoryCube) ReadBlock(ctx context.Context, block models.Block) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkBlock(c.meta, block); err != nil {
		return nil, err
	}

	pixels := c.meta.Pixels()
	nx := c.meta.NumLon()
	out := make([]float32, block.Len())
	for t := block.T0; t < block.T1; t++ {
		layer := c.data[t*pixels : (t+1)*pixels]
		copyWindow(layer, nx, block, out[(t-block.T0)*block.Pixels():])
	}
	return out, nil
}

// Layer returns the values of time step t (shared, do not modify)
func (c *MemoryCube) Layer(t int) []float32 {
	pixels := c.meta.Pixels()
	return c.data[t*pixels : (t+1)*pixels]
}

// Close is a no-op
func (c *MemoryCube) Close() error {
	return nil
}

// MemoryOpener serves registered in-memory cubes by path
type MemoryOpener struct {
	Cubes map[string]*MemoryCube
}

// Open returns the cube registered under path
func (o *MemoryOpener) Open(path string, req OpenRequest) (Cube, error) {
	c, ok := o.Cubes[path]
	if !ok {
		return nil, models.NewInputDataError("no cube at %s", path)
	}
	if c.meta.Variable != req.Variable {
		return nil, models.NewValidationError("variable %q not found in %s", req.Variable, path)
	}
	if req.TimeDimension != "" && c.meta.TimeDimension != req.TimeDimension {
		return nil, models.NewValidationError("dimension %q not found in %s", req.TimeDimension, path)
	}
	return c, nil
}
