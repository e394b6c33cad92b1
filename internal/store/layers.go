package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/climidx/climidx/internal/compression"
	"github.com/climidx/climidx/internal/models"
)

// LayerCube keeps one compressed layer per time step, so a cube assembled from
// raster tiles stays small in memory until its blocks are read
type LayerCube struct {
	meta   models.CubeMeta
	comp   compression.Compressor
	layers [][]byte

	rawBytes    int64
	storedBytes int64
	reads       atomic.Int64
}

// LayerCubeBuilder appends dated layers in time order
type LayerCubeBuilder struct {
	meta   models.CubeMeta
	comp   compression.Compressor
	layers [][]byte

	rawBytes    int64
	storedBytes int64
}

// NewLayerCubeBuilder starts a cube with fixed spatial axes
func NewLayerCubeBuilder(variable string, lat, lon []float64, algo compression.Algorithm) (*LayerCubeBuilder, error) {
	if variable == "" {
		return nil, models.NewValidationError("cube has no variable name")
	}
	if len(lat) == 0 || len(lon) == 0 {
		return nil, models.NewInputDataError("cube %q has an empty spatial axis", variable)
	}
	comp, err := compression.GetCompressor(algo)
	if err != nil {
		return nil, models.NewValidationError("%v", err)
	}
	return &LayerCubeBuilder{
		meta: models.CubeMeta{
			Variable:      variable,
			TimeDimension: models.DefaultTimeDimension,
			Latitudes:     lat,
			Longitudes:    lon,
			Attributes:    make(map[string]string),
		},
		comp: comp,
	}, nil
}

// SetUnits sets the units of the variable
func (b *LayerCubeBuilder) SetUnits(units string) {
	b.meta.Units = units
}

// SetAttribute sets a variable attribute
func (b *LayerCubeBuilder) SetAttribute(key, value string) {
	b.meta.Attributes[key] = value
}

// Len returns the number of layers appended so far
func (b *LayerCubeBuilder) Len() int {
	return len(b.layers)
}

// Append compresses and appends the layer of time step t.
// Layers must arrive in strictly increasing time order.
func (b *LayerCubeBuilder) Append(t time.Time, values []float32) error {
	if len(values) != b.meta.Pixels() {
		return models.NewInputDataError("layer %s has %d values, expected %d",
			t.Format(time.DateOnly), len(values), b.meta.Pixels())
	}
	if n := len(b.meta.Times); n > 0 && !t.After(b.meta.Times[n-1]) {
		return models.NewInputDataError("layer %s is not after %s",
			t.Format(time.DateOnly), b.meta.Times[n-1].Format(time.DateOnly))
	}

	data, err := compression.CompressLayer(b.comp, values)
	if err != nil {
		return models.NewComputationError("compress layer %s: %v", t.Format(time.DateOnly), err)
	}
	b.meta.Times = append(b.meta.Times, t)
	b.layers = append(b.layers, data)
	b.rawBytes += int64(4 * len(values))
	b.storedBytes += int64(len(data))
	return nil
}

// Build returns the finished cube
func (b *LayerCubeBuilder) Build() (*LayerCube, error) {
	if len(b.layers) == 0 {
		return nil, models.NewInputDataError("cube %q has no layers", b.meta.Variable)
	}
	if err := b.meta.Validate(); err != nil {
		return nil, err
	}
	return &LayerCube{
		meta:        b.meta,
		comp:        b.comp,
		layers:      b.layers,
		rawBytes:    b.rawBytes,
		storedBytes: b.storedBytes,
	}, nil
}

// Meta returns the cube metadata
func (c *LayerCube) Meta() models.CubeMeta {
	return c.meta
}

// ReadBlock decompresses the layers of the block's time range
func (c *LayerCube) ReadBlock(ctx context.Context, block models.Block) ([]float32, error) {
	if err := checkBlock(c.meta, block); err != nil {
		return nil, err
	}

	nx := c.meta.NumLon()
	layer := make([]float32, c.meta.Pixels())
	out := make([]float32, block.Len())
	for t := block.T0; t < block.T1; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := compression.DecompressLayer(c.comp, c.layers[t], layer); err != nil {
			return nil, models.WrapIO(err, "decompress layer %d of %q", t, c.meta.Variable)
		}
		copyWindow(layer, nx, block, out[(t-block.T0)*block.Pixels():])
	}
	c.reads.Add(1)
	return out, nil
}

// Close releases the layers
func (c *LayerCube) Close() error {
	c.layers = nil
	return nil
}

// Stats returns size statistics of the compressed layers
func (c *LayerCube) Stats() map[string]interface{} {
	ratio := 0.0
	if c.storedBytes > 0 {
		ratio = float64(c.rawBytes) / float64(c.storedBytes)
	}
	return map[string]interface{}{
		"layers":            len(c.layers),
		"algorithm":         c.comp.Algorithm().String(),
		"raw_bytes":         c.rawBytes,
		"stored_bytes":      c.storedBytes,
		"compression_ratio": ratio,
		"block_reads":       c.reads.Load(),
	}
}
