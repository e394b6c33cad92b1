package engine

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/climidx/climidx/internal/models"
)

// memCube is an in-memory BlockReader for tests
type memCube struct {
	meta   models.CubeMeta
	data   []float32 // (time, lat, lon)
	fail   func(b models.Block) error
	reads  atomic.Int64
	maxLen atomic.Int64
}

func newTestMeta(nt, ny, nx int) models.CubeMeta {
	meta := models.CubeMeta{
		Variable:      "t2m",
		TimeDimension: models.DefaultTimeDimension,
		Times:         make([]time.Time, nt),
		Latitudes:     make([]float64, ny),
		Longitudes:    make([]float64, nx),
	}
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for t := range meta.Times {
		meta.Times[t] = start.AddDate(0, 0, t)
	}
	for y := range meta.Latitudes {
		meta.Latitudes[y] = 60 - float64(y)*0.25
	}
	for x := range meta.Longitudes {
		meta.Longitudes[x] = 100 + float64(x)*0.25
	}
	return meta
}

// newPatternCube fills a cube with a deterministic mix of trends, ties and gaps
func newPatternCube(nt, ny, nx int) *memCube {
	meta := newTestMeta(nt, ny, nx)
	data := make([]float32, nt*ny*nx)
	for t := 0; t < nt; t++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				v := float32((t*7+y*13+x*29)%50) - 5 + float32(y*t%3)
				if (y+x)%5 == 0 && t == nt/2 {
					v = float32(math.NaN())
				}
				data[(t*ny+y)*nx+x] = v
			}
		}
	}
	return &memCube{meta: meta, data: data}
}

func (c *memCube) Meta() models.CubeMeta { return c.meta }

func (c *memCube) ReadBlock(ctx context.Context, b models.Block) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !b.Within(c.meta) {
		return nil, fmt.Errorf("block %s out of range", b)
	}
	if c.fail != nil {
		if err := c.fail(b); err != nil {
			return nil, err
		}
	}
	c.reads.Add(1)
	for n := int64(b.Len()); ; {
		cur := c.maxLen.Load()
		if n <= cur || c.maxLen.CompareAndSwap(cur, n) {
			break
		}
	}

	ny, nx := c.meta.NumLat(), c.meta.NumLon()
	out := make([]float32, 0, b.Len())
	for t := b.T0; t < b.T1; t++ {
		for y := b.Y0; y < b.Y1; y++ {
			row := (t*ny + y) * nx
			out = append(out, c.data[row+b.X0:row+b.X1]...)
		}
	}
	return out, nil
}

// sameFloat32 treats NaN as equal to NaN
func sameFloat32(a, b float32) bool {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return math.IsNaN(float64(a)) && math.IsNaN(float64(b))
	}
	return a == b
}
