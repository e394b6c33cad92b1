// Package engine applies per-pixel reductions over gridded time-series cubes.
// The dispatcher turns one in-memory block into per-output tiles; the planner
// cuts a cube into blocks and runs them on a bounded worker pool.
package engine

import (
	"math"

	"github.com/climidx/climidx/internal/models"
	"github.com/climidx/climidx/internal/reduce"
)

// Dispatch applies r to the time series of every pixel of block.
//
// values holds the block flattened in (time, lat, lon) order. The result has
// one slice per reducer output, each of block.Pixels() values in row-major
// (lat, lon) order. NaN marks a missing result.
func Dispatch(values []float32, block models.Block, r reduce.Reducer) (out [][]float32, err error) {
	if len(values) != block.Len() {
		return nil, models.NewComputationError("block %s expects %d values, got %d", block, block.Len(), len(values))
	}
	outputs := r.Outputs()
	if len(outputs) == 0 {
		return nil, models.NewComputationError("reducer %s declares no outputs", r.Kind())
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = models.NewComputationError("reducer %s failed on block %s: %v", r.Kind(), block, rec)
		}
	}()

	pixels := block.Pixels()
	nt := block.NT()

	out = make([][]float32, len(outputs))
	for k := range out {
		out[k] = make([]float32, pixels)
	}

	series := make([]float64, nt)
	result := make([]float64, len(outputs))
	for p := 0; p < pixels; p++ {
		for t := 0; t < nt; t++ {
			series[t] = float64(values[t*pixels+p])
		}
		for k := range result {
			result[k] = math.NaN()
		}
		r.Reduce(series, result)
		for k, v := range result {
			out[k][p] = float32(v)
		}
	}

	return out, nil
}

// mergeTiles folds part into acc pixel by pixel using m
func mergeTiles(m reduce.Merger, acc, part [][]float32) error {
	if len(acc) != len(part) {
		return models.NewComputationError("cannot merge %d outputs into %d", len(part), len(acc))
	}
	if len(acc) == 0 {
		return nil
	}
	pixels := len(acc[0])
	a := make([]float64, len(acc))
	b := make([]float64, len(acc))
	for p := 0; p < pixels; p++ {
		for k := range acc {
			if len(part[k]) != pixels {
				return models.NewComputationError("output %d: tile size mismatch (%d vs %d)", k, len(part[k]), pixels)
			}
			a[k] = float64(acc[k][p])
			b[k] = float64(part[k][p])
		}
		m.Merge(a, b)
		for k := range acc {
			acc[k][p] = float32(a[k])
		}
	}
	return nil
}
