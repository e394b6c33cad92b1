package store

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/climidx/climidx/internal/models"
)

// resampleBudget bounds the values read at once while resampling
const resampleBudget = 32 << 20

// ResampleAnnualMean reduces a cube to one layer per calendar year holding the
// per-pixel mean of that year's valid samples (NaN if none)
func ResampleAnnualMean(ctx context.Context, cube Reader) (*MemoryCube, error) {
	meta := cube.Meta()
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	// the time axis is strictly increasing, so each year is one contiguous span
	type span struct {
		year   int
		t0, t1 int
	}
	var years []span
	for t, ts := range meta.Times {
		if n := len(years); n > 0 && years[n-1].year == ts.Year() {
			years[n-1].t1 = t + 1
			continue
		}
		years = append(years, span{year: ts.Year(), t0: t, t1: t + 1})
	}

	ny, nx := meta.NumLat(), meta.NumLon()
	pixels := meta.Pixels()
	out := make([]float32, len(years)*pixels)
	times := make([]time.Time, len(years))

	for i, yr := range years {
		times[i] = time.Date(yr.year, time.January, 1, 0, 0, 0, 0, time.UTC)
		nt := yr.t1 - yr.t0
		rows := max(1, min(ny, resampleBudget/(nt*nx)))

		valid := make([]float64, 0, nt)
		for y0 := 0; y0 < ny; y0 += rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			block := models.Block{T0: yr.t0, T1: yr.t1, Y0: y0, Y1: min(y0+rows, ny), X0: 0, X1: nx}
			values, err := cube.ReadBlock(ctx, block)
			if err != nil {
				return nil, err
			}

			bp := block.Pixels()
			for p := 0; p < bp; p++ {
				valid = valid[:0]
				for t := 0; t < nt; t++ {
					if v := values[t*bp+p]; !math.IsNaN(float64(v)) {
						valid = append(valid, float64(v))
					}
				}
				mean := float32(math.NaN())
				if len(valid) > 0 {
					mean = float32(stat.Mean(valid, nil))
				}
				out[i*pixels+y0*nx+p] = mean
			}
		}
	}

	annual := meta
	annual.Times = times
	annual.Attributes = make(map[string]string, len(meta.Attributes)+1)
	for k, v := range meta.Attributes {
		annual.Attributes[k] = v
	}
	annual.Attributes["cell_methods"] = meta.TimeDimension + ": mean (annual)"

	return NewMemoryCube(annual, out)
}
