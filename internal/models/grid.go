package models

import (
	"math"
)

// Trend report grid names, also used as variable names of the combined container
const (
	TrendSlope       = "Slope"
	TrendZScore      = "Z-score"
	TrendSignificant = "Significant"
)

// ResultGrid is a 2-D (latitude x longitude) float32 grid of one statistic.
// Values are row-major; NaN marks a pixel with insufficient input.
type ResultGrid struct {
	Name       string
	Units      string
	Latitudes  []float64
	Longitudes []float64
	Values     []float32
}

// NewResultGrid allocates a grid shaped like meta, filled with NaN
func NewResultGrid(name string, meta CubeMeta) *ResultGrid {
	values := make([]float32, meta.Pixels())
	nan := float32(math.NaN())
	for i := range values {
		values[i] = nan
	}
	return &ResultGrid{
		Name:       name,
		Latitudes:  meta.Latitudes,
		Longitudes: meta.Longitudes,
		Values:     values,
	}
}

// Rows returns the number of latitude rows
func (g *ResultGrid) Rows() int { return len(g.Latitudes) }

// Cols returns the number of longitude columns
func (g *ResultGrid) Cols() int { return len(g.Longitudes) }

// At returns the value at row y, column x
func (g *ResultGrid) At(y, x int) float32 {
	return g.Values[y*len(g.Longitudes)+x]
}

// Set stores v at row y, column x
func (g *ResultGrid) Set(y, x int, v float32) {
	g.Values[y*len(g.Longitudes)+x] = v
}

// Row returns the values of row y
func (g *ResultGrid) Row(y int) []float32 {
	nx := len(g.Longitudes)
	return g.Values[y*nx : (y+1)*nx]
}

// PasteTile copies a tile of ny x nx values into the grid at (y0, x0)
func (g *ResultGrid) PasteTile(y0, x0, ny, nx int, tile []float32) {
	for r := 0; r < ny; r++ {
		copy(g.Row(y0 + r)[x0:x0+nx], tile[r*nx:(r+1)*nx])
	}
}

// GridStats summarises the valid pixels of a grid
type GridStats struct {
	Valid int
	Min   float64
	Max   float64
	Mean  float64
}

// Stats computes summary statistics over the non-NaN pixels
func (g *ResultGrid) Stats() GridStats {
	st := GridStats{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}
	var sum float64
	for _, v := range g.Values {
		f := float64(v)
		if math.IsNaN(f) {
			continue
		}
		if st.Valid == 0 || f < st.Min {
			st.Min = f
		}
		if st.Valid == 0 || f > st.Max {
			st.Max = f
		}
		sum += f
		st.Valid++
	}
	if st.Valid > 0 {
		st.Mean = sum / float64(st.Valid)
	}
	return st
}

// TrendReport holds the three grids produced by one Mann-Kendall / Sen pass
type TrendReport struct {
	Slope       *ResultGrid
	ZScore      *ResultGrid
	Significant *ResultGrid
	Trusted     float64
}

// Grids returns the report grids in container order
func (r *TrendReport) Grids() []*ResultGrid {
	return []*ResultGrid{r.Slope, r.ZScore, r.Significant}
}
