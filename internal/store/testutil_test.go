package store

import (
	"math"
	"sync"
	"time"

	"github.com/climidx/climidx/internal/models"
)

func testMeta(times []time.Time, ny, nx int) models.CubeMeta {
	meta := models.CubeMeta{
		Variable:      "t2m",
		TimeDimension: models.DefaultTimeDimension,
		Units:         "K",
		Times:         times,
		Latitudes:     make([]float64, ny),
		Longitudes:    make([]float64, nx),
		Attributes:    map[string]string{},
	}
	for y := range meta.Latitudes {
		meta.Latitudes[y] = 40 - float64(y)*0.25
	}
	for x := range meta.Longitudes {
		meta.Longitudes[x] = 110 + float64(x)*0.25
	}
	return meta
}

func dailyTimes(start time.Time, n int) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.AddDate(0, 0, i)
	}
	return times
}

// sequentialCube holds value t*1000 + y*100 + x at every cell
func sequentialCube(nt, ny, nx int) (*MemoryCube, []float32) {
	meta := testMeta(dailyTimes(time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC), nt), ny, nx)
	data := make([]float32, nt*ny*nx)
	for t := 0; t < nt; t++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				data[(t*ny+y)*nx+x] = float32(t*1000 + y*100 + x)
			}
		}
	}
	c, err := NewMemoryCube(meta, data)
	if err != nil {
		panic(err)
	}
	return c, data
}

func sameValues(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		an, bn := math.IsNaN(float64(a[i])), math.IsNaN(float64(b[i]))
		if an != bn || (!an && a[i] != b[i]) {
			return false
		}
	}
	return true
}

// fakeRasterSource serves rasters from memory
type fakeRasterSource struct {
	rasters map[string]*models.Raster
}

func (s *fakeRasterSource) ReadRaster(path string) (*models.Raster, error) {
	r, ok := s.rasters[path]
	if !ok {
		return nil, models.NewInputDataError("no raster %s", path)
	}
	cp := *r
	cp.Values = append([]float32(nil), r.Values...)
	return &cp, nil
}

// memorySink records written grids
type memorySink struct {
	mu    sync.Mutex
	grids map[string]*models.ResultGrid
	opts  map[string]models.RasterOptions
}

func newMemorySink() *memorySink {
	return &memorySink{grids: map[string]*models.ResultGrid{}, opts: map[string]models.RasterOptions{}}
}

func (s *memorySink) WriteGrid(path string, grid *models.ResultGrid, opts models.RasterOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *grid
	cp.Values = append([]float32(nil), grid.Values...)
	s.grids[path] = &cp
	s.opts[path] = opts
	return nil
}
