package indices

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/climidx/climidx/internal/compression"
	"github.com/climidx/climidx/internal/engine"
	"github.com/climidx/climidx/internal/logging"
	"github.com/climidx/climidx/internal/models"
	"github.com/climidx/climidx/internal/store"
)

const testSource = "/data/t2m.daily.nc"

// seriesCube builds a ny x nx cube where series[p] is the time series of pixel p
func seriesCube(t *testing.T, times []time.Time, ny, nx int, series [][]float64) *store.MemoryCube {
	t.Helper()
	require.Len(t, series, ny*nx)
	meta := models.CubeMeta{
		Variable:      "t2m",
		TimeDimension: models.DefaultTimeDimension,
		Units:         "0.1°C",
		Times:         times,
		Latitudes:     make([]float64, ny),
		Longitudes:    make([]float64, nx),
	}
	for y := range meta.Latitudes {
		meta.Latitudes[y] = 50 - float64(y)
	}
	for x := range meta.Longitudes {
		meta.Longitudes[x] = 10 + float64(x)
	}

	pixels := ny * nx
	data := make([]float32, len(times)*pixels)
	for p, s := range series {
		require.Len(t, s, len(times))
		for ti, v := range s {
			data[ti*pixels+p] = float32(v)
		}
	}
	cube, err := store.NewMemoryCube(meta, data)
	require.NoError(t, err)
	return cube
}

func days(n int) []time.Time {
	times := make([]time.Time, n)
	start := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range times {
		times[i] = start.AddDate(0, 0, i)
	}
	return times
}

// trackingOpener serves one cube, counts Close calls and can fail reads
type trackingOpener struct {
	cube     *store.MemoryCube
	readErr  error
	opened   atomic.Int32
	closed   atomic.Int32
	lastOpen store.OpenRequest
}

func (o *trackingOpener) Open(path string, req store.OpenRequest) (store.Cube, error) {
	inner := &store.MemoryOpener{Cubes: map[string]*store.MemoryCube{testSource: o.cube}}
	c, err := inner.Open(path, req)
	if err != nil {
		return nil, err
	}
	o.opened.Add(1)
	o.lastOpen = req
	return &trackedCube{Cube: c, opener: o}, nil
}

type trackedCube struct {
	store.Cube
	opener *trackingOpener
}

func (c *trackedCube) ReadBlock(ctx context.Context, block models.Block) ([]float32, error) {
	if c.opener.readErr != nil && block.Y0 > 0 {
		return nil, c.opener.readErr
	}
	return c.Cube.ReadBlock(ctx, block)
}

func (c *trackedCube) Close() error {
	c.opener.closed.Add(1)
	return c.Cube.Close()
}

// fileSink writes each grid's name and raw float32 values and can fail on the
// n-th write
type fileSink struct {
	mu     sync.Mutex
	grids  map[string]*models.ResultGrid
	opts   map[string]models.RasterOptions
	writes int
	failOn int // 1-based; 0 never fails
}

func newFileSink() *fileSink {
	return &fileSink{grids: map[string]*models.ResultGrid{}, opts: map[string]models.RasterOptions{}}
}

func (s *fileSink) WriteGrid(path string, grid *models.ResultGrid, opts models.RasterOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.writes == s.failOn {
		return models.WrapIO(errors.New("disk full"), "write %s", path)
	}
	content := append([]byte(grid.Name+"\n"), compression.EncodeFloat32(grid.Values)...)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return err
	}
	cp := *grid
	cp.Values = append([]float32(nil), grid.Values...)
	s.grids[path] = &cp
	s.opts[path] = opts
	return nil
}

// fileContainer records trend reports and writes a marker file
type fileContainer struct {
	reports map[string]*models.TrendReport
	err     error
}

func (c *fileContainer) WriteTrend(path string, report *models.TrendReport) error {
	if c.err != nil {
		return c.err
	}
	if c.reports == nil {
		c.reports = map[string]*models.TrendReport{}
	}
	c.reports[path] = report
	return os.WriteFile(path, []byte("trend"), 0644)
}

// recordingExporter writes a marker file per export
type recordingExporter struct {
	runIDs []string
	paths  []string
}

func (e *recordingExporter) ExportGrids(path, runID string, grids []*models.ResultGrid) error {
	e.runIDs = append(e.runIDs, runID)
	e.paths = append(e.paths, path)
	return os.WriteFile(path, []byte("grids"), 0644)
}

func (e *recordingExporter) ExportTrend(path, runID string, report *models.TrendReport) error {
	e.runIDs = append(e.runIDs, runID)
	e.paths = append(e.paths, path)
	return os.WriteFile(path, []byte("trend"), 0644)
}

func newTestRunner(opener store.Opener, sink store.RasterSink) *Runner {
	planner := engine.NewPlanner(engine.PlannerConfig{
		Workers: 2,
		Chunks:  models.ChunkShape{Time: models.WholeAxis, Lat: 1, Lon: 1},
	}, logging.NewNop())
	return &Runner{
		Opener:    opener,
		Sink:      sink,
		Container: &fileContainer{},
		Planner:   planner,
		Logger:    logging.NewNop(),
	}
}

func testParams(dir string) Params {
	return Params{
		SourcePath:      testSource,
		VariableName:    "t2m",
		OutputDirectory: dir,
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
