package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/climidx/climidx/internal/compression"
	"github.com/climidx/climidx/internal/logging"
	"github.com/climidx/climidx/internal/models"
	"github.com/climidx/climidx/internal/utils"
)

// ParseTileDate parses the date of a tile named YYYYMMDD.tif
func ParseTileDate(path string) (time.Time, error) {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	t, err := time.ParseInLocation(utils.TileDateLayout, base, time.UTC)
	if err != nil {
		return time.Time{}, models.NewInputDataError("cannot parse date from tile %q (want YYYYMMDD.tif)", filepath.Base(path))
	}
	return t, nil
}

// TilePath returns <dir>/<YYYY>/<YYYYMMDD>.tif for t
func TilePath(dir string, t time.Time) string {
	return filepath.Join(dir, t.Format("2006"), t.Format(utils.TileDateLayout)+utils.TileExtension)
}

// ListTiles returns the .tif files directly inside dir, sorted by name
func ListTiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, models.WrapIO(err, "list %s", dir)
	}
	var tiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), utils.TileExtension) {
			tiles = append(tiles, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(tiles)
	return tiles, nil
}

// BuildOptions controls cube assembly from raster tiles
type BuildOptions struct {
	Variable    string
	NoData      float64 // sentinel mapped to NaN
	Units       string
	Compression compression.Algorithm
	Logger      *logging.Logger
}

type datedTile struct {
	path string
	date time.Time
}

// BuildFromRasters assembles a compressed layer cube from daily raster tiles.
// Tiles are ordered by the date in their file name, cast to float32, and the
// nodata sentinel becomes NaN. All tiles must share one grid.
func BuildFromRasters(ctx context.Context, source RasterSource, paths []string, opts BuildOptions) (*LayerCube, error) {
	if len(paths) == 0 {
		return nil, models.NewInputDataError("no raster tiles to build %q from", opts.Variable)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Global()
	}

	tiles := make([]datedTile, 0, len(paths))
	for _, p := range paths {
		date, err := ParseTileDate(p)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, datedTile{path: p, date: date})
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].date.Before(tiles[j].date) })
	for i := 1; i < len(tiles); i++ {
		if tiles[i].date.Equal(tiles[i-1].date) {
			return nil, models.NewInputDataError("tiles %s and %s have the same date",
				filepath.Base(tiles[i-1].path), filepath.Base(tiles[i].path))
		}
	}

	var (
		builder *LayerCubeBuilder
		first   *models.Raster
	)
	for i, tile := range tiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, err := source.ReadRaster(tile.path)
		if err != nil {
			return nil, models.WrapIO(err, "read tile %s", tile.path)
		}
		if len(r.Values) != r.Width*r.Height {
			return nil, models.NewInputDataError("tile %s has %d values for %d x %d pixels",
				tile.path, len(r.Values), r.Width, r.Height)
		}

		if first == nil {
			first = r
			builder, err = NewLayerCubeBuilder(opts.Variable, r.Latitudes(), r.Longitudes(), opts.Compression)
			if err != nil {
				return nil, err
			}
			builder.SetUnits(opts.Units)
			builder.SetAttribute("standard_name", opts.Variable)
			builder.SetAttribute(utils.AttrLongName, fmt.Sprintf("Daily Maximum Temperature (%s)", opts.Variable))
		} else if r.Width != first.Width || r.Height != first.Height || r.GeoTransform != first.GeoTransform {
			return nil, models.NewInputDataError("tile %s is %d x %d, expected %d x %d on the grid of %s",
				filepath.Base(tile.path), r.Width, r.Height, first.Width, first.Height, filepath.Base(tiles[0].path))
		}

		r.NoDataToNaN(opts.NoData)
		if err := builder.Append(tile.date, r.Values); err != nil {
			return nil, err
		}

		if (i+1)%365 == 0 {
			logger.Debug("Building cube from tiles", "variable", opts.Variable, "done", i+1, "total", len(tiles))
		}
	}

	cube, err := builder.Build()
	if err != nil {
		return nil, err
	}
	logger.Info("Built cube from raster tiles",
		"variable", opts.Variable,
		"tiles", len(tiles),
		"first", tiles[0].date.Format(time.DateOnly),
		"last", tiles[len(tiles)-1].date.Format(time.DateOnly),
		"width", first.Width,
		"height", first.Height)
	return cube, nil
}

// SplitOptions controls cube-to-raster conversion
type SplitOptions struct {
	// KelvinToTenths converts each value to round((v-273.15)*10)
	KelvinToTenths bool
	Raster         models.RasterOptions
	Logger         *logging.Logger
}

// KelvinToTenths converts Kelvin to integer tenths of a degree Celsius
func KelvinToTenths(v float32) float32 {
	if math.IsNaN(float64(v)) {
		return v
	}
	return float32(utils.RoundHalfEven((float64(v) - utils.KelvinOffset) * utils.TenthsPerDegree))
}

// SplitToRasters writes one raster per time step at <outDir>/<YYYY>/<YYYYMMDD>.tif
// and returns the written paths
func SplitToRasters(ctx context.Context, cube Reader, sink RasterSink, outDir string, opts SplitOptions) ([]string, error) {
	meta := cube.Meta()
	logger := opts.Logger
	if logger == nil {
		logger = logging.Global()
	}

	units := meta.Units
	if opts.KelvinToTenths {
		units = utils.TenthsOfDegreeUnits
	}

	written := make([]string, 0, meta.NumTimes())
	for t, ts := range meta.Times {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		values, err := cube.ReadBlock(ctx, models.Block{
			T0: t, T1: t + 1,
			Y0: 0, Y1: meta.NumLat(),
			X0: 0, X1: meta.NumLon(),
		})
		if err != nil {
			return written, err
		}
		if opts.KelvinToTenths {
			for i, v := range values {
				values[i] = KelvinToTenths(v)
			}
		}

		grid := &models.ResultGrid{
			Name:       meta.Variable,
			Units:      units,
			Latitudes:  meta.Latitudes,
			Longitudes: meta.Longitudes,
			Values:     values,
		}
		path := TilePath(outDir, ts)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return written, models.WrapIO(err, "create %s", filepath.Dir(path))
		}
		if err := sink.WriteGrid(path, grid, opts.Raster); err != nil {
			return written, models.WrapIO(err, "write %s", path)
		}
		written = append(written, path)
	}

	logger.Info("Split cube into rasters", "variable", meta.Variable, "rasters", len(written), "dir", outDir)
	return written, nil
}
