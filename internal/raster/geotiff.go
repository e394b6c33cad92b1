// Package raster reads and writes single-band GeoTIFF files through GDAL.
package raster

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/climidx/climidx/internal/logging"
	"github.com/climidx/climidx/internal/models"
)

// DefaultEPSG is the CRS of written rasters (WGS 84)
const DefaultEPSG = 4326

var registerOnce sync.Once

// GeoTIFF writes result grids and reads tiles as GeoTIFF files.
// It implements store.RasterSink and store.RasterSource.
type GeoTIFF struct {
	Logger *logging.Logger
}

// NewGeoTIFF registers the GDAL drivers and returns a GeoTIFF codec
func NewGeoTIFF(logger *logging.Logger) *GeoTIFF {
	registerOnce.Do(godal.RegisterAll)
	if logger == nil {
		logger = logging.Global()
	}
	return &GeoTIFF{Logger: logger}
}

// WriteGrid writes grid as a Float32 GeoTIFF with NaN nodata. The raster is
// written to a temporary name and renamed into place.
func (g *GeoTIFF) WriteGrid(path string, grid *models.ResultGrid, opts models.RasterOptions) (err error) {
	nx, ny := grid.Cols(), grid.Rows()
	if nx == 0 || ny == 0 || len(grid.Values) != nx*ny {
		return models.NewComputationError("grid %q has %d values for %d x %d pixels", grid.Name, len(grid.Values), ny, nx)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return models.WrapIO(err, "create %s", filepath.Dir(path))
	}

	compress := opts.Compress
	if compress == "" {
		compress = models.DefaultRasterCompression
	}
	epsg := opts.EPSG
	if epsg == 0 {
		epsg = DefaultEPSG
	}

	tmp := path + ".tmp"
	ds, err := godal.Create(godal.GTiff, tmp, 1, godal.Float32, nx, ny,
		godal.CreationOption("COMPRESS="+compress, "TILED=YES"))
	if err != nil {
		return models.WrapIO(err, "create %s", path)
	}
	defer func() {
		if ds != nil {
			_ = ds.Close()
		}
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if err = ds.SetGeoTransform(models.GeoTransformFromAxes(grid.Latitudes, grid.Longitudes)); err != nil {
		return models.WrapIO(err, "set geotransform of %s", path)
	}

	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return models.WrapIO(err, "EPSG:%d", epsg)
	}
	err = ds.SetSpatialRef(sr)
	sr.Close()
	if err != nil {
		return models.WrapIO(err, "set spatial reference of %s", path)
	}

	band := ds.Bands()[0]
	if err = band.SetNoData(math.NaN()); err != nil {
		return models.WrapIO(err, "set nodata of %s", path)
	}
	if err = band.Write(0, 0, grid.Values, nx, ny); err != nil {
		return models.WrapIO(err, "write %s", path)
	}

	cerr := ds.Close()
	ds = nil
	if cerr != nil {
		err = models.WrapIO(cerr, "close %s", path)
		return err
	}
	if err = os.Rename(tmp, path); err != nil {
		return models.WrapIO(err, "rename %s", tmp)
	}

	g.Logger.Debug("Wrote raster", "path", path, "grid", grid.Name, "width", nx, "height", ny, "compress", compress)
	return nil
}

// ReadRaster reads the first band of path as float32
func (g *GeoTIFF) ReadRaster(path string) (*models.Raster, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, models.WrapIO(err, "open %s", path)
	}
	defer ds.Close()

	st := ds.Structure()
	if st.NBands < 1 {
		return nil, models.NewInputDataError("raster %s has no bands", path)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, models.NewInputDataError("raster %s has no geotransform: %v", path, err)
	}

	r := &models.Raster{
		Width:        st.SizeX,
		Height:       st.SizeY,
		GeoTransform: gt,
		Values:       make([]float32, st.SizeX*st.SizeY),
	}
	band := ds.Bands()[0]
	r.NoData, r.HasNoData = band.NoData()
	if err := band.Read(0, 0, r.Values, st.SizeX, st.SizeY); err != nil {
		return nil, models.WrapIO(err, "read %s", path)
	}
	return r, nil
}

// Bucket is one histogram interval [Min, Max) and its pixel count
type Bucket struct {
	Min, Max float64
	Count    uint64
}

// Histogram computes a histogram of the first band of path with n equal
// buckets over [lo, hi]
func (g *GeoTIFF) Histogram(path string, n int, lo, hi float64) ([]Bucket, error) {
	if n <= 0 || !(hi > lo) {
		return nil, models.NewValidationError("invalid histogram range %d buckets over [%g, %g]", n, lo, hi)
	}
	ds, err := godal.Open(path)
	if err != nil {
		return nil, models.WrapIO(err, "open %s", path)
	}
	defer ds.Close()

	h, err := ds.Bands()[0].Histogram(godal.Intervals(n, lo, hi))
	if err != nil {
		return nil, models.WrapIO(err, "histogram of %s", path)
	}
	buckets := make([]Bucket, h.Len())
	for i := range buckets {
		b := h.Bucket(i)
		buckets[i] = Bucket{Min: b.Min, Max: b.Max, Count: b.Count}
	}
	return buckets, nil
}

// String formats a bucket as [min, max): count
func (b Bucket) String() string {
	return fmt.Sprintf("[%g, %g): %d", b.Min, b.Max, b.Count)
}
