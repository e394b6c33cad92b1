package models

import (
	"math"
)

// DefaultRasterCompression is the GeoTIFF compression used for result grids
const DefaultRasterCompression = "LZW"

// RasterOptions controls how a grid is written to a raster file
type RasterOptions struct {
	Compress string // GeoTIFF COMPRESS creation option, e.g. LZW
	EPSG     int    // 0 means 4326
}

// Raster is one single-band georeferenced raster held in memory
type Raster struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	Values       []float32 // row-major, Height x Width
	NoData       float64
	HasNoData    bool
}

// Latitudes returns the pixel-centre latitudes of the raster rows
func (r *Raster) Latitudes() []float64 {
	lat := make([]float64, r.Height)
	for y := range lat {
		lat[y] = r.GeoTransform[3] + (float64(y)+0.5)*r.GeoTransform[5]
	}
	return lat
}

// Longitudes returns the pixel-centre longitudes of the raster columns
func (r *Raster) Longitudes() []float64 {
	lon := make([]float64, r.Width)
	for x := range lon {
		lon[x] = r.GeoTransform[0] + (float64(x)+0.5)*r.GeoTransform[1]
	}
	return lon
}

// GeoTransformFromAxes derives a north-up GDAL geotransform from pixel-centre
// coordinate vectors. A single-element axis is given a unit step.
func GeoTransformFromAxes(lat, lon []float64) [6]float64 {
	dx, dy := 1.0, -1.0
	if len(lon) > 1 {
		dx = (lon[len(lon)-1] - lon[0]) / float64(len(lon)-1)
	}
	if len(lat) > 1 {
		dy = (lat[len(lat)-1] - lat[0]) / float64(len(lat)-1)
	}
	var x0, y0 float64
	if len(lon) > 0 {
		x0 = lon[0] - dx/2
	}
	if len(lat) > 0 {
		y0 = lat[0] - dy/2
	}
	return [6]float64{x0, dx, 0, y0, 0, dy}
}

// NoDataToNaN replaces the raster's nodata sentinel with NaN in place
func (r *Raster) NoDataToNaN(sentinel float64) {
	nan := float32(math.NaN())
	nd := float32(sentinel)
	for i, v := range r.Values {
		if v == nd || (r.HasNoData && v == float32(r.NoData)) {
			r.Values[i] = nan
		}
	}
}
