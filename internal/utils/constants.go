package utils

// =============================================================================
// Temperature Conversion Constants
// =============================================================================

const (
	// KelvinOffset is subtracted from Kelvin to get degrees Celsius
	KelvinOffset = 273.15

	// TenthsPerDegree scales degrees Celsius to the integer tenths convention
	TenthsPerDegree = 10

	// TenthsOfDegreeUnits is the units attribute of converted cubes
	TenthsOfDegreeUnits = "0.1°C"
)

// =============================================================================
// Raster Tile Constants
// =============================================================================

const (
	// DefaultNoData is the raster sentinel mapped to NaN when building cubes
	DefaultNoData = -9999

	// TileDateLayout names daily tiles, e.g. 20240131.tif
	TileDateLayout = "20060102"

	// TileExtension is the file extension of raster tiles
	TileExtension = ".tif"
)

// =============================================================================
// NetCDF Attribute Names
// =============================================================================

const (
	AttrUnits        = "units"
	AttrScaleFactor  = "scale_factor"
	AttrAddOffset    = "add_offset"
	AttrFillValue    = "_FillValue"
	AttrMissingValue = "missing_value"
	AttrLongName     = "long_name"

	// EpochTimeUnits is written on the time axis of produced files
	EpochTimeUnits = "seconds since 1970-01-01"
)
