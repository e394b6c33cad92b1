package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/climidx/climidx/internal/logging"
	"github.com/climidx/climidx/internal/models"
	"github.com/climidx/climidx/internal/utils"
)

// maxSliceValues bounds the values fetched by one netCDF slice read
const maxSliceValues = 16 << 20

// NetCDFOpener opens (time, latitude, longitude) variables of netCDF files
type NetCDFOpener struct {
	Logger *logging.Logger
}

// Open opens path and checks that the requested variable and time dimension exist
func (o *NetCDFOpener) Open(path string, req OpenRequest) (Cube, error) {
	logger := o.Logger
	if logger == nil {
		logger = logging.Global()
	}
	timeDim := req.TimeDimension
	if timeDim == "" {
		timeDim = models.DefaultTimeDimension
	}

	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, models.WrapIO(err, "open %s", path)
	}

	cube, err := newNetCDFCube(nc, path, req.Variable, timeDim)
	if err != nil {
		nc.Close()
		return nil, err
	}

	logger.Debug("Opened netCDF cube",
		"path", path,
		"variable", req.Variable,
		"times", cube.meta.NumTimes(),
		"latitudes", cube.meta.NumLat(),
		"longitudes", cube.meta.NumLon(),
		"scale", cube.scale,
		"offset", cube.offset)
	return cube, nil
}

type netCDFCube struct {
	path string
	nc   api.Group
	vg   api.VarGetter
	meta models.CubeMeta

	// packing and missing-value attributes
	scale, offset       float64
	fill, missing       float64
	hasFill, hasMissing bool
	batch               int

	mu     sync.Mutex // the reader is not safe for concurrent slice reads
	closed bool
}

func newNetCDFCube(nc api.Group, path, variable, timeDim string) (*netCDFCube, error) {
	if !slices.Contains(nc.ListVariables(), variable) {
		return nil, models.NewValidationError("variable %q not found in %s", variable, path)
	}
	vg, err := nc.GetVarGetter(variable)
	if err != nil {
		return nil, models.NewValidationError("variable %q not found in %s: %v", variable, path, err)
	}

	dims := vg.Dimensions()
	if !slices.Contains(dims, timeDim) {
		return nil, models.NewValidationError("dimension %q not found on variable %q in %s (dimensions %v)",
			timeDim, variable, path, dims)
	}
	if len(dims) != 3 || dims[0] != timeDim {
		return nil, models.NewValidationError("variable %q must be laid out (%s, latitude, longitude), got %v",
			variable, timeDim, dims)
	}

	c := &netCDFCube{path: path, nc: nc, vg: vg, scale: 1}
	c.meta = models.CubeMeta{
		Variable:      variable,
		TimeDimension: timeDim,
		Attributes:    make(map[string]string),
	}

	attrs := vg.Attributes()
	for _, key := range attrs.Keys() {
		val, _ := attrs.Get(key)
		switch key {
		case utils.AttrScaleFactor:
			c.scale = utils.MustToFloat64(val)
		case utils.AttrAddOffset:
			c.offset = utils.MustToFloat64(val)
		case utils.AttrFillValue:
			c.fill, c.hasFill = utils.ToFloat64(val)
		case utils.AttrMissingValue:
			c.missing, c.hasMissing = utils.ToFloat64(val)
		case utils.AttrUnits:
			c.meta.Units = fmt.Sprint(val)
		default:
			c.meta.Attributes[key] = fmt.Sprint(val)
		}
	}
	if math.IsNaN(c.scale) {
		return nil, models.NewInputDataError("variable %q has a non-numeric scale_factor", variable)
	}

	if c.meta.Times, err = readTimeAxis(nc, timeDim); err != nil {
		return nil, err
	}
	if c.meta.Latitudes, err = readAxis(nc, dims[1]); err != nil {
		return nil, err
	}
	if c.meta.Longitudes, err = readAxis(nc, dims[2]); err != nil {
		return nil, err
	}
	if err := c.meta.Validate(); err != nil {
		return nil, err
	}

	if want := int64(c.meta.NumTimes() * c.meta.Pixels()); vg.Len() != want {
		return nil, models.NewInputDataError("variable %q holds %d values, axes describe %d", variable, vg.Len(), want)
	}

	c.batch = max(1, maxSliceValues/c.meta.Pixels())
	return c, nil
}

func readAxis(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, models.NewValidationError("dimension %q has no coordinate variable: %v", name, err)
	}
	raw, err := vg.Values()
	if err != nil {
		return nil, models.WrapIO(err, "read coordinate %q", name)
	}
	values, err := utils.FlattenNumeric(raw)
	if err != nil {
		return nil, models.NewInputDataError("coordinate %q: %v", name, err)
	}
	return values, nil
}

func readTimeAxis(nc api.Group, name string) ([]time.Time, error) {
	offsets, err := readAxis(nc, name)
	if err != nil {
		return nil, err
	}
	vg, _ := nc.GetVarGetter(name)
	units := utils.EpochTimeUnits
	if val, ok := vg.Attributes().Get(utils.AttrUnits); ok {
		units = fmt.Sprint(val)
	}
	return DecodeTimes(offsets, units)
}

func (c *netCDFCube) Meta() models.CubeMeta {
	return c.meta
}

// ReadsWholeLayers reports that the reader slices the time axis only
func (c *netCDFCube) ReadsWholeLayers() bool {
	return true
}

// ReadBlock fetches whole layers in time batches and keeps the block's window
func (c *netCDFCube) ReadBlock(ctx context.Context, block models.Block) ([]float32, error) {
	if err := checkBlock(c.meta, block); err != nil {
		return nil, err
	}

	out := make([]float32, block.Len())
	for t0 := block.T0; t0 < block.T1; t0 += c.batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t1 := min(t0+c.batch, block.T1)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, models.NewComputationError("read from closed cube %s", c.path)
		}
		raw, err := c.vg.GetSlice(int64(t0), int64(t1))
		c.mu.Unlock()
		if err != nil {
			return nil, models.WrapIO(err, "read %q steps %d-%d from %s", c.meta.Variable, t0, t1, c.path)
		}

		dst := out[(t0-block.T0)*block.Pixels() : (t1-block.T0)*block.Pixels()]
		if err := c.window(raw, block, dst); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *netCDFCube) window(raw interface{}, block models.Block, dst []float32) error {
	switch v := raw.(type) {
	case [][][]float32:
		windowOf(c, v, block, dst)
	case [][][]float64:
		windowOf(c, v, block, dst)
	case [][][]int16:
		windowOf(c, v, block, dst)
	case [][][]int32:
		windowOf(c, v, block, dst)
	case [][][]int8:
		windowOf(c, v, block, dst)
	case [][][]uint8:
		windowOf(c, v, block, dst)
	default:
		flat, err := utils.FlattenNumeric(raw)
		if err != nil {
			return models.NewInputDataError("variable %q: %v", c.meta.Variable, err)
		}
		ny, nx := c.meta.NumLat(), c.meta.NumLon()
		if len(flat)%(ny*nx) != 0 {
			return models.NewInputDataError("variable %q: slice of %d values is not whole layers", c.meta.Variable, len(flat))
		}
		i := 0
		for t := 0; t < len(flat)/(ny*nx); t++ {
			for y := block.Y0; y < block.Y1; y++ {
				for x := block.X0; x < block.X1; x++ {
					dst[i] = c.unpack(flat[(t*ny+y)*nx+x])
					i++
				}
			}
		}
	}
	return nil
}

func windowOf[T int8 | uint8 | int16 | int32 | float32 | float64](c *netCDFCube, layers [][][]T, block models.Block, dst []float32) {
	i := 0
	for _, layer := range layers {
		for y := block.Y0; y < block.Y1; y++ {
			for _, v := range layer[y][block.X0:block.X1] {
				dst[i] = c.unpack(float64(v))
				i++
			}
		}
	}
}

// unpack applies _FillValue/missing_value and scale_factor/add_offset
func (c *netCDFCube) unpack(v float64) float32 {
	if (c.hasFill && v == c.fill) || (c.hasMissing && v == c.missing) {
		return float32(math.NaN())
	}
	return float32(v*c.scale + c.offset)
}

func (c *netCDFCube) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.nc.Close()
	}
	return nil
}

// =============================================================================
// Writers
// =============================================================================

// NetCDFOptions sets global attributes of written files
type NetCDFOptions struct {
	Title       string
	Institution string
	Source      string
}

// WriteNetCDF writes a whole cube as a netCDF file with (valid_time, latitude,
// longitude) axes. The file is written to a temporary name and renamed.
func WriteNetCDF(ctx context.Context, path string, cube Reader, opts NetCDFOptions) error {
	meta := cube.Meta()
	values, err := ReadAll(ctx, cube)
	if err != nil {
		return err
	}

	nt, ny, nx := meta.NumTimes(), meta.NumLat(), meta.NumLon()
	data := make([][][]float32, nt)
	for t := range data {
		data[t] = make([][]float32, ny)
		for y := range data[t] {
			off := (t*ny + y) * nx
			data[t][y] = values[off : off+nx]
		}
	}

	timeDim := meta.TimeDimension
	if timeDim == "" {
		timeDim = models.DefaultTimeDimension
	}

	varKeys := []string{"standard_name", utils.AttrLongName, utils.AttrUnits}
	varVals := map[string]interface{}{
		"standard_name":    meta.Variable,
		utils.AttrLongName: longName(meta),
		utils.AttrUnits:    meta.Units,
	}

	globalKeys := []string{}
	globalVals := map[string]interface{}{}
	for _, kv := range [][2]string{{"title", opts.Title}, {"institution", opts.Institution}, {"source", opts.Source}} {
		if kv[1] != "" {
			globalKeys = append(globalKeys, kv[0])
			globalVals[kv[0]] = kv[1]
		}
	}

	vars := []namedVar{
		{timeDim, EncodeEpochSeconds(meta.Times), []string{timeDim},
			[]string{utils.AttrUnits, "calendar"},
			map[string]interface{}{utils.AttrUnits: utils.EpochTimeUnits, "calendar": "proleptic_gregorian"}},
		latitudeVar(meta.Latitudes),
		longitudeVar(meta.Longitudes),
		{meta.Variable, data, []string{timeDim, models.LatitudeDimension, models.LongitudeDimension}, varKeys, varVals},
	}
	return writeCDF(path, vars, globalKeys, globalVals)
}

func longName(meta models.CubeMeta) string {
	if name, ok := meta.Attributes[utils.AttrLongName]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("Daily Maximum Temperature (%s)", meta.Variable)
}

// NetCDFContainer writes trend reports as one netCDF file holding the slope,
// Z score and significant slope grids
type NetCDFContainer struct{}

// WriteTrend writes report to path
func (NetCDFContainer) WriteTrend(path string, report *models.TrendReport) error {
	if report == nil || report.Slope == nil || report.ZScore == nil || report.Significant == nil {
		return models.NewComputationError("incomplete trend report")
	}

	vars := []namedVar{
		latitudeVar(report.Slope.Latitudes),
		longitudeVar(report.Slope.Longitudes),
	}
	for _, g := range report.Grids() {
		vars = append(vars, namedVar{
			name:   g.Name,
			values: gridRows(g),
			dims:   []string{models.LatitudeDimension, models.LongitudeDimension},
			keys:   []string{utils.AttrLongName, utils.AttrUnits},
			vals:   map[string]interface{}{utils.AttrLongName: trendLongName(g.Name), utils.AttrUnits: g.Units},
		})
	}

	return writeCDF(path, vars,
		[]string{"title", "trusted_threshold"},
		map[string]interface{}{
			"title":             "Mann-Kendall trend test and Sen's slope",
			"trusted_threshold": report.Trusted,
		})
}

func trendLongName(name string) string {
	switch name {
	case models.TrendSlope:
		return "Sen's slope"
	case models.TrendZScore:
		return "Mann-Kendall Z score"
	case models.TrendSignificant:
		return "Sen's slope where |Z| >= trusted threshold"
	default:
		return name
	}
}

func gridRows(g *models.ResultGrid) [][]float32 {
	rows := make([][]float32, g.Rows())
	for y := range rows {
		rows[y] = g.Row(y)
	}
	return rows
}

type namedVar struct {
	name   string
	values interface{}
	dims   []string
	keys   []string
	vals   map[string]interface{}
}

func latitudeVar(lat []float64) namedVar {
	return namedVar{models.LatitudeDimension, lat, []string{models.LatitudeDimension},
		[]string{utils.AttrUnits, "standard_name"},
		map[string]interface{}{utils.AttrUnits: "degrees_north", "standard_name": "latitude"}}
}

func longitudeVar(lon []float64) namedVar {
	return namedVar{models.LongitudeDimension, lon, []string{models.LongitudeDimension},
		[]string{utils.AttrUnits, "standard_name"},
		map[string]interface{}{utils.AttrUnits: "degrees_east", "standard_name": "longitude"}}
}

func writeCDF(path string, vars []namedVar, globalKeys []string, globalVals map[string]interface{}) (err error) {
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	cw, err := cdf.OpenWriter(tmp)
	if err != nil {
		return models.WrapIO(err, "create %s", path)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	for _, v := range vars {
		attrs, aerr := util.NewOrderedMap(v.keys, v.vals)
		if aerr != nil {
			cw.Close()
			return models.NewComputationError("attributes of %q: %v", v.name, aerr)
		}
		if aerr := cw.AddVar(v.name, api.Variable{Values: v.values, Dimensions: v.dims, Attributes: attrs}); aerr != nil {
			cw.Close()
			return models.WrapIO(aerr, "add variable %q to %s", v.name, path)
		}
	}

	if len(globalKeys) > 0 {
		attrs, aerr := util.NewOrderedMap(globalKeys, globalVals)
		if aerr != nil {
			cw.Close()
			return models.NewComputationError("global attributes: %v", aerr)
		}
		if aerr := cw.AddGlobalAttrs(attrs); aerr != nil {
			cw.Close()
			return models.WrapIO(aerr, "add global attributes to %s", path)
		}
	}

	if cerr := cw.Close(); cerr != nil {
		return models.WrapIO(cerr, "write %s", path)
	}
	if rerr := os.Rename(tmp, path); rerr != nil {
		return models.WrapIO(rerr, "rename %s", tmp)
	}
	return nil
}
