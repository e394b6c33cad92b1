package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climidx/climidx/internal/models"
)

func writeTestCube(t *testing.T, cube Reader) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t2m.daily.nc")
	require.NoError(t, WriteNetCDF(context.Background(), path, cube, NetCDFOptions{Title: "test"}))
	return path
}

func TestNetCDF_RoundTrip(t *testing.T) {
	src, data := sequentialCube(4, 3, 5)
	data[7] = float32(math.NaN())
	path := writeTestCube(t, src)

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file left behind")

	opener := &NetCDFOpener{}
	cube, err := opener.Open(path, OpenRequest{Variable: "t2m", TimeDimension: models.DefaultTimeDimension})
	require.NoError(t, err)
	defer cube.Close()

	wl, ok := cube.(interface{ ReadsWholeLayers() bool })
	require.True(t, ok, "netCDF cube should report whole-layer reads")
	assert.True(t, wl.ReadsWholeLayers())

	meta := cube.Meta()
	assert.Equal(t, "K", meta.Units)
	assert.Equal(t, src.Meta().Latitudes, meta.Latitudes)
	assert.Equal(t, src.Meta().Longitudes, meta.Longitudes)
	require.Len(t, meta.Times, 4)
	for i, ts := range src.Meta().Times {
		assert.True(t, ts.Equal(meta.Times[i]), "time %d: %v != %v", i, meta.Times[i], ts)
	}

	got, err := ReadAll(context.Background(), cube)
	require.NoError(t, err)
	assert.True(t, sameValues(data, got), "round trip changed values")

	block := models.Block{T0: 1, T1: 3, Y0: 1, Y1: 3, X0: 2, X1: 4}
	want, err := src.ReadBlock(context.Background(), block)
	require.NoError(t, err)
	part, err := cube.ReadBlock(context.Background(), block)
	require.NoError(t, err)
	assert.True(t, sameValues(want, part))
}

func TestNetCDF_WriteIsRepeatable(t *testing.T) {
	src, _ := sequentialCube(2, 2, 2)
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.nc"), filepath.Join(dir, "b.nc")
	require.NoError(t, WriteNetCDF(context.Background(), a, src, NetCDFOptions{Title: "x"}))
	require.NoError(t, WriteNetCDF(context.Background(), b, src, NetCDFOptions{Title: "x"}))

	ab, err := os.ReadFile(a)
	require.NoError(t, err)
	bb, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, ab, bb)
}

func TestNetCDF_OpenValidation(t *testing.T) {
	src, _ := sequentialCube(2, 2, 2)
	path := writeTestCube(t, src)
	opener := &NetCDFOpener{}

	tests := []struct {
		name string
		req  OpenRequest
	}{
		{"missing variable", OpenRequest{Variable: "tp", TimeDimension: models.DefaultTimeDimension}},
		{"missing time dimension", OpenRequest{Variable: "t2m", TimeDimension: "time"}},
		{"coordinate is not a cube", OpenRequest{Variable: models.LatitudeDimension, TimeDimension: models.DefaultTimeDimension}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := opener.Open(path, tt.req)
			assert.True(t, models.IsValidation(err), "got %v", err)
		})
	}

	_, err := opener.Open(filepath.Join(t.TempDir(), "absent.nc"), OpenRequest{Variable: "t2m"})
	assert.Equal(t, models.CodeIO, models.CodeOf(err))
}

func TestNetCDF_UnpacksScaledShorts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packed.nc")
	cw, err := cdf.OpenWriter(path)
	require.NoError(t, err)

	addVar := func(name string, values interface{}, dims []string, keys []string, vals map[string]interface{}) {
		attrs, err := util.NewOrderedMap(keys, vals)
		require.NoError(t, err)
		require.NoError(t, cw.AddVar(name, api.Variable{Values: values, Dimensions: dims, Attributes: attrs}))
	}
	addVar("time", []float64{0, 1}, []string{"time"},
		[]string{"units"}, map[string]interface{}{"units": "days since 2000-01-01"})
	addVar("latitude", []float64{10}, []string{"latitude"}, nil, map[string]interface{}{})
	addVar("longitude", []float64{20, 21}, []string{"longitude"}, nil, map[string]interface{}{})
	addVar("tx", [][][]int16{{{100, -32767}}, {{0, 50}}}, []string{"time", "latitude", "longitude"},
		[]string{"scale_factor", "add_offset", "_FillValue", "units"},
		map[string]interface{}{"scale_factor": 0.5, "add_offset": 273.0, "_FillValue": int16(-32767), "units": "K"})
	require.NoError(t, cw.Close())

	cube, err := (&NetCDFOpener{}).Open(path, OpenRequest{Variable: "tx", TimeDimension: "time"})
	require.NoError(t, err)
	defer cube.Close()

	assert.True(t, cube.Meta().Times[1].Equal(time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)))

	got, err := ReadAll(context.Background(), cube)
	require.NoError(t, err)
	assert.True(t, sameValues([]float32{323, float32(math.NaN()), 273, 298}, got), "got %v", got)
}

func TestNetCDF_ReadAfterClose(t *testing.T) {
	src, _ := sequentialCube(2, 2, 2)
	path := writeTestCube(t, src)

	cube, err := (&NetCDFOpener{}).Open(path, OpenRequest{Variable: "t2m"})
	require.NoError(t, err)
	require.NoError(t, cube.Close())
	require.NoError(t, cube.Close())

	_, err = ReadAll(context.Background(), cube)
	assert.True(t, models.IsComputation(err), "got %v", err)
}

func TestNetCDFContainer_WriteTrend(t *testing.T) {
	meta := testMeta(dailyTimes(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 1), 2, 3)
	report := &models.TrendReport{
		Slope:       models.NewResultGrid(models.TrendSlope, meta),
		ZScore:      models.NewResultGrid(models.TrendZScore, meta),
		Significant: models.NewResultGrid(models.TrendSignificant, meta),
		Trusted:     1.96,
	}
	for i := range report.Slope.Values {
		report.Slope.Values[i] = float32(i) / 10
		report.ZScore.Values[i] = float32(i)
		if i >= 2 {
			report.Significant.Values[i] = report.Slope.Values[i]
		}
	}

	path := filepath.Join(t.TempDir(), "t2m_Slope_MK.nc")
	require.NoError(t, NetCDFContainer{}.WriteTrend(path, report))

	nc, err := netcdf.Open(path)
	require.NoError(t, err)
	defer nc.Close()

	assert.Subset(t, nc.ListVariables(),
		[]string{models.TrendSlope, models.TrendZScore, models.TrendSignificant, models.LatitudeDimension, models.LongitudeDimension})

	vg, err := nc.GetVarGetter(models.TrendSignificant)
	require.NoError(t, err)
	assert.Equal(t, []string{models.LatitudeDimension, models.LongitudeDimension}, vg.Dimensions())
	raw, err := vg.Values()
	require.NoError(t, err)
	rows, ok := raw.([][]float32)
	require.True(t, ok, "unexpected type %T", raw)
	assert.True(t, math.IsNaN(float64(rows[0][0])))
	assert.Equal(t, float32(0.5), rows[1][2])

	attrs := nc.Attributes()
	trusted, ok := attrs.Get("trusted_threshold")
	require.True(t, ok)
	assert.Equal(t, 1.96, trusted)
}

func TestNetCDFContainer_RejectsIncompleteReport(t *testing.T) {
	err := NetCDFContainer{}.WriteTrend(filepath.Join(t.TempDir(), "x.nc"), &models.TrendReport{})
	assert.True(t, models.IsComputation(err))
}
