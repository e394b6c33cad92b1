package store

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climidx/climidx/internal/compression"
	"github.com/climidx/climidx/internal/models"
)

func buildLayerCube(t *testing.T, src *MemoryCube, algo compression.Algorithm) *LayerCube {
	t.Helper()
	meta := src.Meta()
	b, err := NewLayerCubeBuilder(meta.Variable, meta.Latitudes, meta.Longitudes, algo)
	require.NoError(t, err)
	for i, ts := range meta.Times {
		require.NoError(t, b.Append(ts, src.Layer(i)))
	}
	cube, err := b.Build()
	require.NoError(t, err)
	return cube
}

func TestLayerCube_ReadBlockMatchesMemoryCube(t *testing.T) {
	src, _ := sequentialCube(5, 6, 7)

	for _, algo := range []compression.Algorithm{compression.None, compression.Snappy} {
		t.Run(algo.String(), func(t *testing.T) {
			cube := buildLayerCube(t, src, algo)
			block := models.Block{T0: 1, T1: 4, Y0: 2, Y1: 5, X0: 1, X1: 6}

			want, err := src.ReadBlock(context.Background(), block)
			require.NoError(t, err)
			got, err := cube.ReadBlock(context.Background(), block)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLayerCubeBuilder_Validation(t *testing.T) {
	lat, lon := []float64{1, 0}, []float64{0, 1, 2}
	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewLayerCubeBuilder("", lat, lon, compression.Snappy)
	assert.True(t, models.IsValidation(err))

	_, err = NewLayerCubeBuilder("t2m", nil, lon, compression.Snappy)
	assert.True(t, models.IsInputData(err))

	b, err := NewLayerCubeBuilder("t2m", lat, lon, compression.Snappy)
	require.NoError(t, err)

	_, err = b.Build()
	assert.True(t, models.IsInputData(err), "empty cube should be rejected")

	assert.True(t, models.IsInputData(b.Append(day, make([]float32, 5))), "short layer")
	require.NoError(t, b.Append(day, make([]float32, 6)))
	assert.True(t, models.IsInputData(b.Append(day, make([]float32, 6))), "repeated date")
	assert.True(t, models.IsInputData(b.Append(day.AddDate(0, 0, -1), make([]float32, 6))), "earlier date")
	assert.Equal(t, 1, b.Len())
}

func TestLayerCube_PreservesNaN(t *testing.T) {
	b, err := NewLayerCubeBuilder("t2m", []float64{0}, []float64{0, 1}, compression.Snappy)
	require.NoError(t, err)
	nan := float32(math.NaN())
	require.NoError(t, b.Append(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), []float32{nan, 3}))
	cube, err := b.Build()
	require.NoError(t, err)

	got, err := ReadAll(context.Background(), cube)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(got[0])))
	assert.Equal(t, float32(3), got[1])
}

func TestLayerCube_StatsShowCompression(t *testing.T) {
	lat := make([]float64, 64)
	lon := make([]float64, 64)
	for i := range lat {
		lat[i] = float64(-i)
		lon[i] = float64(i)
	}
	b, err := NewLayerCubeBuilder("t2m", lat, lon, compression.Snappy)
	require.NoError(t, err)

	layer := make([]float32, 64*64)
	for i := range layer {
		layer[i] = 250
	}
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := 0; d < 10; d++ {
		require.NoError(t, b.Append(start.AddDate(0, 0, d), layer))
	}
	cube, err := b.Build()
	require.NoError(t, err)

	stats := cube.Stats()
	assert.Equal(t, 10, stats["layers"])
	assert.Equal(t, "snappy", stats["algorithm"])
	assert.Greater(t, stats["compression_ratio"].(float64), 5.0)
}
