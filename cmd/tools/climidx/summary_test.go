package main

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climidx/climidx/internal/indices"
	"github.com/climidx/climidx/internal/models"
)

func TestPrintSummary(t *testing.T) {
	nan := float32(math.NaN())
	res := &indices.Result{
		RunID: "3f1c",
		Index: "etccdi",
		Grids: []*models.ResultGrid{
			{Name: "TXx", Units: "0.1°C", Latitudes: []float64{1}, Longitudes: []float64{1, 2}, Values: []float32{300, nan}},
			{Name: "SU", Units: "days", Latitudes: []float64{1}, Longitudes: []float64{1, 2}, Values: []float32{2, 4}},
		},
		Outputs:  []string{"/out/t2m-TXx.tif", "/out/t2m-SU.tif"},
		Duration: 1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, res))
	out := buf.String()

	for _, want := range []string{"TXx", "SU", "300.000", "3.000", "run 3f1c (etccdi) in 1.5s", "/out/t2m-SU.tif"} {
		assert.Contains(t, out, want)
	}
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "1.250", formatFloat(1.25))
	assert.Equal(t, "NaN", formatFloat(math.NaN()))
}

func TestSetupAppliesChunkFlag(t *testing.T) {
	cmd := etccdiCmd
	require.NoError(t, rootCmd.PersistentFlags().Set("chunks", "valid_time=-1,latitude=71,longitude=122"))
	t.Cleanup(func() { _ = rootCmd.PersistentFlags().Set("chunks", "") })

	require.NoError(t, setup(cmd, nil))
	assert.Equal(t, models.ChunkShape{Time: models.WholeAxis, Lat: 71, Lon: 122}, cfg.Engine.Chunks)

	p := params("/data/t2m.nc")
	assert.Equal(t, "t2m", p.VariableName)
	assert.Equal(t, cfg.Engine.Chunks, p.Chunks)
}
