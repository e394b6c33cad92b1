package store

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleAnnualMean(t *testing.T) {
	times := []time.Time{
		time.Date(2000, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2000, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2003, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	nan := float32(math.NaN())
	// two pixels per step
	data := []float32{
		1, nan,
		3, nan,
		10, 4,
		7, 8,
	}
	cube, err := NewMemoryCube(testMeta(times, 1, 2), data)
	require.NoError(t, err)

	annual, err := ResampleAnnualMean(context.Background(), cube)
	require.NoError(t, err)

	meta := annual.Meta()
	require.Len(t, meta.Times, 3)
	assert.Equal(t, []int{2000, 2001, 2003}, []int{meta.Times[0].Year(), meta.Times[1].Year(), meta.Times[2].Year()})
	assert.Equal(t, time.January, meta.Times[0].Month())
	assert.Contains(t, meta.Attributes["cell_methods"], "mean")

	got, err := ReadAll(context.Background(), annual)
	require.NoError(t, err)
	assert.True(t, sameValues([]float32{2, nan, 10, 4, 7, 8}, got), "got %v", got)
}

func TestResampleAnnualMean_Cancelled(t *testing.T) {
	cube, _ := sequentialCube(3, 2, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ResampleAnnualMean(ctx, cube)
	assert.ErrorIs(t, err, context.Canceled)
}
