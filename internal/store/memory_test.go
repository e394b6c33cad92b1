package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climidx/climidx/internal/models"
)

func TestNewMemoryCube_LengthMismatch(t *testing.T) {
	meta := testMeta(dailyTimes(time.Now().UTC(), 2), 2, 2)
	_, err := NewMemoryCube(meta, make([]float32, 7))
	assert.True(t, models.IsInputData(err), "got %v", err)
}

func TestMemoryCube_ReadBlock(t *testing.T) {
	cube, _ := sequentialCube(3, 4, 5)

	got, err := cube.ReadBlock(context.Background(), models.Block{T0: 1, T1: 3, Y0: 2, Y1: 4, X0: 3, X1: 5})
	require.NoError(t, err)

	want := []float32{
		1203, 1204,
		1303, 1304,
		2203, 2204,
		2303, 2304,
	}
	assert.Equal(t, want, got)
}

func TestMemoryCube_ReadBlockOutOfRange(t *testing.T) {
	cube, _ := sequentialCube(2, 2, 2)

	_, err := cube.ReadBlock(context.Background(), models.Block{T0: 0, T1: 3, Y0: 0, Y1: 1, X0: 0, X1: 1})
	assert.True(t, models.IsValidation(err), "got %v", err)
}

func TestReadAll(t *testing.T) {
	cube, data := sequentialCube(2, 3, 2)

	got, err := ReadAll(context.Background(), cube)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestMemoryOpener(t *testing.T) {
	cube, _ := sequentialCube(2, 2, 2)
	opener := &MemoryOpener{Cubes: map[string]*MemoryCube{"a.nc": cube}}

	c, err := opener.Open("a.nc", OpenRequest{Variable: "t2m", TimeDimension: models.DefaultTimeDimension})
	require.NoError(t, err)
	assert.Equal(t, "t2m", c.Meta().Variable)

	_, err = opener.Open("a.nc", OpenRequest{Variable: "tp"})
	assert.True(t, models.IsValidation(err))

	_, err = opener.Open("a.nc", OpenRequest{Variable: "t2m", TimeDimension: "time"})
	assert.True(t, models.IsValidation(err))

	_, err = opener.Open("b.nc", OpenRequest{Variable: "t2m"})
	assert.True(t, models.IsInputData(err))
}
