package models

import (
	"fmt"
	"time"
)

// Default axis names used by ERA5 daily statistics files
const (
	DefaultTimeDimension = "valid_time"
	LatitudeDimension    = "latitude"
	LongitudeDimension   = "longitude"
)

// CubeMeta describes a gridded time-series cube (time, latitude, longitude)
type CubeMeta struct {
	Variable      string
	TimeDimension string
	Units         string
	Times         []time.Time
	Latitudes     []float64
	Longitudes    []float64
	Attributes    map[string]string
}

// NumTimes returns the length of the time axis
func (m CubeMeta) NumTimes() int {
	return len(m.Times)
}

// NumLat returns the length of the latitude axis
func (m CubeMeta) NumLat() int {
	return len(m.Latitudes)
}

// NumLon returns the length of the longitude axis
func (m CubeMeta) NumLon() int {
	return len(m.Longitudes)
}

// Pixels returns the number of spatial cells
func (m CubeMeta) Pixels() int {
	return len(m.Latitudes) * len(m.Longitudes)
}

// Validate checks that the axes are non-empty and the time axis is monotonic
func (m CubeMeta) Validate() error {
	if m.Variable == "" {
		return NewValidationError("cube has no variable name")
	}
	if len(m.Times) == 0 || len(m.Latitudes) == 0 || len(m.Longitudes) == 0 {
		return NewInputDataError("cube %q has an empty axis (time=%d, lat=%d, lon=%d)",
			m.Variable, len(m.Times), len(m.Latitudes), len(m.Longitudes))
	}
	for i := 1; i < len(m.Times); i++ {
		if !m.Times[i].After(m.Times[i-1]) {
			return NewInputDataError("time axis of %q is not strictly increasing at index %d", m.Variable, i)
		}
	}
	return nil
}

// Block is a half-open index range [T0,T1) x [Y0,Y1) x [X0,X1) of a cube
type Block struct {
	T0, T1 int
	Y0, Y1 int
	X0, X1 int
}

// NT returns the number of time steps in the block
func (b Block) NT() int { return b.T1 - b.T0 }

// NY returns the number of rows in the block
func (b Block) NY() int { return b.Y1 - b.Y0 }

// NX returns the number of columns in the block
func (b Block) NX() int { return b.X1 - b.X0 }

// Len returns the number of values in the block
func (b Block) Len() int { return b.NT() * b.NY() * b.NX() }

// Pixels returns the number of spatial cells in the block
func (b Block) Pixels() int { return b.NY() * b.NX() }

func (b Block) String() string {
	return fmt.Sprintf("t[%d:%d] y[%d:%d] x[%d:%d]", b.T0, b.T1, b.Y0, b.Y1, b.X0, b.X1)
}

// Within reports whether b lies inside a cube described by meta
func (b Block) Within(meta CubeMeta) bool {
	return b.T0 >= 0 && b.Y0 >= 0 && b.X0 >= 0 &&
		b.T0 < b.T1 && b.Y0 < b.Y1 && b.X0 < b.X1 &&
		b.T1 <= meta.NumTimes() && b.Y1 <= meta.NumLat() && b.X1 <= meta.NumLon()
}
