package models

import (
	"fmt"
	"strconv"
	"strings"
)

// WholeAxis requests a chunk spanning the entire axis
const WholeAxis = -1

// ChunkShape is a chunk-size hint along each cube axis.
// A value of WholeAxis (or 0, or anything larger than the axis) means the whole axis.
type ChunkShape struct {
	Time int `mapstructure:"time"`
	Lat  int `mapstructure:"lat"`
	Lon  int `mapstructure:"lon"`
}

// WholeCube returns a shape that covers the entire cube in one chunk
func WholeCube() ChunkShape {
	return ChunkShape{Time: WholeAxis, Lat: WholeAxis, Lon: WholeAxis}
}

// Resolve replaces whole-axis sentinels and oversized hints with the axis lengths
func (c ChunkShape) Resolve(meta CubeMeta) ChunkShape {
	return ChunkShape{
		Time: resolveAxis(c.Time, meta.NumTimes()),
		Lat:  resolveAxis(c.Lat, meta.NumLat()),
		Lon:  resolveAxis(c.Lon, meta.NumLon()),
	}
}

func resolveAxis(hint, length int) int {
	if hint <= 0 || hint > length {
		return length
	}
	return hint
}

// Validate rejects negative sizes other than WholeAxis
func (c ChunkShape) Validate() error {
	for name, v := range map[string]int{"time": c.Time, "lat": c.Lat, "lon": c.Lon} {
		if v < WholeAxis {
			return NewValidationError("invalid chunk size for %s: %d", name, v)
		}
	}
	return nil
}

func (c ChunkShape) String() string {
	return fmt.Sprintf("time=%d,lat=%d,lon=%d", c.Time, c.Lat, c.Lon)
}

// ParseChunkShape parses "valid_time=-1,latitude=71,longitude=122".
// The time axis may be named by timeDim or "time"; latitude accepts "lat"/"y",
// longitude accepts "lon"/"x". Axes not mentioned default to WholeAxis.
func ParseChunkShape(s, timeDim string) (ChunkShape, error) {
	shape := WholeCube()
	s = strings.TrimSpace(s)
	if s == "" {
		return shape, nil
	}

	for _, part := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return shape, NewValidationError("malformed chunk entry %q (want axis=size)", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return shape, NewValidationError("chunk size for %q is not an integer: %q", key, val)
		}

		switch key = strings.TrimSpace(key); {
		case key == timeDim || key == "time":
			shape.Time = n
		case key == LatitudeDimension || key == "lat" || key == "y":
			shape.Lat = n
		case key == LongitudeDimension || key == "lon" || key == "x":
			shape.Lon = n
		default:
			return shape, NewValidationError("unknown chunk axis %q", key)
		}
	}

	return shape, shape.Validate()
}
