package store

import (
	"math"
	"strings"
	"time"

	"github.com/climidx/climidx/internal/models"
)

var referenceLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.0",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimeUnits parses CF time units such as "seconds since 1970-01-01" or
// "hours since 1900-01-01 00:00:00.0" into a step and a reference time (UTC)
func ParseTimeUnits(units string) (time.Duration, time.Time, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, models.NewInputDataError("time units %q are not of the form '<unit> since <date>'", units)
	}

	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "secs", "sec", "s":
		step = time.Second
	case "minutes", "minute", "mins", "min":
		step = time.Minute
	case "hours", "hour", "hrs", "hr", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, models.NewInputDataError("unsupported time unit %q", unit)
	}

	ref = strings.TrimSpace(ref)
	ref = strings.TrimSuffix(ref, " UTC")
	for _, layout := range referenceLayouts {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return step, t, nil
		}
	}
	return 0, time.Time{}, models.NewInputDataError("cannot parse reference date %q", ref)
}

// DecodeTimes converts offsets in CF units into times
func DecodeTimes(offsets []float64, units string) ([]time.Time, error) {
	step, ref, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, len(offsets))
	for i, v := range offsets {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, models.NewInputDataError("time value %d is not finite", i)
		}
		times[i] = ref.Add(time.Duration(math.Round(v * float64(step))))
	}
	return times, nil
}

// EncodeEpochSeconds converts times into seconds since 1970-01-01
func EncodeEpochSeconds(times []time.Time) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = float64(t.Unix())
	}
	return out
}
