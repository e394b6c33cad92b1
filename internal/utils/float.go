package utils

import (
	"fmt"
	"math"
	"reflect"
)

// ToFloat64 converts various numeric types to float64.
// Returns the converted value and true if successful, or 0 and false if conversion fails.
// A one-element numeric slice (how netCDF stores scalar attributes) converts to its element.
func ToFloat64(v interface{}) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Len() == 1 {
		return ToFloat64(rv.Index(0).Interface())
	}
	return 0, false
}

// MustToFloat64 converts a value to float64, returning NaN if conversion fails.
func MustToFloat64(v interface{}) float64 {
	f, ok := ToFloat64(v)
	if !ok {
		return math.NaN()
	}
	return f
}

// FlattenNumeric flattens an arbitrarily nested numeric slice (e.g. [][][]int16
// as returned by a netCDF slice read) into row-major float64 values.
func FlattenNumeric(v interface{}) ([]float64, error) {
	var out []float64
	if err := flatten(reflect.ValueOf(v), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(rv reflect.Value, out *[]float64) error {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := flatten(rv.Index(i), out); err != nil {
				return err
			}
		}
		return nil
	case reflect.Float32, reflect.Float64:
		*out = append(*out, rv.Float())
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		*out = append(*out, float64(rv.Int()))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		*out = append(*out, float64(rv.Uint()))
		return nil
	case reflect.Interface:
		return flatten(rv.Elem(), out)
	default:
		return fmt.Errorf("unsupported value type %s", rv.Type())
	}
}

// RoundHalfEven rounds to the nearest integer, ties to even
func RoundHalfEven(v float64) float64 {
	return math.RoundToEven(v)
}
