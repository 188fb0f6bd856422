// Package query compiles document-style filters, updates and projections
// into parameterized statements for a SQL-queried table store.
package query

import (
	"strconv"
)

// ToFloat64 is a utility function that converts a value of various numeric types
// to a float64. It returns the converted float64 and a boolean indicating whether
// the conversion was successful.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
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
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// IsNumeric reports whether v holds a Go numeric type. Numeric strings do
// not count.
func IsNumeric(v any) bool {
	if _, isString := v.(string); isString {
		return false
	}
	_, ok := ToFloat64(v)
	return ok
}

// ToInt converts an integral numeric value to int.
func ToInt(v any) (int, bool) {
	if !IsNumeric(v) {
		return 0, false
	}
	f, _ := ToFloat64(v)
	if f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// numberLiteral renders a numeric value as statement text.
func numberLiteral(v any) string {
	switch val := v.(type) {
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	}
	f, _ := ToFloat64(v)
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
