package schema

import (
	"math"
	"strconv"
)

// Truthy reports whether a value counts as "set" for visibility and
// compound-rule purposes: nil, false, zero, empty string, and empty
// collections are falsy; everything else is truthy.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case []string:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		if f, ok := toFloat64(v); ok {
			return f != 0
		}
		return true
	}
}

// isEmpty reports the "no value entered" states: nil and empty string.
// Zero is a value, not emptiness.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// toFloat64 coerces numeric values (and numeric strings) to float64.
func toFloat64(v any) (float64, bool) {
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
		if err != nil {
			return math.NaN(), false
		}
		return f, true
	default:
		return 0, false
	}
}

// toString coerces a value to its string form for text-style checks.
// Non-strings other than nil stringify via strconv for numeric types.
func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	default:
		if f, ok := toFloat64(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return ""
	}
}

// toSlice normalizes array-shaped values to []any. Returns nil for
// non-arrays.
func toSlice(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case []string:
		result := make([]any, len(val))
		for i, s := range val {
			result[i] = s
		}
		return result
	case []int:
		result := make([]any, len(val))
		for i, n := range val {
			result[i] = n
		}
		return result
	case []float64:
		result := make([]any, len(val))
		for i, n := range val {
			result[i] = n
		}
		return result
	default:
		return nil
	}
}

// valuesEqual compares two values, treating numerically equal numbers as
// equal regardless of Go type.
func valuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	fa, aNum := toFloat64Strict(a)
	fb, bNum := toFloat64Strict(b)
	if aNum && bNum {
		return fa == fb
	}

	return a == b
}

// toFloat64Strict is toFloat64 without string coercion: "4" != 4 when
// comparing condition values.
func toFloat64Strict(v any) (float64, bool) {
	if _, isStr := v.(string); isStr {
		return 0, false
	}
	return toFloat64(v)
}
