package command

import (
	"fmt"
	"math"
)

// Validate checks a raw parameter payload against a contract and returns
// the normalized payload handlers execute with:
//
//   - declared, required, absent        -> MissingParameter
//   - declared, optional, absent        -> default substituted (deep copy)
//   - declared, present                 -> type + constraint checked, value
//     normalized (numbers to float64/int, vectors to []float64)
//   - undeclared keys                   -> passed through unchanged
//
// The input map is never mutated.
func Validate(contract *Contract, params map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params)+len(contract.Params))
	for k, v := range params {
		out[k] = v
	}

	for i := range contract.Params {
		spec := &contract.Params[i]
		raw, present := params[spec.Key]
		if !present {
			if spec.Required {
				return nil, NewError(KindMissingParameter, "missing required parameter: %s", spec.Key)
			}
			if spec.Default != nil {
				out[spec.Key] = CopyValue(spec.Default)
			}
			continue
		}
		normalized, err := checkValue(spec, raw)
		if err != nil {
			return nil, err
		}
		out[spec.Key] = normalized
	}
	return out, nil
}

func checkValue(spec *ParamSpec, raw interface{}) (interface{}, error) {
	switch spec.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid(spec.Key, "expected string, got %T", raw)
		}
		if len(spec.Enum) > 0 && !enumContains(spec.Enum, s) {
			return nil, invalid(spec.Key, "value %q not in %v", s, spec.Enum)
		}
		return s, nil

	case TypeNumber:
		f, ok := toFloat(raw)
		if !ok {
			return nil, invalid(spec.Key, "expected number, got %T", raw)
		}
		if err := checkBounds(spec, f); err != nil {
			return nil, err
		}
		return f, nil

	case TypeInt:
		f, ok := toFloat(raw)
		if !ok || f != math.Trunc(f) {
			return nil, invalid(spec.Key, "expected integer, got %v", raw)
		}
		if err := checkBounds(spec, f); err != nil {
			return nil, err
		}
		return int(f), nil

	case TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, invalid(spec.Key, "expected boolean, got %T", raw)
		}
		return b, nil

	case TypeVec3:
		return toVec(spec.Key, raw, 3)

	case TypeVec4:
		return toVec(spec.Key, raw, 4)

	case TypeArray:
		arr, ok := toSlice(raw)
		if !ok {
			return nil, invalid(spec.Key, "expected array, got %T", raw)
		}
		if spec.Length > 0 && len(arr) != spec.Length {
			return nil, invalid(spec.Key, "expected %d elements, got %d", spec.Length, len(arr))
		}
		return arr, nil

	case TypeObject:
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, invalid(spec.Key, "expected object, got %T", raw)
		}
		return m, nil

	case TypeAny:
		return raw, nil

	default:
		return nil, invalid(spec.Key, "unsupported contract type %q", spec.Type)
	}
}

func invalid(key, format string, args ...interface{}) *Error {
	return NewError(KindInvalidParameter, "parameter %s: %s", key, fmt.Sprintf(format, args...))
}

func checkBounds(spec *ParamSpec, f float64) error {
	if spec.Min != nil && f < *spec.Min {
		return invalid(spec.Key, "value %v below minimum %v", f, *spec.Min)
	}
	if spec.Max != nil && f > *spec.Max {
		return invalid(spec.Key, "value %v above maximum %v", f, *spec.Max)
	}
	return nil
}

func enumContains(enum []string, s string) bool {
	for _, e := range enum {
		if e == s {
			return true
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []float64:
		out := make([]interface{}, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, true
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func toVec(key string, raw interface{}, n int) ([]float64, error) {
	if v, ok := raw.([]float64); ok {
		if len(v) != n {
			return nil, invalid(key, "expected %d components, got %d", n, len(v))
		}
		out := make([]float64, n)
		copy(out, v)
		return out, nil
	}
	arr, ok := toSlice(raw)
	if !ok {
		return nil, invalid(key, "expected array of %d numbers, got %T", n, raw)
	}
	if len(arr) != n {
		return nil, invalid(key, "expected %d components, got %d", n, len(arr))
	}
	out := make([]float64, n)
	for i, e := range arr {
		f, ok := toFloat(e)
		if !ok {
			return nil, invalid(key, "component %d: expected number, got %T", i, e)
		}
		out[i] = f
	}
	return out, nil
}

// CopyValue deep-copies the JSON-shaped values that flow through params
// and results. Scalars are returned as-is.
func CopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = CopyValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = CopyValue(e)
		}
		return out
	case []float64:
		out := make([]float64, len(t))
		copy(out, t)
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// CopyParams deep-copies a parameter or result map. A nil map copies to
// nil.
func CopyParams(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = CopyValue(v)
	}
	return out
}
