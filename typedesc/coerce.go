package typedesc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Coerce converts a dynamically decoded value (the output of decoding into
// an interface{}) into the canonical Go representation of d:
//
//	Bool   -> bool
//	Int    -> int64
//	Uint   -> uint64
//	Float  -> float64
//	String -> string
//	Bytes  -> []byte
//	Object -> normalized map[string]any (or whatever the codec produced)
//	List   -> []any
//	Map    -> map[string]any
//	Set    -> []any, sorted by string form
//	Any    -> normalized value
//
// Numbers may arrive as json.Number, any sized int/uint or float.
func Coerce(v any, d Descriptor) (any, error) {
	switch d.Kind {
	case Any, Object:
		return normalize(v), nil
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(d, v)
		}
		return b, nil
	case Int:
		return toInt64(v, d)
	case Uint:
		return toUint64(v, d)
	case Float:
		return toFloat64(v, d)
	case String:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(d, v)
		}
		return s, nil
	case Bytes:
		switch b := v.(type) {
		case []byte:
			return append([]byte(nil), b...), nil
		case string:
			out, err := base64.StdEncoding.DecodeString(b)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
			}
			return out, nil
		}
		return nil, mismatch(d, v)
	case List:
		items, ok := v.([]any)
		if !ok {
			return nil, mismatch(d, v)
		}
		out := make([]any, len(items))
		for i, item := range items {
			c, err := Coerce(item, *d.Elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case Map:
		m, ok := stringMap(v)
		if !ok {
			return nil, mismatch(d, v)
		}
		out := make(map[string]any, len(m))
		for k, item := range m {
			c, err := Coerce(item, *d.Elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case Set:
		return coerceSet(v, *d.Elem)
	}
	return nil, fmt.Errorf("%w: unknown kind %s", ErrIncompatible, d.Kind)
}

func mismatch(d Descriptor, v any) error {
	return fmt.Errorf("%w: expected %s, got %T", ErrIncompatible, d.Kind, v)
}

// coerceSet accepts both encodings a set can come back in: a list of
// members, or a map whose keys are the members.
func coerceSet(v any, elem Descriptor) (any, error) {
	var members []any
	switch s := v.(type) {
	case []any:
		members = s
	case map[string]any:
		for k := range s {
			members = append(members, k)
		}
	case map[any]any:
		for k := range s {
			members = append(members, k)
		}
	default:
		return nil, mismatch(SetOf(elem), v)
	}
	out := make([]any, 0, len(members))
	for _, m := range members {
		if s, ok := m.(string); ok && elem.Kind != String && elem.Kind != Bytes && elem.Kind != Any {
			parsed, err := parseScalar(s, elem)
			if err != nil {
				return nil, err
			}
			m = parsed
		}
		c, err := Coerce(m, elem)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i]) < fmt.Sprint(out[j])
	})
	return out, nil
}

// parseScalar reads a map key back into the scalar it was written from.
func parseScalar(s string, d Descriptor) (any, error) {
	switch d.Kind {
	case Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
		}
		return b, nil
	case Int, Uint, Float:
		return json.Number(s), nil
	}
	return s, nil
}

func stringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[fmt.Sprint(k)] = item
		}
		return out, true
	}
	return nil, false
}

// normalize rewrites codec-specific scalars into int64, uint64 and float64
// and walks nested containers.
func normalize(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return uint64(n)
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	case float32:
		return float64(n)
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	}
	return v
}

func toInt64(v any, d Descriptor) (any, error) {
	switch n := normalize(v).(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrIncompatible, n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %v is not an integer", ErrIncompatible, n)
		}
		return int64(n), nil
	}
	return nil, mismatch(d, v)
}

func toUint64(v any, d Descriptor) (any, error) {
	switch n := v.(type) {
	case json.Number:
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, nil
		}
	}
	switch n := normalize(v).(type) {
	case uint64:
		return n, nil
	case int64:
		if n < 0 {
			return nil, fmt.Errorf("%w: %d is negative", ErrIncompatible, n)
		}
		return uint64(n), nil
	case float64:
		if n != math.Trunc(n) || n < 0 || n > math.MaxUint64 {
			return nil, fmt.Errorf("%w: %v is not an unsigned integer", ErrIncompatible, n)
		}
		return uint64(n), nil
	}
	return nil, mismatch(d, v)
}

func toFloat64(v any, d Descriptor) (any, error) {
	switch n := normalize(v).(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return nil, mismatch(d, v)
}
