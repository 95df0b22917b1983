package typedesc

import (
	"reflect"
)

// Describe returns the descriptor of a value about to be stored. Containers
// whose static element type is an interface (such as []any) are described
// from their contents when every element agrees.
func Describe(v any) Descriptor {
	switch v.(type) {
	case nil:
		return Of(Any)
	case bool:
		return Of(Bool)
	case int, int8, int16, int32, int64:
		return Of(Int)
	case uint, uint8, uint16, uint32, uint64, uintptr:
		return Of(Uint)
	case float32, float64:
		return Of(Float)
	case string:
		return Of(String)
	case []byte:
		return Of(Bytes)
	}
	return describeValue(reflect.ValueOf(v))
}

// For returns the descriptor of the static type T.
func For[T any]() Descriptor {
	return DescribeType(reflect.TypeFor[T]())
}

// DescribeType returns the descriptor of a static type.
func DescribeType(t reflect.Type) Descriptor {
	if t == nil {
		return Of(Any)
	}
	switch t.Kind() {
	case reflect.Bool:
		return Of(Bool)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Of(Int)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Of(Uint)
	case reflect.Float32, reflect.Float64:
		return Of(Float)
	case reflect.String:
		return Of(String)
	case reflect.Pointer:
		return DescribeType(t.Elem())
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return Of(Bytes)
		}
		return ListOf(DescribeType(t.Elem()))
	case reflect.Array:
		return ListOf(DescribeType(t.Elem()))
	case reflect.Map:
		if isEmptyStruct(t.Elem()) {
			return SetOf(DescribeType(t.Key()))
		}
		return MapOf(DescribeType(t.Elem()))
	case reflect.Struct:
		return ObjectOf(t.String())
	default:
		return Of(Any)
	}
}

func isEmptyStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.NumField() == 0
}

func describeValue(rv reflect.Value) Descriptor {
	if !rv.IsValid() {
		return Of(Any)
	}
	t := rv.Type()
	switch t.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return Of(Any)
		}
		return describeValue(rv.Elem())
	case reflect.Pointer:
		if rv.IsNil() {
			return DescribeType(t.Elem())
		}
		return describeValue(rv.Elem())
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() != reflect.Interface {
			return DescribeType(t)
		}
		elems := make([]reflect.Value, rv.Len())
		for i := range elems {
			elems[i] = rv.Index(i)
		}
		return ListOf(unify(elems))
	case reflect.Map:
		if t.Elem().Kind() != reflect.Interface {
			return DescribeType(t)
		}
		elems := make([]reflect.Value, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			elems = append(elems, iter.Value())
		}
		return MapOf(unify(elems))
	}
	return DescribeType(t)
}

// unify returns the common descriptor of all values, or Any when they differ
// or there are none.
func unify(values []reflect.Value) Descriptor {
	if len(values) == 0 {
		return Of(Any)
	}
	first := describeValue(values[0])
	for _, v := range values[1:] {
		if !describeValue(v).Equal(first) {
			return Of(Any)
		}
	}
	return first
}
