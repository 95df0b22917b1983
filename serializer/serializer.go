// Package serializer turns values into bytes and back.
package serializer

import (
	"errors"
	"fmt"

	"github.com/stevemurr/hawk/typedesc"
)

// ErrUnknown is returned by New for an unknown serializer name.
var ErrUnknown = errors.New("unknown serializer")

// Serializer encodes values of any supported type and decodes them given
// the descriptor that was recorded when they were encoded.
type Serializer interface {
	// Name identifies the serializer in configuration and logs.
	Name() string

	// Serialize encodes v.
	Serialize(v any) ([]byte, error)

	// Deserialize decodes data into target, which must be a pointer. When
	// target is a *any, *[]any or *map[string]any the value is rebuilt from
	// info alone (see typedesc.Coerce); otherwise it is decoded straight into
	// the target type.
	Deserialize(data []byte, info typedesc.Descriptor, target any) error
}

// New returns the serializer registered under name ("json" by default).
func New(name string) (Serializer, error) {
	switch name {
	case "json", "":
		return JSON{}, nil
	case "msgpack":
		return Msgpack{}, nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: json, msgpack)", ErrUnknown, name)
	}
}

// isDynamic reports whether target is filled from a dynamically decoded value.
func isDynamic(target any) bool {
	switch target.(type) {
	case *any, *[]any, *map[string]any:
		return true
	}
	return false
}

// assignDynamic coerces a dynamically decoded value and stores it in target.
func assignDynamic(raw any, info typedesc.Descriptor, target any) error {
	v, err := typedesc.Coerce(raw, info)
	if err != nil {
		return err
	}
	switch p := target.(type) {
	case *any:
		*p = v
		return nil
	case *[]any:
		if l, ok := v.([]any); ok {
			*p = l
			return nil
		}
	case *map[string]any:
		if m, ok := v.(map[string]any); ok {
			*p = m
			return nil
		}
	}
	return fmt.Errorf("%w: cannot store %T in %T", typedesc.ErrIncompatible, v, target)
}
