package hawk

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned when an operation is given an empty key.
	ErrInvalidKey = errors.New("hawk: key must not be empty")

	// ErrNotInitialized is returned when no encryption strategy is active,
	// which happens when Init failed.
	ErrNotInitialized = errors.New("hawk: not initialized")
)

// EncodingError reports that a value could not be turned into an envelope.
// Nothing is written when it is returned.
type EncodingError struct {
	Key   string
	Cause error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("hawk: failed to encode value for key %q: %v", e.Key, e.Cause)
}

func (e *EncodingError) Unwrap() error {
	return e.Cause
}
