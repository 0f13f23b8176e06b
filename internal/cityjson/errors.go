package cityjson

import (
	"errors"
	"fmt"
)

// Input-format errors
var (
	ErrMalformedDocument  = errors.New("malformed CityJSON document")
	ErrUnsupportedVersion = errors.New("unsupported CityJSON version")
)

// Unsupported-geometry errors
var (
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")
	ErrMissingGeometry     = errors.New("city object has no geometry")
	ErrEmptyBoundary       = errors.New("empty boundary")
	ErrDegenerateRing      = errors.New("exterior ring has fewer than 3 vertices")
	ErrVertexIndex         = errors.New("vertex index out of range")
)

// ObjectError ties a failure to the city object that caused it.
type ObjectError struct {
	ID  string
	Err error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("city object %q: %v", e.ID, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}
