package query

import (
	"errors"
	"fmt"
)

// Compile-time errors. They are caused by caller input and are returned
// wrapped with the offending fragment.
var (
	ErrInvalidFilter       = errors.New("invalid filter")
	ErrInvalidProjection   = errors.New("invalid projection")
	ErrInvalidUpdate       = errors.New("invalid update")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrMissingSchema       = errors.New("missing schema")
	ErrTooManyBindings     = errors.New("too many bindings")
)

func invalidFilter(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFilter, fmt.Sprintf(format, args...))
}

func invalidProjection(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProjection, fmt.Sprintf(format, args...))
}

func invalidUpdate(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidUpdate, fmt.Sprintf(format, args...))
}

// fragment renders a filter or projection node for error messages.
func fragment(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}
