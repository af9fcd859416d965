package params

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingParameter matches a *MissingParameterError.
	ErrMissingParameter = errors.New("params: missing required parameter")

	// ErrMalformedQuery matches a *MalformedQueryError.
	ErrMalformedQuery = errors.New("params: malformed query")
)

// MissingParameterError is returned when a required parameter has neither a
// supplied value nor a default.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("params: missing required parameter %q", e.Name)
}

// Is makes errors.Is(err, ErrMissingParameter) hold.
func (e *MissingParameterError) Is(target error) bool {
	return target == ErrMissingParameter
}

// MalformedQueryError is returned when the store rejects a query for a
// reason other than a binding mismatch.
type MalformedQueryError struct {
	Query string
	Err   error
}

func (e *MalformedQueryError) Error() string {
	return fmt.Sprintf("params: malformed query: %v", e.Err)
}

func (e *MalformedQueryError) Unwrap() []error {
	return []error{ErrMalformedQuery, e.Err}
}
