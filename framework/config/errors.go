package config

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvable is the cause when no source defines a key and the
	// placeholder has no default.
	ErrUnresolvable = errors.New("no source defines key")

	// ErrCircularPlaceholder is the cause when property values reference
	// each other in a loop.
	ErrCircularPlaceholder = errors.New("circular placeholder reference")

	// ErrMalformedPlaceholder is the cause for an unterminated ${ or #{.
	ErrMalformedPlaceholder = errors.New("malformed placeholder")

	// ErrNoEvaluator is the cause when a #{...} expression is used but no
	// Evaluator was configured.
	ErrNoEvaluator = errors.New("no expression evaluator configured")
)

// PropertyResolutionError reports a key that could not be resolved.
type PropertyResolutionError struct {
	Key   string
	Cause error
}

func (e *PropertyResolutionError) Error() string {
	return fmt.Sprintf("resolve property %q: %v", e.Key, e.Cause)
}

func (e *PropertyResolutionError) Unwrap() error { return e.Cause }
