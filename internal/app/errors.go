package app

import (
	"errors"
	"fmt"
)

// Runtime errors.
var (
	// ErrClosed is returned by a runtime that has been closed.
	ErrClosed = errors.New("runtime closed")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("runtime already running")

	// ErrUnknownDriver is returned for a store driver the runtime cannot open.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// InitError reports a component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
