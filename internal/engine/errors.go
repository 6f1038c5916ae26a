package engine

import "errors"

// Domain errors for the engine package.
var (
	// ErrInvalidCommand is returned when a write command fails validation.
	ErrInvalidCommand = errors.New("engine: invalid write command")
)
