package configstore

import "errors"

// Domain errors for the configstore package.
var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("configstore: not found")

	// ErrNoJob is returned when no claimable discovery job is queued.
	ErrNoJob = errors.New("configstore: no runnable discovery job")
)
