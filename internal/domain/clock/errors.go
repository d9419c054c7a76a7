package clock

import "errors"

// Sentinel errors for clocks.
var (
	ErrUnknownMode = errors.New("unknown clock mode")
	ErrInvalidBPM  = errors.New("bpm must be positive")
	// ErrDiscontinuity describes a backward host jump. It is recorded on the
	// clock and reported through Host.LastDiscontinuity, never returned from
	// Update or Now.
	ErrDiscontinuity = errors.New("clock discontinuity")
)
