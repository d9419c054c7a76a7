package engine

import "errors"

// Sentinel errors for the engine.
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNoRecording       = errors.New("no recording")
	ErrClockUnavailable  = errors.New("clock not configured")
	ErrUnknownOp         = errors.New("unknown operation")
	ErrLoopTooLong       = errors.New("loop longer than allowed")
)
