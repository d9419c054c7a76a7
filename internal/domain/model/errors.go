package model

import "errors"

// Sentinel errors for the event model.
var (
	ErrUnknownKind     = errors.New("unknown event kind")
	ErrPayloadMismatch = errors.New("payload does not match event kind")
	ErrMalformed       = errors.New("malformed recording")
	ErrIndexOutOfRange = errors.New("event index out of range")
	ErrEmptyRegion     = errors.New("empty loop region")
)
