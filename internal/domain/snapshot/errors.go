package snapshot

import "errors"

// Sentinel errors for snapshot decoding.
var (
	ErrUnknownSchemaVersion = errors.New("unknown schema version")
	ErrMalformedRecording   = errors.New("malformed recording")
)
